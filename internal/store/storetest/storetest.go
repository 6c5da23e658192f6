// Package storetest provides a conformance suite for store.Store
// implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/store"
)

// Run exercises s against the store.Store contract. userPrefix keeps rows
// from concurrent runs against a shared database apart.
func Run(t *testing.T, s store.Store, userPrefix string) {
	ctx := context.Background()
	user := userPrefix + "user"
	other := userPrefix + "other"
	fetched := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("top tracks replace and read back", func(t *testing.T) {
		tracks := []store.TrackEntity{
			{Rank: 1, ID: "t1", Name: "One", Artists: "A, B", ArtistIDs: []string{"a", "b"}, Album: "X", DurationMs: 1000, Popularity: 50, FetchedAt: fetched},
			{Rank: 2, ID: "t2", Name: "Two", Artists: "C", ArtistIDs: []string{"c"}, FetchedAt: fetched},
			{Rank: 3, ID: "t1", Name: "Duplicate", Artists: "A", FetchedAt: fetched},
		}
		require.NoError(t, s.ReplaceTopTracks(ctx, user, music.ShortTerm, tracks))

		got, err := s.TopTracks(ctx, user, music.ShortTerm)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "One", got[0].Name, "first occurrence wins")
		assert.Equal(t, []string{"a", "b"}, got[0].ArtistIDs)
		assert.Equal(t, 1000, got[0].DurationMs)
		assert.True(t, got[0].FetchedAt.Equal(fetched))
		assert.Equal(t, music.ShortTerm, got[0].TimeRange)
		assert.Equal(t, "t2", got[1].ID)

		// Replacing drops rows that are no longer present.
		require.NoError(t, s.ReplaceTopTracks(ctx, user, music.ShortTerm, tracks[1:2]))
		got, err = s.TopTracks(ctx, user, music.ShortTerm)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "t2", got[0].ID)
	})

	t.Run("top tracks isolated by range and user", func(t *testing.T) {
		require.NoError(t, s.ReplaceTopTracks(ctx, user, music.LongTerm, []store.TrackEntity{
			{Rank: 1, ID: "long", Name: "Long", Artists: "Z", FetchedAt: fetched},
		}))

		got, err := s.TopTracks(ctx, user, music.MediumTerm)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.TopTracks(ctx, other, music.LongTerm)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.TopTracks(ctx, user, music.LongTerm)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "long", got[0].ID)
	})

	t.Run("top artists replace and read back", func(t *testing.T) {
		artists := []store.ArtistEntity{
			{Rank: 2, ID: "a2", Name: "Second", Genres: nil, FetchedAt: fetched},
			{Rank: 1, ID: "a1", Name: "First", Genres: []string{"indie", "dream pop"}, Followers: 10, Popularity: 80, FetchedAt: fetched},
			{Rank: 3, ID: "a1", Name: "Duplicate", FetchedAt: fetched},
		}
		require.NoError(t, s.ReplaceTopArtists(ctx, user, music.MediumTerm, artists))

		got, err := s.TopArtists(ctx, user, music.MediumTerm)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "First", got[0].Name, "ordered by rank")
		assert.Equal(t, []string{"indie", "dream pop"}, got[0].Genres)
		assert.Equal(t, 10, got[0].Followers)
		assert.Empty(t, got[1].Genres)

		require.NoError(t, s.ReplaceTopArtists(ctx, user, music.MediumTerm, nil))
		got, err = s.TopArtists(ctx, user, music.MediumTerm)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("drafts", func(t *testing.T) {
		draft := &store.Draft{UserID: user, Name: "Road trip", Description: "loud", Public: true}
		require.NoError(t, s.CreateDraft(ctx, draft))
		require.NotEqual(t, uuid.Nil, draft.ID)
		assert.False(t, draft.CreatedAt.IsZero())

		got, err := s.GetDraft(ctx, draft.ID)
		require.NoError(t, err)
		assert.Equal(t, "Road trip", got.Name)
		assert.True(t, got.Public)
		assert.False(t, got.Published())

		_, err = s.GetDraft(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)

		list, err := s.DraftsForUser(ctx, user)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, draft.ID, list[0].ID)

		list, err = s.DraftsForUser(ctx, other)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("draft tracks", func(t *testing.T) {
		draft := &store.Draft{UserID: user, Name: "Mix"}
		require.NoError(t, s.CreateDraft(ctx, draft))

		for _, id := range []string{"x", "y", "z"} {
			inserted, err := s.AddDraftTrack(ctx, store.DraftTrack{DraftID: draft.ID, TrackID: id, Name: "Song " + id, Artists: "Art"})
			require.NoError(t, err)
			assert.True(t, inserted)
		}

		inserted, err := s.AddDraftTrack(ctx, store.DraftTrack{DraftID: draft.ID, TrackID: "y", Name: "again"})
		require.NoError(t, err)
		assert.False(t, inserted, "duplicate track ignored")

		_, err = s.AddDraftTrack(ctx, store.DraftTrack{DraftID: uuid.New(), TrackID: "x"})
		assert.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.RemoveDraftTrack(ctx, draft.ID, "y"))
		assert.ErrorIs(t, s.RemoveDraftTrack(ctx, draft.ID, "y"), store.ErrNotFound)

		inserted, err = s.AddDraftTrack(ctx, store.DraftTrack{DraftID: draft.ID, TrackID: "w", Name: "Song w"})
		require.NoError(t, err)
		assert.True(t, inserted)

		tracks, err := s.DraftTracks(ctx, draft.ID)
		require.NoError(t, err)
		ids := make([]string, len(tracks))
		for i, tr := range tracks {
			ids[i] = tr.TrackID
		}
		assert.Equal(t, []string{"x", "z", "w"}, ids)
		assert.Equal(t, "Song x", tracks[0].Name)
	})

	t.Run("publish and delete draft", func(t *testing.T) {
		draft := &store.Draft{UserID: user, Name: "Done"}
		require.NoError(t, s.CreateDraft(ctx, draft))
		_, err := s.AddDraftTrack(ctx, store.DraftTrack{DraftID: draft.ID, TrackID: "t", Name: "T"})
		require.NoError(t, err)

		require.NoError(t, s.SetDraftPlaylistID(ctx, draft.ID, "pl-123"))
		got, err := s.GetDraft(ctx, draft.ID)
		require.NoError(t, err)
		require.True(t, got.Published())
		assert.Equal(t, "pl-123", *got.PlaylistID)

		assert.ErrorIs(t, s.SetDraftPlaylistID(ctx, uuid.New(), "pl"), store.ErrNotFound)

		require.NoError(t, s.DeleteDraft(ctx, draft.ID))
		_, err = s.GetDraft(ctx, draft.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		tracks, err := s.DraftTracks(ctx, draft.ID)
		require.NoError(t, err)
		assert.Empty(t, tracks)
		assert.ErrorIs(t, s.DeleteDraft(ctx, draft.ID), store.ErrNotFound)
	})
}
