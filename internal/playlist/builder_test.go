package playlist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/spotify"
	"github.com/justestif/spotify-stats/internal/store/sqlite"
)

type fakeCatalog struct {
	searchResults []music.Track
	recs          []music.Track
	createErr     error
	addErr        error

	seeds     spotify.Seeds
	created   []string
	added     map[string][]string
	nextID    string
	lastQuery string
	deleted   []string
}

func (f *fakeCatalog) Search(ctx context.Context, query string, limit int) ([]music.Track, error) {
	f.lastQuery = query
	return f.searchResults, nil
}

func (f *fakeCatalog) Recommendations(ctx context.Context, seeds spotify.Seeds, limit int) ([]music.Track, error) {
	f.seeds = seeds
	return f.recs, nil
}

func (f *fakeCatalog) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, name)
	return f.nextID, nil
}

func (f *fakeCatalog) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if f.addErr != nil {
		return f.addErr
	}
	if f.added == nil {
		f.added = make(map[string][]string)
	}
	f.added[playlistID] = append(f.added[playlistID], trackIDs...)
	return nil
}

func (f *fakeCatalog) DeletePlaylist(ctx context.Context, playlistID string) error {
	f.deleted = append(f.deleted, playlistID)
	return nil
}

func newTestBuilder(t *testing.T) (*Builder, *fakeCatalog) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	catalog := &fakeCatalog{nextID: "pl-1"}
	return NewBuilder(catalog, st, nil), catalog
}

func track(id string) music.Track {
	return music.Track{ID: id, Name: "Track " + id, Artists: []music.Artist{{Name: "Artist"}}}
}

func TestCreateDraft(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	_, err := b.CreateDraft(ctx, "user-1", "   ", "", false)
	assert.ErrorIs(t, err, ErrEmptyName)

	d, err := b.CreateDraft(ctx, "user-1", " Road Trip ", " songs ", true)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, d.ID)
	assert.Equal(t, "Road Trip", d.Name)
	assert.Equal(t, "songs", d.Description)

	drafts, err := b.Drafts(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, d.ID, drafts[0].ID)

	other, err := b.Drafts(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAddRemoveTracks(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	d, err := b.CreateDraft(ctx, "user-1", "Mix", "", false)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		added, err := b.AddTrack(ctx, "user-1", d.ID, track(id))
		require.NoError(t, err)
		assert.True(t, added)
	}

	added, err := b.AddTrack(ctx, "user-1", d.ID, track("b"))
	require.NoError(t, err)
	assert.False(t, added, "duplicate track is ignored")

	require.NoError(t, b.RemoveTrack(ctx, "user-1", d.ID, "b"))
	assert.ErrorIs(t, b.RemoveTrack(ctx, "user-1", d.ID, "b"), ErrNotFound)

	tracks, err := b.Tracks(ctx, "user-1", d.ID)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "a", tracks[0].TrackID)
	assert.Equal(t, "c", tracks[1].TrackID)
	assert.Equal(t, "Artist", tracks[0].Artists)

	view, err := b.Draft(ctx, "user-1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mix", view.Name)
	assert.Len(t, view.Tracks, 2)
}

func TestForeignDraftIsNotFound(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	d, err := b.CreateDraft(ctx, "user-1", "Mine", "", false)
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{"draft", func() error { _, err := b.Draft(ctx, "user-2", d.ID); return err }},
		{"add", func() error { _, err := b.AddTrack(ctx, "user-2", d.ID, track("x")); return err }},
		{"remove", func() error { return b.RemoveTrack(ctx, "user-2", d.ID, "x") }},
		{"tracks", func() error { _, err := b.Tracks(ctx, "user-2", d.ID); return err }},
		{"publish", func() error { _, err := b.Publish(ctx, "user-2", d.ID); return err }},
		{"recommend", func() error { _, err := b.Recommend(ctx, "user-2", d.ID, 10); return err }},
		{"delete", func() error { return b.DeleteDraft(ctx, "user-2", d.ID) }},
		{"missing", func() error { _, err := b.Draft(ctx, "user-1", uuid.New()); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), ErrNotFound)
		})
	}
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	b, catalog := newTestBuilder(t)

	d, err := b.CreateDraft(ctx, "user-1", "Mix", "", false)
	require.NoError(t, err)

	_, err = b.Publish(ctx, "user-1", d.ID)
	assert.ErrorIs(t, err, ErrEmptyDraft)

	for _, id := range []string{"c", "a", "b"} {
		_, err := b.AddTrack(ctx, "user-1", d.ID, track(id))
		require.NoError(t, err)
	}

	id, err := b.Publish(ctx, "user-1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "pl-1", id)
	assert.Equal(t, []string{"Mix"}, catalog.created)
	assert.Equal(t, []string{"c", "a", "b"}, catalog.added["pl-1"], "tracks are added in draft order")

	view, err := b.Draft(ctx, "user-1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "pl-1", view.PlaylistID)

	_, err = b.Publish(ctx, "user-1", d.ID)
	assert.ErrorIs(t, err, ErrAlreadyPublished)
}

func TestPublish_CreateFailureLeavesDraftUnpublished(t *testing.T) {
	ctx := context.Background()
	b, catalog := newTestBuilder(t)
	catalog.createErr = errors.New("forbidden")

	d, err := b.CreateDraft(ctx, "user-1", "Mix", "", false)
	require.NoError(t, err)
	_, err = b.AddTrack(ctx, "user-1", d.ID, track("a"))
	require.NoError(t, err)

	_, err = b.Publish(ctx, "user-1", d.ID)
	assert.ErrorIs(t, err, catalog.createErr)

	view, err := b.Draft(ctx, "user-1", d.ID)
	require.NoError(t, err)
	assert.Empty(t, view.PlaylistID)
}

func TestPublish_AddFailureRemovesPlaylist(t *testing.T) {
	ctx := context.Background()
	b, catalog := newTestBuilder(t)
	catalog.addErr = errors.New("rate limited")

	d, err := b.CreateDraft(ctx, "user-1", "Mix", "", false)
	require.NoError(t, err)
	_, err = b.AddTrack(ctx, "user-1", d.ID, track("a"))
	require.NoError(t, err)

	_, err = b.Publish(ctx, "user-1", d.ID)
	assert.ErrorIs(t, err, catalog.addErr)
	assert.Equal(t, []string{"pl-1"}, catalog.deleted, "empty playlist is removed")

	view, err := b.Draft(ctx, "user-1", d.ID)
	require.NoError(t, err)
	assert.Empty(t, view.PlaylistID)

	catalog.addErr = nil
	catalog.nextID = "pl-2"
	id, err := b.Publish(ctx, "user-1", d.ID)
	require.NoError(t, err, "publish can be retried")
	assert.Equal(t, "pl-2", id)
	assert.Equal(t, []string{"a"}, catalog.added["pl-2"])
}

func TestRecommend(t *testing.T) {
	ctx := context.Background()
	b, catalog := newTestBuilder(t)
	catalog.recs = []music.Track{track("a"), track("new1"), track("new2")}

	d, err := b.CreateDraft(ctx, "user-1", "Mix", "", false)
	require.NoError(t, err)

	_, err = b.Recommend(ctx, "user-1", d.ID, 10)
	assert.ErrorIs(t, err, ErrEmptyDraft)

	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		_, err := b.AddTrack(ctx, "user-1", d.ID, track(id))
		require.NoError(t, err)
	}

	recs, err := b.Recommend(ctx, "user-1", d.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"g", "f", "e", "d", "c"}, catalog.seeds.Tracks, "latest tracks seed, capped")
	require.Len(t, recs, 2, "tracks already in the draft are dropped")
	assert.Equal(t, "new1", recs[0].ID)
}

func TestSearch(t *testing.T) {
	b, catalog := newTestBuilder(t)
	catalog.searchResults = []music.Track{track("x")}

	got, err := b.Search(context.Background(), "song", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "song", catalog.lastQuery)
}

func TestDeleteDraft(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	d, err := b.CreateDraft(ctx, "user-1", "Mix", "", false)
	require.NoError(t, err)
	require.NoError(t, b.DeleteDraft(ctx, "user-1", d.ID))

	_, err = b.Draft(ctx, "user-1", d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
