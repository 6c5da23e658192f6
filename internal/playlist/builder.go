// Package playlist assembles custom playlists from search results and
// recommendations and publishes them to the user's Spotify account.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/logging"
	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/spotify"
	"github.com/justestif/spotify-stats/internal/store"
)

var (
	// ErrEmptyName is returned when a draft is created without a name.
	ErrEmptyName = errors.New("playlist name is empty")

	// ErrEmptyDraft is returned when publishing or seeding from a draft with no tracks.
	ErrEmptyDraft = errors.New("draft has no tracks")

	// ErrAlreadyPublished is returned when a draft was published before.
	ErrAlreadyPublished = errors.New("draft already published")

	// ErrNotFound is returned for missing drafts, drafts owned by another
	// user and tracks not in a draft.
	ErrNotFound = store.ErrNotFound
)

// Catalog is the part of the Web API the builder uses.
type Catalog interface {
	Search(ctx context.Context, query string, limit int) ([]music.Track, error)
	Recommendations(ctx context.Context, seeds spotify.Seeds, limit int) ([]music.Track, error)
	CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (string, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
	DeletePlaylist(ctx context.Context, playlistID string) error
}

var _ Catalog = (*spotify.Client)(nil)

// DraftView is a draft together with its tracks.
type DraftView struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Public      bool               `json:"public"`
	PlaylistID  string             `json:"playlist_id,omitempty"`
	Tracks      []store.DraftTrack `json:"tracks"`
}

// Builder manages playlist drafts for users.
type Builder struct {
	catalog Catalog
	store   store.Store
	logger  *zap.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(catalog Catalog, st store.Store, logger *zap.Logger) *Builder {
	return &Builder{
		catalog: catalog,
		store:   st,
		logger:  logging.OrNop(logger),
	}
}

// CreateDraft starts a new, empty draft for userID.
func (b *Builder) CreateDraft(ctx context.Context, userID, name, description string, public bool) (*store.Draft, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	draft := &store.Draft{
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Public:      public,
	}
	if err := b.store.CreateDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("creating draft: %w", err)
	}

	b.logger.Info("draft created", zap.String("user_id", userID), zap.Stringer("draft_id", draft.ID))
	return draft, nil
}

// Drafts lists the user's drafts, newest first.
func (b *Builder) Drafts(ctx context.Context, userID string) ([]store.Draft, error) {
	drafts, err := b.store.DraftsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	return drafts, nil
}

// Draft returns the draft and its tracks.
func (b *Builder) Draft(ctx context.Context, userID string, draftID uuid.UUID) (*DraftView, error) {
	draft, err := b.owned(ctx, userID, draftID)
	if err != nil {
		return nil, err
	}
	tracks, err := b.store.DraftTracks(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("loading draft tracks: %w", err)
	}
	if tracks == nil {
		tracks = []store.DraftTrack{}
	}

	view := &DraftView{
		ID:          draft.ID,
		Name:        draft.Name,
		Description: draft.Description,
		Public:      draft.Public,
		Tracks:      tracks,
	}
	if draft.PlaylistID != nil {
		view.PlaylistID = *draft.PlaylistID
	}
	return view, nil
}

// Search passes query through to the Web API.
func (b *Builder) Search(ctx context.Context, query string, limit int) ([]music.Track, error) {
	return b.catalog.Search(ctx, query, limit)
}

// AddTrack appends track to the draft. It reports false when the track was
// already present.
func (b *Builder) AddTrack(ctx context.Context, userID string, draftID uuid.UUID, track music.Track) (bool, error) {
	if _, err := b.owned(ctx, userID, draftID); err != nil {
		return false, err
	}

	added, err := b.store.AddDraftTrack(ctx, store.DraftTrack{
		DraftID: draftID,
		TrackID: track.ID,
		Name:    track.Name,
		Artists: track.ArtistNames(),
	})
	if err != nil {
		return false, fmt.Errorf("adding track to draft: %w", err)
	}
	return added, nil
}

// RemoveTrack removes a track from the draft.
func (b *Builder) RemoveTrack(ctx context.Context, userID string, draftID uuid.UUID, trackID string) error {
	if _, err := b.owned(ctx, userID, draftID); err != nil {
		return err
	}
	if err := b.store.RemoveDraftTrack(ctx, draftID, trackID); err != nil {
		return fmt.Errorf("removing track from draft: %w", err)
	}
	return nil
}

// Tracks returns the draft's tracks in order.
func (b *Builder) Tracks(ctx context.Context, userID string, draftID uuid.UUID) ([]store.DraftTrack, error) {
	if _, err := b.owned(ctx, userID, draftID); err != nil {
		return nil, err
	}
	tracks, err := b.store.DraftTracks(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("loading draft tracks: %w", err)
	}
	return tracks, nil
}

// DeleteDraft discards a draft and its tracks.
func (b *Builder) DeleteDraft(ctx context.Context, userID string, draftID uuid.UUID) error {
	if _, err := b.owned(ctx, userID, draftID); err != nil {
		return err
	}
	if err := b.store.DeleteDraft(ctx, draftID); err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	return nil
}

// Publish creates the playlist on Spotify, adds the draft's tracks in order
// and records the playlist ID on the draft. If the tracks cannot be added the
// new playlist is deleted again and the draft stays unpublished, so Publish
// can be retried.
func (b *Builder) Publish(ctx context.Context, userID string, draftID uuid.UUID) (string, error) {
	draft, err := b.owned(ctx, userID, draftID)
	if err != nil {
		return "", err
	}
	if draft.Published() {
		return "", ErrAlreadyPublished
	}

	tracks, err := b.store.DraftTracks(ctx, draftID)
	if err != nil {
		return "", fmt.Errorf("loading draft tracks: %w", err)
	}
	if len(tracks) == 0 {
		return "", ErrEmptyDraft
	}

	playlistID, err := b.catalog.CreatePlaylist(ctx, userID, draft.Name, draft.Description, draft.Public)
	if err != nil {
		return "", err
	}

	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.TrackID
	}
	if err := b.catalog.AddTracksToPlaylist(ctx, playlistID, ids); err != nil {
		if delErr := b.catalog.DeletePlaylist(context.WithoutCancel(ctx), playlistID); delErr != nil {
			b.logger.Warn("removing partially published playlist",
				zap.String("playlist_id", playlistID), zap.Error(delErr))
		}
		return "", err
	}

	if err := b.store.SetDraftPlaylistID(ctx, draftID, playlistID); err != nil {
		return "", fmt.Errorf("recording playlist ID: %w", err)
	}

	b.logger.Info("draft published",
		zap.Stringer("draft_id", draftID),
		zap.String("playlist_id", playlistID),
		zap.Int("tracks", len(ids)))
	return playlistID, nil
}

// Recommend returns tracks recommended from the most recently added draft
// tracks, excluding tracks already in the draft.
func (b *Builder) Recommend(ctx context.Context, userID string, draftID uuid.UUID, limit int) ([]music.Track, error) {
	tracks, err := b.Tracks(ctx, userID, draftID)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, ErrEmptyDraft
	}

	inDraft := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		inDraft[t.TrackID] = true
	}

	var seeds spotify.Seeds
	for i := len(tracks) - 1; i >= 0 && len(seeds.Tracks) < spotify.MaxSeeds; i-- {
		seeds.Tracks = append(seeds.Tracks, tracks[i].TrackID)
	}

	recs, err := b.catalog.Recommendations(ctx, seeds, limit)
	if err != nil {
		return nil, err
	}

	out := recs[:0]
	for _, t := range recs {
		if !inDraft[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

// owned loads the draft and checks it belongs to userID. A draft owned by
// someone else is reported as not found.
func (b *Builder) owned(ctx context.Context, userID string, draftID uuid.UUID) (*store.Draft, error) {
	draft, err := b.store.GetDraft(ctx, draftID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading draft: %w", err)
	}
	if draft.UserID != userID {
		return nil, ErrNotFound
	}
	return draft, nil
}
