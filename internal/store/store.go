// Package store defines the local entity cache for fetched statistics and
// playlist drafts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/spotify-stats/internal/music"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// TrackEntity is a persisted top track for one user and time range.
type TrackEntity struct {
	UserID     string
	TimeRange  music.TimeRange
	Rank       int
	ID         string
	Name       string
	Artists    string
	ArtistIDs  []string
	Album      string
	ImageURL   string
	PreviewURL string
	DurationMs int
	Popularity int
	FetchedAt  time.Time
}

// ArtistEntity is a persisted top artist for one user and time range.
type ArtistEntity struct {
	UserID     string
	TimeRange  music.TimeRange
	Rank       int
	ID         string
	Name       string
	Genres     []string
	ImageURL   string
	Popularity int
	Followers  int
	FetchedAt  time.Time
}

// Draft is a custom playlist being assembled before it is published.
type Draft struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Public      bool      `json:"public"`
	PlaylistID  *string   `json:"playlist_id,omitempty"` // set once published
	CreatedAt   time.Time `json:"created_at"`
}

// Published reports whether the draft has been published to Spotify.
func (d *Draft) Published() bool {
	return d.PlaylistID != nil && *d.PlaylistID != ""
}

// DraftTrack is a track in a draft. Position is assigned by the store.
type DraftTrack struct {
	DraftID  uuid.UUID `json:"-"`
	TrackID  string    `json:"track_id"`
	Name     string    `json:"name"`
	Artists  string    `json:"artists"`
	Position int       `json:"position"`
}

// Store persists top items and playlist drafts.
//
// Replace operations delete the user's rows for the time range and insert the
// new rows in one transaction. Rows are keyed by (user, time range, id); when
// the input repeats an id the first occurrence is kept.
type Store interface {
	ReplaceTopTracks(ctx context.Context, userID string, rng music.TimeRange, tracks []TrackEntity) error
	TopTracks(ctx context.Context, userID string, rng music.TimeRange) ([]TrackEntity, error)
	ReplaceTopArtists(ctx context.Context, userID string, rng music.TimeRange, artists []ArtistEntity) error
	TopArtists(ctx context.Context, userID string, rng music.TimeRange) ([]ArtistEntity, error)

	CreateDraft(ctx context.Context, draft *Draft) error
	GetDraft(ctx context.Context, id uuid.UUID) (*Draft, error)
	DraftsForUser(ctx context.Context, userID string) ([]Draft, error)
	// AddDraftTrack appends a track and reports whether it was inserted;
	// a track already in the draft is ignored.
	AddDraftTrack(ctx context.Context, track DraftTrack) (bool, error)
	RemoveDraftTrack(ctx context.Context, draftID uuid.UUID, trackID string) error
	DraftTracks(ctx context.Context, draftID uuid.UUID) ([]DraftTrack, error)
	SetDraftPlaylistID(ctx context.Context, draftID uuid.UUID, playlistID string) error
	DeleteDraft(ctx context.Context, id uuid.UUID) error
}
