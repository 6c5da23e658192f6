package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/spotify-stats/internal/store"
)

// DraftRepository handles playlist draft database operations.
type DraftRepository struct {
	pool *pgxpool.Pool
}

// CreateDraft inserts a new draft, assigning an ID when it has none.
func (r *DraftRepository) CreateDraft(ctx context.Context, draft *store.Draft) error {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	query := `
		INSERT INTO drafts (id, user_id, name, description, public, playlist_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		draft.ID,
		draft.UserID,
		draft.Name,
		draft.Description,
		draft.Public,
		draft.PlaylistID,
	).Scan(&draft.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting draft: %w", err)
	}
	return nil
}

// GetDraft retrieves a draft by ID.
func (r *DraftRepository) GetDraft(ctx context.Context, id uuid.UUID) (*store.Draft, error) {
	query := `
		SELECT id, user_id, name, description, public, playlist_id, created_at
		FROM drafts
		WHERE id = $1
	`
	var d store.Draft
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.Description,
		&d.Public,
		&d.PlaylistID,
		&d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying draft: %w", err)
	}
	return &d, nil
}

// DraftsForUser retrieves all drafts for a user, newest first.
func (r *DraftRepository) DraftsForUser(ctx context.Context, userID string) ([]store.Draft, error) {
	query := `
		SELECT id, user_id, name, description, public, playlist_id, created_at
		FROM drafts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user drafts: %w", err)
	}
	defer rows.Close()

	var drafts []store.Draft
	for rows.Next() {
		var d store.Draft
		if err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.Name,
			&d.Description,
			&d.Public,
			&d.PlaylistID,
			&d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// AddDraftTrack appends a track at the end of the draft. It reports false
// when the track is already in the draft.
func (r *DraftRepository) AddDraftTrack(ctx context.Context, track store.DraftTrack) (bool, error) {
	if _, err := r.GetDraft(ctx, track.DraftID); err != nil {
		return false, err
	}

	query := `
		INSERT INTO draft_tracks (draft_id, track_id, name, artists, position)
		SELECT $1::uuid, $2::text, $3::text, $4::text, COALESCE(MAX(position) + 1, 0)
		FROM draft_tracks
		WHERE draft_id = $1
		ON CONFLICT (draft_id, track_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, track.DraftID, track.TrackID, track.Name, track.Artists)
	if err != nil {
		return false, fmt.Errorf("inserting draft track: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// RemoveDraftTrack removes a track from a draft.
func (r *DraftRepository) RemoveDraftTrack(ctx context.Context, draftID uuid.UUID, trackID string) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM draft_tracks WHERE draft_id = $1 AND track_id = $2`, draftID, trackID)
	if err != nil {
		return fmt.Errorf("deleting draft track: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DraftTracks retrieves a draft's tracks in position order.
func (r *DraftRepository) DraftTracks(ctx context.Context, draftID uuid.UUID) ([]store.DraftTrack, error) {
	query := `
		SELECT track_id, name, artists, position
		FROM draft_tracks
		WHERE draft_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, draftID)
	if err != nil {
		return nil, fmt.Errorf("querying draft tracks: %w", err)
	}
	defer rows.Close()

	var tracks []store.DraftTrack
	for rows.Next() {
		t := store.DraftTrack{DraftID: draftID}
		if err := rows.Scan(&t.TrackID, &t.Name, &t.Artists, &t.Position); err != nil {
			return nil, fmt.Errorf("scanning draft track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// SetDraftPlaylistID records the Spotify playlist a draft was published to.
func (r *DraftRepository) SetDraftPlaylistID(ctx context.Context, draftID uuid.UUID, playlistID string) error {
	result, err := r.pool.Exec(ctx, `UPDATE drafts SET playlist_id = $2 WHERE id = $1`, draftID, playlistID)
	if err != nil {
		return fmt.Errorf("updating playlist ID: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDraft removes a draft and its tracks.
func (r *DraftRepository) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM drafts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
