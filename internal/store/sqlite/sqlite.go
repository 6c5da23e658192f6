// Package sqlite implements store.Store on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// Serialise access through a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS top_tracks (
		user_id TEXT NOT NULL,
		time_range TEXT NOT NULL,
		id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		name TEXT NOT NULL,
		artists TEXT NOT NULL,
		artist_ids TEXT NOT NULL DEFAULT '[]',
		album TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		preview_url TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		popularity INTEGER NOT NULL DEFAULT 0,
		fetched_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, time_range, id)
	);

	CREATE TABLE IF NOT EXISTS top_artists (
		user_id TEXT NOT NULL,
		time_range TEXT NOT NULL,
		id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		name TEXT NOT NULL,
		genres TEXT NOT NULL DEFAULT '[]',
		image_url TEXT NOT NULL DEFAULT '',
		popularity INTEGER NOT NULL DEFAULT 0,
		followers INTEGER NOT NULL DEFAULT 0,
		fetched_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, time_range, id)
	);

	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		public INTEGER NOT NULL DEFAULT 0,
		playlist_id TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS drafts_user_id ON drafts (user_id);

	CREATE TABLE IF NOT EXISTS draft_tracks (
		draft_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		name TEXT NOT NULL,
		artists TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (draft_id, track_id),
		FOREIGN KEY (draft_id) REFERENCES drafts(id) ON DELETE CASCADE
	);
	`)
	return err
}

// ReplaceTopTracks implements store.Store.
func (s *Store) ReplaceTopTracks(ctx context.Context, userID string, rng music.TimeRange, tracks []store.TrackEntity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM top_tracks WHERE user_id = ? AND time_range = ?`, userID, string(rng)); err != nil {
		return fmt.Errorf("clearing top tracks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO top_tracks (
			user_id, time_range, id, rank, name, artists, artist_ids, album,
			image_url, preview_url, duration_ms, popularity, fetched_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		artistIDs, err := encodeList(t.ArtistIDs)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			userID, string(rng), t.ID, t.Rank, t.Name, t.Artists, artistIDs, t.Album,
			t.ImageURL, t.PreviewURL, t.DurationMs, t.Popularity, t.FetchedAt.UTC(),
		); err != nil {
			return fmt.Errorf("inserting track %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// TopTracks implements store.Store. Rows are ordered by rank.
func (s *Store) TopTracks(ctx context.Context, userID string, rng music.TimeRange) ([]store.TrackEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rank, name, artists, artist_ids, album, image_url, preview_url,
			duration_ms, popularity, fetched_at
		FROM top_tracks
		WHERE user_id = ? AND time_range = ?
		ORDER BY rank ASC
	`, userID, string(rng))
	if err != nil {
		return nil, fmt.Errorf("querying top tracks: %w", err)
	}
	defer rows.Close()

	var tracks []store.TrackEntity
	for rows.Next() {
		t := store.TrackEntity{UserID: userID, TimeRange: rng}
		var artistIDs string
		if err := rows.Scan(
			&t.ID,
			&t.Rank,
			&t.Name,
			&t.Artists,
			&artistIDs,
			&t.Album,
			&t.ImageURL,
			&t.PreviewURL,
			&t.DurationMs,
			&t.Popularity,
			&t.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		if t.ArtistIDs, err = decodeList(artistIDs); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// ReplaceTopArtists implements store.Store.
func (s *Store) ReplaceTopArtists(ctx context.Context, userID string, rng music.TimeRange, artists []store.ArtistEntity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM top_artists WHERE user_id = ? AND time_range = ?`, userID, string(rng)); err != nil {
		return fmt.Errorf("clearing top artists: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO top_artists (
			user_id, time_range, id, rank, name, genres, image_url, popularity, followers, fetched_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range artists {
		genres, err := encodeList(a.Genres)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			userID, string(rng), a.ID, a.Rank, a.Name, genres, a.ImageURL, a.Popularity, a.Followers, a.FetchedAt.UTC(),
		); err != nil {
			return fmt.Errorf("inserting artist %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// TopArtists implements store.Store. Rows are ordered by rank.
func (s *Store) TopArtists(ctx context.Context, userID string, rng music.TimeRange) ([]store.ArtistEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rank, name, genres, image_url, popularity, followers, fetched_at
		FROM top_artists
		WHERE user_id = ? AND time_range = ?
		ORDER BY rank ASC
	`, userID, string(rng))
	if err != nil {
		return nil, fmt.Errorf("querying top artists: %w", err)
	}
	defer rows.Close()

	var artists []store.ArtistEntity
	for rows.Next() {
		a := store.ArtistEntity{UserID: userID, TimeRange: rng}
		var genres string
		if err := rows.Scan(
			&a.ID,
			&a.Rank,
			&a.Name,
			&genres,
			&a.ImageURL,
			&a.Popularity,
			&a.Followers,
			&a.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning artist: %w", err)
		}
		if a.Genres, err = decodeList(genres); err != nil {
			return nil, err
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// CreateDraft implements store.Store. A zero ID is replaced with a new UUID
// and CreatedAt is set when zero.
func (s *Store) CreateDraft(ctx context.Context, draft *store.Draft) error {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, user_id, name, description, public, playlist_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, draft.ID.String(), draft.UserID, draft.Name, draft.Description, draft.Public, draft.PlaylistID, draft.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting draft: %w", err)
	}
	return nil
}

// GetDraft implements store.Store.
func (s *Store) GetDraft(ctx context.Context, id uuid.UUID) (*store.Draft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, public, playlist_id, created_at
		FROM drafts
		WHERE id = ?
	`, id.String())

	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying draft: %w", err)
	}
	return d, nil
}

// DraftsForUser implements store.Store. Newest drafts come first.
func (s *Store) DraftsForUser(ctx context.Context, userID string) ([]store.Draft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, description, public, playlist_id, created_at
		FROM drafts
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user drafts: %w", err)
	}
	defer rows.Close()

	var drafts []store.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning draft: %w", err)
		}
		drafts = append(drafts, *d)
	}
	return drafts, rows.Err()
}

// AddDraftTrack implements store.Store.
func (s *Store) AddDraftTrack(ctx context.Context, track store.DraftTrack) (bool, error) {
	if _, err := s.GetDraft(ctx, track.DraftID); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO draft_tracks (draft_id, track_id, name, artists, position)
		SELECT ?, ?, ?, ?, COALESCE(MAX(position) + 1, 0)
		FROM draft_tracks
		WHERE draft_id = ?
	`, track.DraftID.String(), track.TrackID, track.Name, track.Artists, track.DraftID.String())
	if err != nil {
		return false, fmt.Errorf("inserting draft track: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting draft track: %w", err)
	}
	return n > 0, nil
}

// RemoveDraftTrack implements store.Store.
func (s *Store) RemoveDraftTrack(ctx context.Context, draftID uuid.UUID, trackID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM draft_tracks WHERE draft_id = ? AND track_id = ?`, draftID.String(), trackID)
	if err != nil {
		return fmt.Errorf("deleting draft track: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DraftTracks implements store.Store.
func (s *Store) DraftTracks(ctx context.Context, draftID uuid.UUID) ([]store.DraftTrack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, name, artists, position
		FROM draft_tracks
		WHERE draft_id = ?
		ORDER BY position ASC
	`, draftID.String())
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

// SetDraftPlaylistID implements store.Store.
func (s *Store) SetDraftPlaylistID(ctx context.Context, draftID uuid.UUID, playlistID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE drafts SET playlist_id = ? WHERE id = ?`, playlistID, draftID.String())
	if err != nil {
		return fmt.Errorf("updating playlist ID: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteDraft implements store.Store.
func (s *Store) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM draft_tracks WHERE draft_id = ?`, id.String()); err != nil {
		return fmt.Errorf("deleting draft tracks: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(row scanner) (*store.Draft, error) {
	var (
		d          store.Draft
		id         string
		playlistID sql.NullString
	)
	if err := row.Scan(&id, &d.UserID, &d.Name, &d.Description, &d.Public, &playlistID, &d.CreatedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing draft id %q: %w", id, err)
	}
	d.ID = parsed
	if playlistID.Valid {
		d.PlaylistID = &playlistID.String
	}
	return &d, nil
}

// encodeList stores string slices as JSON text.
func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decoding list: %w", err)
	}
	return values, nil
}
