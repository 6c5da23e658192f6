// Package db provides PostgreSQL storage for statistics, playlist drafts and
// web sessions.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/spotify-stats/internal/store"
)

// ErrNotFound is store.ErrNotFound so callers can match either.
var ErrNotFound = store.ErrNotFound

// listSep joins list columns for unnest batch inserts. It cannot appear in
// genre names or Spotify IDs.
const listSep = "\x1f"

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a connection pool and migrates the schema.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates missing tables. It is safe to run repeatedly.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Users returns a UserRepository.
func (db *DB) Users() *UserRepository {
	return &UserRepository{pool: db.pool}
}

// Sessions returns a SessionRepository.
func (db *DB) Sessions() *SessionRepository {
	return &SessionRepository{pool: db.pool}
}

// TopTracks returns a TopTrackRepository.
func (db *DB) TopTracks() *TopTrackRepository {
	return &TopTrackRepository{pool: db.pool}
}

// TopArtists returns a TopArtistRepository.
func (db *DB) TopArtists() *TopArtistRepository {
	return &TopArtistRepository{pool: db.pool}
}

// Drafts returns a DraftRepository.
func (db *DB) Drafts() *DraftRepository {
	return &DraftRepository{pool: db.pool}
}

// Store combines the repositories into a store.Store.
type Store struct {
	*TopTrackRepository
	*TopArtistRepository
	*DraftRepository
}

var _ store.Store = (*Store)(nil)

// Store returns the entity store backed by this database.
func (db *DB) Store() *Store {
	return &Store{
		TopTrackRepository:  db.TopTracks(),
		TopArtistRepository: db.TopArtists(),
		DraftRepository:     db.Drafts(),
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL DEFAULT '',
	product TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	token_expiry TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS sessions_user_id ON sessions (user_id);

CREATE TABLE IF NOT EXISTS top_tracks (
	user_id TEXT NOT NULL,
	time_range TEXT NOT NULL,
	id TEXT NOT NULL,
	rank INT NOT NULL,
	name TEXT NOT NULL,
	artists TEXT NOT NULL,
	artist_ids TEXT[] NOT NULL DEFAULT '{}',
	album TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	preview_url TEXT NOT NULL DEFAULT '',
	duration_ms INT NOT NULL DEFAULT 0,
	popularity INT NOT NULL DEFAULT 0,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, time_range, id)
);

CREATE TABLE IF NOT EXISTS top_artists (
	user_id TEXT NOT NULL,
	time_range TEXT NOT NULL,
	id TEXT NOT NULL,
	rank INT NOT NULL,
	name TEXT NOT NULL,
	genres TEXT[] NOT NULL DEFAULT '{}',
	image_url TEXT NOT NULL DEFAULT '',
	popularity INT NOT NULL DEFAULT 0,
	followers INT NOT NULL DEFAULT 0,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, time_range, id)
);

CREATE TABLE IF NOT EXISTS drafts (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	public BOOLEAN NOT NULL DEFAULT FALSE,
	playlist_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS drafts_user_id ON drafts (user_id);

CREATE TABLE IF NOT EXISTS draft_tracks (
	draft_id UUID NOT NULL REFERENCES drafts(id) ON DELETE CASCADE,
	track_id TEXT NOT NULL,
	name TEXT NOT NULL,
	artists TEXT NOT NULL,
	position INT NOT NULL,
	PRIMARY KEY (draft_id, track_id)
);
`
