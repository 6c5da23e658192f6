package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/store"
)

// TopArtistRepository handles top artist database operations.
type TopArtistRepository struct {
	pool *pgxpool.Pool
}

// ReplaceTopArtists replaces the user's top artists for rng in one transaction.
func (r *TopArtistRepository) ReplaceTopArtists(ctx context.Context, userID string, rng music.TimeRange, artists []store.ArtistEntity) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM top_artists WHERE user_id = $1 AND time_range = $2`, userID, string(rng)); err != nil {
		return fmt.Errorf("clearing top artists: %w", err)
	}

	if len(artists) > 0 {
		query := `
			INSERT INTO top_artists (
				user_id, time_range, id, rank, name, genres, image_url, popularity, followers, fetched_at
			)
			SELECT $1::text, $2::text, u.id, u.rank, u.name, string_to_array(u.genres, $3::text),
				u.image_url, u.popularity, u.followers, u.fetched_at
			FROM unnest(
				$4::text[], $5::int[], $6::text[], $7::text[], $8::text[], $9::int[], $10::int[], $11::timestamptz[]
			) WITH ORDINALITY AS u(id, rank, name, genres, image_url, popularity, followers, fetched_at, ord)
			ORDER BY u.ord
			ON CONFLICT (user_id, time_range, id) DO NOTHING
		`

		n := len(artists)
		ids := make([]string, n)
		ranks := make([]int, n)
		names := make([]string, n)
		genres := make([]string, n)
		images := make([]string, n)
		popularity := make([]int, n)
		followers := make([]int, n)
		fetchedAts := make([]time.Time, n)

		for i, a := range artists {
			ids[i] = a.ID
			ranks[i] = a.Rank
			names[i] = a.Name
			genres[i] = strings.Join(a.Genres, listSep)
			images[i] = a.ImageURL
			popularity[i] = a.Popularity
			followers[i] = a.Followers
			fetchedAts[i] = a.FetchedAt
		}

		if _, err := tx.Exec(ctx, query, userID, string(rng), listSep,
			ids, ranks, names, genres, images, popularity, followers, fetchedAts,
		); err != nil {
			return fmt.Errorf("batch inserting top artists: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// TopArtists retrieves the user's top artists for rng, ordered by rank.
func (r *TopArtistRepository) TopArtists(ctx context.Context, userID string, rng music.TimeRange) ([]store.ArtistEntity, error) {
	query := `
		SELECT id, rank, name, genres, image_url, popularity, followers, fetched_at
		FROM top_artists
		WHERE user_id = $1 AND time_range = $2
		ORDER BY rank ASC
	`
	rows, err := r.pool.Query(ctx, query, userID, string(rng))
	if err != nil {
		return nil, fmt.Errorf("querying top artists: %w", err)
	}
	defer rows.Close()

	var artists []store.ArtistEntity
	for rows.Next() {
		a := store.ArtistEntity{UserID: userID, TimeRange: rng}
		if err := rows.Scan(
			&a.ID,
			&a.Rank,
			&a.Name,
			&a.Genres,
			&a.ImageURL,
			&a.Popularity,
			&a.Followers,
			&a.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning top artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}
