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

// TopTrackRepository handles top track database operations.
type TopTrackRepository struct {
	pool *pgxpool.Pool
}

// ReplaceTopTracks replaces the user's top tracks for rng in one transaction.
// Rows are inserted with a single unnest; repeated ids keep their first row.
func (r *TopTrackRepository) ReplaceTopTracks(ctx context.Context, userID string, rng music.TimeRange, tracks []store.TrackEntity) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM top_tracks WHERE user_id = $1 AND time_range = $2`, userID, string(rng)); err != nil {
		return fmt.Errorf("clearing top tracks: %w", err)
	}

	if len(tracks) > 0 {
		query := `
			INSERT INTO top_tracks (
				user_id, time_range, id, rank, name, artists, artist_ids, album,
				image_url, preview_url, duration_ms, popularity, fetched_at
			)
			SELECT $1::text, $2::text, u.id, u.rank, u.name, u.artists, string_to_array(u.artist_ids, $3::text),
				u.album, u.image_url, u.preview_url, u.duration_ms, u.popularity, u.fetched_at
			FROM unnest(
				$4::text[], $5::int[], $6::text[], $7::text[], $8::text[], $9::text[],
				$10::text[], $11::text[], $12::int[], $13::int[], $14::timestamptz[]
			) WITH ORDINALITY AS u(id, rank, name, artists, artist_ids, album,
				image_url, preview_url, duration_ms, popularity, fetched_at, ord)
			ORDER BY u.ord
			ON CONFLICT (user_id, time_range, id) DO NOTHING
		`

		n := len(tracks)
		ids := make([]string, n)
		ranks := make([]int, n)
		names := make([]string, n)
		artists := make([]string, n)
		artistIDs := make([]string, n)
		albums := make([]string, n)
		images := make([]string, n)
		previews := make([]string, n)
		durations := make([]int, n)
		popularity := make([]int, n)
		fetchedAts := make([]time.Time, n)

		for i, t := range tracks {
			ids[i] = t.ID
			ranks[i] = t.Rank
			names[i] = t.Name
			artists[i] = t.Artists
			artistIDs[i] = strings.Join(t.ArtistIDs, listSep)
			albums[i] = t.Album
			images[i] = t.ImageURL
			previews[i] = t.PreviewURL
			durations[i] = t.DurationMs
			popularity[i] = t.Popularity
			fetchedAts[i] = t.FetchedAt
		}

		if _, err := tx.Exec(ctx, query, userID, string(rng), listSep,
			ids, ranks, names, artists, artistIDs, albums, images, previews, durations, popularity, fetchedAts,
		); err != nil {
			return fmt.Errorf("batch inserting top tracks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// TopTracks retrieves the user's top tracks for rng, ordered by rank.
func (r *TopTrackRepository) TopTracks(ctx context.Context, userID string, rng music.TimeRange) ([]store.TrackEntity, error) {
	query := `
		SELECT id, rank, name, artists, artist_ids, album, image_url, preview_url,
			duration_ms, popularity, fetched_at
		FROM top_tracks
		WHERE user_id = $1 AND time_range = $2
		ORDER BY rank ASC
	`
	rows, err := r.pool.Query(ctx, query, userID, string(rng))
	if err != nil {
		return nil, fmt.Errorf("querying top tracks: %w", err)
	}
	defer rows.Close()

	var tracks []store.TrackEntity
	for rows.Next() {
		t := store.TrackEntity{UserID: userID, TimeRange: rng}
		if err := rows.Scan(
			&t.ID,
			&t.Rank,
			&t.Name,
			&t.Artists,
			&t.ArtistIDs,
			&t.Album,
			&t.ImageURL,
			&t.PreviewURL,
			&t.DurationMs,
			&t.Popularity,
			&t.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning top track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}
