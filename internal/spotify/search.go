package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/spotify-stats/internal/music"
)

// MaxSeeds is the maximum number of seeds a recommendation request accepts.
const MaxSeeds = 5

// Seeds are the artists, tracks and genres recommendations are based on.
type Seeds struct {
	Artists []string
	Tracks  []string
	Genres  []string
}

// Len returns the total number of seeds.
func (s Seeds) Len() int {
	return len(s.Artists) + len(s.Tracks) + len(s.Genres)
}

// Search finds tracks matching query. limit is clamped to 1..50.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]music.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	res, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(clampLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("searching tracks: %w", err)
	}
	if res.Tracks == nil {
		return nil, nil
	}

	tracks := make([]music.Track, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		tracks = append(tracks, toTrack(t))
	}
	return tracks, nil
}

// Recommendations returns tracks recommended from seeds. limit is clamped
// to 1..50.
func (c *Client) Recommendations(ctx context.Context, seeds Seeds, limit int) ([]music.Track, error) {
	if seeds.Len() > MaxSeeds {
		return nil, fmt.Errorf("%w: %d given, at most %d allowed", ErrTooManySeeds, seeds.Len(), MaxSeeds)
	}

	sdkSeeds := spotify.Seeds{
		Artists: toIDs(seeds.Artists),
		Tracks:  toIDs(seeds.Tracks),
		Genres:  seeds.Genres,
	}
	recs, err := c.api.GetRecommendations(ctx, sdkSeeds, spotify.NewTrackAttributes(), spotify.Limit(clampLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("fetching recommendations: %w", err)
	}

	tracks := make([]music.Track, 0, len(recs.Tracks))
	for _, t := range recs.Tracks {
		tracks = append(tracks, toSimpleTrack(t))
	}
	return tracks, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > pageSize {
		return pageSize
	}
	return limit
}

func toIDs(ids []string) []spotify.ID {
	out := make([]spotify.ID, len(ids))
	for i, id := range ids {
		out[i] = spotify.ID(id)
	}
	return out
}
