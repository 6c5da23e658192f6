package stats

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/spotify-stats/internal/clustering"
	"github.com/justestif/spotify-stats/internal/music"
)

// Overview is the landing summary: profile plus top tracks and artists.
type Overview struct {
	Profile   *music.UserProfile `json:"profile"`
	TimeRange music.TimeRange    `json:"time_range"`
	Tracks    []music.TrackInfo  `json:"tracks"`
	Artists   []music.ArtistInfo `json:"artists"`
}

// MoodReport is the result of clustering top tracks into moods.
type MoodReport struct {
	TimeRange music.TimeRange   `json:"time_range"`
	Moods     []clustering.Mood `json:"moods"`
	Outliers  []music.TrackInfo `json:"outliers"`
}

// TopTracksWithFeatures returns the top tracks with their audio features
// attached by track ID. Tracks Spotify has no analysis for keep a nil
// Features.
func (r *Repository) TopTracksWithFeatures(ctx context.Context, userID string, rng music.TimeRange, refresh bool) ([]music.TrackInfo, error) {
	tracks, err := r.GetTopTracks(ctx, userID, rng, refresh)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return tracks, nil
	}

	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}

	features, err := r.audioFeatures(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range tracks {
		if f, ok := features[tracks[i].ID]; ok {
			tracks[i].Features = &f
		}
	}
	return tracks, nil
}

// audioFeatures returns features keyed by track ID, consulting the file
// cache first and fetching only what is missing.
func (r *Repository) audioFeatures(ctx context.Context, ids []string) (map[string]music.AudioFeatures, error) {
	out := make(map[string]music.AudioFeatures, len(ids))

	var missing []string
	for _, id := range ids {
		if _, dup := out[id]; dup {
			continue
		}
		if r.cache != nil {
			var f music.AudioFeatures
			if ok, _ := r.cache.GetJSON(featuresKey(id), &f); ok {
				out[id] = f
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := r.source.AudioFeatures(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, f := range fetched {
		out[f.ID] = f
		if r.cache != nil {
			if err := r.cache.PutJSON(featuresKey(f.ID), f); err != nil {
				r.logger.Warn("writing audio features cache", zap.String("track_id", f.ID), zap.Error(err))
			}
		}
	}
	return out, nil
}

func featuresKey(trackID string) string {
	return "features/" + trackID
}

// Overview loads the profile, top tracks and top artists concurrently.
func (r *Repository) Overview(ctx context.Context, userID string, rng music.TimeRange, refresh bool) (*Overview, error) {
	ov := &Overview{TimeRange: rng}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile, err := r.Profile(ctx, userID)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
		ov.Profile = profile
		return nil
	})
	g.Go(func() error {
		tracks, err := r.GetTopTracks(ctx, userID, rng, refresh)
		if err != nil {
			return fmt.Errorf("loading top tracks: %w", err)
		}
		ov.Tracks = tracks
		return nil
	})
	g.Go(func() error {
		artists, err := r.GetTopArtists(ctx, userID, rng, refresh)
		if err != nil {
			return fmt.Errorf("loading top artists: %w", err)
		}
		ov.Artists = artists
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ov, nil
}

// Moods clusters the top tracks into listening moods.
func (r *Repository) Moods(ctx context.Context, userID string, rng music.TimeRange, refresh bool) (*MoodReport, error) {
	tracks, err := r.TopTracksWithFeatures(ctx, userID, rng, refresh)
	if err != nil {
		return nil, err
	}

	moods, outliers, err := clustering.DetectMoods(tracks, r.moodCfg)
	if err != nil {
		return nil, fmt.Errorf("detecting moods: %w", err)
	}
	return &MoodReport{TimeRange: rng, Moods: moods, Outliers: outliers}, nil
}
