package clustering

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/justestif/spotify-stats/internal/music"
)

// MoodConfig holds mood clustering parameters.
type MoodConfig struct {
	NumClusters    int // clusters to create (default 3)
	MinClusterSize int // smaller clusters become outliers
}

// DefaultMoodConfig returns the recommended default configuration.
func DefaultMoodConfig() MoodConfig {
	return MoodConfig{
		NumClusters:    3,
		MinClusterSize: 3,
	}
}

// trackObservation adapts a track to clusters.Observation.
type trackObservation struct {
	track  music.TrackInfo
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// DetectMoods groups tracks by energy, valence, danceability and
// acousticness. Tracks without audio features, and tracks in clusters
// smaller than MinClusterSize, are returned as outliers. Moods are ordered
// by size, largest first, and tracks within a mood by rank.
func DetectMoods(tracks []music.TrackInfo, cfg MoodConfig) ([]Mood, []music.TrackInfo, error) {
	if len(tracks) == 0 {
		return nil, nil, nil
	}
	if cfg.NumClusters <= 0 {
		cfg.NumClusters = DefaultMoodConfig().NumClusters
	}

	var (
		obs      clusters.Observations
		outliers []music.TrackInfo
	)
	for _, t := range tracks {
		if t.Features == nil {
			outliers = append(outliers, t)
			continue
		}
		obs = append(obs, trackObservation{track: t, coords: extractFeatures(t.Features)})
	}

	// Too few tracks to form the requested clusters.
	if len(obs) < cfg.NumClusters {
		return nil, tracks, nil
	}

	result, err := kmeans.New().Partition(obs, cfg.NumClusters)
	if err != nil {
		return nil, nil, fmt.Errorf("partitioning tracks: %w", err)
	}

	var moods []Mood
	for _, cluster := range result {
		var members []music.TrackInfo
		for _, o := range cluster.Observations {
			if to, ok := o.(trackObservation); ok {
				members = append(members, to.track)
			}
		}
		if len(members) == 0 {
			continue
		}
		if len(members) < cfg.MinClusterSize {
			outliers = append(outliers, members...)
			continue
		}

		slices.SortStableFunc(members, func(a, b music.TrackInfo) int {
			return cmp.Compare(a.Rank, b.Rank)
		})

		centroid := centroidOf(cluster.Center)
		moods = append(moods, Mood{
			Name:        moodName(centroid),
			Description: moodDescription(centroid),
			Centroid:    centroid,
			Tracks:      members,
		})
	}

	slices.SortStableFunc(moods, func(a, b Mood) int {
		return cmp.Compare(len(b.Tracks), len(a.Tracks))
	})
	slices.SortStableFunc(outliers, func(a, b music.TrackInfo) int {
		return cmp.Compare(a.Rank, b.Rank)
	})

	return moods, outliers, nil
}

// extractFeatures returns the clustering coordinates for f.
func extractFeatures(f *music.AudioFeatures) clusters.Coordinates {
	return clusters.Coordinates{
		float64(f.Energy),
		float64(f.Valence),
		float64(f.Danceability),
		float64(f.Acousticness),
	}
}

func centroidOf(c clusters.Coordinates) Centroid {
	return Centroid{
		Energy:       float32(c[0]),
		Valence:      float32(c[1]),
		Danceability: float32(c[2]),
		Acousticness: float32(c[3]),
	}
}
