// Package clustering groups tracks into listening moods using k-means over
// their audio features.
package clustering

import "github.com/justestif/spotify-stats/internal/music"

// Centroid is the average of the clustered features for one mood.
type Centroid struct {
	Energy       float32 `json:"energy"`
	Valence      float32 `json:"valence"`
	Danceability float32 `json:"danceability"`
	Acousticness float32 `json:"acousticness"`
}

// Mood is a cluster of tracks with a similar feel.
type Mood struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Centroid    Centroid          `json:"centroid"`
	Tracks      []music.TrackInfo `json:"tracks"`
}
