// Package music defines the domain types shared by the API client, the stats
// repository and the HTTP layer.
package music

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTimeRange is returned when a time range string is not recognised.
var ErrInvalidTimeRange = errors.New("invalid time range")

// TimeRange is the affinity window used by the top items endpoints.
type TimeRange string

const (
	ShortTerm  TimeRange = "short_term"  // ~4 weeks
	MediumTerm TimeRange = "medium_term" // ~6 months
	LongTerm   TimeRange = "long_term"   // ~1 year
)

// TimeRanges lists every supported range, shortest first.
var TimeRanges = []TimeRange{ShortTerm, MediumTerm, LongTerm}

// ParseTimeRange parses s into a TimeRange. An empty string yields MediumTerm,
// which is what the Web API uses when the parameter is omitted.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return MediumTerm, nil
	case ShortTerm:
		return ShortTerm, nil
	case MediumTerm:
		return MediumTerm, nil
	case LongTerm:
		return LongTerm, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimeRange, s)
}

func (r TimeRange) String() string {
	return string(r)
}

// Image is a cover or avatar image.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Album is the album a track belongs to.
type Album struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ReleaseDate string  `json:"release_date,omitempty"`
	Images      []Image `json:"images,omitempty"`
}

// Artist is a Spotify artist. Genres, Popularity and Followers are only
// populated for full artist objects.
type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres,omitempty"`
	Images     []Image  `json:"images,omitempty"`
	Popularity int      `json:"popularity,omitempty"`
	Followers  int      `json:"followers,omitempty"`
}

// Track is a Spotify track.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	DurationMs int      `json:"duration_ms"`
	Popularity int      `json:"popularity"`
	PreviewURL string   `json:"preview_url,omitempty"`
	Explicit   bool     `json:"explicit"`
}

// ArtistNames joins the track's artist names with ", ".
func (t Track) ArtistNames() string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// AudioFeatures holds the audio analysis summary for a track.
type AudioFeatures struct {
	ID               string  `json:"id"`
	Acousticness     float32 `json:"acousticness"`
	Danceability     float32 `json:"danceability"`
	Energy           float32 `json:"energy"`
	Instrumentalness float32 `json:"instrumentalness"`
	Liveness         float32 `json:"liveness"`
	Loudness         float32 `json:"loudness"`
	Speechiness      float32 `json:"speechiness"`
	Tempo            float32 `json:"tempo"`
	Valence          float32 `json:"valence"`
	Key              int     `json:"key"`
	Mode             int     `json:"mode"`
	TimeSignature    int     `json:"time_signature"`
}

// UserProfile is the current user's public and private profile data.
type UserProfile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email,omitempty"`
	Country     string  `json:"country,omitempty"`
	Product     string  `json:"product,omitempty"`
	Followers   int     `json:"followers"`
	Images      []Image `json:"images,omitempty"`
}

// TrackInfo is a ranked top track as presented to callers.
type TrackInfo struct {
	ID         string         `json:"id"`
	Rank       int            `json:"rank"`
	Name       string         `json:"name"`
	Artists    string         `json:"artists"`
	ArtistIDs  []string       `json:"artist_ids,omitempty"`
	Album      string         `json:"album"`
	ImageURL   string         `json:"image_url,omitempty"`
	PreviewURL string         `json:"preview_url,omitempty"`
	DurationMs int            `json:"duration_ms"`
	Popularity int            `json:"popularity"`
	Features   *AudioFeatures `json:"features,omitempty"`
}

// ArtistInfo is a ranked top artist as presented to callers.
type ArtistInfo struct {
	ID         string   `json:"id"`
	Rank       int      `json:"rank"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	ImageURL   string   `json:"image_url,omitempty"`
	Popularity int      `json:"popularity"`
	Followers  int      `json:"followers"`
}

// GenreInfo is a genre aggregated over the user's top artists.
type GenreInfo struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Artists []string `json:"artists"`
}

// BestImage returns the URL of the widest image, or "" if there are none.
func BestImage(images []Image) string {
	best := -1
	for i, img := range images {
		if img.URL == "" {
			continue
		}
		if best < 0 || img.Width > images[best].Width {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return images[best].URL
}
