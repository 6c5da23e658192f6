package clustering

import (
	"fmt"
	"strings"
	"testing"

	"github.com/justestif/spotify-stats/internal/music"
)

func featured(rank int, energy, valence, dance, acoustic float32) music.TrackInfo {
	return music.TrackInfo{
		ID:      fmt.Sprintf("t%d", rank),
		Rank:    rank,
		Name:    fmt.Sprintf("Track %d", rank),
		Artists: "Artist",
		Features: &music.AudioFeatures{
			Energy:       energy,
			Valence:      valence,
			Danceability: dance,
			Acousticness: acoustic,
		},
	}
}

// twoGroups returns five party tracks and four quiet acoustic tracks.
func twoGroups() []music.TrackInfo {
	var tracks []music.TrackInfo
	rank := 1
	for i := 0; i < 5; i++ {
		tracks = append(tracks, featured(rank, 0.9, 0.9, 0.85, 0.05))
		rank++
	}
	for i := 0; i < 4; i++ {
		tracks = append(tracks, featured(rank, 0.15, 0.2, 0.3, 0.9))
		rank++
	}
	return tracks
}

func TestDetectMoods_SeparatesGroups(t *testing.T) {
	tracks := twoGroups()
	tracks = append(tracks, music.TrackInfo{ID: "nofeat", Rank: 100, Name: "No features"})

	moods, outliers, err := DetectMoods(tracks, MoodConfig{NumClusters: 2, MinClusterSize: 2})
	if err != nil {
		t.Fatalf("DetectMoods() error = %v", err)
	}

	if len(moods) != 2 {
		t.Fatalf("len(moods) = %d, want 2", len(moods))
	}
	if moods[0].Name != "Upbeat Party" || len(moods[0].Tracks) != 5 {
		t.Errorf("moods[0] = %s with %d tracks, want Upbeat Party with 5", moods[0].Name, len(moods[0].Tracks))
	}
	if moods[1].Name != "Reflective & Melancholy (Acoustic)" || len(moods[1].Tracks) != 4 {
		t.Errorf("moods[1] = %s with %d tracks", moods[1].Name, len(moods[1].Tracks))
	}
	if moods[1].Tracks[0].Rank != 6 {
		t.Errorf("tracks not ordered by rank: first = %d", moods[1].Tracks[0].Rank)
	}

	if len(outliers) != 1 || outliers[0].ID != "nofeat" {
		t.Errorf("outliers = %+v, want the featureless track", outliers)
	}
}

func TestDetectMoods_SmallClustersBecomeOutliers(t *testing.T) {
	moods, outliers, err := DetectMoods(twoGroups(), MoodConfig{NumClusters: 2, MinClusterSize: 5})
	if err != nil {
		t.Fatalf("DetectMoods() error = %v", err)
	}
	if len(moods) != 1 || len(moods[0].Tracks) != 5 {
		t.Fatalf("moods = %+v, want one mood of 5", moods)
	}
	if len(outliers) != 4 {
		t.Errorf("len(outliers) = %d, want 4", len(outliers))
	}
}

func TestDetectMoods_TooFewTracks(t *testing.T) {
	tracks := []music.TrackInfo{featured(1, 0.5, 0.5, 0.5, 0.5), {ID: "x", Rank: 2}}

	moods, outliers, err := DetectMoods(tracks, DefaultMoodConfig())
	if err != nil {
		t.Fatalf("DetectMoods() error = %v", err)
	}
	if moods != nil {
		t.Errorf("moods = %+v, want nil", moods)
	}
	if len(outliers) != 2 {
		t.Errorf("len(outliers) = %d, want 2", len(outliers))
	}
}

func TestDetectMoods_Empty(t *testing.T) {
	moods, outliers, err := DetectMoods(nil, DefaultMoodConfig())
	if err != nil || moods != nil || outliers != nil {
		t.Errorf("DetectMoods(nil) = %v, %v, %v", moods, outliers, err)
	}
}

func TestMoodName(t *testing.T) {
	tests := []struct {
		name     string
		centroid Centroid
		want     string
	}{
		{"upbeat", Centroid{Energy: 0.8, Valence: 0.7}, "Upbeat Party"},
		{"intense", Centroid{Energy: 0.8, Valence: 0.3}, "Intense & Dark"},
		{"chill", Centroid{Energy: 0.4, Valence: 0.7}, "Chill & Happy"},
		{"reflective", Centroid{Energy: 0.4, Valence: 0.3}, "Reflective & Melancholy"},
		{"acoustic chill", Centroid{Energy: 0.3, Valence: 0.8, Acousticness: 0.7}, "Chill & Happy (Acoustic)"},
		{"thresholds are exclusive", Centroid{Energy: 0.6, Valence: 0.5, Acousticness: 0.6}, "Reflective & Melancholy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := moodName(tt.centroid); got != tt.want {
				t.Errorf("moodName() = %q, want %q", got, tt.want)
			}
			if moodDescription(tt.centroid) == "" {
				t.Error("moodDescription() is empty")
			}
		})
	}
}

func TestFormatMoodSummary(t *testing.T) {
	mood := Mood{Name: "Upbeat Party", Centroid: Centroid{Energy: 0.9, Valence: 0.8}}
	for i := 1; i <= 5; i++ {
		mood.Tracks = append(mood.Tracks, music.TrackInfo{Rank: i, Name: fmt.Sprintf("Song %d", i), Artists: "Band"})
	}

	got := FormatMoodSummary([]Mood{mood}, []music.TrackInfo{{Name: "Odd"}})

	for _, want := range []string{
		"Found 1 mood from 6 tracks (1 outliers skipped)",
		"1. Upbeat Party (5 tracks): energy 0.90, valence 0.80",
		`"Song 1" - Band`,
		"... and 2 more",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Song 4") {
		t.Errorf("summary lists more than %d samples:\n%s", sampleTrackCount, got)
	}
}

func TestFormatMoodSummary_NoMoods(t *testing.T) {
	got := FormatMoodSummary(nil, []music.TrackInfo{{}, {}})
	if got != "No moods found from 2 tracks (2 outliers skipped)\n" {
		t.Errorf("FormatMoodSummary() = %q", got)
	}
}
