package clustering

import (
	"fmt"
	"strings"

	"github.com/justestif/spotify-stats/internal/music"
)

const sampleTrackCount = 3

// FormatMoodSummary returns a human-readable summary of detected moods with
// a few sample tracks each. Outliers are summarised by count only.
func FormatMoodSummary(moods []Mood, outliers []music.TrackInfo) string {
	var sb strings.Builder

	total := len(outliers)
	for _, m := range moods {
		total += len(m.Tracks)
	}

	if len(moods) == 0 {
		fmt.Fprintf(&sb, "No moods found from %d tracks", total)
		if len(outliers) > 0 {
			fmt.Fprintf(&sb, " (%d outliers skipped)", len(outliers))
		}
		sb.WriteString("\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Found %d %s from %d tracks", len(moods), plural(len(moods), "mood", "moods"), total)
	if len(outliers) > 0 {
		fmt.Fprintf(&sb, " (%d outliers skipped)", len(outliers))
	}
	sb.WriteString("\n")

	for i, m := range moods {
		sb.WriteString("\n")
		sb.WriteString(formatMood(i+1, m))
	}
	return sb.String()
}

func formatMood(num int, m Mood) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%d. %s (%d %s): energy %.2f, valence %.2f\n",
		num, m.Name, len(m.Tracks), plural(len(m.Tracks), "track", "tracks"),
		m.Centroid.Energy, m.Centroid.Valence)

	for _, t := range m.Tracks[:min(sampleTrackCount, len(m.Tracks))] {
		fmt.Fprintf(&sb, "  • %q - %s\n", t.Name, t.Artists)
	}
	if remaining := len(m.Tracks) - sampleTrackCount; remaining > 0 {
		fmt.Fprintf(&sb, "  ... and %d more\n", remaining)
	}
	return sb.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
