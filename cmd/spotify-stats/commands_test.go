package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/justestif/spotify-stats/internal/music"
)

func TestParseTopArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    topArgs
		wantErr error
	}{
		{"defaults", []string{"tracks"}, topArgs{kind: "tracks", rng: music.MediumTerm}, nil},
		{"flags", []string{"artists", "-range", "short_term", "-refresh", "-json"}, topArgs{kind: "artists", rng: music.ShortTerm, refresh: true, json: true}, nil},
		{"missing kind", nil, topArgs{}, errUsage},
		{"unknown kind", []string{"albums"}, topArgs{}, errUsage},
		{"bad flag", []string{"genres", "-nope"}, topArgs{}, errUsage},
		{"bad range", []string{"moods", "-range", "forever"}, topArgs{}, music.ErrInvalidTimeRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTopArgs(tt.args)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("parseTopArgs() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseTopArgs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPrintTracks(t *testing.T) {
	var buf bytes.Buffer
	printTracks(&buf, []music.TrackInfo{
		{Rank: 1, Name: "Song", Artists: "Artist A, Artist B", DurationMs: 185000},
	})
	out := buf.String()
	for _, want := range []string{"1.", "Song", "Artist A, Artist B", "3:05"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}

	buf.Reset()
	printTracks(&buf, nil)
	if buf.String() != "No tracks.\n" {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestPrintGenres(t *testing.T) {
	var buf bytes.Buffer
	printGenres(&buf, []music.GenreInfo{{Name: "rock", Count: 2, Artists: []string{"A", "B"}}})
	if !strings.Contains(buf.String(), "rock") || !strings.Contains(buf.String(), "A, B") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[int]string{0: "0:00", 59000: "0:59", 60000: "1:00", 3725000: "62:05"}
	for ms, want := range tests {
		if got := formatDuration(ms); got != want {
			t.Errorf("formatDuration(%d) = %q, want %q", ms, got, want)
		}
	}
}

func TestRun_Usage(t *testing.T) {
	var stderr bytes.Buffer
	err := run(nil, &bytes.Buffer{}, &stderr)
	if !errors.Is(err, errUsage) {
		t.Fatalf("run() error = %v, want errUsage", err)
	}
	if !strings.Contains(stderr.String(), "Commands:") {
		t.Errorf("usage not printed: %q", stderr.String())
	}
}
