package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAudioFeatures_Batches(t *testing.T) {
	var batchSizes []int
	mux := http.NewServeMux()
	mux.HandleFunc("/audio-features", func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		batchSizes = append(batchSizes, len(ids))

		features := make([]any, len(ids))
		for i, id := range ids {
			// Every tenth track has no analysis.
			if strings.HasSuffix(id, "0") {
				continue
			}
			features[i] = map[string]any{
				"id":             id,
				"energy":         0.8,
				"valence":        0.6,
				"danceability":   0.7,
				"acousticness":   0.1,
				"tempo":          120.5,
				"loudness":       -5.0,
				"key":            5,
				"mode":           1,
				"time_signature": 4,
			}
		}
		writeJSON(t, w, map[string]any{"audio_features": features})
	})
	client, _ := newTestClient(t, mux)

	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%d", i+1)
	}

	features, err := client.AudioFeatures(context.Background(), ids)
	if err != nil {
		t.Fatalf("AudioFeatures() error = %v", err)
	}

	if fmt.Sprint(batchSizes) != "[100 100 50]" {
		t.Errorf("batch sizes = %v, want [100 100 50]", batchSizes)
	}
	if len(features) != 225 {
		t.Errorf("len(features) = %d, want 225", len(features))
	}

	f := features[0]
	if f.ID != "t1" || f.Energy != 0.8 || f.Tempo != 120.5 || f.Key != 5 || f.Mode != 1 || f.TimeSignature != 4 {
		t.Errorf("features[0] = %+v", f)
	}
}

func TestAudioFeatures_Empty(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())
	features, err := client.AudioFeatures(context.Background(), nil)
	if err != nil || features != nil {
		t.Errorf("AudioFeatures(nil) = %v, %v", features, err)
	}
}
