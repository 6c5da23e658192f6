package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestCreatePlaylist(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/users/user1/playlists", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "pl1", "name": body["name"]})
	})
	client, _ := newTestClient(t, mux)

	id, err := client.CreatePlaylist(context.Background(), "user1", "Mix", "made here", true)
	if err != nil {
		t.Fatalf("CreatePlaylist() error = %v", err)
	}
	if id != "pl1" {
		t.Errorf("CreatePlaylist() = %q, want pl1", id)
	}
	if body["name"] != "Mix" || body["description"] != "made here" || body["public"] != true {
		t.Errorf("request body = %v", body)
	}
}

func TestAddTracksToPlaylist_BatchesInOrder(t *testing.T) {
	var batches [][]string
	mux := http.NewServeMux()
	mux.HandleFunc("/playlists/pl1/tracks", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URIs []string `json:"uris"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		batches = append(batches, req.URIs)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"snapshot_id":"snap"}`)
	})
	client, _ := newTestClient(t, mux)

	ids := make([]string, 205)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%03d", i)
	}

	if err := client.AddTracksToPlaylist(context.Background(), "pl1", ids); err != nil {
		t.Fatalf("AddTracksToPlaylist() error = %v", err)
	}

	if len(batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(batches))
	}
	if len(batches[0]) != 100 || len(batches[1]) != 100 || len(batches[2]) != 5 {
		t.Errorf("batch sizes = %d, %d, %d", len(batches[0]), len(batches[1]), len(batches[2]))
	}
	if !strings.HasSuffix(batches[0][0], "id000") || !strings.HasSuffix(batches[2][4], "id204") {
		t.Errorf("order not preserved: first=%q last=%q", batches[0][0], batches[2][4])
	}
}

func TestAddTracksToPlaylist_Empty(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())
	if err := client.AddTracksToPlaylist(context.Background(), "pl1", nil); err != nil {
		t.Errorf("AddTracksToPlaylist(nil) error = %v", err)
	}
}

func TestDeletePlaylist(t *testing.T) {
	var method string
	mux := http.NewServeMux()
	mux.HandleFunc("/playlists/pl1/followers", func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	})
	client, _ := newTestClient(t, mux)

	if err := client.DeletePlaylist(context.Background(), "pl1"); err != nil {
		t.Fatalf("DeletePlaylist() error = %v", err)
	}
	if method != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", method)
	}
}
