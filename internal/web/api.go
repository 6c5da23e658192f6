package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/justestif/spotify-stats/internal/music"
)

// Me returns the signed-in user's profile (GET /api/me).
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r.Context())
	profile, err := sc.stats.Profile(r.Context(), sc.session.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// topQuery holds the query parameters shared by the top items endpoints.
type topQuery struct {
	rng      music.TimeRange
	refresh  bool
	features bool
}

func parseTopQuery(r *http.Request) (topQuery, error) {
	q := r.URL.Query()
	rng, err := music.ParseTimeRange(q.Get("time_range"))
	if err != nil {
		return topQuery{}, err
	}
	refresh, err := parseBool(q.Get("refresh"))
	if err != nil {
		return topQuery{}, fmt.Errorf("%w: refresh: %w", errBadRequest, err)
	}
	features, err := parseBool(q.Get("features"))
	if err != nil {
		return topQuery{}, fmt.Errorf("%w: features: %w", errBadRequest, err)
	}
	return topQuery{rng: rng, refresh: refresh, features: features}, nil
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid limit %q", errBadRequest, raw)
	}
	return n, nil
}

// TopTracks returns the user's top tracks (GET /api/top/tracks).
// features=true attaches audio features.
func (h *Handlers) TopTracks(w http.ResponseWriter, r *http.Request) {
	q, err := parseTopQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	var tracks []music.TrackInfo
	if q.features {
		tracks, err = sc.stats.TopTracksWithFeatures(r.Context(), sc.session.UserID, q.rng, q.refresh)
	} else {
		tracks, err = sc.stats.GetTopTracks(r.Context(), sc.session.UserID, q.rng, q.refresh)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"time_range": q.rng, "items": orEmpty(tracks)})
}

// TopArtists returns the user's top artists (GET /api/top/artists).
func (h *Handlers) TopArtists(w http.ResponseWriter, r *http.Request) {
	q, err := parseTopQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	artists, err := sc.stats.GetTopArtists(r.Context(), sc.session.UserID, q.rng, q.refresh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"time_range": q.rng, "items": orEmpty(artists)})
}

// TopGenres returns genres ranked across top artists (GET /api/top/genres).
func (h *Handlers) TopGenres(w http.ResponseWriter, r *http.Request) {
	q, err := parseTopQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	genres, err := sc.stats.TopGenres(r.Context(), sc.session.UserID, q.rng, q.refresh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"time_range": q.rng, "items": orEmpty(genres)})
}

// Moods clusters top tracks into moods (GET /api/top/moods).
func (h *Handlers) Moods(w http.ResponseWriter, r *http.Request) {
	q, err := parseTopQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	report, err := sc.stats.Moods(r.Context(), sc.session.UserID, q.rng, q.refresh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Overview returns profile, top tracks and top artists (GET /api/overview).
func (h *Handlers) Overview(w http.ResponseWriter, r *http.Request) {
	q, err := parseTopQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	ov, err := sc.stats.Overview(r.Context(), sc.session.UserID, q.rng, q.refresh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// Sync refreshes every time range (POST /api/sync?force=).
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	force, err := parseBool(r.URL.Query().Get("force"))
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: force: %w", errBadRequest, err))
		return
	}
	sc := scopeFrom(r.Context())

	result, err := h.sync.SyncAll(r.Context(), sc.stats, sc.session.UserID, force)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Search finds tracks (GET /api/search?q=).
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	tracks, err := sc.builder.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orEmpty(tracks)})
}

// Recommendations suggests tracks for a draft (GET /api/recommendations?draft=).
func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	draftID, err := parseDraftID(r.URL.Query().Get("draft"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	tracks, err := sc.builder.Recommend(r.Context(), sc.session.UserID, draftID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orEmpty(tracks)})
}

type createDraftRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

// ListDrafts lists the user's drafts (GET /api/drafts).
func (h *Handlers) ListDrafts(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r.Context())
	drafts, err := sc.builder.Drafts(r.Context(), sc.session.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orEmpty(drafts)})
}

// CreateDraft starts a draft (POST /api/drafts).
func (h *Handlers) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	draft, err := sc.builder.CreateDraft(r.Context(), sc.session.UserID, req.Name, req.Description, req.Public)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

// GetDraft returns a draft with its tracks (GET /api/drafts/{id}).
func (h *Handlers) GetDraft(w http.ResponseWriter, r *http.Request) {
	draftID, err := parseDraftID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	view, err := sc.builder.Draft(r.Context(), sc.session.UserID, draftID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteDraft discards a draft (DELETE /api/drafts/{id}).
func (h *Handlers) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	draftID, err := parseDraftID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	if err := sc.builder.DeleteDraft(r.Context(), sc.session.UserID, draftID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddDraftTrack appends a track (POST /api/drafts/{id}/tracks). The body is
// a track as returned by search.
func (h *Handlers) AddDraftTrack(w http.ResponseWriter, r *http.Request) {
	draftID, err := parseDraftID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var track music.Track
	if err := decodeBody(r, &track); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if track.ID == "" {
		writeError(w, h.logger, fmt.Errorf("%w: track id is required", errBadRequest))
		return
	}
	sc := scopeFrom(r.Context())

	added, err := sc.builder.AddTrack(r.Context(), sc.session.UserID, draftID, track)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]bool{"added": added})
}

// RemoveDraftTrack removes a track (DELETE /api/drafts/{id}/tracks/{trackID}).
func (h *Handlers) RemoveDraftTrack(w http.ResponseWriter, r *http.Request) {
	draftID, err := parseDraftID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	if err := sc.builder.RemoveTrack(r.Context(), sc.session.UserID, draftID, chi.URLParam(r, "trackID")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishDraft creates the playlist on Spotify (POST /api/drafts/{id}/publish).
func (h *Handlers) PublishDraft(w http.ResponseWriter, r *http.Request) {
	draftID, err := parseDraftID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sc := scopeFrom(r.Context())

	playlistID, err := sc.builder.Publish(r.Context(), sc.session.UserID, draftID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"playlist_id": playlistID})
}

func parseDraftID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid draft id %q", errBadRequest, raw)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decoding body: %w", errBadRequest, err)
	}
	return nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
