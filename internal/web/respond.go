package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/auth"
	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/playlist"
	"github.com/justestif/spotify-stats/internal/spotify"
	"github.com/justestif/spotify-stats/internal/store"
	statsync "github.com/justestif/spotify-stats/internal/sync"
)

// errBadRequest marks malformed query parameters and request bodies.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes it as a JSON error body.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoSession), errors.Is(err, auth.ErrNullAccessToken):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, playlist.ErrAlreadyPublished):
		return http.StatusConflict
	case errors.Is(err, statsync.ErrSyncTooRecent):
		return http.StatusTooManyRequests
	case errors.Is(err, errBadRequest),
		errors.Is(err, music.ErrInvalidTimeRange),
		errors.Is(err, spotify.ErrEmptyQuery),
		errors.Is(err, spotify.ErrTooManySeeds),
		errors.Is(err, playlist.ErrEmptyName),
		errors.Is(err, playlist.ErrEmptyDraft),
		errors.Is(err, auth.ErrStateMismatch),
		errors.Is(err, auth.ErrMissingAccessToken),
		errors.Is(err, auth.ErrInvalidGrantResponse),
		errors.Is(err, auth.ErrAuthDenied),
		errors.Is(err, auth.ErrCodeRejected):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	if code := spotify.StatusCode(err); code != 0 {
		if code >= 400 && code < 500 {
			return code
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
