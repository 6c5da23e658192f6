package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/spotify-stats/internal/auth"
	"github.com/justestif/spotify-stats/internal/playlist"
	"github.com/justestif/spotify-stats/internal/spotify"
	"github.com/justestif/spotify-stats/internal/stats"
	"github.com/justestif/spotify-stats/internal/store"
	statsync "github.com/justestif/spotify-stats/internal/sync"
)

const stateTTL = 5 * time.Minute

// implicitPage forwards the token in the URL fragment, which never reaches
// the server, to POST /auth/implicit.
const implicitPage = `<!doctype html>
<html><body><script>
fetch("/auth/implicit", {
  method: "POST",
  headers: {"Content-Type": "application/x-www-form-urlencoded"},
  body: window.location.hash.substring(1)
}).then(function (r) { window.location = r.ok ? "/" : "/?error=" + r.status; });
</script></body></html>`

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	auth       *auth.Service
	sessions   SessionManager
	sessionTTL time.Duration
	store      store.Store
	sync       *statsync.Service
	spotify    []spotify.Option
	stats      []stats.Option
	logger     *zap.Logger
}

func newHandlers(cfg ServerConfig, logger *zap.Logger) *Handlers {
	return &Handlers{
		auth:       cfg.Auth,
		sessions:   cfg.Sessions,
		sessionTTL: cfg.SessionTTL,
		store:      cfg.Store,
		sync:       cfg.Sync,
		spotify:    cfg.SpotifyOptions,
		stats:      cfg.StatsOptions,
		logger:     logger,
	}
}

// scope is the per-request state built from the session.
type scope struct {
	session *Session
	client  *spotify.Client
	stats   *stats.Repository
	builder *playlist.Builder
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) *scope {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// requireSession rejects requests without a valid session and a usable token,
// and attaches the user's API client, stats repository and playlist builder.
func (h *Handlers) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id := sessionIDFromRequest(r)
		if id == "" {
			writeError(w, h.logger, ErrNoSession)
			return
		}
		session, err := h.sessions.Get(ctx, id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		repo := h.auth.Repository("session:"+session.ID, &sessionTokenStorage{sessions: h.sessions, id: session.ID})
		if _, err := repo.GetAccessToken(ctx); err != nil {
			writeError(w, h.logger, err)
			return
		}

		client := spotify.New(oauth2.NewClient(ctx, repo.TokenSource(ctx)), h.clientOptions()...)
		sc := &scope{
			session: session,
			client:  client,
			stats:   stats.NewRepository(client, h.store, h.stats...),
			builder: playlist.NewBuilder(client, h.store, h.logger),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, scopeKey{}, sc)))
	})
}

func (h *Handlers) clientOptions() []spotify.Option {
	return append([]spotify.Option{spotify.WithLogger(h.logger)}, h.spotify...)
}

// Index reports whether the caller is signed in (GET /).
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"authenticated": false}
	if id := sessionIDFromRequest(r); id != "" {
		if session, err := h.sessions.Get(r.Context(), id); err == nil {
			resp["authenticated"] = true
			resp["user"] = map[string]string{"id": session.UserID, "name": session.UserName}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Login starts the authorization-code flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := h.newState(w)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// LoginImplicit starts the implicit grant flow (GET /auth/login/implicit).
func (h *Handlers) LoginImplicit(w http.ResponseWriter, r *http.Request) {
	state, err := h.newState(w)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	http.Redirect(w, r, h.auth.ImplicitAuthURL(state), http.StatusTemporaryRedirect)
}

// newState generates an OAuth state and stores it in a cookie for the
// callback to check.
func (h *Handlers) newState(w http.ResponseWriter) (string, error) {
	state, err := auth.GenerateState()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})
	return state, nil
}

// Callback handles the redirect from Spotify (GET /callback). Implicit grant
// redirects carry no code and get a page that posts the fragment back.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("code") == "" && q.Get("error") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, implicitPage)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: missing state cookie", errBadRequest))
		return
	}
	clearCookie(w, stateCookieName)

	if q.Get("state") != stateCookie.Value {
		writeError(w, h.logger, auth.ErrStateMismatch)
		return
	}
	if errMsg := q.Get("error"); errMsg != "" {
		writeError(w, h.logger, fmt.Errorf("%w: %s", auth.ErrAuthDenied, errMsg))
		return
	}

	repo := h.auth.Repository("callback:"+stateCookie.Value, auth.NewMemoryTokenStorage(nil))
	info, err := repo.ObtainAccessToken(r.Context(), q.Get("code"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.startSession(w, r, info)
}

// Implicit receives the implicit grant fragment values (POST /auth/implicit).
func (h *Handlers) Implicit(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: missing state cookie", errBadRequest))
		return
	}
	clearCookie(w, stateCookieName)

	if err := r.ParseForm(); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	repo := h.auth.Repository("implicit:"+stateCookie.Value, auth.NewMemoryTokenStorage(nil))
	info, err := repo.StoreImplicitGrant(r.Context(), r.PostForm, stateCookie.Value)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.startSession(w, r, info)
}

// startSession looks up the token's owner and signs them in.
func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, info *auth.AccessTokenInfo) {
	ctx := r.Context()

	client := spotify.New(oauth2.NewClient(ctx, oauth2.StaticTokenSource(info.OAuth2())), h.clientOptions()...)
	user, err := client.CurrentUser(ctx)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("getting user info: %w", err))
		return
	}

	session, err := h.sessions.Create(ctx, info, user)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("creating session: %w", err))
		return
	}
	setSessionCookie(w, session, h.sessionTTL)

	h.logger.Info("user signed in", zap.String("user_id", user.ID))

	if r.Method == http.MethodPost {
		writeJSON(w, http.StatusOK, user)
		return
	}
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Logout ends the session (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if id := sessionIDFromRequest(r); id != "" {
		if err := h.sessions.Delete(r.Context(), id); err != nil && !errors.Is(err, ErrNoSession) {
			h.logger.Warn("deleting session", zap.Error(err))
		}
	}
	clearCookie(w, sessionCookieName)
	w.WriteHeader(http.StatusNoContent)
}
