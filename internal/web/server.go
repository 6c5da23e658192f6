package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/auth"
	"github.com/justestif/spotify-stats/internal/logging"
	"github.com/justestif/spotify-stats/internal/spotify"
	"github.com/justestif/spotify-stats/internal/stats"
	"github.com/justestif/spotify-stats/internal/store"
	statsync "github.com/justestif/spotify-stats/internal/sync"
)

// DefaultAddr is the default server address.
const DefaultAddr = "127.0.0.1:8080"

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr       string
	Auth       *auth.Service
	Sessions   SessionManager
	SessionTTL time.Duration
	Store      store.Store
	// Sync defaults to a service with the default cooldown.
	Sync *statsync.Service

	// Options applied to every per-request Web API client and stats repository.
	SpotifyOptions []spotify.Option
	StatsOptions   []stats.Option

	Logger *zap.Logger
}

// Server is the HTTP server for the JSON API.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *zap.Logger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("web: auth service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("web: session manager is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("web: store is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	logger := logging.OrNop(cfg.Logger)
	if cfg.Sync == nil {
		cfg.Sync = statsync.New(cfg.Store, statsync.WithLogger(logger))
	}

	s := &Server{
		router:   chi.NewRouter(),
		handlers: newHandlers(cfg, logger),
		logger:   logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.Get("/", h.Index)

	// Auth routes
	s.router.Get("/auth/login", h.Login)
	s.router.Get("/auth/login/implicit", h.LoginImplicit)
	s.router.Get("/callback", h.Callback)
	s.router.Post("/auth/implicit", h.Implicit)
	s.router.Post("/auth/logout", h.Logout)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(h.requireSession)

		r.Get("/me", h.Me)
		r.Get("/overview", h.Overview)
		r.Post("/sync", h.Sync)

		r.Route("/top", func(r chi.Router) {
			r.Get("/tracks", h.TopTracks)
			r.Get("/artists", h.TopArtists)
			r.Get("/genres", h.TopGenres)
			r.Get("/moods", h.Moods)
		})

		r.Get("/search", h.Search)
		r.Get("/recommendations", h.Recommendations)

		r.Route("/drafts", func(r chi.Router) {
			r.Get("/", h.ListDrafts)
			r.Post("/", h.CreateDraft)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetDraft)
				r.Delete("/", h.DeleteDraft)
				r.Post("/tracks", h.AddDraftTrack)
				r.Delete("/tracks/{trackID}", h.RemoveDraftTrack)
				r.Post("/publish", h.PublishDraft)
			})
		})
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", "http://"+s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
