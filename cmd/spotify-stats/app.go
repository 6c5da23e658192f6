package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/spotify-stats/internal/auth"
	"github.com/justestif/spotify-stats/internal/clustering"
	"github.com/justestif/spotify-stats/internal/config"
	"github.com/justestif/spotify-stats/internal/db"
	"github.com/justestif/spotify-stats/internal/filecache"
	"github.com/justestif/spotify-stats/internal/genres"
	"github.com/justestif/spotify-stats/internal/lastfm"
	"github.com/justestif/spotify-stats/internal/spotify"
	"github.com/justestif/spotify-stats/internal/stats"
	"github.com/justestif/spotify-stats/internal/store"
	"github.com/justestif/spotify-stats/internal/store/sqlite"
)

// cliTokenKey identifies the terminal user's token for single-flight refresh.
const cliTokenKey = "cli"

// app holds the components every command shares.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer

	store    store.Store
	database *db.DB // nil unless the postgres driver is used
	closers  []func()

	cache    *filecache.Cache
	auth     *auth.Service
	tokens   *auth.FileTokenStorage
	enricher stats.GenreEnricher
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: logger, out: out}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		database, err := db.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.database = database
		a.store = database.Store()
		a.closers = append(a.closers, database.Close)
	default:
		st, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, func() { st.Close() })
	}

	cache, err := filecache.New(cfg.Cache.Dir, cfg.Cache.TTL, filecache.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	a.cache = cache

	exchanger := auth.NewOAuth2Exchanger(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURL,
		auth.WithEndpoint(cfg.Spotify.AuthURL, cfg.Spotify.TokenURL))
	a.auth = auth.NewService(exchanger, auth.WithLogger(logger))

	key, err := tokenKey(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	tokens, err := auth.NewFileTokenStorage(cfg.Auth.TokenFile, key)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.tokens = tokens

	if cfg.LastFM.APIKey != "" {
		client := lastfm.NewClient(cfg.LastFM.APIKey, lastfm.WithLogger(logger))
		a.enricher = genres.NewEnricher(
			genres.NewCachedTagFetcher(cache, client, logger),
			genres.WithConcurrency(cfg.LastFM.Concurrency),
			genres.WithLogger(logger),
		)
	}

	return a, nil
}

// tokenKey derives the token file key from the configured passphrase, or
// keeps a random key next to the token file.
func tokenKey(cfg *config.Config) ([]byte, error) {
	if cfg.Auth.TokenKey != "" {
		return auth.DeriveKey(cfg.Auth.TokenKey), nil
	}
	return auth.LoadOrCreateKey(filepath.Join(filepath.Dir(cfg.Auth.TokenFile), "token.key"))
}

// Close releases the store connections.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) tokenRepository() *auth.Repository {
	return a.auth.Repository(cliTokenKey, a.tokens)
}

func (a *app) spotifyOptions() []spotify.Option {
	opts := []spotify.Option{
		spotify.WithMaxPages(a.cfg.Spotify.MaxPages),
		spotify.WithLogger(a.logger),
	}
	if a.cfg.Spotify.APIURL != "" {
		opts = append(opts, spotify.WithBaseURL(a.cfg.Spotify.APIURL))
	}
	return opts
}

func (a *app) statsOptions() []stats.Option {
	opts := []stats.Option{
		stats.WithCache(a.cache),
		stats.WithMaxAge(a.cfg.Stats.MaxAge),
		stats.WithMoodConfig(clustering.MoodConfig{
			NumClusters:    a.cfg.Stats.MoodClusters,
			MinClusterSize: clustering.DefaultMoodConfig().MinClusterSize,
		}),
		stats.WithLogger(a.logger),
	}
	if a.enricher != nil {
		opts = append(opts, stats.WithGenreEnricher(a.enricher))
	}
	return opts
}

// session is a signed-in terminal user.
type session struct {
	userID  string
	client  *spotify.Client
	stats   *stats.Repository
	profile string
}

// signedIn builds the API client from the stored token and resolves the user.
func (a *app) signedIn(ctx context.Context) (*session, error) {
	repo := a.tokenRepository()
	if _, err := repo.GetAccessToken(ctx); err != nil {
		if errors.Is(err, auth.ErrNullAccessToken) {
			return nil, errors.New("not logged in; run 'spotify-stats login' first")
		}
		return nil, err
	}

	client := spotify.New(oauth2.NewClient(ctx, repo.TokenSource(ctx)), a.spotifyOptions()...)
	statsRepo := stats.NewRepository(client, a.store, a.statsOptions()...)

	profile, err := statsRepo.Profile(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("getting user profile: %w", err)
	}

	name := profile.DisplayName
	if name == "" {
		name = profile.ID
	}
	return &session{userID: profile.ID, client: client, stats: statsRepo, profile: name}, nil
}
