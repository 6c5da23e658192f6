// Package stats fetches the user's listening statistics from the Web API,
// persists them in the local store and serves them back as ranked info
// objects.
package stats

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/clustering"
	"github.com/justestif/spotify-stats/internal/filecache"
	"github.com/justestif/spotify-stats/internal/logging"
	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/store"
)

// DefaultMaxAge is how long stored statistics are served before refetching.
const DefaultMaxAge = 6 * time.Hour

// Source is the part of the Web API client the repository uses.
type Source interface {
	CurrentUser(ctx context.Context) (*music.UserProfile, error)
	TopTracks(ctx context.Context, rng music.TimeRange) ([]music.Track, error)
	TopArtists(ctx context.Context, rng music.TimeRange) ([]music.Artist, error)
	AudioFeatures(ctx context.Context, trackIDs []string) ([]music.AudioFeatures, error)
}

// GenreEnricher supplies genres for artists Spotify has not classified,
// keyed by artist ID.
type GenreEnricher interface {
	GenresByArtist(ctx context.Context, artists []music.Artist) map[string][]string
}

// Repository reads statistics through the local store.
type Repository struct {
	source   Source
	store    store.Store
	cache    *filecache.Cache
	enricher GenreEnricher
	maxAge   time.Duration
	moodCfg  clustering.MoodConfig
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithCache enables the file cache for the profile and audio features.
func WithCache(c *filecache.Cache) Option {
	return func(r *Repository) {
		r.cache = c
	}
}

// WithGenreEnricher fills in missing artist genres.
func WithGenreEnricher(e GenreEnricher) Option {
	return func(r *Repository) {
		r.enricher = e
	}
}

// WithMaxAge sets how long stored statistics stay fresh.
func WithMaxAge(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// WithMoodConfig sets the mood clustering parameters.
func WithMoodConfig(cfg clustering.MoodConfig) Option {
	return func(r *Repository) {
		r.moodCfg = cfg
	}
}

// WithLogger sets the repository logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = logging.OrNop(l)
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// NewRepository creates a repository fetching from source and persisting to st.
func NewRepository(source Source, st store.Store, opts ...Option) *Repository {
	r := &Repository{
		source:  source,
		store:   st,
		maxAge:  DefaultMaxAge,
		moodCfg: clustering.DefaultMoodConfig(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TopTracks fetches the user's top tracks, replaces the stored copy and
// returns what was stored.
func (r *Repository) TopTracks(ctx context.Context, userID string, rng music.TimeRange) ([]music.TrackInfo, error) {
	tracks, err := r.source.TopTracks(ctx, rng)
	if err != nil {
		return nil, err
	}

	fetchedAt := r.now().UTC()
	entities := make([]store.TrackEntity, len(tracks))
	for i, t := range tracks {
		entities[i] = trackEntity(userID, rng, i+1, t, fetchedAt)
	}

	if err := r.store.ReplaceTopTracks(ctx, userID, rng, entities); err != nil {
		return nil, fmt.Errorf("storing top tracks: %w", err)
	}
	r.logger.Info("top tracks refreshed",
		zap.String("user_id", userID), zap.String("time_range", rng.String()), zap.Int("count", len(entities)))

	return r.CachedTopTracks(ctx, userID, rng)
}

// CachedTopTracks returns the stored top tracks without calling the API.
// It is empty when the range was never fetched.
func (r *Repository) CachedTopTracks(ctx context.Context, userID string, rng music.TimeRange) ([]music.TrackInfo, error) {
	entities, err := r.store.TopTracks(ctx, userID, rng)
	if err != nil {
		return nil, fmt.Errorf("loading top tracks: %w", err)
	}
	infos := make([]music.TrackInfo, len(entities))
	for i, e := range entities {
		infos[i] = trackInfo(e)
	}
	return infos, nil
}

// GetTopTracks serves stored tracks while they are fresh and refetches when
// they are missing, stale or refresh is set.
func (r *Repository) GetTopTracks(ctx context.Context, userID string, rng music.TimeRange, refresh bool) ([]music.TrackInfo, error) {
	if !refresh {
		entities, err := r.store.TopTracks(ctx, userID, rng)
		if err != nil {
			return nil, fmt.Errorf("loading top tracks: %w", err)
		}
		if len(entities) > 0 && r.fresh(entities[0].FetchedAt) {
			infos := make([]music.TrackInfo, len(entities))
			for i, e := range entities {
				infos[i] = trackInfo(e)
			}
			return infos, nil
		}
	}
	return r.TopTracks(ctx, userID, rng)
}

// TopArtists fetches the user's top artists, replaces the stored copy and
// returns what was stored.
func (r *Repository) TopArtists(ctx context.Context, userID string, rng music.TimeRange) ([]music.ArtistInfo, error) {
	artists, err := r.source.TopArtists(ctx, rng)
	if err != nil {
		return nil, err
	}

	fetchedAt := r.now().UTC()
	entities := make([]store.ArtistEntity, len(artists))
	for i, a := range artists {
		entities[i] = artistEntity(userID, rng, i+1, a, fetchedAt)
	}

	if err := r.store.ReplaceTopArtists(ctx, userID, rng, entities); err != nil {
		return nil, fmt.Errorf("storing top artists: %w", err)
	}
	r.logger.Info("top artists refreshed",
		zap.String("user_id", userID), zap.String("time_range", rng.String()), zap.Int("count", len(entities)))

	return r.CachedTopArtists(ctx, userID, rng)
}

// CachedTopArtists returns the stored top artists without calling the API.
func (r *Repository) CachedTopArtists(ctx context.Context, userID string, rng music.TimeRange) ([]music.ArtistInfo, error) {
	entities, err := r.store.TopArtists(ctx, userID, rng)
	if err != nil {
		return nil, fmt.Errorf("loading top artists: %w", err)
	}
	infos := make([]music.ArtistInfo, len(entities))
	for i, e := range entities {
		infos[i] = artistInfo(e)
	}
	return infos, nil
}

// GetTopArtists is GetTopTracks for artists.
func (r *Repository) GetTopArtists(ctx context.Context, userID string, rng music.TimeRange, refresh bool) ([]music.ArtistInfo, error) {
	if !refresh {
		entities, err := r.store.TopArtists(ctx, userID, rng)
		if err != nil {
			return nil, fmt.Errorf("loading top artists: %w", err)
		}
		if len(entities) > 0 && r.fresh(entities[0].FetchedAt) {
			infos := make([]music.ArtistInfo, len(entities))
			for i, e := range entities {
				infos[i] = artistInfo(e)
			}
			return infos, nil
		}
	}
	return r.TopArtists(ctx, userID, rng)
}

// TopGenres counts genres across the user's top artists, most common first
// and ties broken by name. Artists without Spotify genres are enriched when
// an enricher is configured.
func (r *Repository) TopGenres(ctx context.Context, userID string, rng music.TimeRange, refresh bool) ([]music.GenreInfo, error) {
	artists, err := r.GetTopArtists(ctx, userID, rng, refresh)
	if err != nil {
		return nil, err
	}

	if r.enricher != nil {
		var missing []music.Artist
		for _, a := range artists {
			if len(a.Genres) == 0 {
				missing = append(missing, music.Artist{ID: a.ID, Name: a.Name})
			}
		}
		if len(missing) > 0 {
			enriched := r.enricher.GenresByArtist(ctx, missing)
			for i := range artists {
				if g, ok := enriched[artists[i].ID]; ok {
					artists[i].Genres = g
				}
			}
			r.logger.Debug("enriched artist genres",
				zap.Int("missing", len(missing)), zap.Int("enriched", len(enriched)))
		}
	}

	return countGenres(artists), nil
}

// countGenres aggregates genres over artists. Artists are listed in the
// order given, each at most once per genre.
func countGenres(artists []music.ArtistInfo) []music.GenreInfo {
	byName := make(map[string]*music.GenreInfo)
	for _, a := range artists {
		seen := make(map[string]bool, len(a.Genres))
		for _, g := range a.Genres {
			if g == "" || seen[g] {
				continue
			}
			seen[g] = true

			info, ok := byName[g]
			if !ok {
				info = &music.GenreInfo{Name: g}
				byName[g] = info
			}
			info.Count++
			info.Artists = append(info.Artists, a.Name)
		}
	}

	genres := make([]music.GenreInfo, 0, len(byName))
	for _, info := range byName {
		genres = append(genres, *info)
	}
	slices.SortFunc(genres, func(a, b music.GenreInfo) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return genres
}

// Profile returns the user's profile, served from the file cache when
// possible. An empty userID means the authenticated user.
func (r *Repository) Profile(ctx context.Context, userID string) (*music.UserProfile, error) {
	key := profileKey(userID)
	if r.cache != nil {
		var cached music.UserProfile
		ok, err := r.cache.GetJSON(key, &cached)
		if err != nil {
			r.logger.Warn("reading profile cache", zap.Error(err))
		}
		if ok {
			return &cached, nil
		}
	}

	profile, err := r.source.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.PutJSON(key, profile); err != nil {
			r.logger.Warn("writing profile cache", zap.Error(err))
		}
	}
	return profile, nil
}

func profileKey(userID string) string {
	if userID == "" {
		return "profile/me"
	}
	return "profile/" + userID
}

func (r *Repository) fresh(fetchedAt time.Time) bool {
	return r.now().Sub(fetchedAt) <= r.maxAge
}
