// Package sync refreshes a user's top tracks and artists for every time
// range in one pass.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/spotify-stats/internal/logging"
	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/store"
)

// Common errors.
var (
	// ErrSyncTooRecent is returned when sync is attempted within the cooldown period.
	ErrSyncTooRecent = errors.New("sync attempted too recently")
)

// DefaultSyncCooldown is the default time between allowed syncs.
const DefaultSyncCooldown = 15 * time.Minute

// defaultConcurrency bounds parallel Web API requests during a sync.
const defaultConcurrency = 2

// Refresher fetches and stores one range of top items.
type Refresher interface {
	TopTracks(ctx context.Context, userID string, rng music.TimeRange) ([]music.TrackInfo, error)
	TopArtists(ctx context.Context, userID string, rng music.TimeRange) ([]music.ArtistInfo, error)
}

// Service handles syncing statistics from Spotify to the store.
type Service struct {
	store        store.Store
	syncCooldown time.Duration
	concurrency  int
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSyncCooldown sets the minimum time between syncs.
func WithSyncCooldown(d time.Duration) Option {
	return func(s *Service) {
		s.syncCooldown = d
	}
}

// WithConcurrency sets how many ranges are fetched at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logging.OrNop(l)
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a new sync service.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:        st,
		syncCooldown: DefaultSyncCooldown,
		concurrency:  defaultConcurrency,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RangeResult counts what was stored for one time range.
type RangeResult struct {
	TimeRange music.TimeRange `json:"time_range"`
	Tracks    int             `json:"tracks"`
	Artists   int             `json:"artists"`
}

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	Ranges   []RangeResult `json:"ranges"`
	SyncedAt time.Time     `json:"synced_at"`
}

// CanSync checks if enough time has passed since the last sync, which is the
// most recent fetch of any range's top tracks. It also returns when the next
// sync will be available.
func (s *Service) CanSync(ctx context.Context, userID string) (bool, time.Time, error) {
	var last time.Time
	for _, rng := range music.TimeRanges {
		tracks, err := s.store.TopTracks(ctx, userID, rng)
		if err != nil {
			return false, time.Time{}, fmt.Errorf("loading %s tracks: %w", rng, err)
		}
		if len(tracks) > 0 && tracks[0].FetchedAt.After(last) {
			last = tracks[0].FetchedAt
		}
	}

	if last.IsZero() {
		// Never synced, allow
		return true, time.Time{}, nil
	}

	next := last.Add(s.syncCooldown)
	if s.now().Before(next) {
		return false, next, nil
	}
	return true, time.Time{}, nil
}

// SyncAll refreshes top tracks and artists for every time range.
// Returns ErrSyncTooRecent if called within the cooldown period.
// Set force=true to bypass the cooldown check.
func (s *Service) SyncAll(ctx context.Context, r Refresher, userID string, force bool) (*SyncResult, error) {
	if !force {
		canSync, next, err := s.CanSync(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !canSync {
			return nil, fmt.Errorf("%w: next sync available at %s", ErrSyncTooRecent, next.Format(time.RFC3339))
		}
	}

	results := make([]RangeResult, len(music.TimeRanges))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, rng := range music.TimeRanges {
		results[i].TimeRange = rng
		g.Go(func() error {
			tracks, err := r.TopTracks(gctx, userID, rng)
			if err != nil {
				return fmt.Errorf("syncing %s tracks: %w", rng, err)
			}
			results[i].Tracks = len(tracks)
			return nil
		})
		g.Go(func() error {
			artists, err := r.TopArtists(gctx, userID, rng)
			if err != nil {
				return fmt.Errorf("syncing %s artists: %w", rng, err)
			}
			results[i].Artists = len(artists)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SyncResult{Ranges: results, SyncedAt: s.now()}
	s.logger.Info("sync complete", zap.String("user_id", userID), zap.Any("ranges", results))
	return result, nil
}
