// Package genres fills in genres for artists Spotify has not classified,
// using Last.fm artist tags.
package genres

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/lastfm"
	"github.com/justestif/spotify-stats/internal/logging"
	"github.com/justestif/spotify-stats/internal/music"
)

const (
	// DefaultConcurrency is the number of concurrent Last.fm lookups.
	DefaultConcurrency = 5

	// DefaultMaxTags is how many of an artist's top tags become genres.
	DefaultMaxTags = 3

	// DefaultMinCount drops tags Last.fm weights below this (0-100).
	DefaultMinCount = 10
)

// TagFetcher abstracts the Last.fm client for testing.
type TagFetcher interface {
	ArtistTags(ctx context.Context, artist string) ([]lastfm.Tag, error)
}

// Result holds the genres derived for one artist.
type Result struct {
	ArtistID string
	Genres   []string
	Error    error // non-nil if the lookup failed
}

// Enricher looks up genres for artists concurrently.
type Enricher struct {
	fetcher     TagFetcher
	concurrency int
	maxTags     int
	minCount    int
	logger      *zap.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithConcurrency sets the number of concurrent lookups.
func WithConcurrency(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMaxTags sets how many tags per artist become genres.
func WithMaxTags(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.maxTags = n
		}
	}
}

// WithLogger sets the enricher logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Enricher) {
		e.logger = logging.OrNop(l)
	}
}

// NewEnricher creates an Enricher backed by fetcher.
func NewEnricher(fetcher TagFetcher, opts ...Option) *Enricher {
	e := &Enricher{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		maxTags:     DefaultMaxTags,
		minCount:    DefaultMinCount,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich looks up genres for each artist. Results are in input order.
// Lookup failures are recorded per result and never fail the batch; only a
// cancelled context is returned as an error.
func (e *Enricher) Enrich(ctx context.Context, artists []music.Artist) ([]Result, error) {
	if len(artists) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, len(artists))

	type workItem struct {
		index  int
		artist music.Artist
	}
	workCh := make(chan workItem, len(artists))
	for i, a := range artists {
		workCh <- workItem{index: i, artist: a}
	}
	close(workCh)

	var wg sync.WaitGroup
	for i := 0; i < min(e.concurrency, len(artists)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workCh {
				if err := ctx.Err(); err != nil {
					results[work.index] = Result{ArtistID: work.artist.ID, Genres: []string{}, Error: err}
					continue
				}

				tags, err := e.fetcher.ArtistTags(ctx, work.artist.Name)
				if err != nil {
					results[work.index] = Result{ArtistID: work.artist.ID, Genres: []string{}, Error: err}
					continue
				}
				results[work.index] = Result{ArtistID: work.artist.ID, Genres: e.tagsToGenres(tags)}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// GenresByArtist returns enriched genres keyed by artist ID, omitting
// artists whose lookup failed or produced nothing.
func (e *Enricher) GenresByArtist(ctx context.Context, artists []music.Artist) map[string][]string {
	results, err := e.Enrich(ctx, artists)
	if err != nil {
		e.logger.Warn("genre enrichment interrupted", zap.Error(err))
	}

	out := make(map[string][]string, len(results))
	for _, r := range results {
		if r.Error != nil {
			e.logger.Debug("genre lookup failed", zap.String("artist_id", r.ArtistID), zap.Error(r.Error))
			continue
		}
		if len(r.Genres) > 0 {
			out[r.ArtistID] = r.Genres
		}
	}
	return out
}

// tagsToGenres keeps the strongest tags, normalised to lower case.
func (e *Enricher) tagsToGenres(tags []lastfm.Tag) []string {
	genres := make([]string, 0, e.maxTags)
	seen := make(map[string]bool, e.maxTags)
	for _, t := range tags {
		if len(genres) == e.maxTags {
			break
		}
		if t.Count < e.minCount {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		genres = append(genres, name)
	}
	return genres
}
