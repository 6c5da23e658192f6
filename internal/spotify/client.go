// Package spotify provides a wrapper around the Spotify Web API that maps
// SDK types onto the music domain types.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/logging"
	"github.com/justestif/spotify-stats/internal/music"
)

// DefaultMaxPages is the number of top-item pages fetched by default: the
// first page plus one "next" page.
const DefaultMaxPages = 2

// pageSize is the largest page the top and search endpoints accept.
const pageSize = 50

var (
	// ErrEmptyQuery is returned when a search query is blank.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrTooManySeeds is returned when more than MaxSeeds recommendation seeds are given.
	ErrTooManySeeds = errors.New("too many recommendation seeds")
)

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api      *spotify.Client
	maxPages int
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL  string
	maxPages int
	logger   *zap.Logger
}

// WithBaseURL points the client at a different API root, for tests.
// The URL must end with a slash.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithMaxPages limits how many pages of top items are fetched. Values below
// one are ignored.
func WithMaxPages(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logging.OrNop(l)
	}
}

// New creates a client. httpClient must attach credentials to requests,
// typically an oauth2 client backed by an auth.Repository token source.
func New(httpClient *http.Client, opts ...Option) *Client {
	cfg := clientConfig{maxPages: DefaultMaxPages, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	apiOpts := []spotify.ClientOption{spotify.WithRetry(true)}
	if cfg.baseURL != "" {
		apiOpts = append(apiOpts, spotify.WithBaseURL(cfg.baseURL))
	}

	return &Client{
		api:      spotify.New(httpClient, apiOpts...),
		maxPages: cfg.maxPages,
		logger:   cfg.logger,
	}
}

// CurrentUser returns the profile of the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*music.UserProfile, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	return toUserProfile(user), nil
}

// StatusCode returns the HTTP status of a Web API error, or 0 if err did not
// come from a non-2xx response.
func StatusCode(err error) int {
	var ptr *spotify.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Status
	}
	var val spotify.Error
	if errors.As(err, &val) {
		return val.Status
	}
	return 0
}
