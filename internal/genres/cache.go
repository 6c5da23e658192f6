package genres

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/filecache"
	"github.com/justestif/spotify-stats/internal/lastfm"
	"github.com/justestif/spotify-stats/internal/logging"
)

// CachedTagFetcher persists artist tags in a file cache so they survive
// restarts. Expiry follows the cache's TTL.
type CachedTagFetcher struct {
	cache  *filecache.Cache
	next   TagFetcher
	logger *zap.Logger
}

var _ TagFetcher = (*CachedTagFetcher)(nil)

// NewCachedTagFetcher wraps next with cache.
func NewCachedTagFetcher(cache *filecache.Cache, next TagFetcher, logger *zap.Logger) *CachedTagFetcher {
	return &CachedTagFetcher{cache: cache, next: next, logger: logging.OrNop(logger)}
}

// ArtistTags returns cached tags when present, otherwise fetches and stores them.
func (c *CachedTagFetcher) ArtistTags(ctx context.Context, artist string) ([]lastfm.Tag, error) {
	key := "lastfm/artist/" + strings.ToLower(strings.TrimSpace(artist))

	var tags []lastfm.Tag
	ok, err := c.cache.GetJSON(key, &tags)
	if err != nil {
		c.logger.Warn("reading tag cache", zap.String("artist", artist), zap.Error(err))
	}
	if ok {
		return tags, nil
	}

	tags, err = c.next.ArtistTags(ctx, artist)
	if err != nil {
		return nil, err
	}

	if err := c.cache.PutJSON(key, tags); err != nil {
		c.logger.Warn("writing tag cache", zap.String("artist", artist), zap.Error(err))
	}
	return tags, nil
}
