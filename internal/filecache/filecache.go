// Package filecache stores small payloads on disk with a time-to-live.
//
// Each entry is one file whose content is "<epoch-millis>|<payload>", the
// millis being the write time. Entries older than the TTL, and entries that
// cannot be parsed, are deleted and reported as a miss.
package filecache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/logging"
)

const separator = '|'

// Cache is a directory of TTL-bounded entries.
type Cache struct {
	dir    string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = logging.OrNop(l)
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache in dir, creating the directory if needed. A ttl of
// zero or less disables expiry.
func New(dir string, ttl time.Duration, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	c := &Cache{
		dir:    dir,
		ttl:    ttl,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Put stores data under key, stamped with the current time.
func (c *Cache) Put(key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString(strconv.FormatInt(c.now().UnixMilli(), 10))
	buf.WriteByte(separator)
	buf.Write(data)

	path := c.path(key)
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing cache entry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming cache entry: %w", err)
	}
	return nil
}

// Get returns the payload stored under key. ok is false when the entry is
// missing, expired or malformed.
func (c *Cache) Get(key string) (data []byte, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.path(key)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	now := c.now()
	written, payload, err := parse(raw)
	if err == nil && written.After(now) {
		err = fmt.Errorf("timestamp %s is in the future", written.Format(time.RFC3339))
	}
	if err != nil {
		c.logger.Warn("discarding malformed cache entry", zap.String("key", key), zap.Error(err))
		return nil, false, c.remove(path)
	}

	if c.ttl > 0 && now.Sub(written) > c.ttl {
		return nil, false, c.remove(path)
	}
	return payload, true, nil
}

// PutJSON stores v encoded as JSON.
func (c *Cache) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return c.Put(key, data)
}

// GetJSON decodes the entry under key into v. A payload that does not
// decode is deleted and reported as a miss.
func (c *Cache) GetJSON(key string, v any) (bool, error) {
	data, ok, err := c.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return false, c.Delete(key)
	}
	return true, nil
}

// Delete removes the entry under key. Deleting a missing entry is not an error.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remove(c.path(key))
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("listing cache directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := c.remove(filepath.Join(c.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing cache entry: %w", err)
	}
	return nil
}

// path maps key to a file name that is safe on every filesystem.
func (c *Cache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16])+".cache")
}

func parse(raw []byte) (time.Time, []byte, error) {
	idx := bytes.IndexByte(raw, separator)
	if idx < 0 {
		return time.Time{}, nil, errors.New("missing timestamp separator")
	}
	millis, err := strconv.ParseInt(string(raw[:idx]), 10, 64)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return time.UnixMilli(millis), raw[idx+1:], nil
}
