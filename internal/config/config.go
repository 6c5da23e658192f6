// Package config loads application configuration from a YAML file, an
// optional .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appDirName = "spotify-stats"

var (
	// ErrMissingCredentials is returned when SPOTIFY_ID or SPOTIFY_SECRET is not set.
	ErrMissingCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET")

	// ErrUnknownDriver is returned when storage.driver is neither sqlite nor postgres.
	ErrUnknownDriver = errors.New("unknown storage driver")

	// ErrMissingDatabaseURL is returned when the postgres driver has no DATABASE_URL.
	ErrMissingDatabaseURL = errors.New("postgres driver requires DATABASE_URL")
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Spotify SpotifyConfig `yaml:"spotify"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Auth    AuthConfig    `yaml:"auth"`
	Stats   StatsConfig   `yaml:"stats"`
	LastFM  LastFMConfig  `yaml:"lastfm"`
	Log     LogConfig     `yaml:"log"`
}

type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`

	// Overrides for the accounts and Web API endpoints. Empty means Spotify's.
	AuthURL  string `yaml:"auth_url"`
	TokenURL string `yaml:"token_url"`
	APIURL   string `yaml:"api_url"`

	// MaxPages bounds how many pages of top items are fetched.
	MaxPages int `yaml:"max_pages"`
}

type ServerConfig struct {
	Addr       string        `yaml:"addr"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url"`
}

type CacheConfig struct {
	Dir string        `yaml:"dir"`
	TTL time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	TokenFile string `yaml:"token_file"`
	// TokenKey is the passphrase the token file is encrypted with.
	TokenKey string `yaml:"token_key"`
}

type StatsConfig struct {
	MaxAge       time.Duration `yaml:"max_age"`
	SyncCooldown time.Duration `yaml:"sync_cooldown"`
	MoodClusters int           `yaml:"mood_clusters"`
}

type LastFMConfig struct {
	APIKey      string `yaml:"api_key"`
	Concurrency int    `yaml:"concurrency"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads the YAML file at path (skipped when path is empty or the file does
// not exist), loads .env from the working directory if present, applies
// environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Spotify.ClientID, "SPOTIFY_ID")
	setString(&cfg.Spotify.ClientSecret, "SPOTIFY_SECRET")
	setString(&cfg.Spotify.RedirectURL, "SPOTIFY_REDIRECT_URL")
	setString(&cfg.Storage.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Storage.Driver, "SPOTIFY_STATS_DRIVER")
	setString(&cfg.LastFM.APIKey, "LASTFM_API_KEY")
	setString(&cfg.Auth.TokenKey, "SPOTIFY_STATS_TOKEN_KEY")
	setString(&cfg.Server.Addr, "SPOTIFY_STATS_ADDR")
	setString(&cfg.Log.Level, "SPOTIFY_STATS_LOG_LEVEL")

	if raw := os.Getenv("SPOTIFY_STATS_MAX_PAGES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Spotify.MaxPages = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) setDefaults() error {
	if c.Spotify.RedirectURL == "" {
		c.Spotify.RedirectURL = "http://127.0.0.1:8080/callback"
	}
	if c.Spotify.MaxPages <= 0 {
		c.Spotify.MaxPages = 2
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.SessionTTL <= 0 {
		c.Server.SessionTTL = 24 * time.Hour
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Stats.MaxAge <= 0 {
		c.Stats.MaxAge = 6 * time.Hour
	}
	if c.Stats.SyncCooldown <= 0 {
		c.Stats.SyncCooldown = 15 * time.Minute
	}
	if c.Stats.MoodClusters <= 0 {
		c.Stats.MoodClusters = 3
	}
	if c.LastFM.Concurrency <= 0 {
		c.LastFM.Concurrency = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	// Paths default to ~/.config/spotify-stats/...
	if c.Storage.SQLitePath == "" || c.Cache.Dir == "" || c.Auth.TokenFile == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("getting user config dir: %w", err)
		}
		base := filepath.Join(configDir, appDirName)
		if c.Storage.SQLitePath == "" {
			c.Storage.SQLitePath = filepath.Join(base, "stats.db")
		}
		if c.Cache.Dir == "" {
			c.Cache.Dir = filepath.Join(base, "cache")
		}
		if c.Auth.TokenFile == "" {
			c.Auth.TokenFile = filepath.Join(base, "token.enc")
		}
	}
	return nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingCredentials
	}
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Storage.Driver)
	}
	return nil
}
