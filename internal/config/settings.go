// Package config loads process settings and feed-tree configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Settings are the process settings read from the environment.
type Settings struct {
	FeedsConfig     string        `env:"FEEDS_CONFIG,default=config/feeds.yaml"`
	HTTPAddr        string        `env:"HTTP_ADDR,default=:8080"`
	RefreshSchedule string        `env:"REFRESH_SCHEDULE,default=@every 30s"`
	RefreshTimeout  time.Duration `env:"REFRESH_TIMEOUT,default=25s"`

	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT,default=10s"`
	FetchRateLimit float64       `env:"FETCH_RATE_LIMIT,default=5"`
	FetchBurst     int           `env:"FETCH_BURST,default=5"`
	CacheTTL       time.Duration `env:"CACHE_TTL,default=5s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	DatabaseURL       string `env:"DATABASE_URL"`
	SnapshotRetention int    `env:"SNAPSHOT_RETENTION,default=1000"`

	EVMRPCURL string `env:"EVM_RPC_URL"`
	NeoRPCURL string `env:"NEO_RPC_URL"`

	// CORSOrigins is semicolon separated.
	CORSOrigins []string `env:"CORS_ORIGINS"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Option adjusts settings after the environment has been read.
type Option func(*Settings) error

// LoadEnvFile loads variables from a .env file without overriding variables
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// WithFeedsConfig overrides the feed configuration path.
func WithFeedsConfig(path string) Option {
	return func(s *Settings) error {
		if path != "" {
			s.FeedsConfig = path
		}
		return nil
	}
}

// WithHTTPAddr overrides the listen address.
func WithHTTPAddr(addr string) Option {
	return func(s *Settings) error {
		if addr != "" {
			s.HTTPAddr = addr
		}
		return nil
	}
}

// DefaultSettings returns the settings used when no variable is set.
func DefaultSettings() Settings {
	return Settings{
		FeedsConfig:       "config/feeds.yaml",
		HTTPAddr:          ":8080",
		RefreshSchedule:   "@every 30s",
		RefreshTimeout:    25 * time.Second,
		FetchTimeout:      10 * time.Second,
		FetchRateLimit:    5,
		FetchBurst:        5,
		CacheTTL:          5 * time.Second,
		SnapshotRetention: 1000,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// LoadSettings reads settings from the environment, then applies opts.
func LoadSettings(opts ...Option) (*Settings, error) {
	s := DefaultSettings()
	if err := envdecode.StrictDecode(&s); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, err
		}
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

// Validate checks values that would otherwise fail later at startup.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.FeedsConfig) == "" {
		return errors.New("FEEDS_CONFIG is required")
	}
	if _, err := cron.ParseStandard(s.RefreshSchedule); err != nil {
		return fmt.Errorf("REFRESH_SCHEDULE %q: %w", s.RefreshSchedule, err)
	}
	if s.FetchTimeout <= 0 {
		return errors.New("FETCH_TIMEOUT must be positive")
	}
	if s.FetchRateLimit < 0 || s.FetchBurst < 0 {
		return errors.New("FETCH_RATE_LIMIT and FETCH_BURST must not be negative")
	}
	if s.CacheTTL < 0 {
		return errors.New("CACHE_TTL must not be negative")
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT %q must be text or json", s.LogFormat)
	}
	return nil
}
