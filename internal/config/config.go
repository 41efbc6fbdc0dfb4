package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the API process reads from the environment.
type Config struct {
	Addr string `env:"KEYGATE_ADDR" envDefault:":8080"`

	// Postgres DSN; empty disables the durable store (readiness reports it).
	PostgresDSN string `env:"KEYGATE_PG_DSN"`

	// Symmetric signing secret for access and refresh tokens.
	AuthSecret string `env:"KEYGATE_AUTH_SECRET"`

	// Token lifetimes are configured in milliseconds, matching the values
	// surfaced to clients (in seconds) on every token response.
	AccessTokenTTLMillis  int64 `env:"KEYGATE_ACCESS_TTL_MS" envDefault:"900000"`
	RefreshTokenTTLMillis int64 `env:"KEYGATE_REFRESH_TTL_MS" envDefault:"604800000"`

	// Interval for the expired refresh-token purge task. Zero disables it.
	PurgeInterval time.Duration `env:"KEYGATE_PURGE_INTERVAL" envDefault:"1h"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AuthSecret == "" {
		return errors.New("config: KEYGATE_AUTH_SECRET is required")
	}
	if c.AccessTokenTTLMillis <= 0 {
		return errors.New("config: access token TTL must be positive")
	}
	if c.RefreshTokenTTLMillis <= 0 {
		return errors.New("config: refresh token TTL must be positive")
	}
	return nil
}

// AccessTTL returns the access-token lifetime as a duration.
func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMillis) * time.Millisecond
}

// RefreshTTL returns the refresh-token lifetime as a duration.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLMillis) * time.Millisecond
}
