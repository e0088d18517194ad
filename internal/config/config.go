// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"notathome.app/internal/session"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"NAH_HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health/info server listens on; empty disables it.
	GRPCAddr string `mapstructure:"NAH_GRPC_ADDR"`
	// PGDSN is the Postgres DSN; empty selects the in-memory store.
	PGDSN string `mapstructure:"NAH_PG_DSN"`
	// RedisAddr is the Redis address for cross-instance stream fan-out; empty keeps fan-out in-process.
	RedisAddr string `mapstructure:"NAH_REDIS_ADDR"`
	// AuthSecret signs and verifies bearer tokens. Required in production.
	AuthSecret string `mapstructure:"NAH_AUTH_SECRET"`
	// TokenTTLRaw is the bearer token lifetime (e.g. "12h").
	TokenTTLRaw string `mapstructure:"NAH_TOKEN_TTL"`
	// SessionTTLRaw is how long a session stays joinable after creation (e.g. "24h").
	SessionTTLRaw string `mapstructure:"NAH_SESSION_TTL"`
	// SessionCodeLength is the number of digits in join codes (4 to 6).
	SessionCodeLength int `mapstructure:"NAH_SESSION_CODE_LENGTH"`
	// SweepIntervalRaw is how often expired sessions are reaped; "0" disables the in-process sweeper.
	SweepIntervalRaw string `mapstructure:"NAH_SWEEP_INTERVAL"`
	// ShareWebhookURL receives exported documents; empty logs exports instead of delivering them.
	ShareWebhookURL string `mapstructure:"NAH_SHARE_WEBHOOK_URL"`
	// RateRPS is the sustained request rate allowed per client.
	RateRPS float64 `mapstructure:"NAH_RATE_RPS"`
	// RateBurst is the burst size on top of RateRPS.
	RateBurst int `mapstructure:"NAH_RATE_BURST"`
	// Env is the application environment ("development" or "production").
	Env string `mapstructure:"NAH_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI). Env vars
// override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("NAH_HTTP_ADDR", ":8080")
	v.SetDefault("NAH_GRPC_ADDR", "")
	v.SetDefault("NAH_PG_DSN", "")
	v.SetDefault("NAH_REDIS_ADDR", "")
	v.SetDefault("NAH_AUTH_SECRET", "")
	v.SetDefault("NAH_TOKEN_TTL", "12h")
	v.SetDefault("NAH_SESSION_TTL", "24h")
	v.SetDefault("NAH_SESSION_CODE_LENGTH", session.DefaultCodeLength)
	v.SetDefault("NAH_SWEEP_INTERVAL", "10m")
	v.SetDefault("NAH_SHARE_WEBHOOK_URL", "")
	v.SetDefault("NAH_RATE_RPS", 50.0)
	v.SetDefault("NAH_RATE_BURST", 100)
	v.SetDefault("NAH_ENV", "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: NAH_HTTP_ADDR must be set")
	}
	if cfg.Env == "production" && cfg.AuthSecret == "" {
		return nil, errors.New("config: NAH_AUTH_SECRET must be set when NAH_ENV=production")
	}
	if cfg.SessionCodeLength < session.MinCodeLength || cfg.SessionCodeLength > session.MaxCodeLength {
		return nil, fmt.Errorf("config: NAH_SESSION_CODE_LENGTH must be between %d and %d", session.MinCodeLength, session.MaxCodeLength)
	}
	if cfg.RateRPS <= 0 {
		return nil, errors.New("config: NAH_RATE_RPS must be positive")
	}
	if cfg.RateBurst < 1 {
		return nil, errors.New("config: NAH_RATE_BURST must be at least 1")
	}
	if _, err := time.ParseDuration(cfg.SweepIntervalRaw); cfg.SweepIntervalRaw != "" && cfg.SweepIntervalRaw != "0" && err != nil {
		return nil, fmt.Errorf("config: NAH_SWEEP_INTERVAL: %v", err)
	}

	return &cfg, nil
}

// TokenTTL parses NAH_TOKEN_TTL as a time.Duration. Returns 12h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.TokenTTLRaw)
	if err != nil || d <= 0 {
		return 12 * time.Hour
	}
	return d
}

// SessionTTL parses NAH_SESSION_TTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTLRaw)
	if err != nil || d <= 0 {
		return session.DefaultTTL
	}
	return d
}

// SweepInterval parses NAH_SWEEP_INTERVAL as a time.Duration. Zero disables
// the in-process sweeper; unset or invalid falls back to 10m.
func (c *Config) SweepInterval() time.Duration {
	if c.SweepIntervalRaw == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.SweepIntervalRaw)
	if err != nil || d < 0 {
		return 10 * time.Minute
	}
	return d
}
