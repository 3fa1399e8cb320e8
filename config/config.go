// Package config loads server and CLI settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/wallet"
)

type Config struct {
	// Server
	Port           int           `env:"PORT" envDefault:"8080"`
	DatabasePath   string        `env:"DATABASE_PATH" envDefault:"wallet.db"`
	CatalogPath    string        `env:"CATALOG_PATH"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	DefaultUserID  string        `env:"DEFAULT_USER_ID" envDefault:"demo"`
	ResyncInterval time.Duration `env:"RESYNC_INTERVAL" envDefault:"1m"`

	// Logging
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile    string `env:"LOG_FILE"`
	ServiceEnv string `env:"SERVICE_ENV" envDefault:"development"`

	// Engine
	IgnoreGuard        string        `env:"IGNORE_GUARD" envDefault:"year_to_date"`
	CommitTimeout      time.Duration `env:"COMMIT_TIMEOUT" envDefault:"15s"`
	MaxPendingAttempts int           `env:"MAX_PENDING_ATTEMPTS" envDefault:"3"`

	// Eligibility rule (Chase 5/24 by default)
	EligibilityWindowMonths int `env:"ELIGIBILITY_WINDOW_MONTHS" envDefault:"24"`
	EligibilityLimit        int `env:"ELIGIBILITY_LIMIT" envDefault:"5"`

	// CLI
	WalletURL string `env:"WALLET_URL" envDefault:"http://localhost:8080"`

	// Mutation rate limit per client; 0 disables
	RateLimitPerMinute float64 `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &generic.ValidationError{Field: "PORT", Message: "must be between 1 and 65535", Value: fmt.Sprint(c.Port)}
	}
	if _, err := wallet.ParseIgnoreGuard(c.IgnoreGuard); err != nil {
		return err
	}
	if c.CommitTimeout <= 0 {
		return &generic.ValidationError{Field: "COMMIT_TIMEOUT", Message: "must be positive", Value: c.CommitTimeout.String()}
	}
	if c.MaxPendingAttempts < 1 {
		return &generic.ValidationError{Field: "MAX_PENDING_ATTEMPTS", Message: "must be at least 1", Value: fmt.Sprint(c.MaxPendingAttempts)}
	}
	if c.EligibilityWindowMonths < 1 || c.EligibilityLimit < 1 {
		return &generic.ValidationError{Field: "ELIGIBILITY_LIMIT", Message: "window and limit must be at least 1"}
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Guard returns the configured ignore guard. Validate has already checked it.
func (c *Config) Guard() wallet.IgnoreGuard {
	g, _ := wallet.ParseIgnoreGuard(c.IgnoreGuard)
	return g
}

func (c *Config) EligibilityRule() wallet.EligibilityRule {
	return wallet.EligibilityRule{WindowMonths: c.EligibilityWindowMonths, Limit: c.EligibilityLimit}
}

// SlogLevel maps LOG_LEVEL (debug, info, warn, error) to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, &generic.ValidationError{Field: "LOG_LEVEL", Message: "expected debug, info, warn or error", Value: c.LogLevel}
	}
	return level, nil
}
