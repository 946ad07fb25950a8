// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds everything the server needs at startup.
type Config struct {
	Port        string
	DatabaseURL string // empty → in-memory store
	RedisURL    string // empty → no cache layer
	CacheTTL    time.Duration

	// Exposure limits. MaxPerSymbol caps net exposure per symbol;
	// MaxCorrelated caps aggregate exposure across symbols sharing a
	// base-asset prefix of PrefixLen characters.
	MaxPerSymbol  decimal.Decimal
	MaxCorrelated decimal.Decimal
	PrefixLen     int
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          envOr("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		CacheTTL:      30 * time.Second,
		MaxPerSymbol:  decimal.NewFromInt(1000),
		MaxCorrelated: decimal.NewFromInt(5000),
		PrefixLen:     3, // base-asset prefix: BTCUSD/BTCEUR correlate via "BTC"
	}

	if v := os.Getenv("CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid CACHE_TTL %q: %w", v, err)
		}
		cfg.CacheTTL = ttl
	}
	if v := os.Getenv("MAX_EXPOSURE_PER_SYMBOL"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid MAX_EXPOSURE_PER_SYMBOL %q: %w", v, err)
		}
		cfg.MaxPerSymbol = d
	}
	if v := os.Getenv("MAX_EXPOSURE_CORRELATED"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid MAX_EXPOSURE_CORRELATED %q: %w", v, err)
		}
		cfg.MaxCorrelated = d
	}
	if v := os.Getenv("CORRELATION_PREFIX_LEN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("config: invalid CORRELATION_PREFIX_LEN %q", v)
		}
		cfg.PrefixLen = n
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
