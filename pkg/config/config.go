// Package config holds the externally tunable knobs of the SDUI core.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration. The cache TTL, cache key prefix and
// telemetry toggle are the knobs the core contracts expose; the rest is
// transport and store wiring.
type Config struct {
	Port     string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ReceiptDBPath string

	CacheTTL       time.Duration
	CacheKeyPrefix string

	TelemetryEnabled bool
	OTLPEndpoint     string

	HydrateTimeout time.Duration
	WarmRatePerSec float64
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:             envOr("PORT", "8080"),
		LogLevel:         envOr("LOG_LEVEL", "INFO"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          envInt("REDIS_DB", 0),
		ReceiptDBPath:    envOr("RECEIPT_DB_PATH", "blueprint-receipts.db"),
		CacheTTL:         envDuration("CACHE_TTL", 5*time.Minute),
		CacheKeyPrefix:   envOr("CACHE_KEY_PREFIX", "blueprint"),
		TelemetryEnabled: envOr("TELEMETRY_ENABLED", "true") == "true",
		OTLPEndpoint:     os.Getenv("OTLP_ENDPOINT"),
		HydrateTimeout:   envDuration("HYDRATE_TIMEOUT", 3*time.Second),
		WarmRatePerSec:   envFloat("WARM_RATE_PER_SEC", 4),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
