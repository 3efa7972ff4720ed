package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is an optional YAML overlay for deployments that prefer a file
// over environment variables. Zero values leave the corresponding Config
// field untouched.
type Profile struct {
	Port     string `yaml:"port,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`

	DatabaseURL   string `yaml:"database_url,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       *int   `yaml:"redis_db,omitempty"`
	ReceiptDBPath string `yaml:"receipt_db_path,omitempty"`

	CacheTTL       string `yaml:"cache_ttl,omitempty"` // Go duration string
	CacheKeyPrefix string `yaml:"cache_key_prefix,omitempty"`

	TelemetryEnabled *bool  `yaml:"telemetry_enabled,omitempty"`
	OTLPEndpoint     string `yaml:"otlp_endpoint,omitempty"`

	HydrateTimeout string   `yaml:"hydrate_timeout,omitempty"`
	WarmRatePerSec *float64 `yaml:"warm_rate_per_sec,omitempty"`
}

// LoadProfile reads a YAML profile and applies it on top of cfg.
func LoadProfile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p.Apply(cfg)
}

// Apply overlays the profile's set fields onto cfg.
func (p *Profile) Apply(cfg *Config) error {
	if p.Port != "" {
		cfg.Port = p.Port
	}
	if p.LogLevel != "" {
		cfg.LogLevel = p.LogLevel
	}
	if p.DatabaseURL != "" {
		cfg.DatabaseURL = p.DatabaseURL
	}
	if p.RedisAddr != "" {
		cfg.RedisAddr = p.RedisAddr
	}
	if p.RedisPassword != "" {
		cfg.RedisPassword = p.RedisPassword
	}
	if p.RedisDB != nil {
		cfg.RedisDB = *p.RedisDB
	}
	if p.ReceiptDBPath != "" {
		cfg.ReceiptDBPath = p.ReceiptDBPath
	}
	if p.CacheTTL != "" {
		d, err := time.ParseDuration(p.CacheTTL)
		if err != nil {
			return fmt.Errorf("invalid cache_ttl: %w", err)
		}
		cfg.CacheTTL = d
	}
	if p.CacheKeyPrefix != "" {
		cfg.CacheKeyPrefix = p.CacheKeyPrefix
	}
	if p.TelemetryEnabled != nil {
		cfg.TelemetryEnabled = *p.TelemetryEnabled
	}
	if p.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = p.OTLPEndpoint
	}
	if p.HydrateTimeout != "" {
		d, err := time.ParseDuration(p.HydrateTimeout)
		if err != nil {
			return fmt.Errorf("invalid hydrate_timeout: %w", err)
		}
		cfg.HydrateTimeout = d
	}
	if p.WarmRatePerSec != nil {
		cfg.WarmRatePerSec = *p.WarmRatePerSec
	}
	return nil
}
