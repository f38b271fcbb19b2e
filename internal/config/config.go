// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package config defines the VersePulse configuration model and its
// Koanf v2 based loader. Configuration is layered: built-in defaults,
// then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration struct.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Session     SessionConfig     `koanf:"session"`
	Attribution AttributionConfig `koanf:"attribution"`
	Tenant      TenantConfig      `koanf:"tenant"`
	GeoIP       GeoIPConfig       `koanf:"geoip"`
	NATS        NATSConfig        `koanf:"nats"`
	Security    SecurityConfig    `koanf:"security"`
	API         APIConfig         `koanf:"api"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// DatabaseConfig holds DuckDB settings for the analytics store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// SessionConfig holds anonymous session store settings.
type SessionConfig struct {
	// Store selects the session store backend: "memory" or "badger".
	Store string `koanf:"store"`

	// StorePath is the on-disk path for the badger backend.
	StorePath string `koanf:"store_path"`

	// CleanupInterval is how often the cleanup sweep runs.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// IdleCutoff is the trailing-activity cutoff after which a session
	// is soft-expired by cleanup. This is storage hygiene, not semantic
	// expiry of attribution.
	IdleCutoff time.Duration `koanf:"idle_cutoff"`
}

// AttributionConfig holds tag attribution settings. The TTL and
// correlation window are product constants inferred from observed
// behavior; both are configurable but the inclusive window boundary and
// the non-deduplicating correlation join are fixed.
type AttributionConfig struct {
	// TTL is the sliding attribution lifetime, refreshed by activity.
	TTL time.Duration `koanf:"ttl"`

	// CorrelationWindow is the trailing interval used to attribute
	// downstream activity to a tag scan. Inclusive upper boundary.
	CorrelationWindow time.Duration `koanf:"correlation_window"`
}

// TenantConfig holds tenant directory settings.
type TenantConfig struct {
	// DefaultTenantID receives events that cannot be attributed to any
	// tenant. Unattributable events are recorded here rather than
	// dropped, for analytics continuity.
	DefaultTenantID string `koanf:"default_tenant_id"`

	// CacheTTL bounds staleness of the read-through directory cache.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// ReservedSubdomains are never treated as tenant subdomains.
	ReservedSubdomains []string `koanf:"reserved_subdomains"`
}

// GeoIPConfig holds geolocation provider settings.
type GeoIPConfig struct {
	Enabled bool `koanf:"enabled"`

	// Provider order is ip-api first, then MaxMind if credentials are set.
	MaxMindAccountID  string `koanf:"maxmind_account_id"`
	MaxMindLicenseKey string `koanf:"maxmind_license_key"`

	// RatePerSecond limits outbound lookups (reference deployment: 1/s).
	RatePerSecond float64 `koanf:"rate_per_second"`

	// EnrichInterval is how often the background enricher scans for
	// sessions without geolocation.
	EnrichInterval time.Duration `koanf:"enrich_interval"`
}

// NATSConfig holds JetStream event fan-out settings.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	StreamName     string `koanf:"stream_name"`
	SubjectPrefix  string `koanf:"subject_prefix"`
	RetentionDays  int    `koanf:"retention_days"`
}

// SecurityConfig holds rate limiting and CORS settings. VersePulse has
// no authentication layer of its own; the platform fronting it owns
// identity.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	TrustedProxies    []string      `koanf:"trusted_proxies"`
}

// APIConfig holds pagination and response settings.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid combinations. It is
// called by the loader after all layers are applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Tenant.DefaultTenantID == "" {
		return fmt.Errorf("tenant.default_tenant_id must be configured; unattributable events fall back to it")
	}
	if c.Attribution.TTL <= 0 {
		return fmt.Errorf("attribution.ttl must be positive, got %s", c.Attribution.TTL)
	}
	if c.Attribution.CorrelationWindow <= 0 {
		return fmt.Errorf("attribution.correlation_window must be positive, got %s", c.Attribution.CorrelationWindow)
	}
	switch c.Session.Store {
	case "memory", "badger":
	default:
		return fmt.Errorf("session.store must be memory or badger, got %q", c.Session.Store)
	}
	if c.Session.Store == "badger" && c.Session.StorePath == "" {
		return fmt.Errorf("session.store_path is required for the badger store")
	}
	if c.Session.IdleCutoff < c.Attribution.TTL {
		return fmt.Errorf("session.idle_cutoff (%s) must not be shorter than attribution.ttl (%s)",
			c.Session.IdleCutoff, c.Attribution.TTL)
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.NATS.Enabled && !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled without the embedded server")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}
