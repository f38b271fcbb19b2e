// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	if cfg.Attribution.TTL != 30*time.Minute {
		t.Errorf("expected 30m attribution TTL default, got %s", cfg.Attribution.TTL)
	}
	if cfg.Attribution.CorrelationWindow != 30*time.Minute {
		t.Errorf("expected 30m correlation window default, got %s", cfg.Attribution.CorrelationWindow)
	}
	if cfg.Tenant.DefaultTenantID == "" {
		t.Error("default tenant must be configured out of the box")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"empty default tenant", func(c *Config) { c.Tenant.DefaultTenantID = "" }},
		{"zero ttl", func(c *Config) { c.Attribution.TTL = 0 }},
		{"negative correlation window", func(c *Config) { c.Attribution.CorrelationWindow = -time.Minute }},
		{"unknown session store", func(c *Config) { c.Session.Store = "redis" }},
		{"badger without path", func(c *Config) {
			c.Session.Store = "badger"
			c.Session.StorePath = ""
		}},
		{"idle cutoff below ttl", func(c *Config) { c.Session.IdleCutoff = time.Minute }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"nats without url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.EmbeddedServer = false
			c.NATS.URL = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"HTTP_PORT", "server.port"},
		{"DUCKDB_PATH", "database.path"},
		{"ATTRIBUTION_TTL", "attribution.ttl"},
		{"ATTRIBUTION_CORRELATION_WINDOW", "attribution.correlation_window"},
		{"DEFAULT_TENANT_ID", "tenant.default_tenant_id"},
		{"SESSION_STORE", "session.store"},
		{"NATS_ENABLED", "nats.enabled"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DEFAULT_TENANT_ID", "org-env")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Tenant.DefaultTenantID != "org-env" {
		t.Errorf("expected env default tenant, got %q", cfg.Tenant.DefaultTenantID)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("expected split CORS origins, got %v", cfg.Security.CORSOrigins)
	}
}

func TestIsProduction(t *testing.T) {
	cfg := defaultConfig()
	if cfg.IsProduction() {
		t.Error("development default must not report production")
	}
	cfg.Server.Environment = "Production"
	if !cfg.IsProduction() {
		t.Error("environment comparison must be case-insensitive")
	}
}
