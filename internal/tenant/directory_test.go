// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/database"
	"github.com/versepulse/versepulse/internal/models"
)

func setupDirectory(t *testing.T) (*Directory, *database.DB) {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	tenants := []*models.Tenant{
		{ID: "default", Name: "Default", Subdomain: "app", Active: true, CreatedAt: time.Now().UTC()},
		{ID: "grace-chapel", Name: "Grace Chapel", Subdomain: "grace", Active: true, CreatedAt: time.Now().UTC()},
		{ID: "hope-center", Name: "Hope Center", Subdomain: "hope", Active: true, CreatedAt: time.Now().UTC()},
	}
	for _, tn := range tenants {
		if err := db.UpsertTenant(ctx, tn); err != nil {
			t.Fatalf("failed to seed tenant %s: %v", tn.ID, err)
		}
	}
	custom := "verses.hope.example"
	tenants[2].CustomDomain = &custom
	if err := db.UpsertTenant(ctx, tenants[2]); err != nil {
		t.Fatalf("failed to set custom domain: %v", err)
	}
	if err := db.UpsertTag(ctx, &models.Tag{
		ID: "tag-1", TenantID: "grace-chapel", Active: true, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("failed to seed tag: %v", err)
	}

	dir := NewDirectory(db, &config.TenantConfig{
		DefaultTenantID:    "default",
		CacheTTL:           time.Minute,
		ReservedSubdomains: []string{"www", "api", "admin"},
	})
	return dir, db
}

func TestParseSubdomain(t *testing.T) {
	reserved := map[string]struct{}{"www": {}, "api": {}}

	tests := []struct {
		host string
		want string
	}{
		{"grace.versepulse.app", "grace"},
		{"grace.versepulse.app:8710", "grace"},
		{"Grace.versepulse.app", "grace"},
		{"www.versepulse.app", ""},
		{"api.versepulse.app", ""},
		{"versepulse.app", ""},
		{"localhost", ""},
		{"localhost:8710", ""},
		{"192.0.2.7", ""},
		{"[2001:db8::1]:8710", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := ParseSubdomain(tt.host, reserved); got != tt.want {
				t.Errorf("ParseSubdomain(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

func TestResolveOrder(t *testing.T) {
	dir, _ := setupDirectory(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		host      string
		queryHint string
		tagID     string
		want      string
	}{
		{"explicit hint wins over host", "grace.versepulse.app", "hope-center", "", "hope-center"},
		{"hint accepts subdomain form", "", "grace", "", "grace-chapel"},
		{"host subdomain", "grace.versepulse.app", "", "", "grace-chapel"},
		{"custom domain full host", "verses.hope.example", "", "", "hope-center"},
		{"reserved subdomain skipped, tag resolves", "www.versepulse.app", "", "tag-1", "grace-chapel"},
		{"tag only", "", "", "tag-1", "grace-chapel"},
		{"nothing resolvable falls back to default", "versepulse.app", "", "", "default"},
		{"unknown everything falls back to default", "unknown.example.org", "nope", "tag-missing", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dir.Resolve(ctx, tt.host, tt.queryHint, tt.tagID)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("resolved %s, want %s", got.ID, tt.want)
			}
		})
	}
}

func TestResolveExplicitUnknownHost(t *testing.T) {
	dir, _ := setupDirectory(t)
	ctx := context.Background()

	if _, err := dir.ResolveExplicit(ctx, "unknown.example.org", "", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unmatched host, got %v", err)
	}

	got, err := dir.ResolveExplicit(ctx, "grace.versepulse.app", "", "")
	if err != nil {
		t.Fatalf("ResolveExplicit failed: %v", err)
	}
	if got.ID != "grace-chapel" {
		t.Errorf("resolved %s, want grace-chapel", got.ID)
	}
}

func TestByTagUnknown(t *testing.T) {
	dir, _ := setupDirectory(t)

	if _, err := dir.ByTag(context.Background(), "tag-missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupsAreCached(t *testing.T) {
	dir, db := setupDirectory(t)
	ctx := context.Background()

	first, err := dir.BySubdomain(ctx, "grace")
	if err != nil {
		t.Fatalf("BySubdomain failed: %v", err)
	}

	// Deactivate the tenant behind the cache's back; the cached entry
	// still serves until the TTL lapses or the cache is invalidated.
	deactivated := *first
	deactivated.Active = false
	if err := db.UpsertTenant(ctx, &deactivated); err != nil {
		t.Fatalf("UpsertTenant failed: %v", err)
	}

	cached, err := dir.BySubdomain(ctx, "grace")
	if err != nil {
		t.Fatalf("cached BySubdomain failed: %v", err)
	}
	if cached.ID != "grace-chapel" {
		t.Errorf("expected cached tenant, got %s", cached.ID)
	}

	dir.InvalidateCache()
	if _, err := dir.BySubdomain(ctx, "grace"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after invalidation, got %v", err)
	}
}
