// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package tenant resolves host names, explicit hints, and tag
// identifiers to tenant records. Tenants are provisioned externally;
// this package only reads, through a short-lived cache.
package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/versepulse/versepulse/internal/cache"
	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/database"
	"github.com/versepulse/versepulse/internal/logging"
	"github.com/versepulse/versepulse/internal/models"
)

// ErrNotFound is returned when no lookup step matches a tenant.
var ErrNotFound = errors.New("tenant not found")

// Directory resolves tenants from hints with a read-through TTL cache
// in front of the database. All lookups are idempotent and
// side-effect-free.
type Directory struct {
	db       *database.DB
	cfg      *config.TenantConfig
	cache    *cache.Cache
	reserved map[string]struct{}
}

// NewDirectory creates a tenant directory backed by the given database.
func NewDirectory(db *database.DB, cfg *config.TenantConfig) *Directory {
	reserved := make(map[string]struct{}, len(cfg.ReservedSubdomains))
	for _, s := range cfg.ReservedSubdomains {
		reserved[s] = struct{}{}
	}
	return &Directory{
		db:       db,
		cfg:      cfg,
		cache:    cache.New(cfg.CacheTTL),
		reserved: reserved,
	}
}

// Resolve walks the hint chain: explicit hint, host subdomain, tag
// lookup, default tenant. It never returns ErrNotFound; an exhausted
// chain falls back to the default tenant with a logged warning so
// analytics continuity survives unattributable requests. Only storage
// failures propagate.
func (d *Directory) Resolve(ctx context.Context, hostHint, queryHint, tagID string) (*models.Tenant, error) {
	t, err := d.ResolveExplicit(ctx, hostHint, queryHint, tagID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	logging.Ctx(ctx).Warn().
		Str("host", hostHint).
		Str("hint", queryHint).
		Str("tag_id", tagID).
		Str("default_tenant", d.cfg.DefaultTenantID).
		Msg("Tenant resolution exhausted, falling back to default tenant")

	return d.Default(ctx)
}

// ResolveExplicit walks the same hint chain as Resolve but returns
// ErrNotFound instead of defaulting, so callers can tell an actual
// tenant signal apart from the fallback.
func (d *Directory) ResolveExplicit(ctx context.Context, hostHint, queryHint, tagID string) (*models.Tenant, error) {
	if queryHint != "" {
		if t, err := d.ByHint(ctx, queryHint); err == nil {
			return t, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if sub := ParseSubdomain(hostHint, d.reserved); sub != "" {
		if t, err := d.BySubdomain(ctx, sub); err == nil {
			return t, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	// A custom domain matches on the full host, not a label.
	if hostHint != "" {
		if t, err := d.BySubdomain(ctx, stripPort(hostHint)); err == nil {
			return t, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if tagID != "" {
		if t, err := d.ByTag(ctx, tagID); err == nil {
			return t, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return nil, ErrNotFound
}

// ByHint resolves an explicit tenant hint, accepted as either a tenant
// id or a subdomain.
func (d *Directory) ByHint(ctx context.Context, hint string) (*models.Tenant, error) {
	if t, ok := d.cached("hint", hint); ok {
		return t, nil
	}

	t, err := d.db.GetTenant(ctx, hint)
	if errors.Is(err, database.ErrNotFound) {
		t, err = d.db.LookupTenantBySubdomain(ctx, hint)
	}
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant hint %q: %w", hint, err)
	}

	d.store("hint", hint, t)
	return t, nil
}

// BySubdomain resolves a subdomain or custom domain to its tenant.
func (d *Directory) BySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	if t, ok := d.cached("subdomain", subdomain); ok {
		return t, nil
	}

	t, err := d.db.LookupTenantBySubdomain(ctx, subdomain)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subdomain %q: %w", subdomain, err)
	}

	d.store("subdomain", subdomain, t)
	return t, nil
}

// ByTag resolves a tag id to the tenant that owns the tag.
func (d *Directory) ByTag(ctx context.Context, tagID string) (*models.Tenant, error) {
	if t, ok := d.cached("tag", tagID); ok {
		return t, nil
	}

	t, err := d.db.LookupTenantByTagID(ctx, tagID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tag %q: %w", tagID, err)
	}

	d.store("tag", tagID, t)
	return t, nil
}

// Default returns the configured default tenant. A missing default
// tenant row is a provisioning error, not a resolvable condition.
func (d *Directory) Default(ctx context.Context) (*models.Tenant, error) {
	if t, ok := d.cached("id", d.cfg.DefaultTenantID); ok {
		return t, nil
	}

	t, err := d.db.GetTenant(ctx, d.cfg.DefaultTenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load default tenant %q: %w", d.cfg.DefaultTenantID, err)
	}

	d.store("id", d.cfg.DefaultTenantID, t)
	return t, nil
}

// InvalidateCache drops all cached lookups, forcing fresh reads after
// external provisioning changes.
func (d *Directory) InvalidateCache() {
	d.cache.Clear()
}

func (d *Directory) cached(kind, key string) (*models.Tenant, bool) {
	v, ok := d.cache.Get(kind + ":" + key)
	if !ok {
		return nil, false
	}
	t, ok := v.(*models.Tenant)
	return t, ok
}

func (d *Directory) store(kind, key string, t *models.Tenant) {
	d.cache.Set(kind+":"+key, t)
}
