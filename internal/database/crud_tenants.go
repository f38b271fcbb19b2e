// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/versepulse/versepulse/internal/models"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

const tenantColumns = `id, name, subdomain, custom_domain, active, created_at, updated_at`

// GetTenant returns a tenant by id.
func (db *DB) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	return scanTenant(row)
}

// LookupTenantBySubdomain returns the active tenant owning the given
// subdomain or custom domain.
func (db *DB) LookupTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE active AND (subdomain = ? OR custom_domain = ?)`, subdomain, subdomain)
	return scanTenant(row)
}

// LookupTenantByTagID returns the active tenant owning the given tag.
func (db *DB) LookupTenantByTagID(ctx context.Context, tagID string) (*models.Tenant, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT t.id, t.name, t.subdomain, t.custom_domain, t.active, t.created_at, t.updated_at
		 FROM tenants t
		 JOIN tags g ON g.tenant_id = t.id
		 WHERE t.active AND g.active AND g.id = ?`, tagID)
	return scanTenant(row)
}

// UpsertTenant inserts or updates a tenant mirror row. Used by the
// provisioning import path and by tests.
func (db *DB) UpsertTenant(ctx context.Context, t *models.Tenant) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tenants (id, name, subdomain, custom_domain, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			subdomain = EXCLUDED.subdomain,
			custom_domain = EXCLUDED.custom_domain,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		t.ID, t.Name, t.Subdomain, t.CustomDomain, t.Active, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant %s: %w", t.ID, err)
	}
	return nil
}

// UpsertTag inserts or updates a tag registration.
func (db *DB) UpsertTag(ctx context.Context, tag *models.Tag) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tags (id, tenant_id, label, active, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			label = EXCLUDED.label,
			active = EXCLUDED.active`,
		tag.ID, tag.TenantID, tag.Label, tag.Active, tag.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert tag %s: %w", tag.ID, err)
	}
	return nil
}

// scanTenant scans a single tenant row, translating sql.ErrNoRows to
// ErrNotFound.
func scanTenant(row *sql.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.CustomDomain, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tenant row: %w", err)
	}
	return &t, nil
}
