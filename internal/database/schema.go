// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// tableCreationQueries returns the table creation SQL statements.
func tableCreationQueries() []string {
	return []string{
		// Tenants are provisioned externally; this table is a read-mostly
		// mirror the directory resolves against.
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			subdomain TEXT NOT NULL,
			custom_domain TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			label TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Anonymous sessions. tenant_id stays NULL until attributed.
		// Rows are soft-expired (ended=TRUE) by cleanup, never deleted by
		// the request path.
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT,
			ip_address TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL,
			interactions BIGINT NOT NULL DEFAULT 0,
			originating_tag_id TEXT,
			ended BOOLEAN NOT NULL DEFAULT FALSE,
			end_reason TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS geolocations (
			ip_address TEXT PRIMARY KEY,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			city TEXT,
			region TEXT,
			country TEXT NOT NULL,
			last_updated TIMESTAMP NOT NULL
		)`,

		// The append-only canonical event log. Inserts use ON CONFLICT DO
		// NOTHING so at-least-once redelivery of the same event id stays
		// idempotent at the row level.
		`CREATE TABLE IF NOT EXISTS analytics_events (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			tag_id TEXT,
			action TEXT NOT NULL,
			subject_id TEXT,
			ip_address TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL
		)`,
	}
}

// createIndexes creates indexes for the rollup and correlation access
// paths.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_tenants_subdomain ON tenants(subdomain)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_tenant ON tags(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tenant_time ON analytics_events(tenant_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tag_time ON analytics_events(tag_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON analytics_events(session_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}
