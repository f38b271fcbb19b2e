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
	"time"

	"github.com/versepulse/versepulse/internal/models"
)

const sessionColumns = `id, tenant_id, ip_address, user_agent, first_seen_at, last_seen_at,
	interactions, originating_tag_id, ended, end_reason`

// InsertSession persists a newly minted session row.
func (db *DB) InsertSession(ctx context.Context, s *models.Session) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, tenant_id, ip_address, user_agent, first_seen_at,
			last_seen_at, interactions, originating_tag_id, ended, end_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, s.TenantID, s.IPAddress, s.UserAgent, s.FirstSeenAt,
		s.LastSeenAt, s.Interactions, s.OriginatingTagID, s.Ended, nullableString(s.EndReason))
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession returns a session by its opaque token.
func (db *DB) GetSession(ctx context.Context, id string) (*models.Session, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	var s models.Session
	var endReason *string
	err := row.Scan(&s.ID, &s.TenantID, &s.IPAddress, &s.UserAgent, &s.FirstSeenAt,
		&s.LastSeenAt, &s.Interactions, &s.OriginatingTagID, &s.Ended, &endReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session row: %w", err)
	}
	if endReason != nil {
		s.EndReason = *endReason
	}
	return &s, nil
}

// TouchSession bumps last_seen_at and increments the interaction
// counter. Callers run this fire-and-forget; failures are logged by the
// caller, never surfaced to the visitor.
func (db *DB) TouchSession(ctx context.Context, id string, seenAt time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE sessions
		 SET last_seen_at = CASE WHEN ? > last_seen_at THEN ? ELSE last_seen_at END,
		     interactions = interactions + 1
		 WHERE id = ?`, seenAt, seenAt, id)
	if err != nil {
		return fmt.Errorf("failed to touch session %s: %w", id, err)
	}
	return nil
}

// SetSessionTenant stamps the session's tenant and, on first scan only,
// the originating tag.
func (db *DB) SetSessionTenant(ctx context.Context, id, tenantID, tagID string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE sessions
		 SET tenant_id = ?,
		     originating_tag_id = COALESCE(originating_tag_id, ?)
		 WHERE id = ?`, tenantID, tagID, id)
	if err != nil {
		return fmt.Errorf("failed to stamp session %s: %w", id, err)
	}
	return nil
}

// EndSession marks a session ended with the given reason. Advisory:
// sessions without an explicit end signal age out via ExpireIdleSessions.
func (db *DB) EndSession(ctx context.Context, id, reason string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE sessions SET ended = TRUE, end_reason = ? WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	return nil
}

// ExpireIdleSessions soft-expires sessions whose last activity predates
// the cutoff. Returns the number of sessions expired. This is storage
// hygiene; attribution expiry is evaluated lazily at read time.
func (db *DB) ExpireIdleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE sessions SET ended = TRUE, end_reason = 'cleanup'
		 WHERE NOT ended AND last_seen_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire idle sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired sessions: %w", err)
	}
	return n, nil
}

// UpsertGeolocation inserts or updates a geolocation record.
func (db *DB) UpsertGeolocation(ctx context.Context, geo *models.Geolocation) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if geo.LastUpdated.IsZero() {
		geo.LastUpdated = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO geolocations (ip_address, latitude, longitude, city, region, country, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (ip_address) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			city = EXCLUDED.city,
			region = EXCLUDED.region,
			country = EXCLUDED.country,
			last_updated = EXCLUDED.last_updated`,
		geo.IPAddress, geo.Latitude, geo.Longitude, geo.City, geo.Region, geo.Country, geo.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert geolocation for %s: %w", geo.IPAddress, err)
	}
	return nil
}

// GetGeolocation returns the cached geolocation for an IP.
func (db *DB) GetGeolocation(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT ip_address, latitude, longitude, city, region, country, last_updated
		 FROM geolocations WHERE ip_address = ?`, ipAddress)

	var g models.Geolocation
	err := row.Scan(&g.IPAddress, &g.Latitude, &g.Longitude, &g.City, &g.Region, &g.Country, &g.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan geolocation row: %w", err)
	}
	return &g, nil
}

// SessionIPsMissingGeolocation returns distinct session IPs without a
// cached geolocation, feeding the background enricher.
func (db *DB) SessionIPsMissingGeolocation(ctx context.Context, limit int) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT s.ip_address
		 FROM sessions s
		 LEFT JOIN geolocations g ON s.ip_address = g.ip_address
		 WHERE g.ip_address IS NULL AND s.ip_address <> ''
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unenriched session IPs: %w", err)
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("failed to scan IP row: %w", err)
		}
		ips = append(ips, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating IP rows: %w", err)
	}
	return ips, nil
}

// nullableString converts "" to a SQL NULL.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
