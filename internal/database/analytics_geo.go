// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/versepulse/versepulse/internal/models"
)

// GetGeoBreakdown buckets a tenant's events by (country, city) using
// the session's stored geolocation. Sessions without a geolocation are
// excluded: geographic aggregation is best-effort, not exhaustive.
func (db *DB) GetGeoBreakdown(ctx context.Context, tenantID string, start, end time.Time) ([]models.GeoBucket, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
	SELECT g.country, g.city,
		COUNT(*) AS events,
		COUNT(DISTINCT e.session_id) AS sessions
	FROM analytics_events e
	JOIN sessions s ON e.session_id = s.id
	JOIN geolocations g ON s.ip_address = g.ip_address
	WHERE e.tenant_id = ? AND e.occurred_at >= ? AND e.occurred_at < ?
	GROUP BY g.country, g.city
	ORDER BY events DESC`, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query geographic breakdown: %w", err)
	}
	defer rows.Close()

	var buckets []models.GeoBucket
	for rows.Next() {
		var b models.GeoBucket
		if err := rows.Scan(&b.Country, &b.City, &b.Events, &b.UniqueSessions); err != nil {
			return nil, fmt.Errorf("failed to scan geographic row: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating geographic rows: %w", err)
	}
	return buckets, nil
}

// GetTopTags returns the tag leaderboard for a tenant over [start, end):
// scan counts and distinct scanning sessions per tag, busiest first.
func (db *DB) GetTopTags(ctx context.Context, tenantID string, start, end time.Time, limit int) ([]models.TopTag, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}

	rows, err := db.conn.QueryContext(ctx, `
	SELECT tag_id,
		COUNT(*) AS scans,
		COUNT(DISTINCT session_id) AS sessions,
		MAX(occurred_at) AS last_scan
	FROM analytics_events
	WHERE tenant_id = ? AND action = ? AND tag_id IS NOT NULL
	  AND occurred_at >= ? AND occurred_at < ?
	GROUP BY tag_id
	ORDER BY scans DESC, tag_id
	LIMIT ?`, tenantID, string(models.ActionTagScan), start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tags: %w", err)
	}
	defer rows.Close()

	var tags []models.TopTag
	for rows.Next() {
		var t models.TopTag
		if err := rows.Scan(&t.TagID, &t.Scans, &t.UniqueSessions, &t.LastScanAt); err != nil {
			return nil, fmt.Errorf("failed to scan top tag row: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top tag rows: %w", err)
	}
	return tags, nil
}
