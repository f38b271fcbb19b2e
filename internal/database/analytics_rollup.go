// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/versepulse/versepulse/internal/models"
)

// GetRollupSeries computes the per-bucket rollup for one tenant over
// [start, end): raw event counts by action, distinct sessions, distinct
// IPs. Missing buckets are filled with zeros so a day series always sums
// to its hour series over the same range.
func (db *DB) GetRollupSeries(ctx context.Context, tenantID string, start, end time.Time, granularity string) (*models.RollupSeries, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	bucketSQL, step, err := bucketExpr(granularity)
	if err != nil {
		return nil, err
	}

	byAction, err := db.queryActionCounts(ctx, tenantID, start, end, bucketSQL)
	if err != nil {
		return nil, err
	}
	distinct, err := db.queryDistinctCounts(ctx, tenantID, start, end, bucketSQL)
	if err != nil {
		return nil, err
	}

	buckets, total := assembleRollupBuckets(start, end, step, byAction, distinct)

	return &models.RollupSeries{
		TenantID:    tenantID,
		Granularity: granularity,
		StartDate:   start,
		EndDate:     end,
		Buckets:     buckets,
		TotalEvents: total,
	}, nil
}

// bucketExpr validates the granularity and returns the DuckDB
// DATE_TRUNC expression plus the bucket step.
func bucketExpr(granularity string) (string, time.Duration, error) {
	switch granularity {
	case "hour":
		return "DATE_TRUNC('hour', occurred_at)", time.Hour, nil
	case "day":
		return "DATE_TRUNC('day', occurred_at)", 24 * time.Hour, nil
	default:
		return "", 0, fmt.Errorf("invalid granularity: must be hour or day")
	}
}

type actionCount struct {
	action string
	count  int
}

// queryActionCounts returns per-bucket raw event counts broken down by
// action type.
func (db *DB) queryActionCounts(ctx context.Context, tenantID string, start, end time.Time, bucketSQL string) (map[time.Time][]actionCount, error) {
	query := fmt.Sprintf(`
	SELECT %s AS bucket, action, COUNT(*) AS events
	FROM analytics_events
	WHERE tenant_id = ? AND occurred_at >= ? AND occurred_at < ?
	GROUP BY bucket, action`, bucketSQL)

	rows, err := db.conn.QueryContext(ctx, query, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query action counts: %w", err)
	}
	defer rows.Close()

	out := make(map[time.Time][]actionCount)
	for rows.Next() {
		var bucket time.Time
		var ac actionCount
		if err := rows.Scan(&bucket, &ac.action, &ac.count); err != nil {
			return nil, fmt.Errorf("failed to scan action count row: %w", err)
		}
		out[bucket.UTC()] = append(out[bucket.UTC()], ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action count rows: %w", err)
	}
	return out, nil
}

type distinctCounts struct {
	sessions int
	ips      int
}

// queryDistinctCounts returns per-bucket distinct session and IP counts.
// COUNT(DISTINCT ...) stays correct under duplicate event delivery.
func (db *DB) queryDistinctCounts(ctx context.Context, tenantID string, start, end time.Time, bucketSQL string) (map[time.Time]distinctCounts, error) {
	query := fmt.Sprintf(`
	SELECT %s AS bucket,
		COUNT(DISTINCT session_id) AS sessions,
		COUNT(DISTINCT ip_address) AS ips
	FROM analytics_events
	WHERE tenant_id = ? AND occurred_at >= ? AND occurred_at < ?
	GROUP BY bucket`, bucketSQL)

	rows, err := db.conn.QueryContext(ctx, query, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct counts: %w", err)
	}
	defer rows.Close()

	out := make(map[time.Time]distinctCounts)
	for rows.Next() {
		var bucket time.Time
		var dc distinctCounts
		if err := rows.Scan(&bucket, &dc.sessions, &dc.ips); err != nil {
			return nil, fmt.Errorf("failed to scan distinct count row: %w", err)
		}
		out[bucket.UTC()] = dc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating distinct count rows: %w", err)
	}
	return out, nil
}

// assembleRollupBuckets merges the two query results into a dense,
// chronologically sorted bucket series over [start, end).
func assembleRollupBuckets(start, end time.Time, step time.Duration, byAction map[time.Time][]actionCount, distinct map[time.Time]distinctCounts) ([]models.RollupBucket, int) {
	// Collect all observed buckets, then fill the full range so sparse
	// data still yields a continuous series.
	seen := make(map[time.Time]struct{}, len(byAction))
	for b := range byAction {
		seen[b] = struct{}{}
	}
	for b := start.UTC().Truncate(step); b.Before(end); b = b.Add(step) {
		seen[b] = struct{}{}
	}

	times := make([]time.Time, 0, len(seen))
	for b := range seen {
		times = append(times, b)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	var buckets []models.RollupBucket
	total := 0
	for _, b := range times {
		bucket := models.RollupBucket{
			BucketStart: b,
			BucketEnd:   b.Add(step),
			ByAction:    make(map[string]int),
		}
		for _, ac := range byAction[b] {
			bucket.ByAction[ac.action] = ac.count
			bucket.TotalEvents += ac.count
		}
		if dc, ok := distinct[b]; ok {
			bucket.UniqueSessions = dc.sessions
			bucket.UniqueIPs = dc.ips
		}
		total += bucket.TotalEvents
		buckets = append(buckets, bucket)
	}
	return buckets, total
}
