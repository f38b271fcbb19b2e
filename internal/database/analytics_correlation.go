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

const correlateScanSQL = `
	SELECT
		COUNT(*) FILTER (WHERE action = 'prayer_submit')  AS prayers,
		COUNT(*) FILTER (WHERE action = 'praise_submit')  AS praises,
		COUNT(*) FILTER (WHERE action = 'insight_submit') AS insights,
		COUNT(*) FILTER (WHERE action IN ('heart', 'favorite', 'share', 'download')) AS engagement,
		COUNT(*) AS downstream
	FROM analytics_events
	WHERE tenant_id = ? AND tag_id = ? AND id <> ?
	  AND occurred_at >= ? AND occurred_at <= ?`

// CorrelateScan counts the downstream activity on a scan's tag inside
// the trailing correlation window [ScanAt, ScanAt+window]. Both
// boundaries are inclusive; the scan event itself is excluded by id.
// Windows of nearby scans overlap, so the same downstream event can be
// counted against more than one scan.
func (db *DB) CorrelateScan(ctx context.Context, scan *models.AnalyticsEvent, window time.Duration) (*models.CorrelatedActivity, error) {
	if scan.TagID == nil {
		return nil, fmt.Errorf("scan event %s has no tag", scan.ID)
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	act := &models.CorrelatedActivity{
		ScanEventID: scan.ID,
		TagID:       *scan.TagID,
		TenantID:    scan.TenantID,
		ScanAt:      scan.OccurredAt,
		WindowEnd:   scan.OccurredAt.Add(window),
	}

	row := db.conn.QueryRowContext(ctx, correlateScanSQL,
		scan.TenantID, *scan.TagID, scan.ID, scan.OccurredAt, act.WindowEnd)
	if err := row.Scan(&act.PrayerCount, &act.PraiseCount, &act.InsightCount,
		&act.EngagementCount, &act.TotalDownstream); err != nil {
		return nil, fmt.Errorf("failed to correlate scan %s: %w", scan.ID, err)
	}
	return act, nil
}
