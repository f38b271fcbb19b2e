// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CountStageSessions returns the distinct-session count for one funnel
// stage: sessions with at least one event matching any of the stage's
// actions inside [start, end). Stages are evaluated independently
// against the whole window, not as a strict temporal sequence.
func (db *DB) CountStageSessions(ctx context.Context, tenantID string, start, end time.Time, actions []string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if len(actions) == 0 {
		return 0, fmt.Errorf("funnel stage requires at least one action")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(actions)), ", ")
	query := fmt.Sprintf(`
	SELECT COUNT(DISTINCT session_id)
	FROM analytics_events
	WHERE tenant_id = ? AND occurred_at >= ? AND occurred_at < ?
	  AND action IN (%s)`, placeholders)

	args := make([]interface{}, 0, 3+len(actions))
	args = append(args, tenantID, start, end)
	for _, a := range actions {
		args = append(args, a)
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stage sessions: %w", err)
	}
	return count, nil
}
