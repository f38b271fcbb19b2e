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

const appendEventSQL = `INSERT INTO analytics_events
	(id, tenant_id, session_id, tag_id, action, subject_id, ip_address, user_agent, occurred_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING`

// AppendEvent writes one canonical event to the append-only log.
// Redelivery of the same event id is a no-op, keeping at-least-once
// producers idempotent at the row level.
func (db *DB) AppendEvent(ctx context.Context, e *models.AnalyticsEvent) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	stmt, err := db.preparedStmt(ctx, appendEventSQL)
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		e.ID, e.TenantID, e.SessionID, e.TagID, string(e.Action),
		e.SubjectID, e.IPAddress, e.UserAgent, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", e.ID, err)
	}
	return nil
}

// GetEvent returns one event by id.
func (db *DB) GetEvent(ctx context.Context, id string) (*models.AnalyticsEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT id, tenant_id, session_id, tag_id, action, subject_id, ip_address, user_agent, occurred_at
		 FROM analytics_events WHERE id = ?`, id)

	var e models.AnalyticsEvent
	var action string
	err := row.Scan(&e.ID, &e.TenantID, &e.SessionID, &e.TagID, &action,
		&e.SubjectID, &e.IPAddress, &e.UserAgent, &e.OccurredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}
	e.Action = models.Action(action)
	return &e, nil
}

// EventsBySession returns a session's events oldest first.
func (db *DB) EventsBySession(ctx context.Context, sessionID string) ([]models.AnalyticsEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, tenant_id, session_id, tag_id, action, subject_id, ip_address, user_agent, occurred_at
		 FROM analytics_events WHERE session_id = ? ORDER BY occurred_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	var events []models.AnalyticsEvent
	for rows.Next() {
		var e models.AnalyticsEvent
		var action string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SessionID, &e.TagID, &action,
			&e.SubjectID, &e.IPAddress, &e.UserAgent, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan session event row: %w", err)
		}
		e.Action = models.Action(action)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session event rows: %w", err)
	}
	return events, nil
}

// TagScans returns the tag-scan events for a tenant inside [start, end],
// optionally filtered to one tag, newest first.
func (db *DB) TagScans(ctx context.Context, tenantID string, tagID *string, start, end time.Time) ([]models.AnalyticsEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, tenant_id, session_id, tag_id, action, subject_id, ip_address, user_agent, occurred_at
		FROM analytics_events
		WHERE tenant_id = ? AND action = ? AND occurred_at >= ? AND occurred_at <= ?`
	args := []interface{}{tenantID, string(models.ActionTagScan), start, end}
	if tagID != nil {
		query += ` AND tag_id = ?`
		args = append(args, *tagID)
	}
	query += ` ORDER BY occurred_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag scans: %w", err)
	}
	defer rows.Close()

	var events []models.AnalyticsEvent
	for rows.Next() {
		var e models.AnalyticsEvent
		var action string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SessionID, &e.TagID, &action,
			&e.SubjectID, &e.IPAddress, &e.UserAgent, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag scan row: %w", err)
		}
		e.Action = models.Action(action)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tag scan rows: %w", err)
	}
	return events, nil
}
