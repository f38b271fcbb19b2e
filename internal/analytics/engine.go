// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package analytics serves the windowed aggregation and correlation
// queries behind the dashboard API. Reads are best-effort: storage
// failures degrade to empty results with a logged warning instead of
// propagating to dashboard consumers.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/database"
	"github.com/versepulse/versepulse/internal/logging"
	"github.com/versepulse/versepulse/internal/metrics"
	"github.com/versepulse/versepulse/internal/models"
)

// windows maps the supported aggregation windows to their spans.
var windows = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// ParseWindow resolves a window name to its duration.
func ParseWindow(window string) (time.Duration, error) {
	d, ok := windows[window]
	if !ok {
		return 0, fmt.Errorf("invalid window %q: must be one of 24h, 7d, 30d, 90d", window)
	}
	return d, nil
}

// StageSpec names one funnel stage and the actions that satisfy it.
type StageSpec struct {
	Name    string
	Actions []string
}

// stagePresets are the stage names dashboards use most.
var stagePresets = map[string][]string{
	"scanned":   {string(models.ActionTagScan)},
	"viewed":    {string(models.ActionView)},
	"engaged":   {"heart", "favorite", "share", "download"},
	"community": {"prayer_submit", "praise_submit", "insight_submit"},
}

// ParseStages parses a comma-separated stage list. Each element is
// either a preset name (scanned, viewed, engaged, community) or a
// pipe-separated action list such as "heart|share".
func ParseStages(spec string) ([]StageSpec, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("at least one funnel stage is required")
	}

	var stages []StageSpec
	for _, raw := range strings.Split(spec, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, fmt.Errorf("empty funnel stage in %q", spec)
		}

		if actions, ok := stagePresets[name]; ok {
			stages = append(stages, StageSpec{Name: name, Actions: actions})
			continue
		}

		var actions []string
		for _, a := range strings.Split(name, "|") {
			a = strings.TrimSpace(a)
			if !models.Action(a).Valid() {
				return nil, fmt.Errorf("unknown action %q in funnel stage", a)
			}
			actions = append(actions, a)
		}
		stages = append(stages, StageSpec{Name: name, Actions: actions})
	}
	return stages, nil
}

// Engine computes rollups, funnels, geographic breakdowns, and scan
// correlations over the append-only event log.
type Engine struct {
	db  *database.DB
	cfg *config.AttributionConfig

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates an analytics engine.
func NewEngine(db *database.DB, cfg *config.AttributionConfig) *Engine {
	return &Engine{
		db:  db,
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// window resolves the query range [start, end) for a window name.
func (e *Engine) window(name string) (time.Time, time.Time, error) {
	span, err := ParseWindow(name)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := e.now()
	return end.Add(-span), end, nil
}

// Rollup computes the per-bucket series for a tenant. Invalid
// parameters are errors; storage failures degrade to an empty series.
func (e *Engine) Rollup(ctx context.Context, tenantID, window, granularity string) (*models.RollupSeries, error) {
	start, end, err := e.window(window)
	if err != nil {
		return nil, err
	}
	if granularity != "hour" && granularity != "day" {
		return nil, fmt.Errorf("invalid granularity %q: must be hour or day", granularity)
	}

	series, err := e.db.GetRollupSeries(ctx, tenantID, start, end, granularity)
	degraded := err != nil
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("tenant_id", tenantID).
			Msg("Rollup query failed, serving empty series")
		series = &models.RollupSeries{
			TenantID:    tenantID,
			Granularity: granularity,
			StartDate:   start,
			EndDate:     end,
		}
	}
	series.Window = window
	metrics.RecordAnalyticsQuery("rollup", window, degraded)
	return series, nil
}

// Funnel computes distinct-session counts per stage. Stages are
// evaluated independently over the whole window; conversion is relative
// to the first stage.
func (e *Engine) Funnel(ctx context.Context, tenantID, window string, stages []StageSpec) (*models.FunnelResult, error) {
	start, end, err := e.window(window)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one funnel stage is required")
	}

	result := &models.FunnelResult{
		TenantID:  tenantID,
		Window:    window,
		StartDate: start,
		EndDate:   end,
	}

	var first int
	degraded := false
	for i, stage := range stages {
		count, err := e.db.CountStageSessions(ctx, tenantID, start, end, stage.Actions)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("tenant_id", tenantID).
				Str("stage", stage.Name).Msg("Funnel stage query failed, serving zero")
			count = 0
			degraded = true
		}
		if i == 0 {
			first = count
		}

		conversion := 0.0
		if first > 0 {
			conversion = float64(count) / float64(first)
		}
		result.Stages = append(result.Stages, models.FunnelStage{
			Name:       stage.Name,
			Actions:    stage.Actions,
			Sessions:   count,
			Conversion: conversion,
		})
	}
	metrics.RecordAnalyticsQuery("funnel", window, degraded)
	return result, nil
}

// Geographic buckets a tenant's events by (country, city).
func (e *Engine) Geographic(ctx context.Context, tenantID, window string) (*models.GeoBreakdown, error) {
	start, end, err := e.window(window)
	if err != nil {
		return nil, err
	}

	buckets, err := e.db.GetGeoBreakdown(ctx, tenantID, start, end)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("tenant_id", tenantID).
			Msg("Geographic query failed, serving empty breakdown")
		buckets = nil
	}
	metrics.RecordAnalyticsQuery("geographic", window, err != nil)

	return &models.GeoBreakdown{
		TenantID:  tenantID,
		Window:    window,
		StartDate: start,
		EndDate:   end,
		Buckets:   buckets,
	}, nil
}

// TopTags returns the tag leaderboard for a tenant.
func (e *Engine) TopTags(ctx context.Context, tenantID, window string, limit int) ([]models.TopTag, error) {
	start, end, err := e.window(window)
	if err != nil {
		return nil, err
	}

	tags, err := e.db.GetTopTags(ctx, tenantID, start, end, limit)
	metrics.RecordAnalyticsQuery("top_tags", window, err != nil)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("tenant_id", tenantID).
			Msg("Top tags query failed, serving empty leaderboard")
		return nil, nil
	}
	return tags, nil
}

// TagActivity correlates each tag scan in the window with the
// community and engagement activity inside its trailing correlation
// window. The join overlaps deliberately: scans of the same tag within
// one window of each other both claim shared downstream events.
func (e *Engine) TagActivity(ctx context.Context, tenantID string, tagID *string, window string) (*models.TagActivityReport, error) {
	start, end, err := e.window(window)
	if err != nil {
		return nil, err
	}

	report := &models.TagActivityReport{
		TenantID:  tenantID,
		TagID:     tagID,
		Window:    window,
		StartDate: start,
		EndDate:   end,
	}

	scans, err := e.db.TagScans(ctx, tenantID, tagID, start, end)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("tenant_id", tenantID).
			Msg("Tag scan query failed, serving empty report")
		metrics.RecordAnalyticsQuery("tag_activity", window, true)
		return report, nil
	}

	for i := range scans {
		act, err := e.db.CorrelateScan(ctx, &scans[i], e.cfg.CorrelationWindow)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("scan_event_id", scans[i].ID).
				Msg("Scan correlation failed, skipping scan")
			continue
		}
		report.Scans = append(report.Scans, *act)
	}
	metrics.RecordAnalyticsQuery("tag_activity", window, false)
	return report, nil
}
