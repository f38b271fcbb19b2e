// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/versepulse/versepulse/internal/analytics"
	"github.com/versepulse/versepulse/internal/cache"
	"github.com/versepulse/versepulse/internal/metrics"
	"github.com/versepulse/versepulse/internal/middleware"
)

// serveAnalytics runs one cached analytics query for the resolved
// tenant. Parameter errors are the caller's fault; storage degradation
// is handled inside the engine and still produces a 200.
func (h *Handler) serveAnalytics(w http.ResponseWriter, r *http.Request, report string, compute func(ctx context.Context, tenantID string) (interface{}, error)) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	start := time.Now()

	t := middleware.GetTenant(r.Context())
	if t == nil {
		var err error
		if t, err = h.dir.Default(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "TENANT_UNRESOLVED", "Tenant directory unavailable", err)
			return
		}
	}

	cacheKey := cache.GenerateKey(report, map[string]string{
		"tenant": t.ID,
		"query":  r.URL.RawQuery,
	})
	if cached, found := h.cache.Get(cacheKey); found {
		metrics.CacheHits.WithLabelValues("analytics").Inc()
		respondSuccess(w, cached, start, true)
		return
	}
	metrics.CacheMisses.WithLabelValues("analytics").Inc()

	data, err := compute(r.Context(), t.ID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error(), nil)
		return
	}

	h.cache.Set(cacheKey, data)
	respondSuccess(w, data, start, false)
}

// AnalyticsRollup returns the per-bucket event series
//
// @Summary Windowed rollup series
// @Description Returns per-bucket event counts, distinct sessions, and scan counts for the resolved tenant
// @Tags Analytics
// @Accept json
// @Produce json
// @Param window query string false "Aggregation window: 24h, 7d, 30d, 90d" default(7d)
// @Param granularity query string false "Bucket granularity: hour or day" default(day)
// @Success 200 {object} models.APIResponse{data=models.RollupSeries} "Rollup series"
// @Failure 400 {object} models.APIResponse "Invalid window or granularity"
// @Router /analytics/rollup [get]
func (h *Handler) AnalyticsRollup(w http.ResponseWriter, r *http.Request) {
	window := getStringParam(r, "window", "7d")
	granularity := getStringParam(r, "granularity", "day")

	h.serveAnalytics(w, r, "AnalyticsRollup", func(ctx context.Context, tenantID string) (interface{}, error) {
		return h.engine.Rollup(ctx, tenantID, window, granularity)
	})
}

// AnalyticsFunnel returns per-stage conversion counts
//
// @Summary Engagement funnel
// @Description Returns distinct-session counts and conversion rates per funnel stage. Stages are preset names or pipe-separated action lists.
// @Tags Analytics
// @Accept json
// @Produce json
// @Param window query string false "Aggregation window: 24h, 7d, 30d, 90d" default(7d)
// @Param stages query string false "Comma-separated stages" default(scanned,viewed,engaged)
// @Success 200 {object} models.APIResponse{data=models.FunnelResult} "Funnel result"
// @Failure 400 {object} models.APIResponse "Invalid window or stage"
// @Router /analytics/funnel [get]
func (h *Handler) AnalyticsFunnel(w http.ResponseWriter, r *http.Request) {
	window := getStringParam(r, "window", "7d")
	stageSpec := getStringParam(r, "stages", "scanned,viewed,engaged")

	h.serveAnalytics(w, r, "AnalyticsFunnel", func(ctx context.Context, tenantID string) (interface{}, error) {
		stages, err := analytics.ParseStages(stageSpec)
		if err != nil {
			return nil, err
		}
		return h.engine.Funnel(ctx, tenantID, window, stages)
	})
}

// AnalyticsGeographic returns the location breakdown
//
// @Summary Geographic breakdown
// @Description Returns event and session counts bucketed by country and city. Events without a resolved location are excluded.
// @Tags Analytics
// @Accept json
// @Produce json
// @Param window query string false "Aggregation window: 24h, 7d, 30d, 90d" default(7d)
// @Success 200 {object} models.APIResponse{data=models.GeoBreakdown} "Geographic breakdown"
// @Failure 400 {object} models.APIResponse "Invalid window"
// @Router /analytics/geographic [get]
func (h *Handler) AnalyticsGeographic(w http.ResponseWriter, r *http.Request) {
	window := getStringParam(r, "window", "7d")

	h.serveAnalytics(w, r, "AnalyticsGeographic", func(ctx context.Context, tenantID string) (interface{}, error) {
		return h.engine.Geographic(ctx, tenantID, window)
	})
}

// AnalyticsTopTags returns the tag leaderboard
//
// @Summary Top tags by scan volume
// @Description Returns the most scanned tags for the resolved tenant within the window
// @Tags Analytics
// @Accept json
// @Produce json
// @Param window query string false "Aggregation window: 24h, 7d, 30d, 90d" default(7d)
// @Param limit query int false "Maximum tags to return" default(20)
// @Success 200 {object} models.APIResponse "Tag leaderboard"
// @Failure 400 {object} models.APIResponse "Invalid window"
// @Router /analytics/top-tags [get]
func (h *Handler) AnalyticsTopTags(w http.ResponseWriter, r *http.Request) {
	window := getStringParam(r, "window", "7d")
	limit := getIntParam(r, "limit", h.config.API.DefaultPageSize)
	if limit < 1 {
		limit = h.config.API.DefaultPageSize
	}
	if limit > h.config.API.MaxPageSize {
		limit = h.config.API.MaxPageSize
	}

	h.serveAnalytics(w, r, "AnalyticsTopTags", func(ctx context.Context, tenantID string) (interface{}, error) {
		return h.engine.TopTags(ctx, tenantID, window, limit)
	})
}

// AnalyticsTagActivity returns the scan correlation report
//
// @Summary Tag activity correlation
// @Description Correlates each tag scan with community and engagement activity inside its trailing correlation window. Scans of the same tag close together deliberately claim overlapping events.
// @Tags Analytics
// @Accept json
// @Produce json
// @Param window query string false "Aggregation window: 24h, 7d, 30d, 90d" default(7d)
// @Param tagId query string false "Restrict the report to one tag"
// @Success 200 {object} models.APIResponse{data=models.TagActivityReport} "Tag activity report"
// @Failure 400 {object} models.APIResponse "Invalid window"
// @Router /analytics/tag-activity [get]
func (h *Handler) AnalyticsTagActivity(w http.ResponseWriter, r *http.Request) {
	window := getStringParam(r, "window", "7d")

	var tagID *string
	if tag := r.URL.Query().Get("tagId"); tag != "" {
		tagID = &tag
	}

	h.serveAnalytics(w, r, "AnalyticsTagActivity", func(ctx context.Context, tenantID string) (interface{}, error) {
		return h.engine.TagActivity(ctx, tenantID, tagID, window)
	})
}
