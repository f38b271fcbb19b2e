// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/middleware"
	"github.com/versepulse/versepulse/internal/tenant"
)

// Router assembles the HTTP surface with chi.
type Router struct {
	handler *Handler
	stack   *middleware.Stack
	dir     *tenant.Directory
}

// NewRouter creates a router around the handler set.
func NewRouter(handler *Handler, cfg *config.Config, dir *tenant.Directory) *Router {
	stackCfg := middleware.DefaultStackConfig()
	stackCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	stackCfg.RateLimitDisabled = cfg.Security.RateLimitDisabled

	return &Router{
		handler: handler,
		stack:   middleware.NewStack(stackCfg),
		dir:     dir,
	}
}

// Setup wires all routes and the global middleware stack.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(middleware.RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.stack.CORS())
	r.Use(middleware.SecurityHeaders())

	// Prometheus scrape endpoint, outside the API rate limits.
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.stack.RateLimit(middleware.RateLimitHealth))
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Ingestion. Tenant resolution runs before the handler so the
	// request-context hint heads the attribution fallback chain.
	r.Route("/api/v1/events", func(r chi.Router) {
		r.Use(router.stack.RateLimit(middleware.RateLimitIngest))
		r.Use(middleware.PrometheusMetrics())
		r.Use(middleware.TenantResolver(router.dir))
		r.Post("/", router.handler.IngestEvent)
		r.Post("/batch", router.handler.IngestEventBatch)
	})

	r.Route("/api/v1/session", func(r chi.Router) {
		r.Use(router.stack.RateLimit(middleware.RateLimitIngest))
		r.Use(middleware.PrometheusMetrics())
		r.Get("/", router.handler.GetSession)
		r.Delete("/", router.handler.EndSession)
	})

	// Read side. Responses are cached and compressible; dashboards poll
	// these endpoints on an interval.
	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Use(router.stack.RateLimit(middleware.RateLimitAnalytics))
		r.Use(middleware.PrometheusMetrics())
		r.Use(middleware.TenantResolver(router.dir))
		r.Use(middleware.Compression())
		r.Get("/rollup", router.handler.AnalyticsRollup)
		r.Get("/funnel", router.handler.AnalyticsFunnel)
		r.Get("/geographic", router.handler.AnalyticsGeographic)
		r.Get("/top-tags", router.handler.AnalyticsTopTags)
		r.Get("/tag-activity", router.handler.AnalyticsTagActivity)
	})

	return r
}
