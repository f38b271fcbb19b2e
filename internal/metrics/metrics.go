// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package metrics exposes Prometheus collectors for ingestion,
// sessions, attribution, storage, and the outbound geoip and NATS
// paths. Collectors are registered at import via promauto and served
// on /metrics by the API router.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_ingested_total",
			Help: "Total number of events accepted into the analytics log",
		},
		[]string{"tenant", "action", "source"}, // source: context, tag, attribution, default
	)

	EventsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_malformed_total",
			Help: "Total number of events rejected during validation",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total number of events dropped because no tenant could be resolved",
		},
	)

	EventsStorageFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_storage_failed_total",
			Help: "Total number of events lost to storage failures",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "Duration of single-event ingestion in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_size",
			Help:    "Number of events per ingestion batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// Session Metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total number of anonymous sessions minted",
		},
	)

	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_swept_total",
			Help: "Total number of idle sessions removed by the sweeper",
		},
	)

	SessionTouchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_touch_failures_total",
			Help: "Total number of failed background session touches",
		},
	)

	// Attribution Metrics
	AttributionsBound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attributions_bound_total",
			Help: "Total number of tag bindings created by scans",
		},
	)

	AttributionsReplaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attributions_replaced_total",
			Help: "Total number of bindings replaced by a newer scan",
		},
	)

	AttributionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attributions_expired_total",
			Help: "Total number of bindings dropped after their TTL lapsed",
		},
	)

	AttributionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "attributions_active",
			Help: "Current number of live session-to-tag bindings",
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation"},
	)

	// Analytics Read Metrics
	AnalyticsQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_queries_total",
			Help: "Total number of analytics report queries",
		},
		[]string{"report", "window"}, // report: rollup, funnel, geographic, top_tags, tag_activity
	)

	AnalyticsDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_degraded_total",
			Help: "Total number of analytics reads served empty after a storage failure",
		},
		[]string{"report"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // tenant, analytics
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Geolocation Metrics
	GeoLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geoip_lookup_duration_seconds",
			Help:    "Duration of external geolocation lookups in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	GeoLookupErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoip_lookup_errors_total",
			Help: "Total number of failed geolocation lookups",
		},
		[]string{"provider"},
	)

	GeoCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geoip_cache_hits_total",
			Help: "Total number of geolocation lookups served from the database",
		},
	)

	// NATS Fan-out Metrics
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of events published to JetStream",
		},
	)

	NATSPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Total number of failed JetStream publishes",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordIngest records an accepted event.
func RecordIngest(tenant, action, source string, duration time.Duration) {
	EventsIngested.WithLabelValues(tenant, action, source).Inc()
	IngestDuration.Observe(duration.Seconds())
}

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAnalyticsQuery records an analytics report read. degraded marks
// reads served empty after a storage failure.
func RecordAnalyticsQuery(report, window string, degraded bool) {
	AnalyticsQueries.WithLabelValues(report, window).Inc()
	if degraded {
		AnalyticsDegraded.WithLabelValues(report).Inc()
	}
}

// RecordGeoLookup records an external geolocation lookup.
func RecordGeoLookup(provider string, duration time.Duration, err error) {
	GeoLookupDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if err != nil {
		GeoLookupErrors.WithLabelValues(provider).Inc()
	}
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
