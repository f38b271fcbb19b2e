// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package models

import "time"

// RollupBucket is one time bucket of a per-tenant rollup series.
type RollupBucket struct {
	BucketStart time.Time `json:"bucket_start"`
	BucketEnd   time.Time `json:"bucket_end"`

	// TotalEvents is the raw event count, including duplicates from
	// at-least-once delivery.
	TotalEvents int `json:"total_events"`

	// ByAction breaks TotalEvents down per action type.
	ByAction map[string]int `json:"by_action"`

	// UniqueSessions and UniqueIPs are COUNT(DISTINCT ...) and are
	// duplicate-safe.
	UniqueSessions int `json:"unique_sessions"`
	UniqueIPs      int `json:"unique_ips"`
}

// RollupSeries is the response of a windowed rollup query.
type RollupSeries struct {
	TenantID    string         `json:"tenant_id"`
	Window      string         `json:"window"`
	Granularity string         `json:"granularity"`
	StartDate   time.Time      `json:"start_date"`
	EndDate     time.Time      `json:"end_date"`
	Buckets     []RollupBucket `json:"buckets"`
	TotalEvents int            `json:"total_events"`
}

// FunnelStage is one stage of an engagement funnel result. A session
// passes a stage when it has at least one event matching any of the
// stage's actions inside the query window; stages are evaluated
// independently, not as a strict temporal sequence.
type FunnelStage struct {
	Name     string   `json:"name"`
	Actions  []string `json:"actions"`
	Sessions int      `json:"sessions"`

	// Conversion is Sessions relative to the first stage (1.0 for the
	// first stage itself, 0 when the first stage is empty).
	Conversion float64 `json:"conversion"`
}

// FunnelResult is the response of an engagement funnel query.
type FunnelResult struct {
	TenantID  string        `json:"tenant_id"`
	Window    string        `json:"window"`
	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	Stages    []FunnelStage `json:"stages"`
}

// GeoBucket is a (country, city) aggregation bucket. Sessions without a
// stored geolocation are excluded; geographic aggregation is
// best-effort, not exhaustive.
type GeoBucket struct {
	Country        string  `json:"country"`
	City           *string `json:"city,omitempty"`
	Events         int     `json:"events"`
	UniqueSessions int     `json:"unique_sessions"`
}

// GeoBreakdown is the response of a geographic aggregation query.
type GeoBreakdown struct {
	TenantID  string      `json:"tenant_id"`
	Window    string      `json:"window"`
	StartDate time.Time   `json:"start_date"`
	EndDate   time.Time   `json:"end_date"`
	Buckets   []GeoBucket `json:"buckets"`
}

// TopTag is one row of the tag leaderboard.
type TopTag struct {
	TagID          string     `json:"tag_id"`
	Scans          int        `json:"scans"`
	UniqueSessions int        `json:"unique_sessions"`
	LastScanAt     *time.Time `json:"last_scan_at,omitempty"`
}

// CorrelatedActivity aggregates the community activity that followed a
// single tag scan within the trailing correlation window. The window
/// join is overlapping and non-deduplicating: a downstream event may be
// counted against more than one scan of the same tag when scans land
// within one window of each other. That double counting is documented
// behavior, not a defect.
type CorrelatedActivity struct {
	ScanEventID string    `json:"scan_event_id"`
	TagID       string    `json:"tag_id"`
	TenantID    string    `json:"tenant_id"`
	ScanAt      time.Time `json:"scan_at"`
	WindowEnd   time.Time `json:"window_end"`

	PrayerCount     int `json:"prayer_count"`
	PraiseCount     int `json:"praise_count"`
	InsightCount    int `json:"insight_count"`
	EngagementCount int `json:"engagement_count"`
	TotalDownstream int `json:"total_downstream"`
}

// TagActivityReport is the dashboard response for scan correlation over
/// a window: one CorrelatedActivity entry per scan.
type TagActivityReport struct {
	TenantID  string               `json:"tenant_id"`
	TagID     *string              `json:"tag_id,omitempty"`
	Window    string               `json:"window"`
	StartDate time.Time            `json:"start_date"`
	EndDate   time.Time            `json:"end_date"`
	Scans     []CorrelatedActivity `json:"scans"`
}
