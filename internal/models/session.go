// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package models

import "time"

// Session is an anonymous visitor identity tracked via an opaque token.
// Sessions are created on first unseen request, mutated on every
// subsequent request (last-seen bump, interaction counter), and never
// hard-deleted; cleanup soft-expires them by a trailing-activity cutoff.
type Session struct {
	// ID is the opaque session token handed to the client.
	ID string `json:"id"`

	// TenantID is nil until the session has been attributed to a tenant
	// (via tag scan or host resolution).
	TenantID *string `json:"tenant_id,omitempty"`

	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`

	// Interactions is the cumulative count of actions seen on this session.
	Interactions int64 `json:"interactions"`

	// OriginatingTagID records the first tag this session ever scanned.
	// It is informational and never replaced; the live binding lives in
	// Attribution.
	OriginatingTagID *string `json:"originating_tag_id,omitempty"`

	// Geolocation is filled best-effort by the background enricher.
	Geolocation *Geolocation `json:"geolocation,omitempty"`

	// Ended marks sessions that received an explicit end signal.
	// Advisory only: anonymous sessions have no reliable close signal.
	Ended bool `json:"ended,omitempty"`

	// EndReason records why the session was marked ended ("tab_closed",
	// "cleanup", ...). Empty while the session is live.
	EndReason string `json:"end_reason,omitempty"`
}

// Geolocation represents geographic data for an IP address.
type Geolocation struct {
	IPAddress   string    `json:"ip_address"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	City        *string   `json:"city,omitempty"`
	Region      *string   `json:"region,omitempty"`
	Country     string    `json:"country"`
	LastUpdated time.Time `json:"last_updated"`
}

// Attribution is the binding of a session to the tag/tenant it most
// recently scanned. A session carries at most one attribution at a time;
// a new scan replaces the prior binding (last-scan-wins). The binding
// has a sliding TTL refreshed by session activity; past the TTL the
// session is treated as unattributed for new events even though the
// session row persists.
type Attribution struct {
	SessionID string    `json:"session_id"`
	TagID     string    `json:"tag_id"`
	TenantID  string    `json:"tenant_id"`
	BoundAt   time.Time `json:"bound_at"`

	// RefreshedAt is the last activity that extended the sliding TTL.
	// The TTL is evaluated against this, not BoundAt.
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Expired reports whether the attribution's sliding TTL has lapsed at
// the given instant. The boundary is exclusive: an attribution refreshed
// exactly ttl ago is still live.
func (a *Attribution) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.RefreshedAt) > ttl
}
