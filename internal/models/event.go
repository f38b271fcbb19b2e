// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package models

import (
	"time"

	"github.com/google/uuid"
)

// Action is the closed enumeration of interaction kinds a visitor can
// generate. Events with an action outside this set are rejected as
// malformed during ingestion.
type Action string

// Action constants. community actions (prayer, praise, insight) are the
// ones the correlator counts as downstream activity of a tag scan.
const (
	ActionView           Action = "view"
	ActionHeart          Action = "heart"
	ActionFavorite       Action = "favorite"
	ActionShare          Action = "share"
	ActionDownload       Action = "download"
	ActionPrayerSubmit   Action = "prayer_submit"
	ActionPraiseSubmit   Action = "praise_submit"
	ActionInsightSubmit  Action = "insight_submit"
	ActionTagScan        Action = "tag_scan"
	ActionBackgroundSync Action = "background_sync"
)

// knownActions is the membership set backing Valid.
var knownActions = map[Action]struct{}{
	ActionView:           {},
	ActionHeart:          {},
	ActionFavorite:       {},
	ActionShare:          {},
	ActionDownload:       {},
	ActionPrayerSubmit:   {},
	ActionPraiseSubmit:   {},
	ActionInsightSubmit:  {},
	ActionTagScan:        {},
	ActionBackgroundSync: {},
}

// Valid reports whether the action is in the closed enumeration.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// System reports whether the action is a system/background action.
// System events are the only events allowed to bypass the tenant
// isolation invariant.
func (a Action) System() bool {
	return a == ActionBackgroundSync
}

// Community reports whether the action is community content
// (prayer, praise, insight submissions).
func (a Action) Community() bool {
	switch a {
	case ActionPrayerSubmit, ActionPraiseSubmit, ActionInsightSubmit:
		return true
	default:
		return false
	}
}

// Engagement reports whether the action is a lightweight engagement
// interaction rather than a page view or system event.
func (a Action) Engagement() bool {
	switch a {
	case ActionHeart, ActionFavorite, ActionShare, ActionDownload:
		return true
	default:
		return false
	}
}

// Actions returns the closed enumeration as strings, for validation
// messages and API documentation.
func Actions() []string {
	out := make([]string, 0, len(knownActions))
	for a := range knownActions {
		out = append(out, string(a))
	}
	return out
}

// AnalyticsEvent is the canonical, immutable, append-only analytics
// record. Every visitor interaction is normalized into this shape
// before it is written.
//
// Invariant: every event that is not a system event carries a TenantID.
// Events that cannot be attributed to any tenant are dropped before
// this struct is ever constructed, so aggregates never leak across
// tenants.
type AnalyticsEvent struct {
	ID        string  `json:"id"`
	TenantID  string  `json:"tenant_id"`
	SessionID string  `json:"session_id"`
	TagID     *string `json:"tag_id,omitempty"`
	Action    Action  `json:"action"`

	// SubjectID identifies what was acted on (a verse, a prayer, ...).
	SubjectID *string `json:"subject_id,omitempty"`

	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAnalyticsEvent creates an event with a fresh ID and UTC timestamp.
func NewAnalyticsEvent(tenantID, sessionID string, action Action) *AnalyticsEvent {
	return &AnalyticsEvent{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		SessionID:  sessionID,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	}
}

// Topic returns the NATS subject for this event.
// Format: events.<tenant_id>.<action>
func (e *AnalyticsEvent) Topic() string {
	return "events." + e.TenantID + "." + string(e.Action)
}
