// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package ingest normalizes raw action events into canonical analytics
// records and appends them to the event log. Attribution failures are
// absorbed (analytics must never block a user-facing action); storage
// failures are surfaced loudly.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/versepulse/versepulse/internal/attribution"
	"github.com/versepulse/versepulse/internal/database"
	"github.com/versepulse/versepulse/internal/eventbus"
	"github.com/versepulse/versepulse/internal/logging"
	"github.com/versepulse/versepulse/internal/metrics"
	"github.com/versepulse/versepulse/internal/models"
	"github.com/versepulse/versepulse/internal/session"
	"github.com/versepulse/versepulse/internal/validation"
)

var (
	// ErrMalformedEvent marks events rejected by normalization. In a
	// batch the entry is counted and skipped, never aborting siblings.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrStorageUnavailable marks append failures. Unlike the silent
	// drop for unattributable events, storage outages must fail loudly:
	// silent data loss here is unacceptable.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// RawEvent is an incoming action before normalization.
type RawEvent struct {
	Action       string `json:"action" validate:"required,action"`
	TenantHint   string `json:"tenant_hint,omitempty"`
	TagHint      string `json:"tag_hint,omitempty"`
	SessionToken string `json:"session_token" validate:"required"`
	SubjectID    string `json:"subject_id,omitempty"`
	IPAddress    string `json:"ip_address,omitempty" validate:"omitempty,ip"`
	UserAgent    string `json:"user_agent,omitempty"`

	// OccurredAt defaults to receipt time when zero.
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// BatchResult reports partial success of a batch ingest.
type BatchResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Pipeline is the event ingestion pipeline. The publisher is optional;
// when set, canonical events are fanned out to JetStream best-effort
// after the durable append.
type Pipeline struct {
	resolver  *attribution.Resolver
	sessions  *session.Manager
	db        *database.DB
	publisher *eventbus.Publisher
}

// NewPipeline creates an ingestion pipeline. Pass a nil publisher to
// disable event fan-out.
func NewPipeline(resolver *attribution.Resolver, sessions *session.Manager, db *database.DB, publisher *eventbus.Publisher) *Pipeline {
	return &Pipeline{
		resolver:  resolver,
		sessions:  sessions,
		db:        db,
		publisher: publisher,
	}
}

// Ingest normalizes and appends one event.
//
// The tenant is resolved through the fallback chain (request context,
// explicit tag, session binding, default tenant). An event that cannot
// be attributed even to the default tenant is silently dropped with a
// warning; the caller still sees success because user-facing actions
// must not fail on analytics bookkeeping. Append failures return
// ErrStorageUnavailable.
func (p *Pipeline) Ingest(ctx context.Context, raw *RawEvent) error {
	started := time.Now()

	if verr := validation.ValidateStruct(raw); verr != nil {
		metrics.EventsMalformed.Inc()
		return fmt.Errorf("%w: %s", ErrMalformedEvent, verr.Error())
	}

	occurredAt := raw.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	action := models.Action(raw.Action)

	// A scan rebinds the session before resolution so the event itself
	// is attributed to the freshly scanned tenant.
	if action == models.ActionTagScan && raw.TagHint != "" {
		if _, err := p.resolver.BindTag(ctx, raw.SessionToken, raw.TagHint); err != nil {
			if !errors.Is(err, attribution.ErrUnknownTag) {
				return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
			}
			logging.Ctx(ctx).Debug().Str("tag_id", raw.TagHint).
				Msg("Scan of unknown tag, visitor proceeds unattributed")
		}
	}

	res, err := p.resolver.ResolveTenant(ctx, raw.TenantHint, raw.TagHint, raw.SessionToken, occurredAt)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// No fallback left, not even a default tenant row. Dropping
			// beats writing a cross-tenant-leaking null tenant.
			logging.Ctx(ctx).Warn().Str("action", raw.Action).
				Str("session_id", raw.SessionToken).
				Msg("Dropping event with unresolvable tenant")
			metrics.EventsDropped.Inc()
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	event := models.NewAnalyticsEvent(res.TenantID, raw.SessionToken, action)
	event.TagID = res.TagID
	event.IPAddress = raw.IPAddress
	event.UserAgent = raw.UserAgent
	event.OccurredAt = occurredAt
	if raw.SubjectID != "" {
		subject := raw.SubjectID
		event.SubjectID = &subject
	}

	if err := p.db.AppendEvent(ctx, event); err != nil {
		metrics.EventsStorageFailed.Inc()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	metrics.RecordIngest(res.TenantID, raw.Action, string(res.Source), time.Since(started))

	// Activity keeps the attribution window sliding, and the session's
	// last-seen bump runs fire-and-forget off the request path.
	p.resolver.Extend(raw.SessionToken, occurredAt)
	p.sessions.Touch(raw.SessionToken)

	if p.publisher != nil {
		go func(e *models.AnalyticsEvent) {
			if err := p.publisher.PublishEvent(context.Background(), e); err != nil {
				logging.Warn().Err(err).Str("event_id", e.ID).
					Msg("Event fan-out failed")
			}
		}(event)
	}

	return nil
}

// IngestBatch processes entries independently: a malformed or failing
// entry is counted and skipped, never aborting the rest.
func (p *Pipeline) IngestBatch(ctx context.Context, raws []RawEvent) BatchResult {
	var result BatchResult
	metrics.IngestBatchSize.Observe(float64(len(raws)))
	for i := range raws {
		if err := p.Ingest(ctx, &raws[i]); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", i, err))
			continue
		}
		result.Processed++
	}
	return result
}
