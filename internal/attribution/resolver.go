// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package attribution binds anonymous sessions to the tag and tenant
// they most recently scanned, and resolves the tenant for incoming
// events through an ordered fallback chain.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/logging"
	"github.com/versepulse/versepulse/internal/metrics"
	"github.com/versepulse/versepulse/internal/models"
	"github.com/versepulse/versepulse/internal/session"
	"github.com/versepulse/versepulse/internal/tenant"
)

// ErrUnknownTag is returned when a scanned tag has no owning tenant.
// The visitor proceeds unattributed; callers treat this as recoverable.
var ErrUnknownTag = errors.New("unknown tag")

// Source identifies which step of the fallback chain resolved a tenant.
type Source string

const (
	SourceContext     Source = "context"
	SourceTag         Source = "tag"
	SourceAttribution Source = "attribution"
	SourceDefault     Source = "default"
)

// Resolution is the outcome of the tenant fallback chain for one event.
type Resolution struct {
	TenantID string

	// TagID is the tag the event is attributed to, nil when the tenant
	// came from request context or the default fallback.
	TagID *string

	Source Source
}

// Resolver owns the session-to-tag bindings. A session holds at most
// one binding; a new scan replaces the previous one (last-acknowledged
// bind wins). Bindings carry a sliding TTL evaluated lazily on read, so
// no background timer is required for correctness; Sweep exists only
// for storage hygiene.
type Resolver struct {
	dir      *tenant.Directory
	sessions *session.Manager
	cfg      *config.AttributionConfig

	// One mutex over the binding map keeps per-session last-write-wins
	// linearizable without per-key lock bookkeeping.
	mu       sync.RWMutex
	bindings map[string]*models.Attribution
}

// NewResolver creates an attribution resolver over the given tenant
// directory and session manager.
func NewResolver(dir *tenant.Directory, sessions *session.Manager, cfg *config.AttributionConfig) *Resolver {
	return &Resolver{
		dir:      dir,
		sessions: sessions,
		cfg:      cfg,
		bindings: make(map[string]*models.Attribution),
	}
}

// BindTag attributes a session to the tag's owning tenant, replacing
// any existing binding. Unknown tags return ErrUnknownTag and leave the
// current binding untouched.
func (r *Resolver) BindTag(ctx context.Context, sessionID, tagID string) (*models.Attribution, error) {
	owner, err := r.dir.ByTag(ctx, tagID)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil, ErrUnknownTag
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tag owner: %w", err)
	}

	now := time.Now().UTC()
	binding := &models.Attribution{
		SessionID:   sessionID,
		TagID:       tagID,
		TenantID:    owner.ID,
		BoundAt:     now,
		RefreshedAt: now,
	}

	// Copy before the pointer escapes into the map; a concurrent
	// Extend may mutate it the moment the lock drops.
	cp := *binding

	r.mu.Lock()
	_, replaced := r.bindings[sessionID]
	r.bindings[sessionID] = binding
	metrics.AttributionsActive.Set(float64(len(r.bindings)))
	r.mu.Unlock()

	metrics.AttributionsBound.Inc()
	if replaced {
		metrics.AttributionsReplaced.Inc()
	}

	// Stamp the session row; the first scan also fixes the originating
	// tag. Best-effort: the binding stands even if the stamp fails.
	if err := r.sessions.SetTenant(ctx, sessionID, owner.ID, tagID); err != nil && !errors.Is(err, session.ErrNotFound) {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).
			Msg("Failed to stamp session with scanned tenant")
	}

	return &cp, nil
}

// Extend slides the binding's TTL forward to the given activity
// instant. A missing or already expired binding is a no-op; expiry is
// decided at read time, not here.
func (r *Resolver) Extend(sessionID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[sessionID]
	if !ok || b.Expired(at, r.cfg.TTL) {
		return
	}
	if at.After(b.RefreshedAt) {
		b.RefreshedAt = at
	}
}

// Current returns the session's live binding, or nil. The sliding TTL
// is evaluated lazily here; a lapsed binding is dropped on read.
func (r *Resolver) Current(sessionID string, now time.Time) *models.Attribution {
	// Expiry check and copy both happen under the lock; Extend mutates
	// RefreshedAt in place on every ingest.
	r.mu.RLock()
	b, ok := r.bindings[sessionID]
	var cp models.Attribution
	expired := false
	if ok {
		expired = b.Expired(now, r.cfg.TTL)
		if !expired {
			cp = *b
		}
	}
	r.mu.RUnlock()

	if !ok {
		return nil
	}

	if expired {
		r.mu.Lock()
		// Recheck under the write lock; a concurrent rebind wins.
		if cur, ok := r.bindings[sessionID]; ok && cur.Expired(now, r.cfg.TTL) {
			delete(r.bindings, sessionID)
			metrics.AttributionsExpired.Inc()
			metrics.AttributionsActive.Set(float64(len(r.bindings)))
		}
		r.mu.Unlock()
		return nil
	}

	return &cp
}

// ResolveTenant walks the event attribution chain in order: tenant
// already on the request context, explicit tag in the payload, the
// session's live binding, then the default tenant. Unattributable
// events still land on the default tenant so analytics continuity is
// preserved. Only storage failures propagate.
func (r *Resolver) ResolveTenant(ctx context.Context, ctxTenantID, eventTagID, sessionID string, now time.Time) (*Resolution, error) {
	if ctxTenantID != "" {
		return &Resolution{TenantID: ctxTenantID, Source: SourceContext}, nil
	}

	if eventTagID != "" {
		owner, err := r.dir.ByTag(ctx, eventTagID)
		if err == nil {
			tag := eventTagID
			return &Resolution{TenantID: owner.ID, TagID: &tag, Source: SourceTag}, nil
		}
		if !errors.Is(err, tenant.ErrNotFound) {
			return nil, err
		}
	}

	if sessionID != "" {
		if b := r.Current(sessionID, now); b != nil {
			tag := b.TagID
			return &Resolution{TenantID: b.TenantID, TagID: &tag, Source: SourceAttribution}, nil
		}
	}

	def, err := r.dir.Default(ctx)
	if err != nil {
		return nil, err
	}
	return &Resolution{TenantID: def.ID, Source: SourceDefault}, nil
}

// Sweep drops expired bindings from the map. Storage hygiene only;
// correctness never depends on it running.
func (r *Resolver) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, b := range r.bindings {
		if b.Expired(now, r.cfg.TTL) {
			delete(r.bindings, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.AttributionsExpired.Add(float64(removed))
	}
	metrics.AttributionsActive.Set(float64(len(r.bindings)))
	return removed
}

// Len returns the number of live bindings. Used by tests and metrics.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
