// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/database"
	"github.com/versepulse/versepulse/internal/logging"
	"github.com/versepulse/versepulse/internal/metrics"
	"github.com/versepulse/versepulse/internal/models"
)

// touchTimeout bounds each asynchronous touch write.
const touchTimeout = 5 * time.Second

// Manager implements the session lifecycle on top of a Store, mirroring
// rows into the analytics database so aggregation queries can join on
// session attributes. The mirror is best-effort: a mirror write failure
// is logged, never surfaced to the visitor.
type Manager struct {
	store Store
	db    *database.DB
	cfg   *config.SessionConfig

	touches sync.WaitGroup
}

// NewManager creates a session manager over the given store and
// analytics database.
func NewManager(store Store, db *database.DB, cfg *config.SessionConfig) *Manager {
	return &Manager{store: store, db: db, cfg: cfg}
}

// GetOrCreate returns the session for the presented token, or mints a
// fresh session when no token is presented or the token is unknown.
// Tokens are minted server-side only, so an unknown token (swept,
// forged, or from a wiped store) gets a new identity rather than
// resurrecting the old one. The bool reports whether a session was
// created.
func (m *Manager) GetOrCreate(ctx context.Context, token, ip, userAgent string) (*models.Session, bool, error) {
	if token != "" {
		s, err := m.store.Get(ctx, token)
		if err == nil {
			return s, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, fmt.Errorf("failed to load session: %w", err)
		}
	}

	now := time.Now().UTC()
	s := &models.Session{
		ID:          uuid.NewString(),
		IPAddress:   ip,
		UserAgent:   userAgent,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, false, fmt.Errorf("failed to create session: %w", err)
	}

	if err := m.db.InsertSession(ctx, s); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", s.ID).
			Msg("Failed to mirror session to analytics store")
	}

	metrics.SessionsCreated.Inc()
	return s, true, nil
}

// Get returns the session for a token, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, token string) (*models.Session, error) {
	return m.store.Get(ctx, token)
}

// Touch bumps the session's last-seen timestamp and interaction counter
// asynchronously. Fire-and-forget: the caller's response never waits on
// the write, and failures are only logged.
func (m *Manager) Touch(token string) {
	at := time.Now().UTC()
	m.touches.Add(1)
	go func() {
		defer m.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := m.touch(ctx, token, at); err != nil {
			metrics.SessionTouchFailures.Inc()
			logging.Warn().Err(err).Str("session_id", token).Msg("Session touch failed")
		}
	}()
}

// touch is the synchronous touch path: store first, then the analytics
// mirror.
func (m *Manager) touch(ctx context.Context, token string, at time.Time) error {
	if err := m.store.Touch(ctx, token, at); err != nil {
		return err
	}
	return m.db.TouchSession(ctx, token, at)
}

// SetTenant stamps the session's resolved tenant, recording the first
// scanned tag as the originating tag.
func (m *Manager) SetTenant(ctx context.Context, token, tenantID, tagID string) error {
	s, err := m.store.Get(ctx, token)
	if err != nil {
		return err
	}
	s.TenantID = &tenantID
	if s.OriginatingTagID == nil && tagID != "" {
		tag := tagID
		s.OriginatingTagID = &tag
	}
	if err := m.store.Put(ctx, s); err != nil {
		return err
	}
	return m.db.SetSessionTenant(ctx, token, tenantID, tagID)
}

// End marks a session ended with the given reason. Advisory only:
// sessions with no explicit end signal age out via Sweep.
func (m *Manager) End(ctx context.Context, token, reason string) error {
	s, err := m.store.Get(ctx, token)
	if err != nil {
		return err
	}
	s.Ended = true
	s.EndReason = reason
	if err := m.store.Put(ctx, s); err != nil {
		return err
	}
	return m.db.EndSession(ctx, token, reason)
}

// Sweep removes sessions idle past the configured cutoff from the hot
// store and soft-expires their analytics mirror rows. Returns the
// counts removed from each.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int, int64, error) {
	cutoff := now.Add(-m.cfg.IdleCutoff)

	removed, err := m.store.SweepIdle(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sweep session store: %w", err)
	}

	expired, err := m.db.ExpireIdleSessions(ctx, cutoff)
	if err != nil {
		return removed, 0, fmt.Errorf("failed to expire mirrored sessions: %w", err)
	}
	metrics.SessionsSwept.Add(float64(removed))
	return removed, expired, nil
}

// Close waits for in-flight touches and closes the store.
func (m *Manager) Close() error {
	m.touches.Wait()
	return m.store.Close()
}
