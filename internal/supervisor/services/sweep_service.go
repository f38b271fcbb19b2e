// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package services

import (
	"context"
	"time"

	"github.com/versepulse/versepulse/internal/logging"
)

// DefaultSweepInterval is used when the configured cleanup interval is
// zero or negative.
const DefaultSweepInterval = 5 * time.Minute

// SessionSweeper expires idle sessions. Satisfied by *session.Manager.
type SessionSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, int64, error)
}

// AttributionSweeper evicts lapsed tag bindings. Satisfied by
// *attribution.Resolver.
type AttributionSweeper interface {
	Sweep(now time.Time) int
}

// SweepService periodically expires idle sessions and lapsed
// attributions. Expiry is also evaluated lazily at read time, so the
// sweep is storage hygiene rather than a correctness requirement.
type SweepService struct {
	sessions     SessionSweeper
	attributions AttributionSweeper
	interval     time.Duration
}

// NewSweepService creates the cleanup service.
func NewSweepService(sessions SessionSweeper, attributions AttributionSweeper, interval time.Duration) *SweepService {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SweepService{
		sessions:     sessions,
		attributions: attributions,
		interval:     interval,
	}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.sweep(ctx, now.UTC())
		}
	}
}

func (s *SweepService) sweep(ctx context.Context, now time.Time) {
	mirrorRemoved, storeRemoved, err := s.sessions.Sweep(ctx, now)
	if err != nil {
		logging.Warn().Err(err).Msg("Session sweep failed")
	}

	bindingsRemoved := s.attributions.Sweep(now)

	if mirrorRemoved > 0 || storeRemoved > 0 || bindingsRemoved > 0 {
		logging.Debug().
			Int("sessions_swept", mirrorRemoved).
			Int64("store_rows_expired", storeRemoved).
			Int("attributions_expired", bindingsRemoved).
			Msg("Cleanup sweep completed")
	}
}

// String implements fmt.Stringer; suture uses it in event logs.
func (s *SweepService) String() string {
	return "cleanup-sweep"
}
