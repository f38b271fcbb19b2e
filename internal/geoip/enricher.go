// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package geoip

import (
	"context"
	"time"

	"github.com/versepulse/versepulse/internal/logging"
)

const (
	// DefaultEnrichInterval is how often the enricher scans for
	// session IPs without a cached location.
	DefaultEnrichInterval = 5 * time.Minute

	// enrichBatchSize caps IPs resolved per pass so a backlog cannot
	// starve foreground lookups of rate-limit slots.
	enrichBatchSize = 50
)

// EnricherDB lists the session IPs still missing geolocation rows.
type EnricherDB interface {
	SessionIPsMissingGeolocation(ctx context.Context, limit int) ([]string, error)
}

// Enricher backfills geolocations for session IPs in the background.
// Geographic rollups exclude sessions without a location, so the
// enricher only improves coverage; ingestion never waits on it.
type Enricher struct {
	db       EnricherDB
	resolver *Resolver
	interval time.Duration
}

// NewEnricher creates a background enricher. A zero interval uses
// DefaultEnrichInterval.
func NewEnricher(db EnricherDB, resolver *Resolver, interval time.Duration) *Enricher {
	if interval <= 0 {
		interval = DefaultEnrichInterval
	}
	return &Enricher{
		db:       db,
		resolver: resolver,
		interval: interval,
	}
}

// Serve implements suture.Service. Runs enrichment passes until the
// context is canceled.
func (e *Enricher) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", e.interval).Msg("Starting geolocation enricher")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	// Initial pass so a fresh deployment does not wait a full interval.
	if _, err := e.EnrichOnce(ctx); err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Msg("Geolocation enrichment pass failed")
	}

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Geolocation enricher stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.EnrichOnce(ctx); err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Msg("Geolocation enrichment pass failed")
			}
		}
	}
}

// EnrichOnce resolves one batch of missing IPs and returns how many
// locations were stored. Individual lookup failures are logged and
// skipped; the pass continues with the remaining IPs.
func (e *Enricher) EnrichOnce(ctx context.Context) (int, error) {
	ips, err := e.db.SessionIPsMissingGeolocation(ctx, enrichBatchSize)
	if err != nil {
		return 0, err
	}
	if len(ips) == 0 {
		return 0, nil
	}

	resolved := 0
	for _, ip := range ips {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		if _, err := e.resolver.Resolve(ctx, ip); err != nil {
			logging.Debug().Err(err).Str("ip", ip).Msg("Failed to enrich session IP")
			continue
		}
		resolved++
	}

	if resolved > 0 {
		logging.Debug().
			Int("resolved", resolved).
			Int("pending", len(ips)-resolved).
			Msg("Geolocation enrichment pass complete")
	}
	return resolved, nil
}
