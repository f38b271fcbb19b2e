// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package main is the entry point for the VersePulse server.
//
// VersePulse is the anonymous session and tag-attribution analytics
// engine behind a multi-tenant verse-of-the-day platform. It ingests
// engagement events from web and NFC-tag visitors, attributes them to
// tenants through a fallback chain, and serves windowed aggregation
// reports to dashboards.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layered sources (env > config file > defaults)
//  2. Database: DuckDB append-only event log and tenant directory
//  3. Session store: in-memory or BadgerDB-backed
//  4. Attribution resolver and ingestion pipeline
//  5. NATS JetStream fan-out (optional, embedded or external)
//  6. Supervisor tree: sweeps, geolocation enrichment, HTTP server
//
// Shutdown on SIGINT/SIGTERM is graceful: the HTTP server drains
// in-flight requests, then stores and the broker close in order.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/versepulse/versepulse/internal/analytics"
	"github.com/versepulse/versepulse/internal/api"
	"github.com/versepulse/versepulse/internal/attribution"
	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/database"
	"github.com/versepulse/versepulse/internal/eventbus"
	"github.com/versepulse/versepulse/internal/geoip"
	"github.com/versepulse/versepulse/internal/ingest"
	"github.com/versepulse/versepulse/internal/logging"
	"github.com/versepulse/versepulse/internal/session"
	"github.com/versepulse/versepulse/internal/supervisor"
	"github.com/versepulse/versepulse/internal/supervisor/services"
	"github.com/versepulse/versepulse/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("session_store", cfg.Session.Store).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("geoip_enabled", cfg.GeoIP.Enabled).
		Msg("Starting VersePulse")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	store, err := session.NewStore(session.StoreKind(cfg.Session.Store), cfg.Session.StorePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open session store")
	}

	dir := tenant.NewDirectory(db, &cfg.Tenant)
	sessions := session.NewManager(store, db, &cfg.Session)
	defer func() {
		if err := sessions.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing session manager")
		}
	}()
	resolver := attribution.NewResolver(dir, sessions, &cfg.Attribution)
	engine := analytics.NewEngine(db, &cfg.Attribution)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// NATS fan-out is optional; the DuckDB log stays the source of
	// truth. A broker that is down at boot just means events skip
	// fan-out until the next restart.
	var natsComponents *eventbus.Components
	var publisher *eventbus.Publisher
	if cfg.NATS.Enabled {
		natsComponents = eventbus.NewComponents(&cfg.NATS)
		if err := natsComponents.Start(ctx); err != nil {
			logging.Warn().Err(err).Msg("NATS fan-out unavailable, continuing without it")
		} else {
			publisher = natsComponents.Publisher()
		}
	}

	pipeline := ingest.NewPipeline(resolver, sessions, db, publisher)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	if natsComponents != nil {
		// Start is a no-op when the boot-time connect succeeded; the
		// wrapper owns shutdown and restart from here.
		tree.AddMessagingService(services.NewNATSComponentsService(natsComponents, 10*time.Second))
	}

	tree.AddMaintenanceService(services.NewSweepService(sessions, resolver, cfg.Session.CleanupInterval))

	if cfg.GeoIP.Enabled {
		providers := []geoip.Provider{geoip.NewIPAPIProvider()}
		if cfg.GeoIP.MaxMindAccountID != "" && cfg.GeoIP.MaxMindLicenseKey != "" {
			providers = append(providers, geoip.NewMaxMindProvider(cfg.GeoIP.MaxMindAccountID, cfg.GeoIP.MaxMindLicenseKey))
		}
		geoResolver := geoip.NewResolver(db, cfg.GeoIP.RatePerSecond, providers...)
		tree.AddMaintenanceService(geoip.NewEnricher(db, geoResolver, cfg.GeoIP.EnrichInterval))
	}

	handler := api.NewHandler(db, pipeline, sessions, resolver, engine, dir, cfg)
	if natsComponents != nil {
		healthCtx := ctx
		handler.SetNATSHealthCheck(func() bool {
			return natsComponents.Healthy(healthCtx)
		})
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg, dir).Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("VersePulse stopped gracefully")
}
