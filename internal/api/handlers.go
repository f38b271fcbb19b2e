// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package api provides the HTTP surface: event ingestion, session
// introspection, and the analytics read endpoints, routed with chi.
package api

import (
	"time"

	"github.com/versepulse/versepulse/internal/analytics"
	"github.com/versepulse/versepulse/internal/attribution"
	"github.com/versepulse/versepulse/internal/cache"
	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/database"
	"github.com/versepulse/versepulse/internal/ingest"
	"github.com/versepulse/versepulse/internal/session"
	"github.com/versepulse/versepulse/internal/tenant"
)

// SessionCookie is the opaque session token cookie. Tokens are minted
// server-side only; an unknown token gets a fresh identity rather than
// resurrecting the old one.
const SessionCookie = "vp_session"

// Handler processes HTTP requests for all endpoint groups.
type Handler struct {
	db       *database.DB
	pipeline *ingest.Pipeline
	sessions *session.Manager
	resolver *attribution.Resolver
	engine   *analytics.Engine
	dir      *tenant.Directory
	config   *config.Config

	// cache fronts the analytics read endpoints; dashboards poll the
	// same windows repeatedly.
	cache     *cache.Cache
	startTime time.Time

	// natsHealthy reports fan-out stream health for readiness checks.
	// Nil when fan-out is disabled.
	natsHealthy func() bool
}

// NewHandler creates the API handler with all required dependencies.
func NewHandler(
	db *database.DB,
	pipeline *ingest.Pipeline,
	sessions *session.Manager,
	resolver *attribution.Resolver,
	engine *analytics.Engine,
	dir *tenant.Directory,
	cfg *config.Config,
) *Handler {
	return &Handler{
		db:        db,
		pipeline:  pipeline,
		sessions:  sessions,
		resolver:  resolver,
		engine:    engine,
		dir:       dir,
		config:    cfg,
		cache:     cache.New(time.Minute),
		startTime: time.Now(),
	}
}

// SetNATSHealthCheck wires the JetStream health probe into readiness.
func (h *Handler) SetNATSHealthCheck(fn func() bool) {
	h.natsHealthy = fn
}
