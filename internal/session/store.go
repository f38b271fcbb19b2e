// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package session manages anonymous visitor sessions keyed by opaque
// tokens. The hot session state lives in a pluggable Store (in-memory
// for single-process deployments, BadgerDB for persistence across
// restarts); rows are mirrored to the analytics database so aggregation
// queries can join on session attributes.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/versepulse/versepulse/internal/models"
)

// ErrNotFound is returned when a session token is unknown to the store.
var ErrNotFound = errors.New("session not found")

// Store is the hot-state backend for anonymous sessions.
type Store interface {
	// Put inserts or replaces a session.
	Put(ctx context.Context, s *models.Session) error

	// Get returns a session by its opaque token, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Delete removes a session. Unknown tokens are a no-op.
	Delete(ctx context.Context, id string) error

	// Touch atomically bumps the session's last-seen timestamp and
	// interaction counter. Concurrent touches never lose increments.
	Touch(ctx context.Context, id string, at time.Time) error

	// SweepIdle removes sessions whose last activity predates the
	// cutoff, returning the number removed.
	SweepIdle(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases backend resources.
	Close() error
}

// StoreKind selects the session store backend.
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreBadger StoreKind = "badger"
)

// NewStore creates a session store of the given kind. The path is only
// used by the badger backend.
func NewStore(kind StoreKind, path string) (Store, error) {
	switch kind {
	case StoreMemory, "":
		return NewMemoryStore(), nil
	case StoreBadger:
		opts := badger.DefaultOptions(path)
		opts.Logger = nil
		db, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger session store: %w", err)
		}
		return NewBadgerStore(db), nil
	default:
		return nil, fmt.Errorf("unknown session store kind: %s", kind)
	}
}
