// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/versepulse/versepulse/internal/config"
)

// JetStreamContext is the subset of jetstream.JetStream used by
// StreamInitializer. Narrowed for testability.
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// StreamInitializer provisions the events stream before publishers
// start, so every published event lands in durable storage.
type StreamInitializer struct {
	js  JetStreamContext
	cfg *config.NATSConfig
}

// NewStreamInitializer creates a stream initializer.
func NewStreamInitializer(js JetStreamContext, cfg *config.NATSConfig) (*StreamInitializer, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream context required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("nats config required")
	}
	return &StreamInitializer{js: js, cfg: cfg}, nil
}

// streamConfig builds the JetStream configuration: file storage, FIFO
// limits retention, and a deduplication window matching at-least-once
// ingestion.
func (s *StreamInitializer) streamConfig() jetstream.StreamConfig {
	retention := time.Duration(s.cfg.RetentionDays) * 24 * time.Hour
	return jetstream.StreamConfig{
		Name:        s.cfg.StreamName,
		Subjects:    []string{s.cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      retention,
		Duplicates:  2 * time.Minute,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}
}

// EnsureStream creates the stream or updates an existing one to the
// configured settings. Idempotent.
func (s *StreamInitializer) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	cfg := s.streamConfig()

	_, err := s.js.Stream(ctx, s.cfg.StreamName)
	if err == nil {
		stream, err := s.js.UpdateStream(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to update stream %s: %w", s.cfg.StreamName, err)
		}
		return stream, nil
	}
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err := s.js.CreateStream(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create stream %s: %w", s.cfg.StreamName, err)
		}
		return stream, nil
	}
	return nil, fmt.Errorf("failed to check stream %s: %w", s.cfg.StreamName, err)
}

// IsHealthy reports whether the stream exists and is reachable.
func (s *StreamInitializer) IsHealthy(ctx context.Context) bool {
	_, err := s.js.Stream(ctx, s.cfg.StreamName)
	return err == nil
}
