// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/logging"
)

// Components bundles the NATS subsystems behind one lifecycle: the
// optional embedded server, the JetStream connection, stream
// provisioning, and the event publisher.
type Components struct {
	cfg *config.NATSConfig

	mu          sync.RWMutex
	embedded    *EmbeddedServer
	conn        *natsgo.Conn
	initializer *StreamInitializer
	publisher   *Publisher
	running     bool
}

// NewComponents creates the NATS component bundle. Nothing connects
// until Start.
func NewComponents(cfg *config.NATSConfig) *Components {
	return &Components{cfg: cfg}
}

// Start brings up the embedded server when configured, connects,
// provisions the events stream, and opens the publisher.
func (c *Components) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	// Copy so the embedded server's dynamic URL never leaks back into
	// the shared configuration.
	cfg := *c.cfg

	if cfg.EmbeddedServer {
		embedded, err := NewEmbeddedServer(&cfg)
		if err != nil {
			return fmt.Errorf("failed to start embedded NATS server: %w", err)
		}
		c.embedded = embedded
		cfg.URL = embedded.ClientURL()
		logging.Info().Str("url", cfg.URL).Msg("Embedded NATS server started")
	}

	conn, err := natsgo.Connect(cfg.URL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		c.teardownLocked(ctx)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	c.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		c.teardownLocked(ctx)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	initializer, err := NewStreamInitializer(js, &cfg)
	if err != nil {
		c.teardownLocked(ctx)
		return err
	}
	if _, err := initializer.EnsureStream(ctx); err != nil {
		c.teardownLocked(ctx)
		return fmt.Errorf("failed to provision events stream: %w", err)
	}
	c.initializer = initializer

	publisher, err := NewPublisher(&cfg, NewLoggerAdapter())
	if err != nil {
		c.teardownLocked(ctx)
		return err
	}
	c.publisher = publisher
	c.running = true

	logging.Info().Str("stream", cfg.StreamName).Msg("NATS event fan-out started")
	return nil
}

// Shutdown stops the publisher, drains the connection, and stops the
// embedded server.
func (c *Components) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(ctx)
	c.running = false
}

func (c *Components) teardownLocked(ctx context.Context) {
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close NATS publisher")
		}
		c.publisher = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.embedded != nil {
		if err := c.embedded.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to stop embedded NATS server")
		}
		c.embedded = nil
	}
	c.initializer = nil
}

// IsRunning reports whether Start has completed.
func (c *Components) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Publisher returns the event publisher, nil before Start.
func (c *Components) Publisher() *Publisher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.publisher
}

// Healthy reports whether the connection is up and the events stream
// is reachable.
func (c *Components) Healthy(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running || c.conn == nil || !c.conn.IsConnected() {
		return false
	}
	return c.initializer != nil && c.initializer.IsHealthy(ctx)
}
