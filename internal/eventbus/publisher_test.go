// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/models"
)

// capturingPublisher records published messages for assertions.
type capturingPublisher struct {
	topics   []string
	messages []*message.Message
	closed   bool
}

func (c *capturingPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, m := range messages {
		c.topics = append(c.topics, topic)
		c.messages = append(c.messages, m)
	}
	return nil
}

func (c *capturingPublisher) Close() error {
	c.closed = true
	return nil
}

func TestPublishEventRoutesByTenantAndAction(t *testing.T) {
	capture := &capturingPublisher{}
	p := newPublisherWith(capture)

	e := models.NewAnalyticsEvent("grace-chapel", "sess-1", models.ActionHeart)
	e.OccurredAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := p.PublishEvent(context.Background(), e); err != nil {
		t.Fatalf("PublishEvent failed: %v", err)
	}
	if len(capture.messages) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(capture.messages))
	}

	if capture.topics[0] != "events.grace-chapel.heart" {
		t.Errorf("unexpected topic %s", capture.topics[0])
	}

	msg := capture.messages[0]
	if msg.UUID != e.ID {
		t.Errorf("message UUID should be the event id")
	}
	if msg.Metadata.Get(natsgo.MsgIdHdr) != e.ID {
		t.Error("Nats-Msg-Id should be set for deduplication")
	}
	if msg.Metadata.Get("tenant_id") != "grace-chapel" {
		t.Error("tenant_id metadata missing")
	}

	var decoded models.AnalyticsEvent
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("payload should be the serialized event: %v", err)
	}
	if decoded.ID != e.ID || decoded.Action != models.ActionHeart {
		t.Errorf("decoded event mismatch: %+v", decoded)
	}
}

func TestPublishAfterClose(t *testing.T) {
	capture := &capturingPublisher{}
	p := newPublisherWith(capture)

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !capture.closed {
		t.Error("underlying publisher should be closed")
	}
	if err := p.Close(); err != nil {
		t.Errorf("double close should be a no-op, got %v", err)
	}

	msg := message.NewMessage("id", []byte("{}"))
	if err := p.Publish("events.t.view", msg); err == nil {
		t.Error("publish after close should fail")
	}
}

func TestStreamConfig(t *testing.T) {
	init := &StreamInitializer{cfg: &config.NATSConfig{
		StreamName:    "VERSEPULSE_EVENTS",
		SubjectPrefix: "events",
		RetentionDays: 90,
	}}

	cfg := init.streamConfig()
	if cfg.Name != "VERSEPULSE_EVENTS" {
		t.Errorf("unexpected stream name %s", cfg.Name)
	}
	if len(cfg.Subjects) != 1 || cfg.Subjects[0] != "events.>" {
		t.Errorf("unexpected subjects %v", cfg.Subjects)
	}
	if cfg.MaxAge != 90*24*time.Hour {
		t.Errorf("unexpected retention %v", cfg.MaxAge)
	}
	if cfg.Duplicates == 0 {
		t.Error("deduplication window must be set")
	}
}
