// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package eventbus

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/versepulse/versepulse/internal/logging"
)

// captureLogs swaps the global logger for a buffer-backed one for the
// duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := logging.Logger()
	prevLevel := zerolog.GlobalLevel()
	logging.SetLogger(logging.NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() {
		logging.SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func TestLoggerAdapterAllLevels(t *testing.T) {
	buf := captureLogs(t)
	adapter := NewLoggerAdapter()

	adapter.Error("publish failed", errors.New("broker down"), watermill.LogFields{"topic": "events"})
	adapter.Info("stream ready", nil)
	adapter.Debug("message routed", watermill.LogFields{"subject": "events.default.view"})
	adapter.Trace("handler invoked", nil)

	out := buf.String()
	for _, want := range []string{
		`"level":"error"`, "publish failed", "broker down", `"topic":"events"`,
		`"level":"info"`, "stream ready",
		`"level":"debug"`, `"subject":"events.default.view"`,
		`"level":"trace"`, "handler invoked",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLoggerAdapterWithMergesFields(t *testing.T) {
	buf := captureLogs(t)

	child := NewLoggerAdapter().With(watermill.LogFields{"component": "publisher"})
	child.Info("connected", watermill.LogFields{"url": "nats://localhost"})

	out := buf.String()
	if !strings.Contains(out, `"component":"publisher"`) || !strings.Contains(out, `"url":"nats://localhost"`) {
		t.Errorf("expected merged fields in output:\n%s", out)
	}
}
