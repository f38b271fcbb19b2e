// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/versepulse/versepulse/internal/analytics"
	"github.com/versepulse/versepulse/internal/attribution"
	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/database"
	"github.com/versepulse/versepulse/internal/ingest"
	"github.com/versepulse/versepulse/internal/models"
	"github.com/versepulse/versepulse/internal/session"
	"github.com/versepulse/versepulse/internal/tenant"
)

func testConfig() *config.Config {
	return &config.Config{
		Session: config.SessionConfig{
			Store:      "memory",
			IdleCutoff: 30 * 24 * time.Hour,
		},
		Attribution: config.AttributionConfig{
			TTL:               30 * time.Minute,
			CorrelationWindow: 30 * time.Minute,
		},
		Tenant: config.TenantConfig{
			DefaultTenantID:    "default",
			CacheTTL:           time.Minute,
			ReservedSubdomains: []string{"www"},
		},
		Security: config.SecurityConfig{
			RateLimitDisabled: true,
		},
		API: config.APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
	}
}

// setupServer builds the full HTTP surface over an in-memory database.
func setupServer(t *testing.T) (*httptest.Server, *database.DB) {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := t.Context()
	for _, tn := range []*models.Tenant{
		{ID: "default", Name: "Default", Subdomain: "www", Active: true, CreatedAt: time.Now().UTC()},
		{ID: "grace-chapel", Name: "Grace Chapel", Subdomain: "grace-chapel", Active: true, CreatedAt: time.Now().UTC()},
	} {
		if err := db.UpsertTenant(ctx, tn); err != nil {
			t.Fatalf("failed to seed tenant: %v", err)
		}
	}
	if err := db.UpsertTag(ctx, &models.Tag{
		ID: "tag-front-door", TenantID: "grace-chapel", Active: true, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("failed to seed tag: %v", err)
	}

	cfg := testConfig()
	dir := tenant.NewDirectory(db, &cfg.Tenant)
	sessions := session.NewManager(session.NewMemoryStore(), db, &cfg.Session)
	t.Cleanup(func() { _ = sessions.Close() })
	resolver := attribution.NewResolver(dir, sessions, &cfg.Attribution)
	pipeline := ingest.NewPipeline(resolver, sessions, db, nil)
	engine := analytics.NewEngine(db, &cfg.Attribution)

	handler := NewHandler(db, pipeline, sessions, resolver, engine, dir, cfg)
	srv := httptest.NewServer(NewRouter(handler, cfg, dir).Setup())
	t.Cleanup(srv.Close)
	return srv, db
}

func decodeResponse(t *testing.T, resp *http.Response) *models.APIResponse {
	t.Helper()
	defer resp.Body.Close()

	var envelope models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return &envelope
}

func postJSON(t *testing.T, client *http.Client, url string, body interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	envelope := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if envelope.Status != "success" {
		t.Errorf("expected success status, got %q", envelope.Status)
	}

	resp, err = http.Get(srv.URL + "/api/v1/health/ready")
	if err != nil {
		t.Fatalf("ready request failed: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected ready 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/health/live")
	if err != nil {
		t.Fatalf("live request failed: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected live 200, got %d", resp.StatusCode)
	}
}

func TestIngestEventMintsSessionCookie(t *testing.T) {
	srv, db := setupServer(t)

	resp := postJSON(t, srv.Client(), srv.URL+"/api/v1/events", map[string]string{
		"action": "view",
	})
	envelope := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %+v", resp.StatusCode, envelope.Error)
	}

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected session cookie to be set")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	events, err := db.EventsBySession(t.Context(), cookie.Value)
	if err != nil {
		t.Fatalf("failed to load events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(events))
	}
	if events[0].TenantID != "default" {
		t.Errorf("expected default tenant attribution, got %q", events[0].TenantID)
	}
}

func TestIngestEventReusesCookieSession(t *testing.T) {
	srv, db := setupServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/api/v1/events", map[string]string{"action": "view"})
	decodeResponse(t, resp)

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			token = c.Value
		}
	}
	if token == "" {
		t.Fatal("expected session cookie on first request")
	}

	data, _ := json.Marshal(map[string]string{"action": "heart"})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/events", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})

	resp2, err := client.Do(req)
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	decodeResponse(t, resp2)

	events, err := db.EventsBySession(t.Context(), token)
	if err != nil {
		t.Fatalf("failed to load events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected both events on one session, got %d", len(events))
	}
}

func TestIngestMalformedEventRejected(t *testing.T) {
	srv, _ := setupServer(t)

	resp := postJSON(t, srv.Client(), srv.URL+"/api/v1/events", map[string]string{
		"action": "launch_missiles",
	})
	envelope := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != "MALFORMED_EVENT" {
		t.Errorf("expected MALFORMED_EVENT code, got %+v", envelope.Error)
	}
}

func TestIngestBatchPartialFailure(t *testing.T) {
	srv, _ := setupServer(t)

	resp := postJSON(t, srv.Client(), srv.URL+"/api/v1/events/batch", map[string]interface{}{
		"events": []map[string]string{
			{"action": "view"},
			{"action": "bogus"},
			{"action": "heart"},
		},
	})
	envelope := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %+v", resp.StatusCode, envelope.Error)
	}

	raw, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("failed to remarshal data: %v", err)
	}
	var result models.IngestResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode ingest result: %v", err)
	}
	if result.Processed != 2 || result.Failed != 1 {
		t.Errorf("expected 2 processed / 1 failed, got %d / %d", result.Processed, result.Failed)
	}
}

func TestIngestArrayBodyOnEventsRoute(t *testing.T) {
	srv, _ := setupServer(t)

	resp := postJSON(t, srv.Client(), srv.URL+"/api/v1/events", []map[string]string{
		{"action": "view"},
		{"action": "share"},
	})
	envelope := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %+v", resp.StatusCode, envelope.Error)
	}

	raw, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("failed to remarshal data: %v", err)
	}
	var result models.IngestResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode ingest result: %v", err)
	}
	if result.Processed != 2 || result.Failed != 0 {
		t.Errorf("expected 2 processed / 0 failed, got %d / %d", result.Processed, result.Failed)
	}
}

func TestIngestEmptyBatchRejected(t *testing.T) {
	srv, _ := setupServer(t)

	resp := postJSON(t, srv.Client(), srv.URL+"/api/v1/events/batch", map[string]interface{}{
		"events": []map[string]string{},
	})
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty batch, got %d", resp.StatusCode)
	}
}

func TestScanAttributesFollowingEvents(t *testing.T) {
	srv, db := setupServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/api/v1/events", map[string]string{
		"action":   "tag_scan",
		"tag_hint": "tag-front-door",
	})
	envelope := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %+v", resp.StatusCode, envelope.Error)
	}

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			token = c.Value
		}
	}

	data, _ := json.Marshal(map[string]string{"action": "prayer_submit"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/events", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	resp2, err := client.Do(req)
	if err != nil {
		t.Fatalf("follow-up request failed: %v", err)
	}
	decodeResponse(t, resp2)

	events, err := db.EventsBySession(t.Context(), token)
	if err != nil {
		t.Fatalf("failed to load events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.TenantID != "grace-chapel" {
			t.Errorf("event %s attributed to %q, want grace-chapel", e.Action, e.TenantID)
		}
	}
}

func TestGetSessionReturnsAttribution(t *testing.T) {
	srv, _ := setupServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/api/v1/events", map[string]string{
		"action":   "tag_scan",
		"tag_hint": "tag-front-door",
	})
	decodeResponse(t, resp)

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			token = c.Value
		}
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/session", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	resp2, err := client.Do(req)
	if err != nil {
		t.Fatalf("session request failed: %v", err)
	}
	envelope := decodeResponse(t, resp2)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}

	raw, _ := json.Marshal(envelope.Data)
	var view struct {
		ID          string              `json:"id"`
		Attribution *models.Attribution `json:"attribution"`
	}
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("failed to decode session view: %v", err)
	}
	if view.ID != token {
		t.Errorf("expected session %q, got %q", token, view.ID)
	}
	if view.Attribution == nil || view.Attribution.TagID != "tag-front-door" {
		t.Errorf("expected live attribution to tag-front-door, got %+v", view.Attribution)
	}
}

func TestEndSessionClearsCookie(t *testing.T) {
	srv, _ := setupServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/api/v1/events", map[string]string{"action": "view"})
	decodeResponse(t, resp)

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			token = c.Value
		}
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/session", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	resp2, err := client.Do(req)
	if err != nil {
		t.Fatalf("end session request failed: %v", err)
	}
	decodeResponse(t, resp2)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}

	cleared := false
	for _, c := range resp2.Cookies() {
		if c.Name == SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected session cookie to be cleared")
	}
}

func TestAnalyticsRollupEndpoint(t *testing.T) {
	srv, _ := setupServer(t)
	client := srv.Client()

	for _, action := range []string{"view", "heart", "view"} {
		resp := postJSON(t, client, srv.URL+"/api/v1/events", map[string]string{"action": action})
		decodeResponse(t, resp)
	}

	resp, err := client.Get(srv.URL + "/api/v1/analytics/rollup?window=24h&granularity=hour")
	if err != nil {
		t.Fatalf("rollup request failed: %v", err)
	}
	envelope := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %+v", resp.StatusCode, envelope.Error)
	}

	raw, _ := json.Marshal(envelope.Data)
	var series models.RollupSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		t.Fatalf("failed to decode series: %v", err)
	}
	if series.Window != "24h" || series.Granularity != "hour" {
		t.Errorf("unexpected series shape: window=%q granularity=%q", series.Window, series.Granularity)
	}
	if series.TenantID != "default" {
		t.Errorf("expected default tenant series, got %q", series.TenantID)
	}
}

func TestAnalyticsRollupInvalidWindow(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := srv.Client().Get(srv.URL + "/api/v1/analytics/rollup?window=1y")
	if err != nil {
		t.Fatalf("rollup request failed: %v", err)
	}
	envelope := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != "INVALID_PARAMETER" {
		t.Errorf("expected INVALID_PARAMETER, got %+v", envelope.Error)
	}
}

func TestAnalyticsCachesRepeatedQueries(t *testing.T) {
	srv, _ := setupServer(t)
	client := srv.Client()

	first, err := client.Get(srv.URL + "/api/v1/analytics/geographic?window=7d")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	firstEnv := decodeResponse(t, first)
	if firstEnv.Metadata.Cached {
		t.Error("first response should not be cached")
	}

	second, err := client.Get(srv.URL + "/api/v1/analytics/geographic?window=7d")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	secondEnv := decodeResponse(t, second)
	if !secondEnv.Metadata.Cached {
		t.Error("second response should come from cache")
	}
}

func TestTenantResolutionFromQueryHint(t *testing.T) {
	srv, db := setupServer(t)

	resp := postJSON(t, srv.Client(), srv.URL+"/api/v1/events?tenant=grace-chapel", map[string]string{
		"action": "view",
	})
	envelope := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %+v", resp.StatusCode, envelope.Error)
	}

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			token = c.Value
		}
	}
	events, err := db.EventsBySession(t.Context(), token)
	if err != nil {
		t.Fatalf("failed to load events: %v", err)
	}
	if len(events) != 1 || events[0].TenantID != "grace-chapel" {
		t.Fatalf("expected grace-chapel attribution, got %+v", events)
	}
}
