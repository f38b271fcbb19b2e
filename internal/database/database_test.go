// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/versepulse/versepulse/internal/config"
	"github.com/versepulse/versepulse/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func seedTenant(t *testing.T, db *DB, id, subdomain string) {
	t.Helper()

	err := db.UpsertTenant(context.Background(), &models.Tenant{
		ID:        id,
		Name:      id,
		Subdomain: subdomain,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed tenant %s: %v", id, err)
	}
}

func seedTag(t *testing.T, db *DB, id, tenantID string) {
	t.Helper()

	err := db.UpsertTag(context.Background(), &models.Tag{
		ID:        id,
		TenantID:  tenantID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed tag %s: %v", id, err)
	}
}

func seedSession(t *testing.T, db *DB, id, ip string, seenAt time.Time) {
	t.Helper()

	err := db.InsertSession(context.Background(), &models.Session{
		ID:          id,
		IPAddress:   ip,
		UserAgent:   "test-agent",
		FirstSeenAt: seenAt,
		LastSeenAt:  seenAt,
	})
	if err != nil {
		t.Fatalf("failed to seed session %s: %v", id, err)
	}
}

func seedEvent(t *testing.T, db *DB, e models.AnalyticsEvent) {
	t.Helper()

	if e.IPAddress == "" {
		e.IPAddress = "203.0.113.10"
	}
	if e.UserAgent == "" {
		e.UserAgent = "test-agent"
	}
	if err := db.AppendEvent(context.Background(), &e); err != nil {
		t.Fatalf("failed to seed event %s: %v", e.ID, err)
	}
}

func TestTenantLookups(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedTenant(t, db, "grace-chapel", "grace")
	seedTag(t, db, "tag-1", "grace-chapel")

	bySub, err := db.LookupTenantBySubdomain(ctx, "grace")
	if err != nil {
		t.Fatalf("LookupTenantBySubdomain failed: %v", err)
	}
	if bySub.ID != "grace-chapel" {
		t.Errorf("expected tenant grace-chapel, got %s", bySub.ID)
	}

	byTag, err := db.LookupTenantByTagID(ctx, "tag-1")
	if err != nil {
		t.Fatalf("LookupTenantByTagID failed: %v", err)
	}
	if byTag.ID != "grace-chapel" {
		t.Errorf("expected tenant grace-chapel via tag, got %s", byTag.ID)
	}

	if _, err := db.LookupTenantBySubdomain(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown subdomain, got %v", err)
	}
	if _, err := db.GetTenant(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown tenant, got %v", err)
	}
}

func TestTenantCustomDomainLookup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.UpsertTenant(ctx, &models.Tenant{
		ID:           "hope-center",
		Name:         "Hope Center",
		Subdomain:    "hope",
		CustomDomain: strPtr("verses.hope.example"),
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("UpsertTenant failed: %v", err)
	}

	got, err := db.LookupTenantBySubdomain(ctx, "verses.hope.example")
	if err != nil {
		t.Fatalf("custom domain lookup failed: %v", err)
	}
	if got.ID != "hope-center" {
		t.Errorf("expected hope-center, got %s", got.ID)
	}
}

func TestInactiveTenantNotResolvable(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.UpsertTenant(ctx, &models.Tenant{
		ID:        "closed",
		Name:      "Closed",
		Subdomain: "closed",
		Active:    false,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("UpsertTenant failed: %v", err)
	}

	if _, err := db.LookupTenantBySubdomain(ctx, "closed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for inactive tenant, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seedTenant(t, db, "grace-chapel", "grace")
	seedSession(t, db, "sess-1", "203.0.113.10", start)

	// Touch moves last_seen forward and bumps the counter.
	if err := db.TouchSession(ctx, "sess-1", start.Add(5*time.Minute)); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}
	// An out-of-order touch must not move last_seen backwards.
	if err := db.TouchSession(ctx, "sess-1", start.Add(2*time.Minute)); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}

	s, err := db.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !s.LastSeenAt.Equal(start.Add(5 * time.Minute)) {
		t.Errorf("expected last_seen %v, got %v", start.Add(5*time.Minute), s.LastSeenAt)
	}
	if s.Interactions != 2 {
		t.Errorf("expected 2 interactions, got %d", s.Interactions)
	}

	// First tag stamp sets the originating tag; later stamps keep it.
	if err := db.SetSessionTenant(ctx, "sess-1", "grace-chapel", "tag-1"); err != nil {
		t.Fatalf("SetSessionTenant failed: %v", err)
	}
	if err := db.SetSessionTenant(ctx, "sess-1", "grace-chapel", "tag-2"); err != nil {
		t.Fatalf("SetSessionTenant failed: %v", err)
	}
	s, err = db.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.TenantID == nil || *s.TenantID != "grace-chapel" {
		t.Errorf("expected tenant grace-chapel, got %v", s.TenantID)
	}
	if s.OriginatingTagID == nil || *s.OriginatingTagID != "tag-1" {
		t.Errorf("expected originating tag tag-1, got %v", s.OriginatingTagID)
	}

	if err := db.EndSession(ctx, "sess-1", "tab_closed"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	s, err = db.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !s.Ended || s.EndReason != "tab_closed" {
		t.Errorf("expected ended session with reason tab_closed, got ended=%v reason=%q", s.Ended, s.EndReason)
	}
}

func TestInsertSessionIdempotent(t *testing.T) {
	db := setupTestDB(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seedSession(t, db, "sess-dup", "203.0.113.10", start)
	seedSession(t, db, "sess-dup", "203.0.113.99", start.Add(time.Hour))

	s, err := db.GetSession(context.Background(), "sess-dup")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.IPAddress != "203.0.113.10" {
		t.Errorf("duplicate insert overwrote session, got ip %s", s.IPAddress)
	}
}

func TestExpireIdleSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seedSession(t, db, "sess-old", "203.0.113.10", now.Add(-48*time.Hour))
	seedSession(t, db, "sess-fresh", "203.0.113.11", now.Add(-time.Hour))

	n, err := db.ExpireIdleSessions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ExpireIdleSessions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired session, got %d", n)
	}

	old, err := db.GetSession(ctx, "sess-old")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !old.Ended || old.EndReason != "cleanup" {
		t.Errorf("expected old session ended by cleanup, got ended=%v reason=%q", old.Ended, old.EndReason)
	}
	fresh, err := db.GetSession(ctx, "sess-fresh")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if fresh.Ended {
		t.Error("fresh session should not be expired")
	}
}

func TestAppendEventIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	e := models.AnalyticsEvent{
		ID:         "evt-1",
		TenantID:   "grace-chapel",
		SessionID:  "sess-1",
		Action:     models.ActionView,
		IPAddress:  "203.0.113.10",
		UserAgent:  "test-agent",
		OccurredAt: at,
	}
	seedEvent(t, db, e)
	seedEvent(t, db, e)

	var count int
	err := db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analytics_events WHERE id = ?`, "evt-1").Scan(&count)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row after redelivery, got %d", count)
	}
}

func TestGetRollupSeries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Two sessions active across two hours, one duplicate-safe check:
	// sess-a appears in both hours from the same IP.
	events := []models.AnalyticsEvent{
		{ID: "e1", TenantID: "t1", SessionID: "sess-a", Action: models.ActionView, IPAddress: "203.0.113.1", OccurredAt: day.Add(1 * time.Hour)},
		{ID: "e2", TenantID: "t1", SessionID: "sess-a", Action: models.ActionHeart, IPAddress: "203.0.113.1", OccurredAt: day.Add(1*time.Hour + 10*time.Minute)},
		{ID: "e3", TenantID: "t1", SessionID: "sess-b", Action: models.ActionView, IPAddress: "203.0.113.2", OccurredAt: day.Add(3 * time.Hour)},
		{ID: "e4", TenantID: "t1", SessionID: "sess-a", Action: models.ActionShare, IPAddress: "203.0.113.1", OccurredAt: day.Add(3*time.Hour + 30*time.Minute)},
		// Different tenant, must not leak into t1's rollup.
		{ID: "e5", TenantID: "t2", SessionID: "sess-c", Action: models.ActionView, IPAddress: "203.0.113.3", OccurredAt: day.Add(2 * time.Hour)},
	}
	for _, e := range events {
		seedEvent(t, db, e)
	}

	hourly, err := db.GetRollupSeries(ctx, "t1", day, day.Add(6*time.Hour), "hour")
	if err != nil {
		t.Fatalf("hourly rollup failed: %v", err)
	}
	if len(hourly.Buckets) != 6 {
		t.Fatalf("expected 6 zero-filled hour buckets, got %d", len(hourly.Buckets))
	}
	if hourly.TotalEvents != 4 {
		t.Errorf("expected 4 total events, got %d", hourly.TotalEvents)
	}

	h1 := hourly.Buckets[1]
	if h1.TotalEvents != 2 || h1.UniqueSessions != 1 || h1.UniqueIPs != 1 {
		t.Errorf("hour 1: got total=%d sessions=%d ips=%d, want 2/1/1",
			h1.TotalEvents, h1.UniqueSessions, h1.UniqueIPs)
	}
	if h1.ByAction["view"] != 1 || h1.ByAction["heart"] != 1 {
		t.Errorf("hour 1 action breakdown wrong: %v", h1.ByAction)
	}
	h3 := hourly.Buckets[3]
	if h3.TotalEvents != 2 || h3.UniqueSessions != 2 || h3.UniqueIPs != 2 {
		t.Errorf("hour 3: got total=%d sessions=%d ips=%d, want 2/2/2",
			h3.TotalEvents, h3.UniqueSessions, h3.UniqueIPs)
	}
	if hourly.Buckets[0].TotalEvents != 0 {
		t.Errorf("empty hour should be zero-filled, got %d", hourly.Buckets[0].TotalEvents)
	}

	// Day totals equal the sum of the hour totals over the same range.
	daily, err := db.GetRollupSeries(ctx, "t1", day, day.Add(24*time.Hour), "day")
	if err != nil {
		t.Fatalf("daily rollup failed: %v", err)
	}
	if len(daily.Buckets) != 1 {
		t.Fatalf("expected 1 day bucket, got %d", len(daily.Buckets))
	}
	if daily.Buckets[0].TotalEvents != hourly.TotalEvents {
		t.Errorf("day total %d != sum of hour totals %d",
			daily.Buckets[0].TotalEvents, hourly.TotalEvents)
	}
	// Distinct counts collapse across hours at day granularity.
	if daily.Buckets[0].UniqueSessions != 2 || daily.Buckets[0].UniqueIPs != 2 {
		t.Errorf("day distinct counts: got sessions=%d ips=%d, want 2/2",
			daily.Buckets[0].UniqueSessions, daily.Buckets[0].UniqueIPs)
	}

	if _, err := db.GetRollupSeries(ctx, "t1", day, day.Add(time.Hour), "minute"); err == nil {
		t.Error("expected error for invalid granularity")
	}
}

func TestCountStageSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []models.AnalyticsEvent{
		{ID: "f1", TenantID: "t1", SessionID: "s1", Action: models.ActionView, OccurredAt: day.Add(time.Hour)},
		{ID: "f2", TenantID: "t1", SessionID: "s2", Action: models.ActionView, OccurredAt: day.Add(time.Hour)},
		{ID: "f3", TenantID: "t1", SessionID: "s2", Action: models.ActionHeart, OccurredAt: day.Add(2 * time.Hour)},
		{ID: "f4", TenantID: "t1", SessionID: "s2", Action: models.ActionPrayerSubmit, OccurredAt: day.Add(3 * time.Hour)},
		{ID: "f5", TenantID: "t1", SessionID: "s3", Action: models.ActionHeart, OccurredAt: day.Add(2 * time.Hour)},
	}
	for _, e := range events {
		seedEvent(t, db, e)
	}

	tests := []struct {
		name    string
		actions []string
		want    int
	}{
		{"viewed", []string{"view"}, 2},
		{"engaged", []string{"heart", "favorite", "share", "download"}, 2},
		{"contributed", []string{"prayer_submit", "praise_submit", "insight_submit"}, 1},
		{"no matches", []string{"download"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.CountStageSessions(ctx, "t1", day, day.Add(24*time.Hour), tt.actions)
			if err != nil {
				t.Fatalf("CountStageSessions failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d sessions, want %d", got, tt.want)
			}
		})
	}

	if _, err := db.CountStageSessions(ctx, "t1", day, day.Add(time.Hour), nil); err == nil {
		t.Error("expected error for empty action list")
	}
}

func TestGetGeoBreakdown(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedSession(t, db, "s1", "203.0.113.1", day)
	seedSession(t, db, "s2", "203.0.113.2", day)
	seedSession(t, db, "s3", "198.51.100.9", day)

	for _, geo := range []*models.Geolocation{
		{IPAddress: "203.0.113.1", Country: "US", City: strPtr("Nashville"), Latitude: 36.16, Longitude: -86.78, LastUpdated: day},
		{IPAddress: "203.0.113.2", Country: "US", City: strPtr("Nashville"), Latitude: 36.16, Longitude: -86.78, LastUpdated: day},
	} {
		if err := db.UpsertGeolocation(ctx, geo); err != nil {
			t.Fatalf("UpsertGeolocation failed: %v", err)
		}
	}

	events := []models.AnalyticsEvent{
		{ID: "g1", TenantID: "t1", SessionID: "s1", Action: models.ActionView, OccurredAt: day.Add(time.Hour)},
		{ID: "g2", TenantID: "t1", SessionID: "s2", Action: models.ActionView, OccurredAt: day.Add(time.Hour)},
		{ID: "g3", TenantID: "t1", SessionID: "s2", Action: models.ActionHeart, OccurredAt: day.Add(2 * time.Hour)},
		// s3 has no geolocation row and must be excluded.
		{ID: "g4", TenantID: "t1", SessionID: "s3", Action: models.ActionView, OccurredAt: day.Add(time.Hour)},
	}
	for _, e := range events {
		seedEvent(t, db, e)
	}

	buckets, err := db.GetGeoBreakdown(ctx, "t1", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("GetGeoBreakdown failed: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("expected 1 geo bucket, got %d", len(buckets))
	}
	b := buckets[0]
	if b.Country != "US" || b.City == nil || *b.City != "Nashville" {
		t.Errorf("unexpected bucket location: %s/%v", b.Country, b.City)
	}
	if b.Events != 3 || b.UniqueSessions != 2 {
		t.Errorf("got events=%d sessions=%d, want 3/2", b.Events, b.UniqueSessions)
	}
}

func TestGetTopTags(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []models.AnalyticsEvent{
		{ID: "p1", TenantID: "t1", SessionID: "s1", TagID: strPtr("tag-a"), Action: models.ActionTagScan, OccurredAt: day.Add(time.Hour)},
		{ID: "p2", TenantID: "t1", SessionID: "s2", TagID: strPtr("tag-a"), Action: models.ActionTagScan, OccurredAt: day.Add(2 * time.Hour)},
		{ID: "p3", TenantID: "t1", SessionID: "s1", TagID: strPtr("tag-b"), Action: models.ActionTagScan, OccurredAt: day.Add(3 * time.Hour)},
		// Non-scan events on a tag do not count as scans.
		{ID: "p4", TenantID: "t1", SessionID: "s1", TagID: strPtr("tag-b"), Action: models.ActionView, OccurredAt: day.Add(3 * time.Hour)},
	}
	for _, e := range events {
		seedEvent(t, db, e)
	}

	tags, err := db.GetTopTags(ctx, "t1", day, day.Add(24*time.Hour), 10)
	if err != nil {
		t.Fatalf("GetTopTags failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(tags))
	}
	if tags[0].TagID != "tag-a" || tags[0].Scans != 2 || tags[0].UniqueSessions != 2 {
		t.Errorf("top tag wrong: %+v", tags[0])
	}
	if tags[1].TagID != "tag-b" || tags[1].Scans != 1 {
		t.Errorf("second tag wrong: %+v", tags[1])
	}
	if tags[0].LastScanAt == nil || !tags[0].LastScanAt.Equal(day.Add(2*time.Hour)) {
		t.Errorf("last scan time wrong: %v", tags[0].LastScanAt)
	}
}

func TestCorrelateScan(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	scanAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	scan := models.AnalyticsEvent{
		ID: "scan-1", TenantID: "t1", SessionID: "s1",
		TagID: strPtr("tag-a"), Action: models.ActionTagScan, OccurredAt: scanAt,
	}
	seedEvent(t, db, scan)

	downstream := []models.AnalyticsEvent{
		// Inside the window.
		{ID: "d1", TenantID: "t1", SessionID: "s1", TagID: strPtr("tag-a"), Action: models.ActionPrayerSubmit, OccurredAt: scanAt.Add(29 * time.Minute)},
		{ID: "d2", TenantID: "t1", SessionID: "s2", TagID: strPtr("tag-a"), Action: models.ActionHeart, OccurredAt: scanAt.Add(10 * time.Minute)},
		// Exactly on the boundary: inclusive, still counted.
		{ID: "d3", TenantID: "t1", SessionID: "s1", TagID: strPtr("tag-a"), Action: models.ActionPraiseSubmit, OccurredAt: scanAt.Add(30 * time.Minute)},
		// One minute past the window.
		{ID: "d4", TenantID: "t1", SessionID: "s1", TagID: strPtr("tag-a"), Action: models.ActionInsightSubmit, OccurredAt: scanAt.Add(31 * time.Minute)},
		// Different tag, excluded.
		{ID: "d5", TenantID: "t1", SessionID: "s1", TagID: strPtr("tag-b"), Action: models.ActionPrayerSubmit, OccurredAt: scanAt.Add(5 * time.Minute)},
	}
	for _, e := range downstream {
		seedEvent(t, db, e)
	}

	act, err := db.CorrelateScan(ctx, &scan, window)
	if err != nil {
		t.Fatalf("CorrelateScan failed: %v", err)
	}
	if act.PrayerCount != 1 {
		t.Errorf("expected 1 prayer, got %d", act.PrayerCount)
	}
	if act.PraiseCount != 1 {
		t.Errorf("expected 1 praise at the inclusive boundary, got %d", act.PraiseCount)
	}
	if act.InsightCount != 0 {
		t.Errorf("expected insight past the window excluded, got %d", act.InsightCount)
	}
	if act.EngagementCount != 1 {
		t.Errorf("expected 1 engagement event, got %d", act.EngagementCount)
	}
	// The scan itself is excluded from downstream activity.
	if act.TotalDownstream != 3 {
		t.Errorf("expected 3 downstream events, got %d", act.TotalDownstream)
	}
}

func TestCorrelateScanOverlappingWindows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	first := models.AnalyticsEvent{
		ID: "scan-a", TenantID: "t1", SessionID: "s1",
		TagID: strPtr("tag-a"), Action: models.ActionTagScan, OccurredAt: base,
	}
	second := models.AnalyticsEvent{
		ID: "scan-b", TenantID: "t1", SessionID: "s2",
		TagID: strPtr("tag-a"), Action: models.ActionTagScan, OccurredAt: base.Add(10 * time.Minute),
	}
	shared := models.AnalyticsEvent{
		ID: "d1", TenantID: "t1", SessionID: "s3",
		TagID: strPtr("tag-a"), Action: models.ActionPrayerSubmit, OccurredAt: base.Add(20 * time.Minute),
	}
	for _, e := range []models.AnalyticsEvent{first, second, shared} {
		seedEvent(t, db, e)
	}

	a, err := db.CorrelateScan(ctx, &first, window)
	if err != nil {
		t.Fatalf("CorrelateScan failed: %v", err)
	}
	b, err := db.CorrelateScan(ctx, &second, window)
	if err != nil {
		t.Fatalf("CorrelateScan failed: %v", err)
	}

	// Overlapping windows both claim the shared prayer.
	if a.PrayerCount != 1 || b.PrayerCount != 1 {
		t.Errorf("shared prayer should count for both scans, got %d and %d",
			a.PrayerCount, b.PrayerCount)
	}
	// The second scan falls inside the first scan's window and counts as
	// downstream activity on the tag.
	if a.TotalDownstream != 2 {
		t.Errorf("first scan downstream: got %d, want 2", a.TotalDownstream)
	}
	if b.TotalDownstream != 1 {
		t.Errorf("second scan downstream: got %d, want 1", b.TotalDownstream)
	}
}

func TestTagScans(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []models.AnalyticsEvent{
		{ID: "q1", TenantID: "t1", SessionID: "s1", TagID: strPtr("tag-a"), Action: models.ActionTagScan, OccurredAt: day.Add(time.Hour)},
		{ID: "q2", TenantID: "t1", SessionID: "s2", TagID: strPtr("tag-b"), Action: models.ActionTagScan, OccurredAt: day.Add(2 * time.Hour)},
		{ID: "q3", TenantID: "t1", SessionID: "s1", TagID: strPtr("tag-a"), Action: models.ActionView, OccurredAt: day.Add(time.Hour)},
	}
	for _, e := range events {
		seedEvent(t, db, e)
	}

	all, err := db.TagScans(ctx, "t1", nil, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("TagScans failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 scans, got %d", len(all))
	}
	if all[0].ID != "q2" {
		t.Errorf("expected newest scan first, got %s", all[0].ID)
	}

	onlyA, err := db.TagScans(ctx, "t1", strPtr("tag-a"), day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("TagScans failed: %v", err)
	}
	if len(onlyA) != 1 || onlyA[0].ID != "q1" {
		t.Errorf("tag filter wrong: %+v", onlyA)
	}
}

func TestSessionIPsMissingGeolocation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedSession(t, db, "s1", "203.0.113.1", day)
	seedSession(t, db, "s2", "203.0.113.2", day)
	if err := db.UpsertGeolocation(ctx, &models.Geolocation{
		IPAddress: "203.0.113.1", Country: "US", LastUpdated: day,
	}); err != nil {
		t.Fatalf("UpsertGeolocation failed: %v", err)
	}

	ips, err := db.SessionIPsMissingGeolocation(ctx, 10)
	if err != nil {
		t.Fatalf("SessionIPsMissingGeolocation failed: %v", err)
	}
	if len(ips) != 1 || ips[0] != "203.0.113.2" {
		t.Errorf("expected only 203.0.113.2 missing, got %v", ips)
	}
}
