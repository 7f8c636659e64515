package janitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"capalert/internal/broadcaster"
	"capalert/internal/model"
	"capalert/internal/store"
)

func newTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSweepMarksExpiredAndPurgesOldInactive(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	src := model.Source{Name: "Test Source", FeedURL: "https://example.com/cap.xml"}
	if err := db.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	old := time.Now().UTC().Add(-48 * time.Hour)
	expired := model.Alert{
		SourceID:   src.ID,
		Identifier: "OLD-1",
		Sent:       old,
		FetchedAt:  old,
		Status:     model.StatusActual,
		MsgType:    model.MsgTypeAlert,
		Scope:      model.ScopePublic,
		Info: []model.Info{
			{Event: "Test", Severity: model.SeverityMinor, Effective: old, Expires: old.Add(time.Hour)},
		},
	}
	if _, err := db.BulkInsert(ctx, []model.Alert{expired}); err != nil {
		t.Fatalf("bulk insert: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := broadcaster.New(log)
	j := New(db, bus, time.Hour, 24*time.Hour, log)
	j.Sweep(ctx)

	stats := j.Stats()
	// The alert already inserted inactive (its expiry was already in the
	// past at insert time), so markExpired has nothing left to flip.
	if stats.Expired != 0 {
		t.Errorf("expired = %d, want 0", stats.Expired)
	}
	if stats.Purged != 1 {
		t.Errorf("purged = %d, want 1 (alert is past the 24h retention window)", stats.Purged)
	}
	if stats.Sweeps != 1 {
		t.Errorf("sweeps = %d, want 1", stats.Sweeps)
	}

	active, err := db.FindActive(ctx)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active alerts remaining, got %d", len(active))
	}
}

func TestSweepKeepsRecentInactiveAlerts(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	src := model.Source{Name: "Test Source", FeedURL: "https://example.com/cap.xml"}
	if err := db.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	now := time.Now().UTC()
	recentlyExpired := model.Alert{
		SourceID:   src.ID,
		Identifier: "RECENT-1",
		Sent:       now.Add(-time.Hour),
		FetchedAt:  now.Add(-time.Hour),
		Status:     model.StatusActual,
		MsgType:    model.MsgTypeAlert,
		Scope:      model.ScopePublic,
		Info: []model.Info{
			{Event: "Test", Severity: model.SeverityMinor, Effective: now.Add(-time.Hour), Expires: now.Add(-time.Minute)},
		},
	}
	if _, err := db.BulkInsert(ctx, []model.Alert{recentlyExpired}); err != nil {
		t.Fatalf("bulk insert: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := broadcaster.New(log)
	j := New(db, bus, time.Hour, 30*24*time.Hour, log)
	j.Sweep(ctx)

	if got := j.Stats().Purged; got != 0 {
		t.Errorf("purged = %d, want 0 (alert is within the 30 day retention window)", got)
	}
}

func TestSweepPublishesFullAlertRecordOnExpire(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	src := model.Source{Name: "Test Source", FeedURL: "https://example.com/cap.xml"}
	if err := db.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	now := time.Now().UTC()
	soonToExpire := model.Alert{
		SourceID:   src.ID,
		Identifier: "SOON-1",
		Sent:       now,
		FetchedAt:  now,
		Status:     model.StatusActual,
		MsgType:    model.MsgTypeAlert,
		Scope:      model.ScopePublic,
		Info: []model.Info{
			{Event: "Test", Severity: model.SeverityMinor, Effective: now, Expires: now.Add(150 * time.Millisecond)},
		},
	}
	inserted, err := db.BulkInsert(ctx, []model.Alert{soonToExpire})
	if err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	if !inserted[0].Active {
		t.Fatal("expected alert to insert as active relative to its own insert time")
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := broadcaster.New(log)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	j := New(db, bus, time.Hour, 24*time.Hour, log)
	// Sweep runs its own time.Now().UTC() internally, so simulate the
	// passage of time by waiting out the alert's short expiry window.
	time.Sleep(200 * time.Millisecond)
	j.Sweep(ctx)

	select {
	case ev := <-events:
		if ev.Topic != broadcaster.TopicAlertExpire {
			t.Fatalf("topic = %q, want %q", ev.Topic, broadcaster.TopicAlertExpire)
		}
		alert, ok := ev.Payload.(model.Alert)
		if !ok {
			t.Fatalf("payload type = %T, want model.Alert", ev.Payload)
		}
		if alert.Identifier != "SOON-1" {
			t.Errorf("payload identifier = %q, want SOON-1", alert.Identifier)
		}
		if alert.Active {
			t.Error("expired alert's published record should reflect active=false")
		}
	default:
		t.Fatal("expected an alert.expire event to be published")
	}
}

func TestStopCancelsLoopIdempotently(t *testing.T) {
	db := newTestStore(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := broadcaster.New(log)
	j := New(db, bus, time.Millisecond, time.Hour, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.Start(ctx)
	j.Stop()
	j.Stop()
}
