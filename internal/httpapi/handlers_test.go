package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"capalert/internal/broadcaster"
	"capalert/internal/geo"
	"capalert/internal/janitor"
	"capalert/internal/model"
	"capalert/internal/scheduler"
	"capalert/internal/store"
)

type fakeParser struct{}

func (fakeParser) FetchAlerts(context.Context, string, string) ([]model.Alert, error) {
	return nil, nil
}
func (fakeParser) Stats() model.ParserStats { return model.ParserStats{} }

func newTestServer(t *testing.T) (*Server, *store.SQLite) {
	t.Helper()
	db, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	normalizer := geo.New(log)
	bus := broadcaster.New(log)
	sched := scheduler.New(db, fakeParser{}, normalizer, bus, log)
	jan := janitor.New(db, bus, time.Hour, 30*24*time.Hour, log)
	return New(db, sched, jan, bus, normalizer, fakeParser{}, log), db
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return env
}

func TestHandleListActiveEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cap-alerts/active", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success || env.Count != 0 {
		t.Errorf("envelope = %+v, want success with count 0", env)
	}
}

func TestSourceCRUDViaHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	createBody := `{"name":"Test Source","feedUrl":"https://example.com/cap.xml","fetchIntervalSeconds":120}`
	req := httptest.NewRequest(http.MethodPost, "/cap-sources", strings.NewReader(createBody))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Source == nil || env.Source.ID == "" {
		t.Fatalf("expected a created source with an id, got %+v", env)
	}
	id := env.Source.ID

	req = httptest.NewRequest(http.MethodGet, "/cap-sources/"+id, nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/cap-sources/"+id, nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/cap-sources/"+id, nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", rec.Code)
	}
}

func TestHandleGetByIDNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cap-alerts/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleFindByPointRejectsOutOfRangeCoordinates(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cap-alerts/area/999/50", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleFindBySeverityRejectsUnknownLevel(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cap-alerts/severity/Catastrophic", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSeedSources(t *testing.T) {
	s, db := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/cap-sources/seed", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	sources, err := db.ListSources(context.Background())
	if err != nil {
		t.Fatalf("list sources: %v", err)
	}
	if len(sources) != len(DefaultSources) {
		t.Errorf("seeded %d sources, want %d", len(sources), len(DefaultSources))
	}
}

func TestHandleStatsAggregatesCounts(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cap-alerts/stats", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Stats == nil {
		t.Fatal("expected stats payload")
	}
}
