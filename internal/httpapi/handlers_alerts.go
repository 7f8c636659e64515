package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"capalert/internal/model"
)

var errInvalidSeverity = errors.New("invalid severity level")

// handleListActive lists every currently active alert, most severe first.
func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.FindActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeAlerts(w, alerts)
}

// handleGetByID fetches a single alert by its store-assigned ID.
func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	alert, err := s.store.FindByID(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeNotFound(w, "alert")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeAlert(w, alert)
}

// handleFindByPoint returns every active alert whose area contains the
// given point.
func (s *Server) handleFindByPoint(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(chi.URLParam(r, "lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		writeError(w, http.StatusBadRequest, errors.New("lat must be a number in [-90, 90]"))
		return
	}
	lng, err := strconv.ParseFloat(chi.URLParam(r, "lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		writeError(w, http.StatusBadRequest, errors.New("lng must be a number in [-180, 180]"))
		return
	}
	alerts, err := s.store.FindByPoint(r.Context(), lat, lng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeAlerts(w, alerts)
}

// handleFindBySeverity returns every active alert whose most severe info
// block has exactly the given severity level.
func (s *Server) handleFindBySeverity(w http.ResponseWriter, r *http.Request) {
	level := model.Severity(chi.URLParam(r, "level"))
	if _, ok := validSeverities[level]; !ok {
		writeError(w, http.StatusBadRequest, errInvalidSeverity)
		return
	}
	alerts, err := s.store.FindBySeverity(r.Context(), level)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeAlerts(w, alerts)
}

var validSeverities = map[model.Severity]struct{}{
	model.SeverityExtreme:  {},
	model.SeveritySevere:   {},
	model.SeverityModerate: {},
	model.SeverityMinor:    {},
	model.SeverityUnknown:  {},
}

// handleFetch triggers an immediate fetch cycle for one source and returns
// once it completes (spec.md §4.8 "fetch" — "Trigger a cycle").
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	sourceID := r.URL.Query().Get("sourceId")
	if sourceID == "" {
		writeError(w, http.StatusBadRequest, errors.New("sourceId query parameter is required"))
		return
	}
	if err := s.sched.ManualRefresh(r.Context(), sourceID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeMessage(w, http.StatusOK, "fetch cycle complete")
}

// handleRefresh is an alias for handleFetch taking the source ID from a
// JSON body, matching spec.md §4.8's separate "manualRefresh" operation.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SourceID string `json:"sourceId"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.SourceID == "" {
		writeError(w, http.StatusBadRequest, errors.New("sourceId is required"))
		return
	}
	if err := s.sched.ManualRefresh(r.Context(), body.SourceID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeMessage(w, http.StatusOK, "refresh complete")
}

// handleStats aggregates scheduler, parser, janitor, and store counters
// into one snapshot (spec.md §4.8 "stats").
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	active, err := s.store.FindActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	bySeverity := make(map[string]int)
	byCategory := make(map[string]int)
	for _, a := range active {
		bySeverity[string(a.MaxSeverity())]++
		for _, info := range a.Info {
			for _, cat := range info.Category {
				byCategory[cat]++
			}
		}
	}

	payload := &statsPayload{
		Scheduler:    s.sched.Stats(),
		Janitor:      s.jan.Stats(),
		ActiveAlerts: len(active),
		BySeverity:   bySeverity,
		ByCategory:   byCategory,
		Subscribers:  s.bus.SubscriberCount(),
	}
	if s.parser != nil {
		payload.Parser = s.parser.Stats()
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Stats: payload})
}
