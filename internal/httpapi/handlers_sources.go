package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"capalert/internal/broadcaster"
	"capalert/internal/model"
)

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// handleListSources lists every configured source.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeSources(w, sources)
}

// handleGetSource fetches a single source by ID.
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	src, err := s.store.GetSource(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeNotFound(w, "source")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeSource(w, src)
}

// handleCreateSource registers a new source and, if active, schedules it.
func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var src model.Source
	if err := decodeJSONBody(r, &src); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if src.Name == "" || src.FeedURL == "" {
		writeError(w, http.StatusBadRequest, errors.New("name and feedUrl are required"))
		return
	}
	if err := s.store.CreateSource(r.Context(), &src); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if src.Active {
		if err := s.sched.UpdateSource(r.Context(), src.ID); err != nil {
			s.log.Error("httpapi: schedule new source failed", "source", src.ID, "error", err)
		}
	}
	s.bus.Publish(broadcaster.TopicSourceNew, src)
	writeJSON(w, http.StatusCreated, envelope{Success: true, Source: &src})
}

// handleUpdateSource updates an existing source's configuration and
// reconciles its scheduler timer against the new active/interval state.
func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.store.GetSource(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeNotFound(w, "source")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var patch model.Source
	if err := decodeJSONBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	patch.ID = existing.ID
	patch.CreatedAt = existing.CreatedAt

	if err := s.store.UpdateSource(r.Context(), &patch); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.sched.UpdateSource(r.Context(), patch.ID); err != nil {
		s.log.Error("httpapi: reschedule updated source failed", "source", patch.ID, "error", err)
	}
	s.bus.Publish(broadcaster.TopicSourceUpdate, patch)
	writeSource(w, &patch)
}

// handleDeleteSource removes a source and cancels its scheduler timer.
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteSource(r.Context(), id); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.sched.RemoveSourceInterval(id)
	s.bus.Publish(broadcaster.TopicSourceDelete, map[string]string{"id": id})
	writeMessage(w, http.StatusOK, "source deleted")
}

// handleSeedSources seeds the registry's built-in default sources, a no-op
// if any source already exists (spec.md §4.3 "seedDefaults").
func (s *Server) handleSeedSources(w http.ResponseWriter, r *http.Request) {
	seeded, err := s.store.SeedDefaultSources(r.Context(), DefaultSources)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Count: seeded, Message: "default sources seeded"})
}
