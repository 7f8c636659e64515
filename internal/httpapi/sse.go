package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

var errSSEUnsupported = errors.New("streaming unsupported")

// handleEventStream serves lifecycle events as Server-Sent Events: one
// subscription per connection, torn down on client disconnect (spec.md
// §4.8 "subscribe to the live event stream").
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errSSEUnsupported)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Warn("httpapi: sse marshal failed", "error", err)
				continue
			}
			if _, err := w.Write([]byte("event: " + ev.Topic + "\ndata: ")); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
