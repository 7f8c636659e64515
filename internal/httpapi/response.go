package httpapi

import (
	"encoding/json"
	"net/http"

	"capalert/internal/model"
)

// envelope is the wire shape for every response: { success, message?,
// count?, alerts?|alert?|source(s)?|stats?, error? } (spec.md §6).
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Count   int    `json:"count,omitempty"`

	Alert   *model.Alert    `json:"alert,omitempty"`
	Alerts  []model.Alert   `json:"alerts,omitempty"`
	Source  *model.Source   `json:"source,omitempty"`
	Sources []model.Source  `json:"sources,omitempty"`
	Stats   *statsPayload   `json:"stats,omitempty"`
}

type statsPayload struct {
	Scheduler model.SchedulerStats `json:"scheduler"`
	Parser    model.ParserStats    `json:"parser"`
	Janitor   any                  `json:"janitor"`
	ActiveAlerts int               `json:"activeAlerts"`
	BySeverity   map[string]int    `json:"bySeverity"`
	ByCategory   map[string]int    `json:"byCategory"`
	Subscribers  int               `json:"subscribers"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAlerts(w http.ResponseWriter, alerts []model.Alert) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Count: len(alerts), Alerts: alerts})
}

func writeAlert(w http.ResponseWriter, alert *model.Alert) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Alert: alert})
}

func writeSources(w http.ResponseWriter, sources []model.Source) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Count: len(sources), Sources: sources})
}

func writeSource(w http.ResponseWriter, source *model.Source) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Source: source})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: true, Message: message})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

func writeNotFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: what + " not found"})
}
