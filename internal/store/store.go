// Package store implements the Source Registry (C3) and Alert Store (C4)
// on top of SQLite: source configuration CRUD with fetch-attempt
// bookkeeping, and alert persistence with a bounding-box spatial index
// substituting for a native geo database's 2D index.
package store

import (
	"context"
	"time"

	"capalert/internal/model"
)

// UpsertOp stages an update to an existing alert, identified by its
// store-assigned ID, with a payload already stripped of computed geometry
// (spec.md §4.5 step 5 — the caller must call model.StripComputedGeometry
// first).
type UpsertOp struct {
	ID    string
	Alert model.Alert
}

// Store is the persistence contract for sources and alerts.
type Store interface {
	// Source Registry (C3)
	CreateSource(ctx context.Context, s *model.Source) error
	GetSource(ctx context.Context, id string) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	GetActiveSources(ctx context.Context) ([]model.Source, error)
	GetDefaultSource(ctx context.Context) (*model.Source, error)
	UpdateSource(ctx context.Context, s *model.Source) error
	DeleteSource(ctx context.Context, id string) error
	RecordFetchAttempt(ctx context.Context, sourceID string, success bool, errMsg string) error
	SeedDefaultSources(ctx context.Context, defaults []model.Source) (int, error)

	// Alert Store (C4)
	FindActive(ctx context.Context) ([]model.Alert, error)
	FindByID(ctx context.Context, id string) (*model.Alert, error)
	FindByPoint(ctx context.Context, lat, lon float64) ([]model.Alert, error)
	FindBySeverity(ctx context.Context, severity model.Severity) ([]model.Alert, error)
	FindByIdentifiers(ctx context.Context, sourceID string, identifiers []string) (map[string]model.Alert, error)
	BulkUpsert(ctx context.Context, ops []UpsertOp) error
	BulkInsert(ctx context.Context, alerts []model.Alert) ([]model.Alert, error)
	SetAreaGeometry(ctx context.Context, alertID string, infoIndex, areaIndex int, geoJSON *model.GeoJSON, minLat, maxLat, minLon, maxLon float64) error
	MarkExpired(ctx context.Context, sourceID string, now time.Time) ([]model.Alert, error)
	DeleteOldInactive(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}
