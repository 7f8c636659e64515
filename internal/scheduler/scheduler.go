// Package scheduler implements the Scheduler (C5): one logical timer per
// active source, driving the CAP parser, reconciling results against the
// alert store in batches, normalizing geometry before spatial persistence,
// and emitting lifecycle events.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"capalert/internal/broadcaster"
	"capalert/internal/geo"
	"capalert/internal/model"
	"capalert/internal/store"
)

// batchSize is the number of parsed alerts reconciled against the store per
// chunk within one fetch cycle (spec.md §4.5 step 5).
const batchSize = 50

// maxConsecutiveFailures disables further logging escalation past this
// point, matching the failure-counter guard used by dataminr's poller: a
// source that keeps failing is not retried more aggressively, it just
// keeps ticking on its own interval and accumulating failedFetches.
const maxConsecutiveFailures = 5

// Parser is the subset of internal/capfeed.Parser the scheduler depends on.
type Parser interface {
	FetchAlerts(ctx context.Context, sourceID, feedURL string) ([]model.Alert, error)
}

// Scheduler owns one fetch-cycle timer per active source.
type Scheduler struct {
	store   store.Store
	parser  Parser
	geo     *geo.Normalizer
	bus     *broadcaster.Broadcaster
	log     *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	running bool

	cycles       atomic.Int64
	fetches      atomic.Int64
	successes    atomic.Int64
	failures     atomic.Int64
	newAlerts    atomic.Int64
	updatedAlert atomic.Int64
	expired      atomic.Int64

	consecutiveFailures sync.Map // sourceID -> *atomic.Int64
	cycleLocks          sync.Map // sourceID -> *sync.Mutex, one cycle in flight per source
}

// New builds a Scheduler.
func New(st store.Store, parser Parser, normalizer *geo.Normalizer, bus *broadcaster.Broadcaster, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		store:   st,
		parser:  parser,
		geo:     normalizer,
		bus:     bus,
		log:     log,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start snapshots active sources from the registry, creates one timer per
// source, and triggers an initial fetch for each (spec.md §4.5 "start()").
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	sources, err := s.store.GetActiveSources(ctx)
	if err != nil {
		return fmt.Errorf("list active sources: %w", err)
	}
	for _, src := range sources {
		s.scheduleSource(ctx, src)
	}
	return nil
}

// Stop cancels every per-source timer. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.running = false
}

// UpdateSource re-evaluates one source after an external config change:
// reschedules it if newly activated, cancels its timer if deactivated.
func (s *Scheduler) UpdateSource(ctx context.Context, sourceID string) error {
	src, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("get source %s: %w", sourceID, err)
	}
	s.RemoveSourceInterval(sourceID)
	if src.Active {
		s.scheduleSource(ctx, *src)
	}
	return nil
}

// RemoveSourceInterval cancels and forgets a source's timer, if any.
func (s *Scheduler) RemoveSourceInterval(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[sourceID]; ok {
		cancel()
		delete(s.cancels, sourceID)
	}
}

func (s *Scheduler) scheduleSource(parent context.Context, src model.Source) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if existing, ok := s.cancels[src.ID]; ok {
		existing()
	}
	s.cancels[src.ID] = cancel
	s.mu.Unlock()

	interval := time.Duration(src.FetchIntervalSeconds) * time.Second
	go func() {
		s.runCycle(ctx, src.ID)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCycle(ctx, src.ID)
			}
		}
	}()
}

// runCycle executes one fetch cycle for a source (spec.md §4.5 "Fetch
// cycle"), guarding against timer drift and stopping its own timer if the
// source has been deactivated since scheduling.
func (s *Scheduler) runCycle(ctx context.Context, sourceID string) {
	src, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		s.log.Error("scheduler: reload source failed", "source", sourceID, "error", err)
		return
	}
	if !src.Active {
		s.RemoveSourceInterval(sourceID)
		return
	}
	if !src.NeedsFetching(time.Now().UTC()) {
		return
	}
	s.runCycleForced(ctx, *src)
}

// ManualRefresh runs one fetch cycle synchronously for a source, bypassing
// the needsFetching guard (spec.md §4.8 "manualRefresh"). Still atomic per
// source: it takes the same per-source cycle lock as timer-driven cycles,
// so a timer cycle for the same source cannot interleave with it.
func (s *Scheduler) ManualRefresh(ctx context.Context, sourceID string) error {
	src, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("get source %s: %w", sourceID, err)
	}
	s.runCycleForced(ctx, *src)
	return nil
}

func (s *Scheduler) runCycleForced(ctx context.Context, src model.Source) {
	v, _ := s.cycleLocks.LoadOrStore(src.ID, new(sync.Mutex))
	lock := v.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	s.cycles.Add(1)
	s.fetches.Add(1)

	alerts, fetchErr := s.parser.FetchAlerts(ctx, src.ID, src.FeedURL)

	errMsg := ""
	if fetchErr != nil {
		errMsg = fetchErr.Error()
		s.failures.Add(1)
		s.bumpFailureCounter(src.ID)
		s.log.Error("scheduler: fetch cycle failed", "source", src.Name, "error", fetchErr)
	} else {
		s.successes.Add(1)
		s.consecutiveFailures.Delete(src.ID)
	}
	if err := s.store.RecordFetchAttempt(ctx, src.ID, fetchErr == nil, errMsg); err != nil {
		s.log.Error("scheduler: record fetch attempt failed", "source", src.Name, "error", err)
	}

	if fetchErr == nil && len(alerts) > 0 {
		s.reconcile(ctx, src, alerts)
	}

	// Expired-bit repair always runs, even on fetch failure, to keep the
	// active view fresh (spec.md §4.5 step 3/6).
	now := time.Now().UTC()
	transitioned, err := s.store.MarkExpired(ctx, src.ID, now)
	if err != nil {
		s.log.Error("scheduler: mark expired failed", "source", src.Name, "error", err)
	} else if len(transitioned) > 0 {
		s.expired.Add(int64(len(transitioned)))
		for _, a := range transitioned {
			s.bus.Publish(broadcaster.TopicAlertExpire, a)
		}
	}

	cycles := s.cycles.Load()
	s.log.Info("scheduler: cycle complete", "source", src.Name, "success", fetchErr == nil, "alerts", len(alerts))
	if cycles%10 == 0 {
		s.log.Info("scheduler: statistics snapshot", "stats", s.Stats())
	}
}

// reconcile diffs freshly parsed alerts against existing store rows in
// batches of batchSize, skipping unchanged records, upserting changed
// ones, and staging new ones for bulk insert followed by per-record
// geometry normalization (spec.md §4.5 steps 4-5).
func (s *Scheduler) reconcile(ctx context.Context, src model.Source, alerts []model.Alert) {
	identifiers := make([]string, 0, len(alerts))
	for _, a := range alerts {
		identifiers = append(identifiers, a.Identifier)
	}
	existing, err := s.store.FindByIdentifiers(ctx, src.ID, identifiers)
	if err != nil {
		s.log.Error("scheduler: find by identifiers failed", "source", src.Name, "error", err)
		return
	}

	for start := 0; start < len(alerts); start += batchSize {
		end := start + batchSize
		if end > len(alerts) {
			end = len(alerts)
		}
		s.reconcileBatch(ctx, src, alerts[start:end], existing)
	}
}

func (s *Scheduler) reconcileBatch(ctx context.Context, src model.Source, batch []model.Alert, existing map[string]model.Alert) {
	var upserts []store.UpsertOp
	var toInsert []model.Alert

	now := time.Now().UTC()
	for _, incoming := range batch {
		old, found := existing[incoming.Identifier]
		if !found {
			toInsert = append(toInsert, model.StripComputedGeometry(incoming))
			continue
		}
		sameSent := old.Sent.Equal(incoming.Sent)
		sameActive := old.Active == incoming.IsActiveAt(now)
		if sameSent && sameActive {
			continue
		}
		upserts = append(upserts, store.UpsertOp{ID: old.ID, Alert: model.StripComputedGeometry(incoming)})
	}

	if len(upserts) > 0 {
		if err := s.store.BulkUpsert(ctx, upserts); err != nil {
			s.log.Error("scheduler: bulk upsert failed", "source", src.Name, "error", err)
		} else {
			s.updatedAlert.Add(int64(len(upserts)))
			for _, op := range upserts {
				s.normalizeAndPersistGeometry(ctx, op.ID, op.Alert)
				s.bus.Publish(broadcaster.TopicAlertUpdate, op.Alert)
			}
		}
	}

	if len(toInsert) > 0 {
		inserted, err := s.store.BulkInsert(ctx, toInsert)
		if err != nil {
			s.log.Error("scheduler: bulk insert failed", "source", src.Name, "error", err)
			return
		}
		s.newAlerts.Add(int64(len(inserted)))
		for _, a := range inserted {
			// per-record geometry/spatial-index failure never aborts
			// siblings (spec.md §4.5 step 5).
			s.normalizeAndPersistGeometry(ctx, a.ID, a)
			s.bus.Publish(broadcaster.TopicAlertNew, a)
		}
	}
}

// normalizeAndPersistGeometry calls C1 for every area across every info
// block of an already-persisted alert, and writes the result back
// per-area. A normalization or spatial-index failure on one area is
// logged and skipped; siblings still proceed.
func (s *Scheduler) normalizeAndPersistGeometry(ctx context.Context, alertID string, a model.Alert) {
	for infoIdx, info := range a.Info {
		for areaIdx, area := range info.Area {
			if len(area.Polygon) == 0 && len(area.Circle) == 0 {
				continue
			}
			geom := s.geo.Normalize(area.Polygon, area.Circle)
			if geom == nil {
				continue
			}
			gj, err := geom.ToModelGeoJSON()
			if err != nil {
				s.log.Warn("scheduler: geojson marshal failed", "alert", alertID, "error", err)
				continue
			}
			minLat, maxLat, minLon, maxLon := geom.BBox()
			if err := s.store.SetAreaGeometry(ctx, alertID, infoIdx, areaIdx, gj, minLat, maxLat, minLon, maxLon); err != nil {
				s.log.Warn("scheduler: persist geometry failed", "alert", alertID, "error", err)
			}
		}
	}
}

func (s *Scheduler) bumpFailureCounter(sourceID string) {
	v, _ := s.consecutiveFailures.LoadOrStore(sourceID, new(atomic.Int64))
	counter := v.(*atomic.Int64)
	n := counter.Add(1)
	if n == maxConsecutiveFailures {
		s.log.Warn("scheduler: source has reached consecutive failure threshold", "source", sourceID, "failures", n)
	}
}

// Stats returns a snapshot of the scheduler's running counters.
func (s *Scheduler) Stats() model.SchedulerStats {
	return model.SchedulerStats{
		Cycles:       s.cycles.Load(),
		Fetches:      s.fetches.Load(),
		Successes:    s.successes.Load(),
		Failures:     s.failures.Load(),
		NewAlerts:    s.newAlerts.Load(),
		UpdatedAlert: s.updatedAlert.Load(),
		Expired:      s.expired.Load(),
	}
}
