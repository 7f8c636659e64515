// Package janitor implements the Janitor (C7): a coarse periodic sweep
// that repairs expired-bit drift across every alert and purges inactive
// alerts past the retention window. Runs independently of the scheduler's
// per-source timers, grounded on the cleanup-ticker pattern of
// dataminr's Deduplicator.
package janitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"capalert/internal/broadcaster"
	"capalert/internal/store"
)

// Janitor runs the retention sweep on a single coarse ticker.
type Janitor struct {
	store     store.Store
	bus       *broadcaster.Broadcaster
	interval  time.Duration
	retention time.Duration
	log       *slog.Logger

	cancel context.CancelFunc

	expiredCount atomic.Int64
	purgedCount  atomic.Int64
	sweeps       atomic.Int64
}

// New builds a Janitor. interval is the sweep period (default 24h);
// retention is how long an inactive alert survives before deletion
// (default 30 days). bus receives an alert.expire event for every alert
// the sweep transitions, the same as the scheduler's own expiry repair.
func New(st store.Store, bus *broadcaster.Broadcaster, interval, retention time.Duration, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Janitor{
		store:     st,
		bus:       bus,
		interval:  interval,
		retention: retention,
		log:       log,
	}
}

// Start begins the periodic sweep loop in its own goroutine and returns
// immediately.
func (j *Janitor) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	j.cancel = cancel

	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()
}

// Stop cancels the sweep loop. Idempotent.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
}

// Sweep runs one mark-expired-then-purge cycle immediately (spec.md §4.7).
func (j *Janitor) Sweep(ctx context.Context) {
	j.sweeps.Add(1)
	now := time.Now().UTC()

	transitioned, err := j.store.MarkExpired(ctx, "", now)
	if err != nil {
		j.log.Error("janitor: mark expired failed", "error", err)
	} else {
		j.expiredCount.Add(int64(len(transitioned)))
		for _, a := range transitioned {
			j.bus.Publish(broadcaster.TopicAlertExpire, a)
		}
	}

	cutoff := now.Add(-j.retention)
	purged, err := j.store.DeleteOldInactive(ctx, cutoff)
	if err != nil {
		j.log.Error("janitor: delete old inactive failed", "error", err)
	} else {
		j.purgedCount.Add(int64(purged))
	}

	j.log.Info("janitor: sweep complete", "expired", len(transitioned), "purged", purged)
}

// Stats exposes running totals for the statistics snapshot.
type Stats struct {
	Sweeps  int64 `json:"sweeps"`
	Expired int64 `json:"expired"`
	Purged  int64 `json:"purged"`
}

// Stats returns a snapshot of the janitor's running counters.
func (j *Janitor) Stats() Stats {
	return Stats{
		Sweeps:  j.sweeps.Load(),
		Expired: j.expiredCount.Load(),
		Purged:  j.purgedCount.Load(),
	}
}
