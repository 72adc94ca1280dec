package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// DefaultSyncInterval is how often the background sync ticks.
const DefaultSyncInterval = 10 * time.Minute

// Runner schedules background syncs. At most one sync pass runs
// process-wide: each tick (and each manual trigger) try-acquires a
// global semaphore and is dropped, not queued, when a pass is already
// in flight.
type Runner struct {
	syncer   *Syncer
	sem      *semaphore.Weighted
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates the runner.
func NewRunner(syncer *Syncer, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		syncer:   syncer,
		sem:      semaphore.NewWeighted(1),
		interval: interval,
		logger:   logger,
	}
}

// Run ticks until ctx is cancelled. An initial pass runs immediately.
func (r *Runner) Run(ctx context.Context) {
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if !r.sem.TryAcquire(1) {
		r.logger.Debug("sync already in flight, skipping tick")
		return
	}
	defer r.sem.Release(1)
	r.syncer.SyncAll(ctx, false)
}

// TriggerManual syncs one source now, with the manual horizon. It
// returns false without syncing when a pass is already in flight.
func (r *Runner) TriggerManual(ctx context.Context, sourceID uuid.UUID) (bool, error) {
	if !r.sem.TryAcquire(1) {
		return false, nil
	}
	defer r.sem.Release(1)
	return true, r.syncer.SyncSource(ctx, sourceID, true)
}
