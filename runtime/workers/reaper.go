package workers

import (
	"context"
	"log/slog"
	"time"

	"presence-lab/contract"
)

const (
	DefaultReaperInterval = 60 * time.Second
	DefaultStaleAfter     = 30 * time.Second
)

// ReaperWorker periodically force-expires typing entries whose per-entry
// timer never fired. It is a correctness backstop, not the primary expiry
// path: on a healthy process every sweep comes back empty.
type ReaperWorker struct {
	log         *slog.Logger
	coordinator contract.ICoordinator
	interval    time.Duration
	staleAfter  time.Duration
}

func NewReaperWorker(log *slog.Logger, coordinator contract.ICoordinator, interval, staleAfter time.Duration) *ReaperWorker {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &ReaperWorker{
		log:         log,
		coordinator: coordinator,
		interval:    interval,
		staleAfter:  staleAfter,
	}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if evicted := w.coordinator.Sweep(w.staleAfter); evicted > 0 {
				w.log.Info("Reaper evicted stale typing entries", "count", evicted)
			}
		}
	}
}
