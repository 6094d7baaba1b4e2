package worker

import (
	"context"
	"log/slog"
	"time"
)

// AppliedMarkerStore holds the per-task markers that make remote applies
// idempotent.
type AppliedMarkerStore interface {
	DeleteAppliedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Pruner deletes applied-task markers older than the retention period. A
// task older than that can no longer be replayed, so its marker is dead weight.
type Pruner struct {
	retention time.Duration
	store     AppliedMarkerStore
	now       func() time.Time
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, store AppliedMarkerStore, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		store:     store,
		now:       time.Now,
		log:       log,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Calculate check interval (10% of retention period, between 1m and 1h)
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := p.now().Add(-p.retention)

	n, err := p.store.DeleteAppliedBefore(ctx, threshold)
	if err != nil {
		p.log.Error("Failed to prune applied task markers", "error", err)
		return
	}
	if n > 0 {
		p.log.Info("Pruned applied task markers", "count", n, "before", threshold.Format(time.RFC3339))
	}
}
