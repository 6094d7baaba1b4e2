package syncqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Worker drains the queue in the background: on every tick while online,
// as soon as connectivity comes back, and whenever Trigger is called.
type Worker struct {
	queue         *Queue
	online        ConnectivityChecker
	interval      time.Duration
	probeInterval time.Duration
	trigger       chan struct{}
	logger        *slog.Logger
}

// NewWorker creates a drain worker. interval is the periodic drain cadence;
// probeInterval is how often connectivity is sampled.
func NewWorker(queue *Queue, online ConnectivityChecker, interval, probeInterval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if probeInterval <= 0 {
		probeInterval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:         queue,
		online:        online,
		interval:      interval,
		probeInterval: probeInterval,
		trigger:       make(chan struct{}, 1),
		logger:        logger,
	}
}

// Trigger requests a drain. Requests made while one is pending collapse.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Start runs the worker loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	probe := time.NewTicker(w.probeInterval)
	defer probe.Stop()

	wasOnline := w.isOnline(ctx)
	if wasOnline {
		w.drain(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
			w.drain(ctx)
		case <-ticker.C:
			if w.isOnline(ctx) {
				w.drain(ctx)
			}
		case <-probe.C:
			online := w.isOnline(ctx)
			if online && !wasOnline {
				w.logger.Info("Connectivity regained, draining sync queue")
				w.drain(ctx)
			}
			wasOnline = online
		}
	}
}

func (w *Worker) isOnline(ctx context.Context) bool {
	return w.online == nil || w.online.IsOnline(ctx)
}

func (w *Worker) drain(ctx context.Context) {
	_, err := w.queue.Drain(ctx)
	switch {
	case err == nil, errors.Is(err, ErrOffline), errors.Is(err, ErrDrainInProgress):
	case errors.Is(err, context.Canceled):
	default:
		w.logger.Error("Sync queue drain failed", slog.String("error", err.Error()))
	}
}
