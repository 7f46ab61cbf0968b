package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobProcessor processes whatever work is pending when called.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker drains a JobProcessor on a fixed interval, and immediately after
// Wake so freshly ingested documents are snapshotted without waiting a tick.
type Worker struct {
	processor JobProcessor
	interval  time.Duration
	logger    *slog.Logger

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker that polls every interval.
func NewWorker(processor JobProcessor, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		processor: processor,
		interval:  interval,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Wake schedules a run without blocking. Wakes that arrive while one is
// already pending collapse into it.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start runs the loop until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.done)

	w.logger.Info("snapshot worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("snapshot worker stopped", slog.String("reason", "context cancelled"))
			return
		case <-w.stop:
			w.logger.Info("snapshot worker stopped", slog.String("reason", "stop signal"))
			return
		case <-ticker.C:
		case <-w.wake:
		}
		if err := w.processor.ProcessJobs(ctx); err != nil {
			w.logger.Error("snapshot run failed", slog.Any("error", err))
		}
	}
}

// Stop ends the loop and waits for the current run to finish. Jobs still
// queued are left for the caller to flush.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
