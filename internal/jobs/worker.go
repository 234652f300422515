// Package jobs runs the background loops of tutorfitd: draining learning
// jobs and periodically recomputing composite scores.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/telemetry"
)

// JobProcessor handles one poll of a worker.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

type WorkerOption func(*Worker)

// WithRunOnStart makes the worker poll once before the first tick.
func WithRunOnStart() WorkerOption {
	return func(w *Worker) { w.runOnStart = true }
}

// Worker polls a JobProcessor on a fixed interval until stopped.
type Worker struct {
	name       string
	processor  JobProcessor
	interval   time.Duration
	runOnStart bool
	logger     *zap.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	failures int
}

func NewWorker(name string, processor JobProcessor, interval time.Duration, logger *zap.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		name:      name,
		processor: processor,
		interval:  interval,
		logger:    logger.With(zap.String("worker", name)),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start blocks until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("worker started", zap.Duration("interval", w.interval))
	if w.runOnStart {
		w.poll(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", zap.String("reason", "context cancelled"))
			return
		case <-w.stop:
			w.logger.Info("worker stopped", zap.String("reason", "stop requested"))
			return
		case <-ticker.C:
			select {
			case <-w.stop:
				continue
			default:
			}
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	err := w.runProcessor(ctx)
	if err == nil {
		if w.failures > 0 {
			w.logger.Info("worker recovered", zap.Int("failed_polls", w.failures))
		}
		w.failures = 0
		return
	}
	if ctx.Err() != nil {
		return
	}
	w.failures++
	w.logger.Error("poll failed", zap.Int("consecutive_failures", w.failures), zap.Error(err))
	telemetry.CaptureError(ctx, err)
}

// runProcessor converts a panic in the processor into a failed poll so the
// loop keeps running.
func (w *Worker) runProcessor(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s panicked: %v", w.name, r)
			w.logger.Error("poll panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	return w.processor.ProcessJobs(ctx)
}

// Stop signals the loop and waits for the in-flight poll to finish.
// It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
