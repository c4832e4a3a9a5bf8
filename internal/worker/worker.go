// Package worker implements the single-flight publish drain loop.
package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/metrics"
	"github.com/JakeFAU/scheduled-publisher/internal/queue/memory"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// Handler runs the publish workflow for one item and returns once the item
// has reached a terminal outcome.
type Handler func(ctx context.Context, item schedule.ScheduledItem)

// DoneFunc runs after every handled item, including ones whose handler panicked.
type DoneFunc func(item schedule.ScheduledItem)

// Worker owns the publish queue. At most one drain loop runs at a time, so at
// most one publish is in flight globally.
type Worker struct {
	handle Handler
	done   DoneFunc
	logger *zap.Logger

	mu         sync.Mutex
	pending    *memory.Queue[schedule.ScheduledItem]
	processing bool
	wg         sync.WaitGroup
}

// New constructs a Worker.
func New(handle Handler, done DoneFunc, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		handle:  handle,
		done:    done,
		logger:  logger.Named("worker"),
		pending: memory.NewQueue[schedule.ScheduledItem](16),
	}
}

// Enqueue appends items to the tail of the queue and starts a drain loop if
// none is active.
func (w *Worker) Enqueue(ctx context.Context, items ...schedule.ScheduledItem) {
	if len(items) == 0 {
		return
	}
	w.mu.Lock()
	w.pending.Push(items...)
	depth := w.pending.Len()
	w.mu.Unlock()
	metrics.SetQueueDepth(depth)

	for _, item := range items {
		w.logger.Debug("item enqueued", zap.String("item_id", item.ID), zap.String("title", item.Title))
	}
	w.Drain(ctx)
}

// Drain starts the drain loop. It is a no-op returning false when a loop is
// already active or the queue is empty. The loop outlives ctx cancellation so
// a request-scoped caller cannot abort queued publishes.
func (w *Worker) Drain(ctx context.Context) bool {
	w.mu.Lock()
	if w.processing || w.pending.Len() == 0 {
		w.mu.Unlock()
		return false
	}
	w.processing = true
	w.wg.Add(1)
	w.mu.Unlock()

	go w.run(context.WithoutCancel(ctx))
	return true
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Debug("drain started")
	for {
		w.mu.Lock()
		item, ok := w.pending.Pop()
		if !ok {
			w.processing = false
			w.mu.Unlock()
			w.logger.Debug("drain finished")
			return
		}
		depth := w.pending.Len()
		w.mu.Unlock()
		metrics.SetQueueDepth(depth)

		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item schedule.ScheduledItem) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("publish workflow panicked",
				zap.String("item_id", item.ID),
				zap.Error(fmt.Errorf("panic: %v", r)),
			)
		}
		if w.done != nil {
			w.done(item)
		}
	}()
	w.handle(ctx, item)
}

// Len reports the number of items waiting for a publish attempt.
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.Len()
}

// Queued returns the waiting items in FIFO order.
func (w *Worker) Queued() []schedule.ScheduledItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.Snapshot()
}

// Processing reports whether a drain loop is active.
func (w *Worker) Processing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processing
}

// Wait blocks until the active drain loop exits or ctx ends.
func (w *Worker) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for drain: %w", ctx.Err())
	}
}
