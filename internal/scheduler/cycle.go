package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/metrics"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// Scan cycle outcomes reported to metrics.
const (
	outcomeOK         = "ok"
	outcomePaused     = "paused"
	outcomeDisabled   = "disabled"
	outcomeStoreError = "store_error"
)

// RunScanCycle loads the document, enqueues due items and records missed
// ones. It never fails: store errors are logged and the cycle becomes a no-op
// until the next tick.
func (e *Engine) RunScanCycle(ctx context.Context) {
	if e.state.Paused() {
		metrics.ObserveScanCycle(outcomePaused)
		e.logger.Debug("scan skipped: worker paused")
		return
	}

	ctx, span := otel.Tracer(instrumentation).Start(ctx, "scheduler.scan")
	defer span.End()

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	doc, err := e.db.Load(ctx)
	if err != nil {
		span.RecordError(err)
		metrics.ObserveScanCycle(outcomeStoreError)
		e.logger.Error("scan cycle could not load schedule", zap.Error(err))
		return
	}
	if !doc.Settings.AutoPublishing() {
		metrics.ObserveScanCycle(outcomeDisabled)
		e.logger.Debug("scan skipped: auto publishing disabled")
		return
	}

	now := e.clock.Now().UTC()
	e.state.markChecked(now)

	var due, missed []schedule.ScheduledItem
	future := 0
	for _, item := range doc.Schedule {
		if item.Status != schedule.StatusPending {
			continue
		}
		age := now.Sub(item.ScheduledAtUTC)
		switch {
		case age < 0:
			future++
		case age < GraceWindow:
			if e.state.claim(item.ID) {
				due = append(due, item)
			}
		default:
			if e.state.shouldMarkMissed(item.ID) {
				missed = append(missed, item)
			}
		}
	}
	span.SetAttributes(
		attribute.Int("scan.future", future),
		attribute.Int("scan.due", len(due)),
		attribute.Int("scan.missed", len(missed)),
	)
	metrics.ObserveClassified("future", future)
	metrics.ObserveClassified("due", len(due))
	metrics.ObserveClassified("missed", len(missed))

	if len(missed) > 0 {
		recorded, err := e.markMissed(ctx, missed)
		if err != nil {
			span.RecordError(err)
			e.logger.Error("failed to persist missed items", zap.Error(err), zap.Int("count", len(missed)))
		}
		if e.state.addMissed(recorded) {
			e.notifier.Notify(schedule.NoticeMissed, missedAlert(e.state.Missed()))
		}
	}

	if len(due) > 0 {
		e.logger.Info("enqueueing due items", zap.Int("count", len(due)))
		e.worker.Enqueue(ctx, due...)
	}
	metrics.ObserveScanCycle(outcomeOK)
}

// markMissed persists Failed status for the items that are still Pending and
// returns the ones it changed.
func (e *Engine) markMissed(ctx context.Context, items []schedule.ScheduledItem) ([]schedule.ScheduledItem, error) {
	var changed []schedule.ScheduledItem
	_, err := e.db.Update(ctx, func(doc *schedule.AppState) error {
		changed = changed[:0]
		for _, item := range items {
			idx := doc.Find(item.ID)
			if idx < 0 || doc.Schedule[idx].Status != schedule.StatusPending {
				continue
			}
			doc.Schedule[idx].Status = schedule.StatusFailed
			doc.Schedule[idx].FailMessage = schedule.MissedMessage
			changed = append(changed, doc.Schedule[idx])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark missed: %w", err)
	}
	for _, item := range changed {
		e.logger.Warn("item missed its publish window",
			zap.String("item_id", item.ID),
			zap.String("title", item.Title),
			zap.Time("scheduled_at", item.ScheduledAtUTC),
		)
	}
	return changed, nil
}

func missedAlert(items []schedule.ScheduledItem) string {
	msg := fmt.Sprintf("%d item(s) missed their publish window:", len(items))
	for _, item := range items {
		msg += fmt.Sprintf("\n- %s (scheduled %s)", item.Title, item.ScheduledAtUTC.Format(time.RFC3339))
	}
	return msg + fmt.Sprintf("\nReply with publish %q, a title, or reschedule <title> <offset>.", AllMissed)
}
