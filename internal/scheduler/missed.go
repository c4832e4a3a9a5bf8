package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// PublishMissed moves cached missed items into the publish queue. AllMissed
// moves every cached item; any other identifier moves the first item whose
// title matches it case-insensitively.
func (e *Engine) PublishMissed(ctx context.Context, identifier string) ActionResult {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	matches := e.state.matchMissed(identifier)
	if len(matches) == 0 {
		return failure(fmt.Errorf("%w: no missed item matching %q", schedule.ErrNotFound, identifier))
	}
	if identifier != AllMissed {
		matches = matches[:1]
	}

	var queued []schedule.ScheduledItem
	ids := make([]string, 0, len(matches))
	for _, item := range matches {
		ids = append(ids, item.ID)
		if e.state.claim(item.ID) {
			queued = append(queued, item)
		}
	}
	e.state.removeMissed(ids...)
	e.worker.Enqueue(ctx, queued...)

	e.logger.Info("missed items queued", zap.String("identifier", identifier), zap.Int("count", len(queued)))
	return success(fmt.Sprintf("Queued %d missed item(s) for publishing", len(queued)))
}

// RescheduleMissed sets the matching cached items back to Pending at now plus
// offset, then drops them from the cache.
func (e *Engine) RescheduleMissed(ctx context.Context, identifier, offset string) ActionResult {
	d, err := ParseOffset(offset)
	if err != nil {
		return failure(err)
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	matches := e.state.matchMissed(identifier)
	if len(matches) == 0 {
		return failure(fmt.Errorf("%w: no missed item matching %q", schedule.ErrNotFound, identifier))
	}
	ids := make([]string, 0, len(matches))
	for _, item := range matches {
		ids = append(ids, item.ID)
	}

	at := e.clock.Now().Add(d).UTC()
	_, err = e.db.Update(ctx, func(doc *schedule.AppState) error {
		return reschedule(doc, ids, at)
	})
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		// Deleted outside the service; nothing left to resolve.
		e.state.removeMissed(ids...)
		return failure(err)
	case err != nil:
		e.logger.Error("failed to reschedule missed items", zap.Error(err))
		return failure(fmt.Errorf("reschedule missed: %w", err))
	}
	e.state.removeMissed(ids...)

	e.logger.Info("missed items rescheduled", zap.String("identifier", identifier), zap.Time("at", at), zap.Int("count", len(ids)))
	return success(fmt.Sprintf("Rescheduled %d item(s) to %s", len(ids), at.Format(time.RFC3339)))
}

// ClearMissedCache forgets every cached missed item and re-arms the alert.
func (e *Engine) ClearMissedCache() ActionResult {
	n := e.state.clearMissed()
	e.logger.Info("missed cache cleared", zap.Int("count", n))
	return success(fmt.Sprintf("Cleared %d missed item(s)", n))
}

// reschedule moves the listed items to at and resets them to Pending. It
// returns ErrNotFound when none of them is in the schedule.
func reschedule(doc *schedule.AppState, ids []string, at time.Time) error {
	found := 0
	for _, id := range ids {
		idx := doc.Find(id)
		if idx < 0 {
			continue
		}
		found++
		doc.Schedule[idx].ScheduledAtUTC = at
		doc.Schedule[idx].Status = schedule.StatusPending
		doc.Schedule[idx].FailMessage = ""
	}
	if found == 0 {
		return fmt.Errorf("%w: none of %v is scheduled", schedule.ErrNotFound, ids)
	}
	return nil
}
