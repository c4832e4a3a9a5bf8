package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/metrics"
	"github.com/JakeFAU/scheduled-publisher/internal/publish"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// publishItem is the worker handler: one publish attempt plus the write-back
// of its outcome.
func (e *Engine) publishItem(ctx context.Context, item schedule.ScheduledItem) {
	logger := e.logger.With(zap.String("item_id", item.ID), zap.String("title", item.Title))
	res := e.attempt(ctx, item)

	if res.OK() {
		now := e.clock.Now()
		_, err := e.db.Update(ctx, func(doc *schedule.AppState) error {
			if doc.Find(item.ID) < 0 {
				logger.Warn("published item no longer in schedule; recording history only")
			}
			doc.RecordPublished(item, now)
			return nil
		})
		if err != nil {
			logger.Error("published but failed to record outcome", zap.Error(err))
		}
		e.notifier.Notify(schedule.NoticePublished, fmt.Sprintf("Published: %s", item.Title))
		return
	}

	_, err := e.db.Update(ctx, func(doc *schedule.AppState) error {
		idx := doc.Find(item.ID)
		if idx < 0 {
			return nil
		}
		doc.Schedule[idx].Status = schedule.StatusFailed
		doc.Schedule[idx].FailMessage = res.Message
		return nil
	})
	if err != nil {
		logger.Error("failed to record publish failure", zap.Error(err))
	}
	e.notifier.Notify(schedule.NoticeFailed, fmt.Sprintf("Failed to publish %s: %s", item.Title, res.Message))
}

// attempt converts an executor panic into a failed result so the item still
// reaches a terminal status.
func (e *Engine) attempt(ctx context.Context, item schedule.ScheduledItem) (res publish.Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic: %v", schedule.ErrPublishFailed, r)
			res = publish.Result{Status: publish.StatusFailed, Message: err.Error(), Err: err}
		}
	}()
	return e.exec.Publish(ctx, item)
}

// RefreshLogin runs the login health check and notifies on transitions.
func (e *Engine) RefreshLogin(ctx context.Context) (bool, error) {
	if e.login == nil {
		return e.state.LoggedIn(), nil
	}
	ok, err := e.login.CheckLogin(ctx)
	if err != nil {
		ok = false
	}
	metrics.SetLoggedIn(ok)
	if e.state.setLoggedIn(ok) {
		if ok {
			e.notifier.Notify(schedule.NoticeLogin, "Platform session is logged in")
		} else {
			text := "Platform session is logged out"
			if err != nil {
				text = fmt.Sprintf("%s: %v", text, err)
			}
			e.notifier.Notify(schedule.NoticeLogin, text)
		}
	}
	if err != nil {
		e.logger.Warn("login check failed", zap.Error(err))
		return false, fmt.Errorf("%w: %w", schedule.ErrLoginInvalid, err)
	}
	return ok, nil
}
