package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// ActionResult is the outcome of an operator command.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func success(msg string) ActionResult {
	return ActionResult{Success: true, Message: msg}
}

func failure(err error) ActionResult {
	return ActionResult{Success: false, Message: err.Error(), Err: err}
}

// StatusView is the runtime status block served with the document.
type StatusView struct {
	LoggedIn       bool       `json:"loggedIn"`
	ActiveDB       string     `json:"activeDb"`
	QueueCount     int        `json:"queueCount"`
	LastCheckTime  *time.Time `json:"lastCheckTime"`
	IsWorkerPaused bool       `json:"isWorkerPaused"`
}

// Commands is the operator surface consumed by chat bots, the HTTP API and
// the CLI.
type Commands interface {
	LoadData(ctx context.Context) (schedule.AppState, error)
	CheckLogin(ctx context.Context) ActionResult
	PublishMissed(ctx context.Context, identifier string) ActionResult
	RescheduleMissed(ctx context.Context, identifier, offset string) ActionResult
	ClearMissedCache() ActionResult
	SwitchDatabase(ctx context.Context) ActionResult
	PublishNow(ctx context.Context, ids []string) ActionResult
	Reschedule(ctx context.Context, ids []string, when string) ActionResult
	Pause() ActionResult
	Resume() ActionResult
	Status() StatusView
}

var _ Commands = (*Engine)(nil)

// LoadData returns the current document from the active backend.
func (e *Engine) LoadData(ctx context.Context) (schedule.AppState, error) {
	doc, err := e.db.Load(ctx)
	if err != nil {
		return schedule.AppState{}, fmt.Errorf("load data: %w", err)
	}
	return doc, nil
}

// CheckLogin runs the login check on demand.
func (e *Engine) CheckLogin(ctx context.Context) ActionResult {
	ok, err := e.RefreshLogin(ctx)
	if err != nil {
		return failure(err)
	}
	if !ok {
		return failure(fmt.Errorf("%w: session is not logged in", schedule.ErrLoginInvalid))
	}
	return success("Logged in")
}

// SwitchDatabase performs a failover cutover to the next primary.
func (e *Engine) SwitchDatabase(ctx context.Context) ActionResult {
	cut, err := e.db.Switch(ctx)
	if err != nil {
		return failure(err)
	}
	return success(fmt.Sprintf("Switched database from %s to %s", cut.From, cut.To))
}

// PublishNow queues the listed items immediately, whatever their schedule.
func (e *Engine) PublishNow(ctx context.Context, ids []string) ActionResult {
	if len(ids) == 0 {
		return failure(errors.New("itemIds is required"))
	}
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	doc, err := e.db.Load(ctx)
	if err != nil {
		return failure(fmt.Errorf("publish now: %w", err))
	}

	var (
		queued  []schedule.ScheduledItem
		skipped []string
	)
	for _, id := range ids {
		idx := doc.Find(id)
		if idx < 0 {
			skipped = append(skipped, id+" (not found)")
			continue
		}
		if !e.state.claim(id) {
			skipped = append(skipped, id+" (already queued)")
			continue
		}
		queued = append(queued, doc.Schedule[idx])
	}
	if len(queued) == 0 {
		return failure(fmt.Errorf("%w: nothing to publish: %s", schedule.ErrNotFound, strings.Join(skipped, ", ")))
	}
	for _, item := range queued {
		e.state.removeMissed(item.ID)
	}
	e.worker.Enqueue(ctx, queued...)

	e.logger.Info("items queued on demand", zap.Int("count", len(queued)), zap.Strings("skipped", skipped))
	msg := fmt.Sprintf("Queued %d item(s) for publishing", len(queued))
	if len(skipped) > 0 {
		msg += "; skipped " + strings.Join(skipped, ", ")
	}
	return success(msg)
}

// Reschedule moves the listed items to when (an offset or an RFC 3339
// timestamp) and resets them to Pending.
func (e *Engine) Reschedule(ctx context.Context, ids []string, when string) ActionResult {
	if len(ids) == 0 {
		return failure(errors.New("itemIds is required"))
	}
	at, err := ResolveTime(when, e.clock.Now())
	if err != nil {
		return failure(err)
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	if _, err := e.db.Update(ctx, func(doc *schedule.AppState) error {
		return reschedule(doc, ids, at)
	}); err != nil {
		return failure(fmt.Errorf("reschedule: %w", err))
	}
	e.state.removeMissed(ids...)

	e.logger.Info("items rescheduled", zap.Strings("ids", ids), zap.Time("at", at))
	return success(fmt.Sprintf("Rescheduled %d item(s) to %s", len(ids), at.Format(time.RFC3339)))
}

// Pause stops new scan cycles. An in-flight publish is not interrupted.
func (e *Engine) Pause() ActionResult {
	if e.state.setPaused(true) {
		e.logger.Info("worker paused")
		e.notifier.Notify(schedule.NoticeInfo, "Publishing worker paused")
	}
	return success("Worker paused")
}

// Resume re-enables scan cycles.
func (e *Engine) Resume() ActionResult {
	if e.state.setPaused(false) {
		e.logger.Info("worker resumed")
		e.notifier.Notify(schedule.NoticeInfo, "Publishing worker resumed")
	}
	return success("Worker resumed")
}

// Status reports the runtime status block.
func (e *Engine) Status() StatusView {
	view := StatusView{
		LoggedIn:       e.state.LoggedIn(),
		ActiveDB:       e.db.ActiveName(),
		QueueCount:     e.worker.Len(),
		IsWorkerPaused: e.state.Paused(),
	}
	if last := e.state.LastCheck(); !last.IsZero() {
		view.LastCheckTime = &last
	}
	return view
}
