// Package scheduler runs the scan cycle that classifies scheduled items as
// future, due or missed, feeds due items to the single-flight publish worker,
// and exposes the operator commands used by the HTTP API and the CLI.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/clock/system"
	"github.com/JakeFAU/scheduled-publisher/internal/failover"
	"github.com/JakeFAU/scheduled-publisher/internal/publish"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
	"github.com/JakeFAU/scheduled-publisher/internal/worker"
)

// GraceWindow separates due items from missed ones.
const GraceWindow = 5 * time.Minute

// AllMissed selects every cached missed item.
const AllMissed = "all-missed"

const instrumentation = "scheduled-publisher/scheduler"

// Database is the document access the engine needs: serialized updates plus
// the failover operations surfaced to operators.
type Database interface {
	schedule.Store
	ActiveName() string
	Switch(ctx context.Context) (failover.Cutover, error)
}

// Executor runs one publish attempt and always returns a result.
type Executor interface {
	Publish(ctx context.Context, item schedule.ScheduledItem) publish.Result
}

// Options tunes an Engine. Zero values fall back to sensible defaults.
type Options struct {
	StartPaused bool
	Notifier    schedule.Notifier
	Clock       schedule.Clock
	Logger      *zap.Logger
}

// Engine owns the runtime state and the publish worker.
type Engine struct {
	db       Database
	exec     Executor
	login    publish.LoginChecker
	notifier schedule.Notifier
	clock    schedule.Clock
	logger   *zap.Logger

	state  *State
	worker *worker.Worker

	// cycleMu orders scan classification against in-progress releases and
	// manual claims so a stale document never re-enqueues a finished item.
	cycleMu sync.Mutex
}

type nopNotifier struct{}

func (nopNotifier) Notify(schedule.NoticeKind, string) {}

// New constructs an Engine. login may be nil when no session check is needed.
func New(db Database, exec Executor, login publish.LoginChecker, opts Options) *Engine {
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	e := &Engine{
		db:       db,
		exec:     exec,
		login:    login,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("scheduler"),
		state:    NewState(opts.StartPaused),
	}
	e.worker = worker.New(e.publishItem, e.finish, opts.Logger)
	return e
}

// State exposes the runtime state for inspection.
func (e *Engine) State() *State {
	return e.state
}

// Worker exposes the publish worker.
func (e *Engine) Worker() *worker.Worker {
	return e.worker
}

// Wait blocks until the publish worker is idle or ctx ends.
func (e *Engine) Wait(ctx context.Context) error {
	return e.worker.Wait(ctx)
}

func (e *Engine) finish(item schedule.ScheduledItem) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	e.state.release(item.ID)
}
