// Package failover tracks which primary backend is active, reconciles that
// choice against the backup on startup, and performs coordinated cutovers.
// The Controller is also the single writer for the document: every
// read-modify-write goes through Update.
package failover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/metrics"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// ErrNoPrimaries is returned by New when no primary backend is configured.
var ErrNoPrimaries = errors.New("at least one primary backend is required")

const instrumentation = "scheduled-publisher/failover"

// Cutover describes a completed switch.
type Cutover struct {
	ID        string
	FromIndex int
	ToIndex   int
	From      string
	To        string
}

// Topology is a read-only view of the configured backends.
type Topology struct {
	ActiveIndex int
	Active      string
	Primaries   []string
	Backup      string
}

// Controller owns the primaries and the optional backup.
type Controller struct {
	primaries []schedule.Backend
	backup    schedule.Backend
	notifier  schedule.Notifier
	logger    *zap.Logger
	duration  metric.Float64Histogram

	// writeMu serializes document writes, backups and cutovers.
	writeMu sync.Mutex

	activeMu sync.RWMutex
	active   int
}

type nopNotifier struct{}

func (nopNotifier) Notify(schedule.NoticeKind, string) {}

// New constructs a Controller with primary 0 active. backup may be nil.
func New(primaries []schedule.Backend, backup schedule.Backend, notifier schedule.Notifier, logger *zap.Logger) (*Controller, error) {
	if len(primaries) == 0 {
		return nil, ErrNoPrimaries
	}
	for i, p := range primaries {
		if p == nil {
			return nil, fmt.Errorf("primary %d is nil", i)
		}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	duration, err := otel.Meter(instrumentation).Float64Histogram(
		"publisher.db.cutover.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of database cutovers."),
	)
	if err != nil {
		return nil, fmt.Errorf("create cutover histogram: %w", err)
	}
	return &Controller{
		primaries: append([]schedule.Backend(nil), primaries...),
		backup:    backup,
		notifier:  notifier,
		logger:    logger.Named("failover"),
		duration:  duration,
	}, nil
}

// ActiveIndex returns the index of the active primary.
func (c *Controller) ActiveIndex() int {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	return c.active
}

// ActiveName returns the name of the active primary.
func (c *Controller) ActiveName() string {
	return c.primaries[c.ActiveIndex()].Name()
}

// Topology reports the configured backends.
func (c *Controller) Topology() Topology {
	idx := c.ActiveIndex()
	t := Topology{ActiveIndex: idx, Active: c.primaries[idx].Name()}
	for _, p := range c.primaries {
		t.Primaries = append(t.Primaries, p.Name())
	}
	if c.backup != nil {
		t.Backup = c.backup.Name()
	}
	return t
}

func (c *Controller) setActive(idx int) {
	c.activeMu.Lock()
	c.active = idx
	c.activeMu.Unlock()
}

// Reconcile adopts the active index recorded in the backup document when it
// differs from the current one and names a valid primary. It returns the
// active index after reconciliation.
func (c *Controller) Reconcile(ctx context.Context) (int, error) {
	current := c.ActiveIndex()
	if c.backup == nil {
		return current, nil
	}
	doc, err := c.backup.Load(ctx)
	if err != nil {
		metrics.ObserveStoreError(c.backup.Name(), "load")
		return current, fmt.Errorf("%w: read backup %s: %w", schedule.ErrStoreUnavailable, c.backup.Name(), err)
	}
	recorded := doc.DBConfig.ActiveIndex
	switch {
	case recorded == current:
	case recorded < 0 || recorded >= len(c.primaries):
		c.logger.Warn("backup records an unknown primary; keeping default",
			zap.Int("recorded_index", recorded),
			zap.Int("primaries", len(c.primaries)),
		)
	default:
		c.setActive(recorded)
		c.logger.Info("adopted active primary from backup",
			zap.Int("from_index", current),
			zap.Int("to_index", recorded),
			zap.String("backend", c.primaries[recorded].Name()),
		)
	}
	return c.ActiveIndex(), nil
}

// Load reads the document from the active primary.
func (c *Controller) Load(ctx context.Context) (schedule.AppState, error) {
	backend := c.primaries[c.ActiveIndex()]
	state, err := backend.Load(ctx)
	if err != nil {
		metrics.ObserveStoreError(backend.Name(), "load")
		return schedule.AppState{}, fmt.Errorf("%w: %s: %w", schedule.ErrStoreUnavailable, backend.Name(), err)
	}
	return state, nil
}

// Update runs fn against the current document and saves the result through
// the active primary, stamping db_config.active_index. Concurrent updates are
// serialized. If fn returns an error nothing is written.
func (c *Controller) Update(ctx context.Context, fn func(*schedule.AppState) error) (schedule.AppState, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	idx := c.ActiveIndex()
	backend := c.primaries[idx]
	state, err := backend.Load(ctx)
	if err != nil {
		metrics.ObserveStoreError(backend.Name(), "load")
		return schedule.AppState{}, fmt.Errorf("%w: %s: %w", schedule.ErrStoreUnavailable, backend.Name(), err)
	}
	if err := fn(&state); err != nil {
		return schedule.AppState{}, err
	}
	state.DBConfig.ActiveIndex = idx
	if err := backend.Save(ctx, state); err != nil {
		metrics.ObserveStoreError(backend.Name(), "save")
		return schedule.AppState{}, fmt.Errorf("%w: %s: %w", schedule.ErrStoreUnavailable, backend.Name(), err)
	}
	return state, nil
}

// Backup copies the active document to the backup backend.
func (c *Controller) Backup(ctx context.Context) error {
	if c.backup == nil {
		return fmt.Errorf("%w: no backup backend configured", schedule.ErrInsufficientTopology)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	idx := c.ActiveIndex()
	doc, err := c.primaries[idx].Load(ctx)
	if err != nil {
		metrics.ObserveStoreError(c.primaries[idx].Name(), "load")
		return fmt.Errorf("%w: read %s: %w", schedule.ErrStoreUnavailable, c.primaries[idx].Name(), err)
	}
	doc.DBConfig.ActiveIndex = idx
	if err := c.backup.Save(ctx, doc); err != nil {
		metrics.ObserveStoreError(c.backup.Name(), "save")
		return fmt.Errorf("%w: write %s: %w", schedule.ErrStoreUnavailable, c.backup.Name(), err)
	}
	c.logger.Info("backup written", zap.String("from", c.primaries[idx].Name()), zap.String("to", c.backup.Name()))
	return nil
}

// Switch moves the active pointer to the next primary (round-robin) via the
// backup. The pointer flips only after every write succeeded; any failure
// leaves the previous primary active and returns ErrCutoverAborted.
func (c *Controller) Switch(ctx context.Context) (Cutover, error) {
	if c.backup == nil || len(c.primaries) < 2 {
		return Cutover{}, fmt.Errorf("%w: switching needs a backup and at least two primaries (have %d primaries, backup=%t)",
			schedule.ErrInsufficientTopology, len(c.primaries), c.backup != nil)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	from := c.ActiveIndex()
	to := (from + 1) % len(c.primaries)
	cut := Cutover{
		ID:        uuid.NewString(),
		FromIndex: from,
		ToIndex:   to,
		From:      c.primaries[from].Name(),
		To:        c.primaries[to].Name(),
	}
	logger := c.logger.With(zap.String("cutover_id", cut.ID), zap.String("from", cut.From), zap.String("to", cut.To))

	ctx, span := otel.Tracer(instrumentation).Start(ctx, "db.cutover")
	defer span.End()
	span.SetAttributes(
		attribute.String("cutover.id", cut.ID),
		attribute.String("cutover.from", cut.From),
		attribute.String("cutover.to", cut.To),
	)
	start := time.Now()

	if err := c.cutover(ctx, from, to); err != nil {
		err = fmt.Errorf("%w: %w", schedule.ErrCutoverAborted, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("result", "aborted")))
		metrics.ObserveCutover("aborted")
		logger.Error("database cutover aborted", zap.Error(err))
		c.notifier.Notify(schedule.NoticeDatabase,
			fmt.Sprintf("Database switch aborted, still on %s: %v", cut.From, err))
		return Cutover{}, err
	}

	c.setActive(to)
	c.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("result", "success")))
	metrics.ObserveCutover("success")
	logger.Info("database cutover complete")
	c.notifier.Notify(schedule.NoticeDatabase, fmt.Sprintf("Switched database from %s to %s", cut.From, cut.To))
	return cut, nil
}

func (c *Controller) cutover(ctx context.Context, from, to int) error {
	current, err := c.primaries[from].Load(ctx)
	if err != nil {
		return fmt.Errorf("read active %s: %w", c.primaries[from].Name(), err)
	}
	current.DBConfig.ActiveIndex = from
	if err := c.backup.Save(ctx, current); err != nil {
		return fmt.Errorf("copy active to backup %s: %w", c.backup.Name(), err)
	}
	snapshot, err := c.backup.Load(ctx)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", c.backup.Name(), err)
	}
	snapshot.DBConfig.ActiveIndex = to
	if err := c.primaries[to].Save(ctx, snapshot); err != nil {
		return fmt.Errorf("write new primary %s: %w", c.primaries[to].Name(), err)
	}
	if err := c.backup.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("stamp backup %s: %w", c.backup.Name(), err)
	}
	return nil
}

// Close closes every backend.
func (c *Controller) Close() error {
	var errs []error
	for _, p := range c.primaries {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.Name(), err))
		}
	}
	if c.backup != nil {
		if err := c.backup.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.backup.Name(), err))
		}
	}
	return errors.Join(errs...)
}
