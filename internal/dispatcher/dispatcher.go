// Package dispatcher runs the periodic duties (scan cycle, login health check,
// cron jobs such as the daily backup) under one shutdown signal.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Duty is a job run on a fixed interval. Runs of one duty never overlap.
type Duty struct {
	Name         string
	Interval     time.Duration
	InitialDelay time.Duration
	Run          func(ctx context.Context)
}

// CronDuty is a job run on a cron schedule (standard five-field syntax, UTC).
type CronDuty struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
}

// Dispatcher owns the duty goroutines.
type Dispatcher struct {
	logger *zap.Logger
	ticked []Duty
	crons  []scheduledDuty
	cron   *cron.Cron
}

type scheduledDuty struct {
	duty     CronDuty
	schedule cron.Schedule
}

// New creates an empty Dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger: logger.Named("dispatcher"),
		cron:   cron.New(cron.WithLocation(time.UTC)),
	}
}

// Every registers an interval duty. A non-positive interval disables it.
func (d *Dispatcher) Every(duty Duty) error {
	if duty.Run == nil {
		return fmt.Errorf("duty %q has no run func", duty.Name)
	}
	if duty.Interval <= 0 {
		d.logger.Info("duty disabled", zap.String("duty", duty.Name))
		return nil
	}
	d.ticked = append(d.ticked, duty)
	return nil
}

// Cron registers a cron duty. The cron expression is validated immediately.
func (d *Dispatcher) Cron(duty CronDuty) error {
	if duty.Run == nil {
		return fmt.Errorf("cron duty %q has no run func", duty.Name)
	}
	if duty.Spec == "" {
		return errors.New("cron spec is required")
	}
	sched, err := cron.ParseStandard(duty.Spec)
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", duty.Name, duty.Spec, err)
	}
	d.crons = append(d.crons, scheduledDuty{duty: duty, schedule: sched})
	return nil
}

// Run starts every duty and blocks until ctx is done and all duties exit.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, duty := range d.ticked {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.loop(ctx, duty)
		}()
	}
	for _, sd := range d.crons {
		logger := d.logger.With(zap.String("duty", sd.duty.Name))
		d.cron.Schedule(sd.schedule, cron.FuncJob(func() {
			logger.Debug("cron duty firing")
			d.runOnce(ctx, logger, Duty{Name: sd.duty.Name, Run: sd.duty.Run})
		}))
		logger.Info("cron duty scheduled", zap.String("spec", sd.duty.Spec))
	}
	d.cron.Start()

	<-ctx.Done()
	<-d.cron.Stop().Done()
	wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context, duty Duty) {
	logger := d.logger.With(zap.String("duty", duty.Name))
	logger.Info("duty started", zap.Duration("interval", duty.Interval), zap.Duration("initial_delay", duty.InitialDelay))

	delay := time.NewTimer(duty.InitialDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}
	d.runOnce(ctx, logger, duty)

	ticker := time.NewTicker(duty.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runOnce(ctx, logger, duty)
		}
	}
}

func (d *Dispatcher) runOnce(ctx context.Context, logger *zap.Logger, duty Duty) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("duty panicked", zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	if ctx.Err() != nil {
		return
	}
	duty.Run(ctx)
}
