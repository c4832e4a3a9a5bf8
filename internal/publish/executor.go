// Package publish wraps the external publish capability with the login
// precondition, a hard timeout, and a normalized two-outcome result.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/metrics"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// LoginChecker reports whether the platform session is valid. It may attempt
// a fresh login as a side effect.
type LoginChecker interface {
	CheckLogin(ctx context.Context) (bool, error)
}

// Publisher runs the platform workflow that publishes one item.
type Publisher interface {
	Publish(ctx context.Context, item schedule.ScheduledItem) error
}

// Status is the outcome of one publish attempt.
type Status string

// Result statuses.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// TimeoutMessage is reported when the hard timeout expires.
const TimeoutMessage = "Timeout"

// Result is the normalized outcome handed to the result consumer.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	// Err carries the classified cause for errors.Is checks.
	Err error `json:"-"`
}

// OK reports whether the attempt succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// DefaultTimeout bounds an attempt when none is configured.
const DefaultTimeout = 90 * time.Second

// Executor checks login and publishes one item under a hard timeout.
type Executor struct {
	login     LoginChecker
	publisher Publisher
	timeout   time.Duration
	logger    *zap.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(login LoginChecker, publisher Publisher, timeout time.Duration, logger *zap.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		login:     login,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger.Named("publish"),
	}
}

// Publish always returns; a capability that ignores ctx is abandoned once the
// timeout expires.
func (e *Executor) Publish(ctx context.Context, item schedule.ScheduledItem) Result {
	ctx, span := otel.Tracer("scheduled-publisher/publish").Start(ctx, "publish.item")
	defer span.End()
	span.SetAttributes(attribute.String("item.id", item.ID), attribute.String("item.title", item.Title))

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failed(fmt.Errorf("%w: panic: %v", schedule.ErrPublishFailed, r))
			}
		}()
		done <- e.attempt(ctx, item)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Result{
			Status:  StatusFailed,
			Message: TimeoutMessage,
			Err:     fmt.Errorf("%w: %w", schedule.ErrPublishFailed, ctx.Err()),
		}
	}

	metrics.ObservePublish(string(res.Status), time.Since(start))
	if res.OK() {
		span.SetStatus(codes.Ok, "")
		e.logger.Info("item published", zap.String("item_id", item.ID), zap.String("title", item.Title))
	} else {
		span.SetStatus(codes.Error, res.Message)
		e.logger.Warn("publish failed",
			zap.String("item_id", item.ID),
			zap.String("title", item.Title),
			zap.String("message", res.Message),
		)
	}
	return res
}

func (e *Executor) attempt(ctx context.Context, item schedule.ScheduledItem) Result {
	if e.login != nil {
		ok, err := e.login.CheckLogin(ctx)
		if err != nil || !ok {
			if err == nil {
				err = errors.New("not logged in")
			}
			return failed(fmt.Errorf("%w: %w", schedule.ErrLoginInvalid, err))
		}
	}
	if e.publisher == nil {
		return failed(fmt.Errorf("%w: no publisher configured", schedule.ErrPublishFailed))
	}
	if err := e.publisher.Publish(ctx, item); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Status: StatusFailed, Message: TimeoutMessage, Err: fmt.Errorf("%w: %w", schedule.ErrPublishFailed, err)}
		}
		return failed(fmt.Errorf("%w: %w", schedule.ErrPublishFailed, err))
	}
	return Result{Status: StatusSuccess, Message: "published"}
}

func failed(err error) Result {
	return Result{Status: StatusFailed, Message: err.Error(), Err: err}
}
