package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/scheduled-publisher/internal/clock/system"
	"github.com/JakeFAU/scheduled-publisher/internal/metrics"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// Config controls buffering and batching for the Hub.
type Config struct {
	BufferSize       int
	MaxBatchMessages int
	MaxBatchWait     time.Duration
	SinkTimeout      time.Duration
	BaseContext      context.Context
	Logger           *zap.Logger
	Clock            schedule.Clock
}

const (
	defaultBufferSize       = 256
	defaultMaxBatchMessages = 50
	defaultMaxBatchWait     = 250 * time.Millisecond
	defaultSinkTimeout      = 10 * time.Second
	dropLogInterval         = 5 * time.Second
)

// Hub buffers messages and fans them out to sinks on a background goroutine.
// It is safe for concurrent use and never blocks callers.
type Hub struct {
	cfg      Config
	sinks    []Sink
	messages chan Message
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *zap.Logger
	dropLog  rate.Sometimes
	dropped  atomic.Int64
	closed   atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub initializes a Hub and starts the batching goroutine.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchMessages <= 0 {
		cfg.MaxBatchMessages = defaultMaxBatchMessages
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:      cfg,
		sinks:    append([]Sink(nil), sinks...),
		messages: make(chan Message, cfg.BufferSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger.Named("notify"),
		dropLog:  rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Notify builds a Message and emits it.
func (h *Hub) Notify(kind schedule.NoticeKind, text string) {
	if h == nil {
		return
	}
	h.Emit(Message{
		ID:   uuid.New(),
		TS:   h.cfg.Clock.Now().UTC(),
		Kind: kind,
		Text: text,
	})
}

// Emit enqueues a Message. When the buffer is full the message is dropped and
// a rate-limited warning is logged.
func (h *Hub) Emit(msg Message) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := msg.Validate(); err != nil {
		h.logger.Debug("discarding invalid notification", zap.Error(err))
		return
	}
	select {
	case h.messages <- msg:
	default:
		h.dropped.Add(1)
		metrics.ObserveNotificationDropped()
		h.dropLog.Do(func() {
			h.logger.Warn("notifications dropped due to backpressure", zap.Int64("dropped", h.dropped.Swap(0)))
		})
	}
}

// Close drains buffered messages, flushes and closes sinks, then waits for the
// background goroutine. Subsequent calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]Message, 0, h.cfg.MaxBatchMessages)
	timer := time.NewTimer(h.cfg.MaxBatchWait)
	timer.Stop()
	for {
		select {
		case msg := <-h.messages:
			batch = append(batch, msg)
			if len(batch) >= h.cfg.MaxBatchMessages {
				timer.Stop()
				h.flush(batch)
				batch = batch[:0]
			} else if len(batch) == 1 {
				timer.Reset(h.cfg.MaxBatchWait)
			}
		case <-timer.C:
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			timer.Stop()
			h.drain(batch)
			return
		}
	}
}

func (h *Hub) drain(batch []Message) {
	for {
		select {
		case msg := <-h.messages:
			batch = append(batch, msg)
			if len(batch) >= h.cfg.MaxBatchMessages {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.flush(batch)
			}
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) flush(batch []Message) {
	copyBatch := append([]Message(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, copyBatch); err != nil {
			h.logger.Warn("notification sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("notification sink close failed", zap.Error(err))
		}
	}
}
