package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/notify"
)

// LogSink writes every notification as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each message in the batch.
func (s *LogSink) Consume(_ context.Context, batch []notify.Message) error {
	for _, msg := range batch {
		s.logger.Info("operator notification",
			zap.String("id", msg.ID.String()),
			zap.String("kind", string(msg.Kind)),
			zap.Time("ts", msg.TS),
			zap.String("text", msg.Text),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
