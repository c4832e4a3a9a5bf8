package notify

import "context"

// Sink consumes batches of messages. Implementations must honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Message) error
	Close(ctx context.Context) error
}
