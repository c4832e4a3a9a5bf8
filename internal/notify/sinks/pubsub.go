package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/scheduled-publisher/internal/notify"
)

// publishResult is the slice of *pubsub.PublishResult the sink waits on.
type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

type pubsubPublisher struct {
	p *pubsub.Publisher
}

func (p pubsubPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return p.p.Publish(ctx, msg)
}

func (p pubsubPublisher) Stop() { p.p.Stop() }

// PubSubSink publishes each message as JSON to a Pub/Sub topic, carrying the
// trace context in message attributes.
type PubSubSink struct {
	publisher topicPublisher
	client    *pubsub.Client
}

// NewPubSubSink creates a client for projectID and a publisher for topic.
func NewPubSubSink(ctx context.Context, projectID, topic string) (*PubSubSink, error) {
	if projectID == "" || topic == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubSink{
		publisher: pubsubPublisher{p: client.Publisher(topic)},
		client:    client,
	}, nil
}

// Consume publishes every message and waits for the server acknowledgements.
func (s *PubSubSink) Consume(ctx context.Context, batch []notify.Message) error {
	results := make([]publishResult, 0, len(batch))
	for _, msg := range batch {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		psMsg := &pubsub.Message{
			Data:       data,
			Attributes: map[string]string{"kind": string(msg.Kind)},
		}
		otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: psMsg.Attributes})
		results = append(results, s.publisher.Publish(ctx, psMsg))
	}
	for _, r := range results {
		if _, err := r.Get(ctx); err != nil {
			return fmt.Errorf("publish notification: %w", err)
		}
	}
	return nil
}

// Close flushes pending publishes and closes the client.
func (s *PubSubSink) Close(context.Context) error {
	s.publisher.Stop()
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
