package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/scheduled-publisher/internal/notify"
)

// WebhookConfig controls the chat webhook sink.
type WebhookConfig struct {
	URL string
	// RPS caps outbound posts per second; chat platforms throttle bursts.
	RPS    float64
	Client *http.Client
}

// WebhookSink posts each message to an incoming-webhook URL as {"text": ...}.
type WebhookSink struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

type webhookPayload struct {
	Text string `json:"text"`
}

// NewWebhookSink validates cfg and builds the sink.
func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &WebhookSink{
		url:     cfg.URL,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Consume posts the batch one message at a time, stopping at the first error.
func (s *WebhookSink) Consume(ctx context.Context, batch []notify.Message) error {
	for _, msg := range batch {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("webhook rate limit: %w", err)
		}
		if err := s.post(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookSink) post(ctx context.Context, msg notify.Message) error {
	body, err := json.Marshal(webhookPayload{Text: msg.Text})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *WebhookSink) Close(context.Context) error {
	return nil
}
