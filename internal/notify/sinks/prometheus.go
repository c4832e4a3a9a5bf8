package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/scheduled-publisher/internal/notify"
)

// PrometheusSink counts delivered notifications by kind.
type PrometheusSink struct {
	delivered *prometheus.CounterVec
}

// NewPrometheusSink registers the collector against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_notifications_total",
			Help: "Operator notifications emitted, partitioned by kind.",
		}, []string{"kind"}),
	}
	if err := reg.Register(s.delivered); err != nil {
		return nil, fmt.Errorf("register notification collector: %w", err)
	}
	return s, nil
}

// Consume increments the counter for each message.
func (s *PrometheusSink) Consume(_ context.Context, batch []notify.Message) error {
	for _, msg := range batch {
		s.delivered.WithLabelValues(string(msg.Kind)).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
