package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/scheduled-publisher/internal/config"
)

func TestInitWithoutExporter(t *testing.T) {
	registry := prometheus.NewRegistry()
	shutdown, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "scheduled-publisher"}, registry)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, shutdown(context.Background())) })

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	counter, err := otel.Meter("test").Int64Counter("probe")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	families, err := registry.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "probe") {
			found = true
		}
	}
	require.True(t, found, "expected the OTel counter on the prometheus registry")
}
