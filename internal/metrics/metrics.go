// Package metrics exposes Prometheus collectors for the publisher service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scanCyclesTotal            *prometheus.CounterVec
	itemsClassifiedTotal       *prometheus.CounterVec
	publishAttemptsTotal       *prometheus.CounterVec
	publishDurationSeconds     prometheus.Histogram
	queueDepth                 prometheus.Gauge
	loggedIn                   prometheus.Gauge
	cutoversTotal              *prometheus.CounterVec
	storeErrorsTotal           *prometheus.CounterVec
	notificationsDroppedTotal  prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scanCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publisher_scan_cycles_total",
				Help: "Total number of scan cycles, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		itemsClassifiedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publisher_items_classified_total",
				Help: "Pending items classified by scan cycles, labeled by class.",
			},
			[]string{"class"},
		)

		publishAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publisher_publish_attempts_total",
				Help: "Total number of publish attempts, labeled by result.",
			},
			[]string{"result"},
		)

		publishDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "publisher_publish_duration_seconds",
				Help:    "Histogram of publish workflow durations.",
				Buckets: []float64{1, 5, 10, 20, 30, 60, 90, 120},
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "publisher_queue_depth",
				Help: "Number of items waiting for a publish attempt.",
			},
		)

		loggedIn = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "publisher_logged_in",
				Help: "1 when the last login check succeeded, else 0.",
			},
		)

		cutoversTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publisher_db_cutovers_total",
				Help: "Total number of database cutovers, labeled by result.",
			},
			[]string{"result"},
		)

		storeErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publisher_store_errors_total",
				Help: "Document store failures, labeled by backend and operation.",
			},
			[]string{"backend", "op"},
		)

		notificationsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "publisher_notifications_dropped_total",
				Help: "Notifications dropped because the buffer was full.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveScanCycle counts one scan cycle with its outcome.
func ObserveScanCycle(outcome string) {
	Init()
	scanCyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveClassified adds n items of the given class ("future", "due" or "missed").
func ObserveClassified(class string, n int) {
	Init()
	if n > 0 {
		itemsClassifiedTotal.WithLabelValues(class).Add(float64(n))
	}
}

// ObservePublish records a finished publish attempt.
func ObservePublish(result string, duration time.Duration) {
	Init()
	publishAttemptsTotal.WithLabelValues(result).Inc()
	publishDurationSeconds.Observe(duration.Seconds())
}

// SetQueueDepth sets the publish queue gauge.
func SetQueueDepth(n int) {
	Init()
	queueDepth.Set(float64(n))
}

// SetLoggedIn records the latest login check result.
func SetLoggedIn(ok bool) {
	Init()
	if ok {
		loggedIn.Set(1)
		return
	}
	loggedIn.Set(0)
}

// ObserveCutover counts a cutover attempt.
func ObserveCutover(result string) {
	Init()
	cutoversTotal.WithLabelValues(result).Inc()
}

// ObserveStoreError counts a failed store round trip.
func ObserveStoreError(backend, op string) {
	Init()
	storeErrorsTotal.WithLabelValues(backend, op).Inc()
}

// ObserveNotificationDropped counts a notification lost to a full buffer.
func ObserveNotificationDropped() {
	Init()
	notificationsDroppedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
