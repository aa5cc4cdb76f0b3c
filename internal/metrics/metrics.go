package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for pacer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Ledger metrics
	AttemptsRecorded *prometheus.CounterVec
	AttemptsRejected prometheus.Counter
	TopicsTracked    prometheus.Gauge

	// Strategy metrics
	StrategyEvolutions *prometheus.CounterVec

	// Sequencer metrics
	SequencingRuns        *prometheus.CounterVec
	SequencingDuration    prometheus.Histogram
	SequencingGenerations prometheus.Histogram

	// Messaging metrics
	EventsPublished *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			AttemptsRecorded: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pacer_attempts_recorded_total",
					Help: "Total number of practice attempts recorded",
				},
				[]string{"success"},
			),
			AttemptsRejected: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "pacer_attempts_rejected_total",
					Help: "Total number of attempts rejected as invalid input",
				},
			),
			TopicsTracked: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "pacer_topics_tracked",
					Help: "Number of topics with a learning pattern",
				},
			),

			StrategyEvolutions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pacer_strategy_evolutions_total",
					Help: "Strategy evolutions by result (updated, insufficient_data, failed)",
				},
				[]string{"result"},
			),

			SequencingRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pacer_sequencing_runs_total",
					Help: "Roadmap sequencing runs by result",
				},
				[]string{"result"},
			),
			SequencingDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "pacer_sequencing_duration_seconds",
					Help:    "Duration of roadmap sequencing runs in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to 8s
				},
			),
			SequencingGenerations: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "pacer_sequencing_generations",
					Help:    "Generations run before the sequencer stopped",
					Buckets: prometheus.LinearBuckets(10, 10, 10),
				},
			),

			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pacer_events_published_total",
					Help: "Events published to the message broker",
				},
				[]string{"type", "result"},
			),
			EventsConsumed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pacer_events_consumed_total",
					Help: "Events consumed from the message broker",
				},
				[]string{"type", "result"},
			),

			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pacer_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "pacer_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})

	return sharedMetrics
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAttempt records an accepted attempt
func (m *Metrics) RecordAttempt(success bool) {
	if m == nil {
		return
	}
	m.AttemptsRecorded.WithLabelValues(boolLabel(success)).Inc()
}

// RecordRejectedAttempt records an attempt that failed validation
func (m *Metrics) RecordRejectedAttempt() {
	if m == nil {
		return
	}
	m.AttemptsRejected.Inc()
}

// SetTopicsTracked sets the tracked topic gauge
func (m *Metrics) SetTopicsTracked(n int) {
	if m == nil {
		return
	}
	m.TopicsTracked.Set(float64(n))
}

// RecordEvolution records the outcome of a strategy evolution
func (m *Metrics) RecordEvolution(result string) {
	if m == nil {
		return
	}
	m.StrategyEvolutions.WithLabelValues(result).Inc()
}

// RecordSequencing records a sequencing run
func (m *Metrics) RecordSequencing(result string, duration time.Duration, generations int) {
	if m == nil {
		return
	}
	m.SequencingRuns.WithLabelValues(result).Inc()
	m.SequencingDuration.Observe(duration.Seconds())
	if generations > 0 {
		m.SequencingGenerations.Observe(float64(generations))
	}
}

// RecordPublish records an event publish attempt
func (m *Metrics) RecordPublish(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, errLabel(err)).Inc()
}

// RecordConsume records a consumed event
func (m *Metrics) RecordConsume(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(eventType, errLabel(err)).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func errLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
