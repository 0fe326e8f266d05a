package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_sentinel"

// Metrics holds the Prometheus collectors for ingestion, matching and fan-out.
type Metrics struct {
	// Ingestion.
	ReadingsClassified *prometheus.CounterVec // labels: type, outcome={qualified,below_threshold,invalid,duplicate}
	DisastersCreated   *prometheus.CounterVec // labels: type

	// Matching.
	MatchPasses      *prometheus.CounterVec // labels: outcome={processed,already_processed,not_found,error}
	MatchDuration    prometheus.Histogram
	AlertsDispatched *prometheus.CounterVec // labels: disaster_type
	AlertsSuppressed prometheus.Counter
	ConfigFailures   prometheus.Counter

	// Fan-out.
	RelayForwarded    *prometheus.CounterVec // labels: sink
	RelayErrors       *prometheus.CounterVec // labels: sink
	StreamSubscribers prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReadingsClassified,
		m.DisastersCreated,
		m.MatchPasses,
		m.MatchDuration,
		m.AlertsDispatched,
		m.AlertsSuppressed,
		m.ConfigFailures,
		m.RelayForwarded,
		m.RelayErrors,
		m.StreamSubscribers,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_classified_total",
			Help:      "Sensor readings run through the classifier by type and outcome.",
		}, []string{"type", "outcome"}),
		DisastersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disasters_created_total",
			Help:      "Disaster events persisted by type.",
		}, []string{"type"}),
		MatchPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_passes_total",
			Help:      "Alert matching passes by outcome.",
		}, []string{"outcome"}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Duration of a complete alert matching pass.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		AlertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dispatched_total",
			Help:      "Alert payloads dispatched by disaster type.",
		}, []string{"disaster_type"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Matched configs skipped because they were in cooldown.",
		}),
		ConfigFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_failures_total",
			Help:      "Per-config dispatch or persistence failures during matching.",
		}),
		RelayForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_forwarded_total",
			Help:      "Alert payloads delivered to downstream sinks.",
		}, []string{"sink"}),
		RelayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors_total",
			Help:      "Failed deliveries to downstream sinks.",
		}, []string{"sink"}),
		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Connected real-time stream subscribers.",
		}),
	}
}
