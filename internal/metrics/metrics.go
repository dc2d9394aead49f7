// Package metrics exposes the Prometheus instrumentation surface of the
// scheduling engine, grounded on the v2 scheduler observability metrics
// (same namespace/subsystem/promauto-factory pattern), renamed to the
// concepts this engine actually emits: solves, solver duration, circuit
// breaker state, retries, fallback invocations, and WIP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all scheduling-engine metrics.
	Namespace = "vulcan"
	// Subsystem is the subsystem for optimization-service metrics.
	Subsystem = "scheduler"
)

// Metrics holds every Prometheus collector the optimization service
// updates over a solve's lifetime.
type Metrics struct {
	SolvesTotal           *prometheus.CounterVec
	SolveDurationSeconds  *prometheus.HistogramVec
	SolvesInFlight        prometheus.Gauge
	QualityScore          prometheus.Histogram

	CircuitBreakerState   *prometheus.GaugeVec
	CircuitBreakerTrips   *prometheus.CounterVec

	RetryAttemptsTotal    *prometheus.CounterVec
	RetryExhaustedTotal   *prometheus.CounterVec

	FallbackInvocations   *prometheus.CounterVec
	FallbackSuccess       *prometheus.CounterVec

	ZoneWIP               *prometheus.GaugeVec
}

// New creates and registers every metric against reg. A nil reg
// registers against prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initSolveMetrics(factory)
	m.initResilienceMetrics(factory)
	m.initZoneMetrics(factory)

	return m
}

func (m *Metrics) initSolveMetrics(factory promauto.Factory) {
	m.SolvesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "solves_total",
			Help:      "Total number of solve attempts by terminal status.",
		},
		[]string{"status"},
	)

	m.SolveDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "solve_duration_seconds",
			Help:      "Wall-clock duration of a solve attempt, CP path plus any fallbacks.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 16),
		},
		[]string{"status"},
	)

	m.SolvesInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "solves_in_flight",
			Help:      "Number of solve attempts currently executing.",
		},
	)

	m.QualityScore = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "solve_quality_score",
			Help:      "Quality score in [0,1] of the returned solution (1 = CP optimal).",
			Buckets:   []float64{0, 0.3, 0.5, 0.55, 0.7, 0.9, 1.0},
		},
	)
}

func (m *Metrics) initResilienceMetrics(factory promauto.Factory) {
	m.CircuitBreakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state by key (0=closed, 1=half-open, 2=open).",
		},
		[]string{"key"},
	)

	m.CircuitBreakerTrips = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of times a circuit breaker opened.",
		},
		[]string{"key"},
	)

	m.RetryAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts issued by the resilience controller.",
		},
		[]string{"key"},
	)

	m.RetryExhaustedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "retry_exhausted_total",
			Help:      "Total number of solve attempts that exhausted their retry budget.",
		},
		[]string{"key"},
	)

	m.FallbackInvocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "fallback_invocations_total",
			Help:      "Total number of times a fallback strategy was attempted.",
		},
		[]string{"strategy"},
	)

	m.FallbackSuccess = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "fallback_success_total",
			Help:      "Total number of times a fallback strategy produced the final solution.",
		},
		[]string{"strategy"},
	)
}

func (m *Metrics) initZoneMetrics(factory promauto.Factory) {
	m.ZoneWIP = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "zone_wip",
			Help:      "Concurrent in-progress tasks per production zone in the most recently published schedule.",
		},
		[]string{"zone"},
	)
}

// RecordSolve records one completed solve attempt's terminal status,
// duration, and quality score.
func (m *Metrics) RecordSolve(status string, durationSeconds, qualityScore float64) {
	m.SolvesTotal.WithLabelValues(status).Inc()
	m.SolveDurationSeconds.WithLabelValues(status).Observe(durationSeconds)
	m.QualityScore.Observe(qualityScore)
}

// RecordCircuitBreakerState sets the gauge for key's breaker, where state
// is 0 (closed), 1 (half-open), or 2 (open).
func (m *Metrics) RecordCircuitBreakerState(key string, state float64) {
	m.CircuitBreakerState.WithLabelValues(key).Set(state)
}

// RecordCircuitBreakerTrip increments the open-transition counter for key.
func (m *Metrics) RecordCircuitBreakerTrip(key string) {
	m.CircuitBreakerTrips.WithLabelValues(key).Inc()
}

// RecordRetryAttempt increments the retry counter for key.
func (m *Metrics) RecordRetryAttempt(key string) {
	m.RetryAttemptsTotal.WithLabelValues(key).Inc()
}

// RecordRetryExhausted increments the retry-exhausted counter for key.
func (m *Metrics) RecordRetryExhausted(key string) {
	m.RetryExhaustedTotal.WithLabelValues(key).Inc()
}

// RecordFallbackAttempt increments the invocation counter for strategy,
// and the success counter too when succeeded is true.
func (m *Metrics) RecordFallbackAttempt(strategy string, succeeded bool) {
	m.FallbackInvocations.WithLabelValues(strategy).Inc()
	if succeeded {
		m.FallbackSuccess.WithLabelValues(strategy).Inc()
	}
}

// SetZoneWIP sets the current concurrent task count for zone.
func (m *Metrics) SetZoneWIP(zone string, count float64) {
	m.ZoneWIP.WithLabelValues(zone).Set(count)
}
