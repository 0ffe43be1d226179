// Package middleware provides cross-cutting concerns for the engine's
// pipeline units: Prometheus metrics and request rate limiting.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jcourt/go-rally/internal/ports"
)

// Compile-time verification that PrometheusMetrics implements
// MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It provides real-time monitoring of unit latency, request
// outcomes, candidate set sizes, and voting resolutions.
type PrometheusMetrics struct {
	unitLatency      *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	candidateGauges  *prometheus.GaugeVec
	scoreHistogram   *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// all required metrics in the global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		unitLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rally_unit_execution_duration_seconds",
				Help:    "Execution time of engine pipeline units.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "unit"},
		),
		operationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rally_operations_total",
				Help: "Total number of operations performed by the engine.",
			},
			[]string{"operation", "status", "unit"},
		),
		candidateGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rally_engine_state",
				Help: "Current engine state values such as candidate set sizes.",
			},
			[]string{"metric", "unit"},
		),
		scoreHistogram: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rally_score_distribution",
				Help:    "Distribution of scores produced by the engine.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"metric", "unit"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.unitLatency.WithLabelValues(operation, unitLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	status, ok := labels["status"]
	if !ok {
		status = "success"
	}
	pm.operationCounter.WithLabelValues(metric, status, unitLabel(labels)).Add(value)
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.candidateGauges.WithLabelValues(metric, unitLabel(labels)).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram. Scores land in fixed [0,1] buckets.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	pm.scoreHistogram.WithLabelValues(metric, unitLabel(labels)).Observe(value)
}

func unitLabel(labels map[string]string) string {
	if unit, ok := labels["unit"]; ok && unit != "" {
		return unit
	}
	return "unknown"
}
