package ports

import "time"

// MetricsCollector defines the interface for collecting operational
// metrics. Implementations integrate with observability platforms such as
// Prometheus; the engine records unit latencies, execution counts, and
// resolution outcomes through this interface so the core stays free of
// any metrics backend dependency.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation. The
	// labels map provides additional context such as the unit name.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric, used for events like
	// completed executions, validation failures, or cycle-broken
	// resolutions.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric, used for
	// values like candidate set sizes.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram, used for
	// distributions like composite scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
