package middleware

import (
	"context"
	"time"

	"github.com/jcourt/go-rally/internal/domain"
	"github.com/jcourt/go-rally/internal/ports"
)

// instrumentedUnit records execution latency and outcome counts for a
// wrapped unit through a MetricsCollector.
type instrumentedUnit struct {
	next    ports.Unit
	metrics ports.MetricsCollector
}

// Instrument creates middleware that reports each Execute call's latency
// and outcome to the given collector, labeled by unit name.
func Instrument(metrics ports.MetricsCollector) ports.Middleware {
	return func(next ports.Unit) ports.Unit {
		return &instrumentedUnit{next: next, metrics: metrics}
	}
}

// Execute forwards to the wrapped unit and records the observation.
func (iu *instrumentedUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	start := time.Now()
	out, err := iu.next.Execute(ctx, state)

	labels := map[string]string{"unit": iu.next.Name()}
	iu.metrics.RecordLatency("unit_execute", time.Since(start), labels)

	status := "success"
	if err != nil {
		status = "error"
	}
	iu.metrics.RecordCounter("unit_executions", 1, map[string]string{
		"unit":   iu.next.Name(),
		"status": status,
	})
	if err == nil {
		iu.recordState(out, labels)
	}
	return out, err
}

// recordState reports the size of the candidate set the unit worked on and
// the distribution of composite scores it produced, when present.
func (iu *instrumentedUnit) recordState(state domain.State, labels map[string]string) {
	if candidates, ok := domain.Get(state, domain.KeyCandidates); ok {
		iu.metrics.RecordGauge("candidate_count", float64(len(candidates)), labels)
	}
	if ranked, ok := domain.Get(state, domain.KeyRanked); ok {
		for _, candidate := range ranked {
			iu.metrics.RecordHistogram("composite_score", candidate.Composite, labels)
		}
	}
}

// Name returns the wrapped unit's identifier.
func (iu *instrumentedUnit) Name() string { return iu.next.Name() }

// Validate delegates to the wrapped unit.
func (iu *instrumentedUnit) Validate() error { return iu.next.Validate() }
