package units

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/jcourt/go-rally/internal/domain"
	"github.com/jcourt/go-rally/internal/ports"
)

var _ ports.Unit = (*RecommendUnit)(nil)

// RecommendUnit blends the weather suitability and preference affinity
// scores into a per-user ranking of candidate activities.
//
// The composite score is the fixed-weight linear combination
// weights.Weather*weather + weights.Preference*preference, 40/60 by
// default. The output is ordered descending by composite score with ties
// broken by ascending activity ID, so identical inputs always produce
// bit-identical output. The full ranking over exactly the input set is
// returned; truncation is the caller's concern.
//
// The unit is stateless and safe for concurrent execution.
type RecommendUnit struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config RecommendConfig
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// RecommendConfig holds the default composite blend. A per-request
// override may be supplied through domain.KeyWeights.
type RecommendConfig struct {
	// Weights is the default blend between the weather and preference
	// components.
	Weights domain.Weights `yaml:"weights" json:"weights"`
}

// DefaultRecommendConfig returns the contractual 40% weather / 60%
// preference blend.
func DefaultRecommendConfig() RecommendConfig {
	return RecommendConfig{Weights: domain.DefaultWeights()}
}

// NewRecommendUnit creates a RecommendUnit with validated configuration.
func NewRecommendUnit(name string, config RecommendConfig) (*RecommendUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := config.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &RecommendUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("recommend-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (ru *RecommendUnit) Name() string { return ru.name }

// Execute ranks the candidate activities by composite score and stores
// the result under domain.KeyRanked.
//
// State requirements:
//   - domain.KeyCandidates: the activities to rank
//   - domain.KeyWeatherScores: per-activity weather scores
//   - domain.KeyPreferenceScores: per-activity preference scores
//   - domain.KeyWeights (optional): per-request blend override
func (ru *RecommendUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := ru.tracer.Start(ctx, "RecommendUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "recommend"),
			attribute.String("unit.id", ru.name),
		),
	)
	defer span.End()

	candidates, ok := domain.Get(state, domain.KeyCandidates)
	if !ok || len(candidates) == 0 {
		span.RecordError(domain.ErrEmptyCandidateSet)
		return state, domain.ErrEmptyCandidateSet
	}

	weatherScores, ok := domain.Get(state, domain.KeyWeatherScores)
	if !ok {
		err := fmt.Errorf("weather scores not found in state")
		span.RecordError(err)
		return state, err
	}

	preferenceScores, ok := domain.Get(state, domain.KeyPreferenceScores)
	if !ok {
		err := fmt.Errorf("preference scores not found in state")
		span.RecordError(err)
		return state, err
	}

	weights := ru.config.Weights
	if override, ok := domain.Get(state, domain.KeyWeights); ok {
		weights = override
	}

	ranked, err := ru.Rank(candidates, weatherScores, preferenceScores, weights)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	span.SetAttributes(
		attribute.Int("candidates.count", len(candidates)),
		attribute.Float64("weights.weather", weights.Weather),
		attribute.Float64("weights.preference", weights.Preference),
	)
	return domain.With(state, domain.KeyRanked, ranked), nil
}

// Rank produces the full composite ranking over exactly the given
// candidate set. Every candidate must have both component scores; both
// must be finite and in [0,1].
func (ru *RecommendUnit) Rank(
	candidates []domain.Activity,
	weather map[string]float64,
	preference map[string]float64,
	weights domain.Weights,
) ([]domain.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return nil, domain.ErrEmptyCandidateSet
	}
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}

	ranked := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, activity := range candidates {
		w, ok := weather[activity.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no weather score for %q", ErrMissingScore, activity.ID)
		}
		p, ok := preference[activity.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no preference score for %q", ErrMissingScore, activity.ID)
		}
		if err := validComponent(w); err != nil {
			return nil, fmt.Errorf("weather score for %q: %w", activity.ID, err)
		}
		if err := validComponent(p); err != nil {
			return nil, fmt.Errorf("preference score for %q: %w", activity.ID, err)
		}

		ranked = append(ranked, domain.ScoredCandidate{
			Activity:        activity,
			WeatherScore:    w,
			PreferenceScore: p,
			Composite:       weights.Composite(w, p),
		})
	}

	// Descending composite; equal composites fall back to ascending
	// activity ID so repeated runs are reproducible.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Composite != ranked[j].Composite {
			return ranked[i].Composite > ranked[j].Composite
		}
		return ranked[i].Activity.ID < ranked[j].Activity.ID
	})

	return ranked, nil
}

// validComponent rejects non-finite or out-of-range component scores.
func validComponent(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > 1 {
		return fmt.Errorf("component score %f outside [0,1]", score)
	}
	return nil
}

// Validate verifies the unit's configuration. Safe for concurrent use.
func (ru *RecommendUnit) Validate() error {
	if err := ru.config.Weights.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration into the unit's
// parameters with validation. The unit's configuration is unchanged on
// error.
func (ru *RecommendUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultRecommendConfig()
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := config.Weights.Validate(); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	ru.config = config
	return nil
}
