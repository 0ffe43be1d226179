package units

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/jcourt/go-rally/internal/domain"
	"github.com/jcourt/go-rally/internal/ports"
)

var _ ports.Unit = (*WeatherScoreUnit)(nil)

// WeatherScoreUnit maps a weather observation and an activity's
// environmental tolerance profile to a suitability score in [0,1].
//
// Three independent sub-scores are computed: temperature fit (1.0 inside
// the activity's comfortable range, decaying linearly to 0 over a
// tolerance margin outside it), wind (1.0 below a comfort fraction of the
// activity's wind limit, decaying linearly to 0 at the limit), and
// precipitation (same shape against the precipitation tolerance). Outdoor
// activities score the arithmetic mean of the three; indoor activities
// score temperature fit only, since wind and rain affect only travel to
// the venue.
//
// The unit is a pure function of its inputs: stateless, deterministic,
// idempotent, and safe for concurrent execution.
type WeatherScoreUnit struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config WeatherScoreConfig
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// WeatherScoreConfig controls the decay geometry of the weather sub-scores.
// Configuration is immutable after unit creation.
type WeatherScoreConfig struct {
	// TempMarginC is the tolerance margin in degrees Celsius over which
	// the temperature sub-score decays from 1 to 0 outside the comfortable
	// range.
	TempMarginC float64 `yaml:"temp_margin_c" json:"temp_margin_c" validate:"gt=0,max=60"`

	// ComfortFraction is the fraction of an activity's wind and
	// precipitation limits below which those sub-scores stay at 1.0.
	// Between the fraction and the limit the sub-score decays linearly
	// to 0.
	ComfortFraction float64 `yaml:"comfort_fraction" json:"comfort_fraction" validate:"gte=0,lt=1"`
}

// DefaultWeatherScoreConfig returns production defaults: a 10 degree
// temperature tolerance margin and full comfort up to half of an
// activity's wind and precipitation limits.
func DefaultWeatherScoreConfig() WeatherScoreConfig {
	return WeatherScoreConfig{
		TempMarginC:     10.0,
		ComfortFraction: 0.5,
	}
}

// NewWeatherScoreUnit creates a WeatherScoreUnit with validated
// configuration. Returns ErrEmptyUnitName if name is empty, or a
// validation error if the configuration is out of bounds.
func NewWeatherScoreUnit(name string, config WeatherScoreConfig) (*WeatherScoreUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &WeatherScoreUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("weather-score-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (wsu *WeatherScoreUnit) Name() string { return wsu.name }

// Execute scores every candidate activity in the state against the
// observation and stores the per-activity scores under
// domain.KeyWeatherScores.
//
// State requirements:
//   - domain.KeyObservation: the weather observation for the request
//   - domain.KeyCandidates: the activities to score
//
// Fails with domain.ErrInvalidObservation when the observation is out of
// physical bounds and with domain.ErrEmptyCandidateSet when no candidates
// are present.
func (wsu *WeatherScoreUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := wsu.tracer.Start(ctx, "WeatherScoreUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "weather_score"),
			attribute.String("unit.id", wsu.name),
		),
	)
	defer span.End()

	obs, ok := domain.Get(state, domain.KeyObservation)
	if !ok {
		err := fmt.Errorf("observation not found in state")
		span.RecordError(err)
		return state, err
	}

	candidates, ok := domain.Get(state, domain.KeyCandidates)
	if !ok || len(candidates) == 0 {
		span.RecordError(domain.ErrEmptyCandidateSet)
		return state, domain.ErrEmptyCandidateSet
	}
	if len(candidates) > MaxCandidates {
		err := fmt.Errorf("%w: %d > %d", ErrTooManyCandidates, len(candidates), MaxCandidates)
		span.RecordError(err)
		return state, err
	}

	scores := make(map[string]float64, len(candidates))
	for _, activity := range candidates {
		score, err := wsu.Score(obs, activity)
		if err != nil {
			span.RecordError(err)
			return state, err
		}
		scores[activity.ID] = score
	}

	span.SetAttributes(attribute.Int("candidates.count", len(candidates)))
	return domain.With(state, domain.KeyWeatherScores, scores), nil
}

// Score computes the suitability of one activity under one observation.
// It validates the observation first and returns an error wrapping
// domain.ErrInvalidObservation rather than clamping out-of-range input.
func (wsu *WeatherScoreUnit) Score(obs domain.WeatherObservation, activity domain.Activity) (float64, error) {
	if err := obs.Validate(); err != nil {
		return 0, err
	}

	tempFit := wsu.temperatureFit(obs.TemperatureC, activity)
	if activity.Indoor {
		return tempFit, nil
	}

	wind := wsu.limitScore(obs.WindSpeed, activity.MaxWindSpeed)
	precip := wsu.limitScore(obs.PrecipProb, math.Min(1.0, activity.MaxPrecipProb))

	return (tempFit + wind + precip) / 3.0, nil
}

// temperatureFit is 1.0 inside the comfortable range and decays linearly
// to 0 over the configured tolerance margin outside it.
func (wsu *WeatherScoreUnit) temperatureFit(temp float64, activity domain.Activity) float64 {
	if temp >= activity.TempMinC && temp <= activity.TempMaxC {
		return 1.0
	}
	dist := activity.TempMinC - temp
	if temp > activity.TempMaxC {
		dist = temp - activity.TempMaxC
	}
	return math.Max(0, 1.0-dist/wsu.config.TempMarginC)
}

// limitScore is 1.0 up to the comfort fraction of the limit and decays
// linearly to 0 at the limit. A zero limit means no tolerance at all: any
// positive value scores 0.
func (wsu *WeatherScoreUnit) limitScore(value, limit float64) float64 {
	if value <= 0 {
		return 1.0
	}
	if value >= limit {
		return 0.0
	}
	comfort := wsu.config.ComfortFraction * limit
	if value <= comfort {
		return 1.0
	}
	return (limit - value) / (limit - comfort)
}

// Validate verifies the unit's configuration. Safe for concurrent use.
func (wsu *WeatherScoreUnit) Validate() error {
	if err := validate.Struct(wsu.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration into the unit's
// parameters with validation. The unit's configuration is unchanged on
// error.
func (wsu *WeatherScoreUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultWeatherScoreConfig()
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	wsu.config = config
	return nil
}
