package domain

import (
	"fmt"
	"math"
)

// WeightTolerance is the floating-point tolerance used when checking that
// score weights sum to one.
const WeightTolerance = 1e-9

// Weights holds the blend ratio between the weather suitability score and
// the preference affinity score. The 40/60 split is the engine's design
// contract; callers may override it per request but the components must
// remain non-negative and sum to one.
type Weights struct {
	// Weather is the share of the composite contributed by weather
	// suitability.
	Weather float64 `yaml:"weather" json:"weather"`

	// Preference is the share of the composite contributed by preference
	// affinity.
	Preference float64 `yaml:"preference" json:"preference"`
}

// DefaultWeights returns the contractual 40% weather / 60% preference
// blend.
func DefaultWeights() Weights {
	return Weights{Weather: 0.4, Preference: 0.6}
}

// Validate checks that both weights are finite, non-negative, and sum to
// one within WeightTolerance.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"weather": w.Weather, "preference": w.Preference} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%s weight %f must be finite and non-negative", name, v)
		}
	}
	if math.Abs(w.Weather+w.Preference-1.0) > WeightTolerance {
		return fmt.Errorf("weights must sum to 1, got %f", w.Weather+w.Preference)
	}
	return nil
}

// Composite blends the two component scores according to the weights.
func (w Weights) Composite(weather, preference float64) float64 {
	return w.Weather*weather + w.Preference*preference
}

// ScoredCandidate pairs an activity with its per-request scores. Candidates
// are created fresh for every recommendation request and never persisted.
// Invariant: Composite == weights.Weather*WeatherScore +
// weights.Preference*PreferenceScore, with every component in [0,1].
type ScoredCandidate struct {
	// Activity is the catalog entry being scored.
	Activity Activity `json:"activity"`

	// WeatherScore is the environmental suitability component in [0,1].
	WeatherScore float64 `json:"weather_score"`

	// PreferenceScore is the personal affinity component in [0,1].
	PreferenceScore float64 `json:"preference_score"`

	// Composite is the weighted blend of the two components in [0,1].
	Composite float64 `json:"composite"`
}
