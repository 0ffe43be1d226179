// Package domain contains pure, dependency-free domain models and types
// for the recommendation and voting engine.
package domain

import (
	"fmt"
	"math"
	"time"
)

// Physical plausibility bounds for weather observations.
// Values outside these bounds are rejected rather than clamped so that
// corrupt provider data surfaces as an error instead of a silently
// distorted score.
const (
	// MinTemperatureC is the lowest temperature accepted in an observation.
	MinTemperatureC = -60.0

	// MaxTemperatureC is the highest temperature accepted in an observation.
	MaxTemperatureC = 60.0
)

// Activity describes a single entry of the activity catalog together with
// its environmental tolerance profile. Activities are immutable reference
// data: they are created at catalog load time and never mutated during a
// scoring request.
type Activity struct {
	// ID uniquely identifies the activity within the catalog.
	ID string `yaml:"id" json:"id" validate:"required,min=1,max=64"`

	// Name is the human-readable display name.
	Name string `yaml:"name" json:"name" validate:"max=200"`

	// Indoor marks activities that take place indoors. Indoor activities
	// are scored on temperature fit only; wind and precipitation describe
	// comfort of travel, not the activity itself, and are ignored.
	Indoor bool `yaml:"indoor" json:"indoor"`

	// TempMinC and TempMaxC bound the comfortable temperature range in
	// degrees Celsius. Outside the range the temperature sub-score decays
	// linearly to zero over a tolerance margin.
	TempMinC float64 `yaml:"temp_min_c" json:"temp_min_c" validate:"min=-60,max=60"`
	TempMaxC float64 `yaml:"temp_max_c" json:"temp_max_c" validate:"min=-60,max=60,gtefield=TempMinC"`

	// MaxWindSpeed is the wind speed in km/h at which the wind sub-score
	// reaches zero for outdoor activities.
	MaxWindSpeed float64 `yaml:"max_wind_speed" json:"max_wind_speed" validate:"min=0"`

	// MaxPrecipProb is the precipitation probability (0-1) at which the
	// precipitation sub-score reaches zero for outdoor activities.
	MaxPrecipProb float64 `yaml:"max_precip_prob" json:"max_precip_prob" validate:"min=0,max=1"`
}

// WeatherObservation is an immutable snapshot of the weather at a location,
// already merged across providers by the weather collaborator. One
// observation backs one scoring request.
type WeatherObservation struct {
	// Location names the place the observation was taken for.
	Location string `yaml:"location" json:"location"`

	// Timestamp records when the observation was taken.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`

	// TemperatureC is the air temperature in degrees Celsius.
	TemperatureC float64 `yaml:"temperature_c" json:"temperature_c"`

	// WindSpeed is the wind speed in km/h.
	WindSpeed float64 `yaml:"wind_speed" json:"wind_speed"`

	// PrecipProb is the precipitation probability in [0,1].
	PrecipProb float64 `yaml:"precip_prob" json:"precip_prob"`

	// AirQualityIndex is the optional air quality index, nil when the
	// provider did not report one.
	AirQualityIndex *int `yaml:"air_quality_index,omitempty" json:"air_quality_index,omitempty"`
}

// Validate checks the observation against physical plausibility bounds.
// It returns an error wrapping ErrInvalidObservation when any field is
// non-finite or out of range.
func (o WeatherObservation) Validate() error {
	if math.IsNaN(o.TemperatureC) || math.IsInf(o.TemperatureC, 0) {
		return fmt.Errorf("%w: temperature is not finite", ErrInvalidObservation)
	}
	if o.TemperatureC < MinTemperatureC || o.TemperatureC > MaxTemperatureC {
		return fmt.Errorf("%w: temperature %.1f outside [%.0f, %.0f]",
			ErrInvalidObservation, o.TemperatureC, MinTemperatureC, MaxTemperatureC)
	}
	if math.IsNaN(o.WindSpeed) || math.IsInf(o.WindSpeed, 0) || o.WindSpeed < 0 {
		return fmt.Errorf("%w: wind speed %.1f must be finite and non-negative",
			ErrInvalidObservation, o.WindSpeed)
	}
	if math.IsNaN(o.PrecipProb) || o.PrecipProb < 0 || o.PrecipProb > 1 {
		return fmt.Errorf("%w: precipitation probability %.2f outside [0, 1]",
			ErrInvalidObservation, o.PrecipProb)
	}
	return nil
}
