// Package application wires the engine's pipeline units together and
// exposes the public recommendation and voting operations.
package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jcourt/go-rally/infrastructure/units"
	"github.com/jcourt/go-rally/internal/domain"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// EngineConfig is the complete configuration of one engine instance. Every
// section has production defaults; a YAML file only needs to name the
// values it overrides.
type EngineConfig struct {
	// Weather configures the weather suitability scorer.
	Weather units.WeatherScoreConfig `yaml:"weather" validate:"required"`

	// Preference configures the preference affinity scorer.
	Preference units.PreferenceScoreConfig `yaml:"preference" validate:"required"`

	// Weights is the default composite blend between the weather and
	// preference components. 40/60 is the design contract; overriding it
	// here is an administrative decision, not a per-user one.
	Weights domain.Weights `yaml:"weights"`

	// Voting configures the Condorcet resolver.
	Voting units.CondorcetConfig `yaml:"voting" validate:"required"`

	// RateLimit optionally bounds unit executions per second across the
	// engine. Nil disables rate limiting.
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`

	// Units optionally carries raw parameter blocks keyed by unit name
	// (weather, preference, recommend, ballot, condorcet). Each block is
	// applied through the unit's UnmarshalParameters after construction
	// and overlays that unit's defaults, taking precedence over the typed
	// section above. Naming an unknown unit fails engine construction.
	Units map[string]yaml.Node `yaml:"units,omitempty"`
}

// RateLimitConfig bounds sustained and burst unit execution rates.
type RateLimitConfig struct {
	// PerSecond is the sustained execution rate.
	PerSecond float64 `yaml:"per_second" validate:"gt=0"`

	// Burst is the number of executions allowed above the sustained rate.
	Burst int `yaml:"burst" validate:"min=1"`
}

// DefaultEngineConfig returns a configuration with every section at its
// production default and no rate limit.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Weather:    units.DefaultWeatherScoreConfig(),
		Preference: units.DefaultPreferenceScoreConfig(),
		Weights:    domain.DefaultWeights(),
		Voting:     units.DefaultCondorcetConfig(),
	}
}

// Validate checks the configuration for internal consistency.
func (c EngineConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}
	return nil
}

// LoadEngineConfig reads an engine configuration from a YAML file,
// overlaying the file's values on the defaults. Unknown fields are
// rejected so that typos fail loudly instead of silently keeping a
// default.
func LoadEngineConfig(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	config := DefaultEngineConfig()
	if err := strictUnmarshal(data, &config); err != nil {
		return EngineConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return config, nil
}

// strictUnmarshal decodes YAML while rejecting unknown fields. An empty
// document leaves the destination untouched.
func strictUnmarshal(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
