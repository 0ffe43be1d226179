// Package units provides the scoring, ranking, ballot, and vote-resolution
// units that implement the ports.Unit interface for the go-rally engine.
package units

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// MaxCandidates caps the number of activities a single request may score
// or resolve. Pairwise tallying is quadratic in the candidate count, so an
// unbounded set would let one request dominate a shared deployment.
const MaxCandidates = 1000

// Common errors returned by engine units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with
	// an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrMissingScore is returned when ranking finds a candidate without
	// both component scores.
	ErrMissingScore = errors.New("candidate is missing a component score")

	// ErrTooManyCandidates is returned when a request exceeds
	// MaxCandidates.
	ErrTooManyCandidates = errors.New("candidate set exceeds size limit")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
