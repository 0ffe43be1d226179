package domain

import (
	"errors"
	"fmt"
)

// Validation errors raised at component boundaries. All of them are local,
// request-scoped caller errors; nothing in the engine retries, because
// retrying a pure function on identical input cannot change the outcome.
var (
	// ErrInvalidObservation indicates a malformed or physically
	// implausible weather observation.
	ErrInvalidObservation = errors.New("invalid weather observation")

	// ErrInvalidProfile indicates malformed preference weights or history
	// in a user profile.
	ErrInvalidProfile = errors.New("invalid user profile")

	// ErrEmptyCandidateSet indicates that recommendation or ballot
	// building was attempted with no activities.
	ErrEmptyCandidateSet = errors.New("empty candidate set")

	// ErrEmptyBallotSet indicates that vote resolution was attempted with
	// zero ballots.
	ErrEmptyBallotSet = errors.New("empty ballot set")

	// ErrCandidateSetMismatch indicates that ballots in one voting round
	// reference different candidate universes.
	ErrCandidateSetMismatch = errors.New("ballots reference different candidate sets")
)

// ValidationError collects one or more validation failures for a single
// entity, such as a catalog entry or an engine configuration.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the individual validation failure messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError appends a failure message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors reports whether any failure has been recorded.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates an empty ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: make([]string, 0)}
}
