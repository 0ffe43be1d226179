// Package ports defines the interfaces that form the contract between the
// domain/application layers and the infrastructure layer. These interfaces
// enable dependency inversion and make the engine testable.
package ports

import (
	"context"

	"github.com/jcourt/go-rally/internal/domain"
)

// Unit is the building block of the scoring and voting pipelines. Each
// Unit performs one transformation on the request State: scoring weather
// suitability, scoring preference affinity, ranking, ballot building, or
// vote resolution. Units must be stateless and safe for concurrent use so
// that independent requests can share one engine without coordination.
type Unit interface {
	// Name returns a unique identifier for this unit, used for logging,
	// metrics labels, and configuration.
	Name() string

	// Execute performs the unit's transformation and returns a new State
	// with the results. The input State is never modified. Errors are
	// returned, never panicked; every error is scoped to the request.
	//
	// The context carries cancellation and tracing; units respect it even
	// though each transformation completes in bounded time.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate checks that the unit is properly configured and ready for
	// execution. It is called during engine construction.
	Validate() error
}

// Middleware decorates a Unit with a cross-cutting concern such as metrics
// or rate limiting while preserving the Unit contract.
type Middleware func(Unit) Unit
