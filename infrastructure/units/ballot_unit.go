package units

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/jcourt/go-rally/internal/domain"
	"github.com/jcourt/go-rally/internal/ports"
)

var _ ports.Unit = (*BallotUnit)(nil)

// BallotUnit converts one voter's composite ranking into an ordinal
// ballot over the group's agreed candidate universe.
//
// The personal ranking is restricted to its intersection with the
// universe; activities the voter ranked that the group is not considering
// are dropped. Candidates with equal composite scores share one tie group
// rather than being forced into an arbitrary strict order, which is what
// lets the pairwise tally treat tied pairs as contributing to neither
// count. Universe candidates missing from the voter's ranking are placed
// last, tied with each other: a voter with no opinion penalizes those
// options only relative to ranked ones, not relative to each other.
//
// The unit is stateless and safe for concurrent execution.
type BallotUnit struct {
	// name is the unique identifier for this unit instance.
	name string
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// NewBallotUnit creates a BallotUnit.
func NewBallotUnit(name string) (*BallotUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &BallotUnit{
		name:   name,
		tracer: otel.Tracer("ballot-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (bu *BallotUnit) Name() string { return bu.name }

// Execute builds a ballot for the voter identified by the profile in the
// state and stores it under domain.KeyBallot.
//
// State requirements:
//   - domain.KeyProfile: the voter's profile (for the voter ID)
//   - domain.KeyRanked: the voter's composite ranking
//   - domain.KeyUniverse: the group's agreed candidate set
func (bu *BallotUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := bu.tracer.Start(ctx, "BallotUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "ballot"),
			attribute.String("unit.id", bu.name),
		),
	)
	defer span.End()

	profile, ok := domain.Get(state, domain.KeyProfile)
	if !ok {
		err := fmt.Errorf("profile not found in state")
		span.RecordError(err)
		return state, err
	}

	ranked, ok := domain.Get(state, domain.KeyRanked)
	if !ok {
		err := fmt.Errorf("ranked candidates not found in state")
		span.RecordError(err)
		return state, err
	}

	universe, ok := domain.Get(state, domain.KeyUniverse)
	if !ok {
		err := fmt.Errorf("candidate universe not found in state")
		span.RecordError(err)
		return state, err
	}

	ballot, err := bu.Build(profile.UserID, ranked, universe)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	span.SetAttributes(
		attribute.String("ballot.voter_id", ballot.VoterID),
		attribute.Int("ballot.groups", len(ballot.Rankings)),
	)
	return domain.With(state, domain.KeyBallot, &ballot), nil
}

// Build derives a ballot deterministically from a voter's ranked
// candidates and the candidate universe. Fails with
// domain.ErrEmptyCandidateSet when the universe is empty.
func (bu *BallotUnit) Build(
	voterID string,
	ranked []domain.ScoredCandidate,
	universe []domain.Activity,
) (domain.Ballot, error) {
	if len(universe) == 0 {
		return domain.Ballot{}, domain.ErrEmptyCandidateSet
	}
	if len(universe) > MaxCandidates {
		return domain.Ballot{}, fmt.Errorf("%w: %d > %d",
			ErrTooManyCandidates, len(universe), MaxCandidates)
	}

	inUniverse := make(map[string]struct{}, len(universe))
	for _, activity := range universe {
		inUniverse[activity.ID] = struct{}{}
	}

	var (
		rankings [][]string
		prev     float64
		havePrev bool
	)
	seen := make(map[string]struct{}, len(ranked))
	for _, candidate := range ranked {
		id := candidate.Activity.ID
		if _, ok := inUniverse[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			return domain.Ballot{}, fmt.Errorf("duplicate candidate %q in ranking", id)
		}
		seen[id] = struct{}{}

		// Equal composites are adjacent after ranking; they share one tie
		// group instead of being split by an arbitrary strict order.
		if havePrev && candidate.Composite == prev {
			rankings[len(rankings)-1] = append(rankings[len(rankings)-1], id)
		} else {
			rankings = append(rankings, []string{id})
		}
		prev = candidate.Composite
		havePrev = true
	}

	// Universe candidates the voter never ranked form a final tie group,
	// sorted for determinism.
	var unranked []string
	for _, activity := range universe {
		if _, ok := seen[activity.ID]; !ok {
			unranked = append(unranked, activity.ID)
		}
	}
	if len(unranked) > 0 {
		sort.Strings(unranked)
		rankings = append(rankings, unranked)
	}

	return domain.Ballot{VoterID: voterID, Rankings: rankings}, nil
}

// Validate verifies the unit is ready for execution.
func (bu *BallotUnit) Validate() error {
	if bu.name == "" {
		return ErrEmptyUnitName
	}
	return nil
}

// UnmarshalParameters accepts an empty parameter block; the ballot unit
// has no tunable configuration.
func (bu *BallotUnit) UnmarshalParameters(params yaml.Node) error {
	var config struct{}
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	return nil
}
