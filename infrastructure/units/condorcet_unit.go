package units

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/jcourt/go-rally/internal/domain"
	"github.com/jcourt/go-rally/internal/ports"
)

var (
	_ ports.Unit      = (*CondorcetUnit)(nil)
	_ domain.Resolver = (*CondorcetUnit)(nil)
)

// CondorcetUnit resolves a group's ballots into a single winning activity
// by pairwise majority voting.
//
// For every ordered candidate pair the unit counts ballots ranking the
// first strictly above the second; pairs tied on a ballot count for
// neither side. The majority graph draws an edge A beats B when A's count
// exceeds B's. A candidate beating every other candidate head-to-head is
// the Condorcet winner and resolution ends there. When the majority graph
// contains a cycle and no such winner exists, the Copeland rule decides:
// each candidate scores wins minus losses, ties broken by the smallest
// summed losing margin, then by smallest candidate ID. Resolution is
// therefore fully deterministic on identical input.
//
// Tallying is O(ballots x candidates^2); MaxCandidates bounds the
// worst case. The unit is stateless and safe for concurrent execution.
type CondorcetUnit struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config CondorcetConfig
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// CondorcetConfig bounds a resolution round. Configuration is immutable
// after unit creation.
type CondorcetConfig struct {
	// MaxBallots caps the number of ballots accepted in one round.
	MaxBallots int `yaml:"max_ballots" json:"max_ballots" validate:"min=1,max=100000"`
}

// DefaultCondorcetConfig returns production defaults.
func DefaultCondorcetConfig() CondorcetConfig {
	return CondorcetConfig{MaxBallots: 10000}
}

// NewCondorcetUnit creates a CondorcetUnit with validated configuration.
func NewCondorcetUnit(name string, config CondorcetConfig) (*CondorcetUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &CondorcetUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("condorcet-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (cu *CondorcetUnit) Name() string { return cu.name }

// Execute resolves the ballots in the state and stores the result under
// domain.KeyResult.
//
// State requirements:
//   - domain.KeyBallots: all ballots of the voting round
func (cu *CondorcetUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := cu.tracer.Start(ctx, "CondorcetUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "condorcet"),
			attribute.String("unit.id", cu.name),
		),
	)
	defer span.End()

	ballots, ok := domain.Get(state, domain.KeyBallots)
	if !ok || len(ballots) == 0 {
		span.RecordError(domain.ErrEmptyBallotSet)
		return state, domain.ErrEmptyBallotSet
	}

	result, err := cu.Resolve(ballots)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	span.SetAttributes(
		attribute.Int("ballots.count", result.BallotCount),
		attribute.Int("candidates.count", len(result.Ranking)),
		attribute.Bool("result.cycle_broken", result.CycleBroken),
		attribute.String("result.winner_id", result.WinnerID),
	)
	return domain.With(state, domain.KeyResult, result), nil
}

// Resolve implements domain.Resolver. It fails with
// domain.ErrEmptyBallotSet for zero ballots and with
// domain.ErrCandidateSetMismatch when ballots reference different
// candidate universes.
func (cu *CondorcetUnit) Resolve(ballots []domain.Ballot) (*domain.VotingResult, error) {
	if len(ballots) == 0 {
		return nil, domain.ErrEmptyBallotSet
	}
	if len(ballots) > cu.config.MaxBallots {
		return nil, fmt.Errorf("too many ballots: %d exceeds limit of %d",
			len(ballots), cu.config.MaxBallots)
	}

	candidates, err := sharedUniverse(ballots)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, domain.ErrEmptyCandidateSet
	}
	if len(candidates) > MaxCandidates {
		return nil, fmt.Errorf("%w: %d > %d",
			ErrTooManyCandidates, len(candidates), MaxCandidates)
	}

	tally := tallyBallots(ballots, candidates)
	standings := computeStandings(tally)

	// A Condorcet winner beats every other candidate head-to-head.
	winnerIdx := -1
	for i, s := range standings {
		if s.Wins == len(candidates)-1 {
			winnerIdx = i
			break
		}
	}

	cycleBroken := winnerIdx < 0

	// Rank by the criterion that decides the winner: wins count when a
	// Condorcet winner exists, Copeland score otherwise. Both orders use
	// loss margin and then candidate ID to stay deterministic.
	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if cycleBroken {
			if a.Copeland != b.Copeland {
				return a.Copeland > b.Copeland
			}
		} else if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.LossMargin != b.LossMargin {
			return a.LossMargin < b.LossMargin
		}
		return a.ActivityID < b.ActivityID
	})

	return &domain.VotingResult{
		ID:          uuid.NewString(),
		WinnerID:    standings[0].ActivityID,
		Ranking:     standings,
		CycleBroken: cycleBroken,
		BallotCount: len(ballots),
	}, nil
}

// sharedUniverse returns the candidate set all ballots agree on, or
// domain.ErrCandidateSetMismatch when any ballot differs.
func sharedUniverse(ballots []domain.Ballot) ([]string, error) {
	candidates := ballots[0].Candidates()
	reference := ballots[0].CandidateSet()

	for _, ballot := range ballots[1:] {
		set := ballot.CandidateSet()
		if len(set) != len(reference) {
			return nil, fmt.Errorf("%w: voter %q ranks %d candidates, expected %d",
				domain.ErrCandidateSetMismatch, ballot.VoterID, len(set), len(reference))
		}
		for id := range set {
			if _, ok := reference[id]; !ok {
				return nil, fmt.Errorf("%w: voter %q ranks unknown candidate %q",
					domain.ErrCandidateSetMismatch, ballot.VoterID, id)
			}
		}
	}
	return candidates, nil
}

// tallyBallots builds the pairwise tally. For each ballot, every
// candidate in an earlier tie group is preferred over every candidate in
// any later group; candidates within one group contribute nothing
// against each other.
func tallyBallots(ballots []domain.Ballot, candidates []string) *domain.PairwiseTally {
	tally := domain.NewPairwiseTally(candidates)
	for _, ballot := range ballots {
		for i, group := range ballot.Rankings {
			for _, winner := range group {
				for _, later := range ballot.Rankings[i+1:] {
					for _, loser := range later {
						tally.Add(winner, loser)
					}
				}
			}
		}
	}
	return tally
}

// computeStandings derives each candidate's head-to-head record from the
// tally: wins, losses, Copeland score, and the summed losing margin used
// for tie-breaking.
func computeStandings(tally *domain.PairwiseTally) []domain.CandidateStanding {
	candidates := tally.Candidates()
	standings := make([]domain.CandidateStanding, len(candidates))
	index := make(map[string]int, len(candidates))
	for i, id := range candidates {
		standings[i] = domain.CandidateStanding{ActivityID: id}
		index[id] = i
	}

	for i, a := range candidates {
		for _, b := range candidates[i+1:] {
			margin := tally.Margin(a, b)
			switch {
			case margin > 0:
				standings[index[a]].Wins++
				standings[index[b]].Losses++
				standings[index[b]].LossMargin += margin
			case margin < 0:
				standings[index[b]].Wins++
				standings[index[a]].Losses++
				standings[index[a]].LossMargin += -margin
			}
			// A tied pair draws no edge in the majority graph.
		}
	}

	for i := range standings {
		standings[i].Copeland = standings[i].Wins - standings[i].Losses
	}
	return standings
}

// Validate verifies the unit's configuration. Safe for concurrent use.
func (cu *CondorcetUnit) Validate() error {
	if err := validate.Struct(cu.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration into the unit's
// parameters with validation. The unit's configuration is unchanged on
// error.
func (cu *CondorcetUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultCondorcetConfig()
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	cu.config = config
	return nil
}
