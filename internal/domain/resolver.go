package domain

// Resolver defines the interface for reducing a set of ballots to a single
// group decision. Implementations provide different social-choice rules;
// the engine ships a Condorcet resolver with a Copeland fallback.
// Implementations must be deterministic: identical ballots must always
// produce the identical result, including the full ranking.
type Resolver interface {
	// Resolve runs one voting round over the given ballots.
	//
	// All ballots must rank the same candidate universe. Implementations
	// return ErrEmptyBallotSet for zero ballots and
	// ErrCandidateSetMismatch when universes differ.
	//
	// Example:
	//
	//	result, err := resolver.Resolve(ballots)
	//	if err != nil {
	//	    return nil, fmt.Errorf("resolution failed: %w", err)
	//	}
	Resolve(ballots []Ballot) (*VotingResult, error)
}
