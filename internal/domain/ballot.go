package domain

import "sort"

// Ballot is one voter's ordinal preference over a fixed candidate set,
// derived deterministically from that voter's ranked candidates. Ties in
// composite score become a shared ballot position, never an arbitrary
// strict order; the ranking is therefore a sequence of tie groups rather
// than a sequence of single candidates. Ballots are built once per voting
// round, consumed by the resolver, and discarded.
type Ballot struct {
	// VoterID identifies the group member this ballot belongs to.
	VoterID string `json:"voter_id"`

	// Rankings lists tie groups of activity IDs from most to least
	// preferred. Candidates in the same group are mutually tied.
	Rankings [][]string `json:"rankings"`
}

// CandidateSet returns the set of candidate IDs the ballot ranks.
func (b Ballot) CandidateSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, group := range b.Rankings {
		for _, id := range group {
			set[id] = struct{}{}
		}
	}
	return set
}

// Candidates returns the ballot's candidate IDs in ascending order.
func (b Ballot) Candidates() []string {
	set := b.CandidateSet()
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PairwiseTally counts, for every ordered pair of candidates, how many
// ballots rank the first strictly above the second. Ballots that tie a
// pair contribute to neither direction, so with partial orders the two
// directed counts plus the tied count sum to the ballot total. A tally is
// built fresh per voting round; the majority graph is a read-only derived
// view over it.
type PairwiseTally struct {
	candidates []string
	counts     map[string]map[string]int
}

// NewPairwiseTally creates an empty tally over the given candidate IDs.
// The candidate ordering is normalized to ascending ID order.
func NewPairwiseTally(candidates []string) *PairwiseTally {
	ids := make([]string, len(candidates))
	copy(ids, candidates)
	sort.Strings(ids)

	counts := make(map[string]map[string]int, len(ids))
	for _, a := range ids {
		counts[a] = make(map[string]int, len(ids)-1)
	}
	return &PairwiseTally{candidates: ids, counts: counts}
}

// Candidates returns the tally's candidate IDs in ascending order.
// The returned slice must not be modified.
func (t *PairwiseTally) Candidates() []string { return t.candidates }

// Add records one ballot preferring winner strictly over loser.
func (t *PairwiseTally) Add(winner, loser string) {
	if m, ok := t.counts[winner]; ok {
		m[loser]++
	}
}

// Preferring returns the number of ballots ranking a strictly above b.
func (t *PairwiseTally) Preferring(a, b string) int {
	return t.counts[a][b]
}

// Beats reports whether a wins the head-to-head majority against b, which
// is the adjacency relation of the majority graph. No edge exists in
// either direction when the pair is tied.
func (t *PairwiseTally) Beats(a, b string) bool {
	return t.counts[a][b] > t.counts[b][a]
}

// Margin returns the signed victory margin of a over b.
func (t *PairwiseTally) Margin(a, b string) int {
	return t.counts[a][b] - t.counts[b][a]
}

// CandidateStanding is one candidate's line in the final ranking: its
// head-to-head record and the derived cycle-resolution scores.
type CandidateStanding struct {
	// ActivityID identifies the candidate.
	ActivityID string `json:"activity_id"`

	// Wins is the number of head-to-head majorities won.
	Wins int `json:"wins"`

	// Losses is the number of head-to-head majorities lost.
	Losses int `json:"losses"`

	// Copeland is Wins minus Losses, the cycle-resolution score.
	Copeland int `json:"copeland"`

	// LossMargin is the sum of losing margins across all pairwise losses,
	// used to break Copeland ties. Smaller is better.
	LossMargin int `json:"loss_margin"`
}

// VotingResult is the outcome of one group voting round: the winning
// activity, the full ranking for runner-up display, and whether a
// cycle-breaking rule was required to decide.
type VotingResult struct {
	// ID uniquely identifies this resolution for tracing.
	ID string `json:"id"`

	// WinnerID is the winning activity's ID.
	WinnerID string `json:"winner_id"`

	// Ranking orders every candidate by the criterion that decided the
	// winner: wins count when a Condorcet winner existed, Copeland score
	// otherwise. Remaining ties are ordered by smallest loss margin, then
	// ascending activity ID, so the ranking is fully deterministic.
	Ranking []CandidateStanding `json:"ranking"`

	// CycleBroken is true when no undisputed Condorcet winner existed and
	// the Copeland fallback decided the result.
	CycleBroken bool `json:"cycle_broken"`

	// BallotCount is the number of ballots resolved.
	BallotCount int `json:"ballot_count"`
}
