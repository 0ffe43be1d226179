package domain

import (
	"fmt"
	"math"
	"time"
)

// HistoryEntry summarizes a user's past selections of a single activity.
type HistoryEntry struct {
	// Count is the number of times the activity was selected.
	Count int `yaml:"count" json:"count"`

	// LastAt records the most recent selection, used for recency decay.
	LastAt time.Time `yaml:"last_at" json:"last_at"`
}

// UserProfile is a read-only view of a user's preference signals, owned by
// the external user-management collaborator. The engine never mutates a
// profile; it reads one per scoring request.
type UserProfile struct {
	// UserID uniquely identifies the user.
	UserID string `yaml:"user_id" json:"user_id"`

	// Favorites maps favored activity IDs to a positive user-supplied
	// weight. Weights are normalized against the largest weight in the
	// profile during scoring.
	Favorites map[string]float64 `yaml:"favorites" json:"favorites"`

	// History maps activity IDs to past-selection summaries.
	History map[string]HistoryEntry `yaml:"history" json:"history"`

	// Exclusions lists activity IDs the user has vetoed. An excluded
	// activity always scores zero regardless of other signals.
	Exclusions []string `yaml:"exclusions" json:"exclusions"`
}

// Validate checks the profile's preference signals for malformed values.
// It returns an error wrapping ErrInvalidProfile when a favorite weight is
// non-finite or non-positive, or a history count is negative.
func (p UserProfile) Validate() error {
	for id, w := range p.Favorites {
		if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
			return fmt.Errorf("%w: favorite %q has weight %f, want finite and > 0",
				ErrInvalidProfile, id, w)
		}
	}
	for id, h := range p.History {
		if h.Count < 0 {
			return fmt.Errorf("%w: history for %q has negative count %d",
				ErrInvalidProfile, id, h.Count)
		}
	}
	return nil
}

// Excluded reports whether the user has vetoed the given activity.
func (p UserProfile) Excluded(activityID string) bool {
	for _, id := range p.Exclusions {
		if id == activityID {
			return true
		}
	}
	return false
}

// ColdStart reports whether the profile carries no preference signal at
// all. Cold-start users receive a neutral affinity for every activity so
// that empty profiles do not bias the group toward inactivity.
func (p UserProfile) ColdStart() bool {
	return len(p.Favorites) == 0 && len(p.History) == 0
}

// MaxFavoriteWeight returns the largest favorite weight in the profile,
// or zero when the profile has no favorites.
func (p UserProfile) MaxFavoriteWeight() float64 {
	var max float64
	for _, w := range p.Favorites {
		if w > max {
			max = w
		}
	}
	return max
}
