package units

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcourt/go-rally/internal/domain"
)

var refTime = time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)

func newPreferenceUnit(t *testing.T) *PreferenceScoreUnit {
	t.Helper()
	unit, err := NewPreferenceScoreUnit("preference-test", DefaultPreferenceScoreConfig())
	require.NoError(t, err)
	unit.now = func() time.Time { return refTime }
	return unit
}

func TestNewPreferenceScoreUnit_Validation(t *testing.T) {
	_, err := NewPreferenceScoreUnit("", DefaultPreferenceScoreConfig())
	assert.ErrorIs(t, err, ErrEmptyUnitName)

	config := DefaultPreferenceScoreConfig()
	config.FavoriteWeight = 0.8
	_, err = NewPreferenceScoreUnit("p", config)
	assert.Error(t, err, "blend weights must sum to 1")

	config = DefaultPreferenceScoreConfig()
	config.HalfLifeDays = 0
	_, err = NewPreferenceScoreUnit("p", config)
	assert.Error(t, err, "half-life must be positive")
}

func TestPreferenceScoreUnit_ExclusionVetoesFavorites(t *testing.T) {
	unit := newPreferenceUnit(t)
	profile := domain.UserProfile{
		UserID:     "u1",
		Favorites:  map[string]float64{"hiking": 2.0},
		Exclusions: []string{"hiking"},
	}

	score, err := unit.ScoreAt(profile, domain.Activity{ID: "hiking"}, refTime)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score, "exclusion wins even over a strong favorite")
}

func TestPreferenceScoreUnit_ColdStart(t *testing.T) {
	unit := newPreferenceUnit(t)

	profile := domain.UserProfile{UserID: "u1", Exclusions: []string{"bowling"}}
	score, err := unit.ScoreAt(profile, domain.Activity{ID: "hiking"}, refTime)
	require.NoError(t, err)
	assert.Equal(t, 0.5, score, "exclusions alone do not break cold start")

	score, err = unit.ScoreAt(profile, domain.Activity{ID: "bowling"}, refTime)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score, "the veto still applies to a cold-start profile")
}

func TestPreferenceScoreUnit_FavoritesNormalization(t *testing.T) {
	unit := newPreferenceUnit(t)
	profile := domain.UserProfile{
		UserID: "u1",
		Favorites: map[string]float64{
			"hiking": 2.0,
			"museum": 1.0,
		},
	}

	score, err := unit.ScoreAt(profile, domain.Activity{ID: "hiking"}, refTime)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, score, 1e-9, "top favorite gets the full favorite weight")

	score, err = unit.ScoreAt(profile, domain.Activity{ID: "museum"}, refTime)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, score, 1e-9)

	score, err = unit.ScoreAt(profile, domain.Activity{ID: "bowling"}, refTime)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score, "no favorite and no history means zero affinity")
}

func TestPreferenceScoreUnit_HistoryDecay(t *testing.T) {
	unit := newPreferenceUnit(t)

	score := func(count int, age time.Duration) float64 {
		profile := domain.UserProfile{
			UserID: "u1",
			History: map[string]domain.HistoryEntry{
				"hiking": {Count: count, LastAt: refTime.Add(-age)},
			},
		}
		s, err := unit.ScoreAt(profile, domain.Activity{ID: "hiking"}, refTime)
		require.NoError(t, err)
		return s
	}

	// count 5 today: freq 5/(5+5)=0.5, recency 1 -> 0.3*0.5
	assert.InDelta(t, 0.15, score(5, 0), 1e-9)

	// same count 30 days ago contributes exactly half as much
	assert.InDelta(t, 0.075, score(5, 30*24*time.Hour), 1e-9)

	// frequency saturates rather than growing without bound
	assert.Less(t, score(100, 0), 0.3)
	assert.Greater(t, score(100, 0), score(5, 0))

	// a future timestamp is clamped to zero age
	assert.InDelta(t, 0.15, score(5, -time.Hour), 1e-9)
}

func TestPreferenceScoreUnit_RelatedActivity(t *testing.T) {
	unit := newPreferenceUnit(t)
	profile := domain.UserProfile{
		UserID: "u1",
		History: map[string]domain.HistoryEntry{
			"trail_running": {Count: 5, LastAt: refTime},
		},
	}

	// "trail_running" vs "trail_runnin" is 12/13 similar, above the 0.8
	// threshold, so the entry counts at half strength times similarity.
	score, err := unit.ScoreAt(profile, domain.Activity{ID: "trail_runnin"}, refTime)
	require.NoError(t, err)
	sim := 1.0 - 1.0/13.0
	assert.InDelta(t, 0.3*0.5*sim*0.5, score, 1e-9)

	// An unrelated identifier contributes nothing.
	score, err = unit.ScoreAt(profile, domain.Activity{ID: "museum"}, refTime)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	// Case differences alone make identifiers identical after folding.
	score, err = unit.ScoreAt(profile, domain.Activity{ID: "Trail_Running"}, refTime)
	require.NoError(t, err)
	assert.InDelta(t, 0.15, score, 1e-9)
}

func TestPreferenceScoreUnit_BlendStaysInRange(t *testing.T) {
	unit := newPreferenceUnit(t)
	profile := domain.UserProfile{
		UserID:    "u1",
		Favorites: map[string]float64{"hiking": 3.0},
		History: map[string]domain.HistoryEntry{
			"hiking": {Count: 1000, LastAt: refTime},
		},
	}

	score, err := unit.ScoreAt(profile, domain.Activity{ID: "hiking"}, refTime)
	require.NoError(t, err)
	assert.LessOrEqual(t, score, 1.0)
	expected := 0.7 + 0.3*(1000.0/1005.0)
	assert.InDelta(t, math.Min(1.0, expected), score, 1e-9)
}

func TestPreferenceScoreUnit_RejectsInvalidProfile(t *testing.T) {
	unit := newPreferenceUnit(t)
	profile := domain.UserProfile{
		UserID:    "u1",
		Favorites: map[string]float64{"hiking": -1},
	}

	_, err := unit.ScoreAt(profile, domain.Activity{ID: "hiking"}, refTime)
	assert.ErrorIs(t, err, domain.ErrInvalidProfile)
}

func TestPreferenceScoreUnit_Execute(t *testing.T) {
	unit := newPreferenceUnit(t)

	profile := domain.UserProfile{
		UserID:    "u1",
		Favorites: map[string]float64{"hiking": 1.0},
	}
	candidates := []domain.Activity{
		{ID: "hiking", Name: "Hiking"},
		{ID: "museum", Name: "Museum", Indoor: true},
	}

	state := domain.With(domain.NewState(), domain.KeyProfile, profile)
	state = domain.With(state, domain.KeyCandidates, candidates)

	next, err := unit.Execute(context.Background(), state)
	require.NoError(t, err)

	scores, ok := domain.Get(next, domain.KeyPreferenceScores)
	require.True(t, ok)
	require.Len(t, scores, 2)
	assert.InDelta(t, 0.7, scores["hiking"], 1e-9)
	assert.Equal(t, 0.0, scores["museum"])
}

func TestPreferenceScoreUnit_ExecuteTooManyCandidates(t *testing.T) {
	unit := newPreferenceUnit(t)

	candidates := make([]domain.Activity, MaxCandidates+1)
	for i := range candidates {
		candidates[i] = domain.Activity{ID: fmt.Sprintf("activity-%04d", i)}
	}

	state := domain.With(domain.NewState(), domain.KeyProfile, domain.UserProfile{UserID: "u1"})
	state = domain.With(state, domain.KeyCandidates, candidates)

	_, err := unit.Execute(context.Background(), state)
	assert.ErrorIs(t, err, ErrTooManyCandidates)
}

func TestPreferenceScoreUnit_UnmarshalParameters(t *testing.T) {
	unit := newPreferenceUnit(t)

	err := unit.UnmarshalParameters(paramsNode(t, "half_life_days: 7\nfrequency_saturation: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 7.0, unit.config.HalfLifeDays)
	assert.Equal(t, 2.0, unit.config.FrequencySaturation)
	assert.Equal(t, 0.7, unit.config.FavoriteWeight, "unnamed fields keep their defaults")

	err = unit.UnmarshalParameters(paramsNode(t, "favorite_weight: 0.9\n"))
	require.Error(t, err, "blend weights must still sum to 1")
	assert.Equal(t, 7.0, unit.config.HalfLifeDays, "configuration is unchanged on error")
}

func TestPreferenceScoreUnit_ExecuteMissingInputs(t *testing.T) {
	unit := newPreferenceUnit(t)

	_, err := unit.Execute(context.Background(), domain.NewState())
	assert.Error(t, err, "profile is required")

	state := domain.With(domain.NewState(), domain.KeyProfile, domain.UserProfile{UserID: "u1"})
	_, err = unit.Execute(context.Background(), state)
	assert.ErrorIs(t, err, domain.ErrEmptyCandidateSet)
}
