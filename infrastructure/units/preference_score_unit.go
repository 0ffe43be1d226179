package units

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/jcourt/go-rally/internal/domain"
	"github.com/jcourt/go-rally/internal/ports"
)

var (
	_ ports.Unit = (*PreferenceScoreUnit)(nil)

	// foldCaser is a package-level Unicode case folder for performance.
	// This avoids creating a new caser for each comparison.
	foldCaser = cases.Fold()
)

// PreferenceScoreUnit maps a user's preference profile and an activity to
// an affinity score in [0,1].
//
// The score blends an explicit-favorites component (the activity's
// favorite weight normalized against the profile's largest weight) with a
// history component (recency-decayed with a configurable half-life and
// frequency-saturating). History entries for a related activity, as
// measured by Levenshtein similarity over case-folded identifiers,
// contribute at reduced strength.
//
// Two rules override the blend: an explicitly excluded activity always
// scores exactly 0, and a profile with no favorites and no history scores
// a neutral 0.5 for every activity so that new users are not biased
// toward inactivity.
//
// The unit is stateless, deterministic for a fixed reference time, and
// safe for concurrent execution.
type PreferenceScoreUnit struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config PreferenceScoreConfig
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
	// now supplies the reference time for recency decay. Overridable in
	// tests for deterministic assertions.
	now func() time.Time
}

// PreferenceScoreConfig controls the affinity blend and the history decay
// geometry. Configuration is immutable after unit creation.
type PreferenceScoreConfig struct {
	// FavoriteWeight is the share of the affinity contributed by the
	// explicit-favorites component. FavoriteWeight and HistoryWeight must
	// sum to 1.
	FavoriteWeight float64 `yaml:"favorite_weight" json:"favorite_weight" validate:"gte=0,lte=1"`

	// HistoryWeight is the share contributed by the history component.
	HistoryWeight float64 `yaml:"history_weight" json:"history_weight" validate:"gte=0,lte=1"`

	// HalfLifeDays is the exponential recency half-life in days: a
	// selection this old contributes half as much as one made today.
	HalfLifeDays float64 `yaml:"half_life_days" json:"half_life_days" validate:"gt=0,max=3650"`

	// FrequencySaturation dampens the frequency signal: a count of n
	// contributes n/(n+FrequencySaturation), approaching 1 asymptotically.
	FrequencySaturation float64 `yaml:"frequency_saturation" json:"frequency_saturation" validate:"gt=0"`

	// RelatedThreshold is the minimum Levenshtein similarity (0-1) for a
	// history entry of a different activity to count as related.
	RelatedThreshold float64 `yaml:"related_threshold" json:"related_threshold" validate:"gte=0,lte=1"`

	// RelatedFactor scales the contribution of related (not identical)
	// history entries.
	RelatedFactor float64 `yaml:"related_factor" json:"related_factor" validate:"gte=0,lte=1"`

	// ColdStartScore is the neutral affinity returned for profiles with
	// no preference signal at all.
	ColdStartScore float64 `yaml:"cold_start_score" json:"cold_start_score" validate:"gte=0,lte=1"`
}

// DefaultPreferenceScoreConfig returns production defaults: a 70/30
// favorites/history blend, a 30 day half-life, and a neutral 0.5 cold
// start.
func DefaultPreferenceScoreConfig() PreferenceScoreConfig {
	return PreferenceScoreConfig{
		FavoriteWeight:      0.7,
		HistoryWeight:       0.3,
		HalfLifeDays:        30,
		FrequencySaturation: 5,
		RelatedThreshold:    0.8,
		RelatedFactor:       0.5,
		ColdStartScore:      0.5,
	}
}

// NewPreferenceScoreUnit creates a PreferenceScoreUnit with validated
// configuration. The favorite and history weights must sum to 1 within
// domain.WeightTolerance.
func NewPreferenceScoreUnit(name string, config PreferenceScoreConfig) (*PreferenceScoreUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if math.Abs(config.FavoriteWeight+config.HistoryWeight-1.0) > domain.WeightTolerance {
		return nil, fmt.Errorf("favorite_weight and history_weight must sum to 1, got %f",
			config.FavoriteWeight+config.HistoryWeight)
	}
	return &PreferenceScoreUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("preference-score-unit"),
		now:    time.Now,
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (psu *PreferenceScoreUnit) Name() string { return psu.name }

// Execute scores every candidate activity in the state against the user
// profile and stores the per-activity scores under
// domain.KeyPreferenceScores.
//
// State requirements:
//   - domain.KeyProfile: the user profile being scored
//   - domain.KeyCandidates: the activities to score
//
// Fails with domain.ErrInvalidProfile for malformed preference weights
// and with domain.ErrEmptyCandidateSet when no candidates are present.
func (psu *PreferenceScoreUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := psu.tracer.Start(ctx, "PreferenceScoreUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "preference_score"),
			attribute.String("unit.id", psu.name),
		),
	)
	defer span.End()

	profile, ok := domain.Get(state, domain.KeyProfile)
	if !ok {
		err := fmt.Errorf("profile not found in state")
		span.RecordError(err)
		return state, err
	}

	candidates, ok := domain.Get(state, domain.KeyCandidates)
	if !ok || len(candidates) == 0 {
		span.RecordError(domain.ErrEmptyCandidateSet)
		return state, domain.ErrEmptyCandidateSet
	}
	if len(candidates) > MaxCandidates {
		err := fmt.Errorf("%w: %d > %d", ErrTooManyCandidates, len(candidates), MaxCandidates)
		span.RecordError(err)
		return state, err
	}

	now := psu.now()
	scores := make(map[string]float64, len(candidates))
	for _, activity := range candidates {
		score, err := psu.ScoreAt(profile, activity, now)
		if err != nil {
			span.RecordError(err)
			return state, err
		}
		scores[activity.ID] = score
	}

	span.SetAttributes(
		attribute.Int("candidates.count", len(candidates)),
		attribute.String("profile.user_id", profile.UserID),
	)
	return domain.With(state, domain.KeyPreferenceScores, scores), nil
}

// Score computes the affinity of one activity for one profile using the
// current time as the recency reference.
func (psu *PreferenceScoreUnit) Score(profile domain.UserProfile, activity domain.Activity) (float64, error) {
	return psu.ScoreAt(profile, activity, psu.now())
}

// ScoreAt computes the affinity of one activity for one profile with an
// explicit recency reference time. Identical inputs always yield the
// identical score.
func (psu *PreferenceScoreUnit) ScoreAt(profile domain.UserProfile, activity domain.Activity, now time.Time) (float64, error) {
	if err := profile.Validate(); err != nil {
		return 0, err
	}

	// Exclusion is an absolute veto, not a penalty.
	if profile.Excluded(activity.ID) {
		return 0, nil
	}

	if profile.ColdStart() {
		return psu.config.ColdStartScore, nil
	}

	favorite := 0.0
	if w, ok := profile.Favorites[activity.ID]; ok {
		favorite = w / profile.MaxFavoriteWeight()
	}

	history := psu.historyScore(profile, activity, now)

	score := psu.config.FavoriteWeight*favorite + psu.config.HistoryWeight*history
	return math.Min(1.0, math.Max(0.0, score)), nil
}

// historyScore is the strongest recency- and frequency-weighted signal
// among the profile's history entries for this activity or one related to
// it. Taking the maximum rather than a sum keeps the component in [0,1].
func (psu *PreferenceScoreUnit) historyScore(profile domain.UserProfile, activity domain.Activity, now time.Time) float64 {
	best := 0.0
	for id, entry := range profile.History {
		if entry.Count == 0 {
			continue
		}
		rel := psu.relatedness(id, activity.ID)
		if rel == 0 {
			continue
		}

		freq := float64(entry.Count) / (float64(entry.Count) + psu.config.FrequencySaturation)

		ageDays := now.Sub(entry.LastAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		recency := math.Exp(-math.Ln2 * ageDays / psu.config.HalfLifeDays)

		if s := rel * freq * recency; s > best {
			best = s
		}
	}
	return best
}

// relatedness is 1.0 for the same activity, the scaled Levenshtein
// similarity for a sufficiently similar identifier, and 0 otherwise.
// Identifiers are case-folded before comparison.
func (psu *PreferenceScoreUnit) relatedness(historyID, activityID string) float64 {
	if historyID == activityID {
		return 1.0
	}
	a := foldCaser.String(historyID)
	b := foldCaser.String(activityID)
	if a == b {
		return 1.0
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}
	sim := 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
	if sim < psu.config.RelatedThreshold {
		return 0
	}
	return sim * psu.config.RelatedFactor
}

// Validate verifies the unit's configuration. Safe for concurrent use.
func (psu *PreferenceScoreUnit) Validate() error {
	if err := validate.Struct(psu.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if math.Abs(psu.config.FavoriteWeight+psu.config.HistoryWeight-1.0) > domain.WeightTolerance {
		return fmt.Errorf("favorite_weight and history_weight must sum to 1, got %f",
			psu.config.FavoriteWeight+psu.config.HistoryWeight)
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration into the unit's
// parameters with validation. The unit's configuration is unchanged on
// error.
func (psu *PreferenceScoreUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultPreferenceScoreConfig()
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	if math.Abs(config.FavoriteWeight+config.HistoryWeight-1.0) > domain.WeightTolerance {
		return fmt.Errorf("favorite_weight and history_weight must sum to 1, got %f",
			config.FavoriteWeight+config.HistoryWeight)
	}
	psu.config = config
	return nil
}
