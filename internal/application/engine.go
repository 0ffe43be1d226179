package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/jcourt/go-rally/infrastructure/middleware"
	"github.com/jcourt/go-rally/infrastructure/units"
	"github.com/jcourt/go-rally/internal/domain"
	"github.com/jcourt/go-rally/internal/ports"
)

// Engine composes the five pipeline units into the engine's public
// operations: weather scoring, preference scoring, recommendation, ballot
// building, and group vote resolution.
//
// The engine holds no mutable state; every call is request-scoped over
// immutable inputs, so one Engine is safely shared across concurrent
// callers without coordination.
type Engine struct {
	weather    *units.WeatherScoreUnit
	preference *units.PreferenceScoreUnit
	recommend  *units.RecommendUnit
	ballot     *units.BallotUnit
	condorcet  *units.CondorcetUnit

	// Wrapped views of the units with any configured middleware applied;
	// pipeline execution goes through these.
	weatherExec    ports.Unit
	preferenceExec ports.Unit
	recommendExec  ports.Unit
	ballotExec     ports.Unit
	condorcetExec  ports.Unit

	logger zerolog.Logger
}

// parameterizedUnit is a unit that accepts a raw YAML parameter block in
// addition to its typed configuration.
type parameterizedUnit interface {
	ports.Unit
	UnmarshalParameters(params yaml.Node) error
}

// Option customizes engine construction.
type Option func(*options)

type options struct {
	middlewares []ports.Middleware
}

// WithMiddleware wraps every pipeline unit with the given middleware, in
// order. Use this to attach metrics or rate limiting without touching the
// units themselves.
func WithMiddleware(mws ...ports.Middleware) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, mws...)
	}
}

// NewEngine builds an engine from the configuration. Every unit is
// constructed and validated up front so that a misconfigured engine fails
// at startup, not on the first request. A rate limit section in the
// configuration implicitly adds the rate limiting middleware.
func NewEngine(config EngineConfig, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	weather, err := units.NewWeatherScoreUnit("weather", config.Weather)
	if err != nil {
		return nil, fmt.Errorf("create weather unit: %w", err)
	}
	preference, err := units.NewPreferenceScoreUnit("preference", config.Preference)
	if err != nil {
		return nil, fmt.Errorf("create preference unit: %w", err)
	}
	recommend, err := units.NewRecommendUnit("recommend", units.RecommendConfig{Weights: config.Weights})
	if err != nil {
		return nil, fmt.Errorf("create recommend unit: %w", err)
	}
	ballot, err := units.NewBallotUnit("ballot")
	if err != nil {
		return nil, fmt.Errorf("create ballot unit: %w", err)
	}
	condorcet, err := units.NewCondorcetUnit("condorcet", config.Voting)
	if err != nil {
		return nil, fmt.Errorf("create condorcet unit: %w", err)
	}

	if len(config.Units) > 0 {
		byName := map[string]parameterizedUnit{
			weather.Name():    weather,
			preference.Name(): preference,
			recommend.Name():  recommend,
			ballot.Name():     ballot,
			condorcet.Name():  condorcet,
		}
		for name, params := range config.Units {
			unit, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("parameters for unknown unit %q", name)
			}
			if err := unit.UnmarshalParameters(params); err != nil {
				return nil, fmt.Errorf("unit %s parameters: %w", name, err)
			}
		}
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if config.RateLimit != nil {
		o.middlewares = append(o.middlewares,
			middleware.RateLimit(rate.Limit(config.RateLimit.PerSecond), config.RateLimit.Burst))
	}

	e := &Engine{
		weather:    weather,
		preference: preference,
		recommend:  recommend,
		ballot:     ballot,
		condorcet:  condorcet,
		logger:     logger,
	}
	e.weatherExec = wrap(weather, o.middlewares)
	e.preferenceExec = wrap(preference, o.middlewares)
	e.recommendExec = wrap(recommend, o.middlewares)
	e.ballotExec = wrap(ballot, o.middlewares)
	e.condorcetExec = wrap(condorcet, o.middlewares)

	for _, unit := range []ports.Unit{e.weatherExec, e.preferenceExec, e.recommendExec, e.ballotExec, e.condorcetExec} {
		if err := unit.Validate(); err != nil {
			return nil, fmt.Errorf("unit %s: %w", unit.Name(), err)
		}
	}
	return e, nil
}

func wrap(unit ports.Unit, mws []ports.Middleware) ports.Unit {
	for _, mw := range mws {
		unit = mw(unit)
	}
	return unit
}

// ScoreWeather computes the weather suitability of one activity under one
// observation. Pure and deterministic; see WeatherScoreUnit.
func (e *Engine) ScoreWeather(obs domain.WeatherObservation, activity domain.Activity) (float64, error) {
	return e.weather.Score(obs, activity)
}

// ScorePreference computes one user's affinity for one activity. Pure for
// a fixed reference time; see PreferenceScoreUnit.
func (e *Engine) ScorePreference(profile domain.UserProfile, activity domain.Activity) (float64, error) {
	return e.preference.Score(profile, activity)
}

// Recommend produces the full composite ranking of the activities for one
// user under one observation, using the engine's configured weights.
func (e *Engine) Recommend(
	ctx context.Context,
	obs domain.WeatherObservation,
	activities []domain.Activity,
	profile domain.UserProfile,
) ([]domain.ScoredCandidate, error) {
	return e.recommendPipeline(ctx, obs, activities, profile, nil)
}

// RecommendWithWeights is Recommend with a per-request override of the
// composite blend.
func (e *Engine) RecommendWithWeights(
	ctx context.Context,
	obs domain.WeatherObservation,
	activities []domain.Activity,
	profile domain.UserProfile,
	weights domain.Weights,
) ([]domain.ScoredCandidate, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}
	return e.recommendPipeline(ctx, obs, activities, profile, &weights)
}

// recommendPipeline runs the weather, preference, and recommend units in
// sequence over a fresh request state.
func (e *Engine) recommendPipeline(
	ctx context.Context,
	obs domain.WeatherObservation,
	activities []domain.Activity,
	profile domain.UserProfile,
	weights *domain.Weights,
) ([]domain.ScoredCandidate, error) {
	if len(activities) == 0 {
		return nil, domain.ErrEmptyCandidateSet
	}

	requestID := uuid.NewString()
	start := time.Now()
	logger := e.logger.With().
		Str("request_id", requestID).
		Str("user_id", profile.UserID).
		Int("candidates", len(activities)).
		Logger()
	logger.Debug().Msg("recommendation started")

	state := domain.NewState().WithRequestContext(domain.RequestContext{RequestID: requestID})
	state = domain.With(state, domain.KeyObservation, obs)
	state = domain.With(state, domain.KeyProfile, profile)
	state = domain.With(state, domain.KeyCandidates, activities)
	if weights != nil {
		state = domain.With(state, domain.KeyWeights, *weights)
	}

	var err error
	for _, unit := range []ports.Unit{e.weatherExec, e.preferenceExec, e.recommendExec} {
		if state, err = unit.Execute(ctx, state); err != nil {
			logger.Warn().Err(err).Str("unit", unit.Name()).Msg("recommendation failed")
			return nil, fmt.Errorf("unit %s: %w", unit.Name(), err)
		}
	}

	ranked, ok := domain.Get(state, domain.KeyRanked)
	if !ok {
		return nil, fmt.Errorf("ranking missing from pipeline state")
	}

	logger.Info().
		Dur("elapsed", time.Since(start)).
		Str("top", ranked[0].Activity.ID).
		Msg("recommendation finished")
	return ranked, nil
}

// BuildBallot converts one voter's ranking into an ordinal ballot over
// the group's candidate universe.
func (e *Engine) BuildBallot(
	voterID string,
	ranked []domain.ScoredCandidate,
	universe []domain.Activity,
) (domain.Ballot, error) {
	return e.ballot.Build(voterID, ranked, universe)
}

// ResolveVote resolves a set of ballots into the group's voting result.
func (e *Engine) ResolveVote(ctx context.Context, ballots []domain.Ballot) (*domain.VotingResult, error) {
	state := domain.NewState().
		WithRequestContext(domain.RequestContext{RequestID: uuid.NewString()})
	state = domain.With(state, domain.KeyBallots, ballots)

	state, err := e.condorcetExec.Execute(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", e.condorcetExec.Name(), err)
	}

	result, ok := domain.Get(state, domain.KeyResult)
	if !ok {
		return nil, fmt.Errorf("voting result missing from pipeline state")
	}

	event := e.logger.Info().
		Str("result_id", result.ID).
		Str("winner_id", result.WinnerID).
		Int("ballots", result.BallotCount).
		Bool("cycle_broken", result.CycleBroken)
	event.Msg("vote resolved")
	return result, nil
}

// ResolveGroupVote runs the full group decision: every member's
// recommendation is computed concurrently against the shared candidate
// universe, converted to a ballot, and the ballots are resolved to a
// single winner. Member scoring is embarrassingly parallel because the
// units are pure; one failing member fails the round, since a group
// decision over a silently missing ballot would misrepresent the group.
func (e *Engine) ResolveGroupVote(
	ctx context.Context,
	obs domain.WeatherObservation,
	universe []domain.Activity,
	profiles []domain.UserProfile,
) (*domain.VotingResult, error) {
	if len(profiles) == 0 {
		return nil, domain.ErrEmptyBallotSet
	}
	if len(universe) == 0 {
		return nil, domain.ErrEmptyCandidateSet
	}

	ballots := make([]domain.Ballot, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	for i, profile := range profiles {
		i, profile := i, profile
		g.Go(func() error {
			ballot, err := e.memberBallot(gctx, obs, universe, profile)
			if err != nil {
				return fmt.Errorf("member %s: %w", profile.UserID, err)
			}
			ballots[i] = ballot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return e.ResolveVote(ctx, ballots)
}

// memberBallot runs the per-member pipeline: weather and preference
// scoring, composite ranking, then ballot building against the shared
// universe.
func (e *Engine) memberBallot(
	ctx context.Context,
	obs domain.WeatherObservation,
	universe []domain.Activity,
	profile domain.UserProfile,
) (domain.Ballot, error) {
	state := domain.NewState().
		WithRequestContext(domain.RequestContext{RequestID: uuid.NewString()})
	state = domain.With(state, domain.KeyObservation, obs)
	state = domain.With(state, domain.KeyProfile, profile)
	state = domain.With(state, domain.KeyCandidates, universe)
	state = domain.With(state, domain.KeyUniverse, universe)

	var err error
	for _, unit := range []ports.Unit{e.weatherExec, e.preferenceExec, e.recommendExec, e.ballotExec} {
		if state, err = unit.Execute(ctx, state); err != nil {
			return domain.Ballot{}, fmt.Errorf("unit %s: %w", unit.Name(), err)
		}
	}

	ballot, ok := domain.Get(state, domain.KeyBallot)
	if !ok || ballot == nil {
		return domain.Ballot{}, fmt.Errorf("ballot missing from pipeline state")
	}
	return *ballot, nil
}
