// Command rally runs the recommendation and voting engine against YAML
// input files: an activity catalog, a weather observation, and one or
// more user profiles. With a single profile it prints that user's ranked
// recommendations; with several it resolves a group vote.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/jcourt/go-rally/infrastructure/middleware"
	"github.com/jcourt/go-rally/internal/application"
	"github.com/jcourt/go-rally/internal/domain"
)

type requestFile struct {
	Observation domain.WeatherObservation `yaml:"observation"`
	Profiles    []domain.UserProfile      `yaml:"profiles"`
}

func main() {
	var (
		configPath  = flag.String("config", "", "engine configuration YAML (defaults used when empty)")
		catalogPath = flag.String("catalog", "catalog.yaml", "activity catalog YAML")
		requestPath = flag.String("request", "request.yaml", "observation and profiles YAML")
		withMetrics = flag.Bool("metrics", false, "register Prometheus metrics for the run")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	if err := run(logger, *configPath, *catalogPath, *requestPath, *withMetrics); err != nil {
		logger.Fatal().Err(err).Msg("rally failed")
	}
}

func run(logger zerolog.Logger, configPath, catalogPath, requestPath string, withMetrics bool) error {
	config := application.DefaultEngineConfig()
	if configPath != "" {
		loaded, err := application.LoadEngineConfig(configPath)
		if err != nil {
			return err
		}
		config = loaded
	}

	catalog, err := application.LoadCatalog(catalogPath)
	if err != nil {
		return err
	}

	request, err := loadRequest(requestPath)
	if err != nil {
		return err
	}
	if len(request.Profiles) == 0 {
		return fmt.Errorf("request %s: no profiles", requestPath)
	}

	var opts []application.Option
	if withMetrics {
		opts = append(opts, application.WithMiddleware(
			middleware.Instrument(middleware.NewPrometheusMetrics())))
	}

	engine, err := application.NewEngine(config, logger, opts...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if len(request.Profiles) == 1 {
		return printRecommendations(ctx, engine, request, catalog)
	}
	return printGroupResult(ctx, engine, request, catalog)
}

func loadRequest(path string) (requestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return requestFile{}, fmt.Errorf("read request %s: %w", path, err)
	}
	var request requestFile
	if err := yaml.Unmarshal(data, &request); err != nil {
		return requestFile{}, fmt.Errorf("parse request %s: %w", path, err)
	}
	return request, nil
}

func printRecommendations(
	ctx context.Context,
	engine *application.Engine,
	request requestFile,
	catalog []domain.Activity,
) error {
	ranked, err := engine.Recommend(ctx, request.Observation, catalog, request.Profiles[0])
	if err != nil {
		return err
	}
	for i, candidate := range ranked {
		fmt.Printf("%2d. %-30s composite=%.3f weather=%.3f preference=%.3f\n",
			i+1, candidate.Activity.Name, candidate.Composite,
			candidate.WeatherScore, candidate.PreferenceScore)
	}
	return nil
}

func printGroupResult(
	ctx context.Context,
	engine *application.Engine,
	request requestFile,
	catalog []domain.Activity,
) error {
	result, err := engine.ResolveGroupVote(ctx, request.Observation, catalog, request.Profiles)
	if err != nil {
		return err
	}

	fmt.Printf("winner: %s (cycle_broken=%v, ballots=%d)\n",
		result.WinnerID, result.CycleBroken, result.BallotCount)
	for i, standing := range result.Ranking {
		fmt.Printf("%2d. %-30s wins=%d losses=%d copeland=%d\n",
			i+1, standing.ActivityID, standing.Wins, standing.Losses, standing.Copeland)
	}
	return nil
}
