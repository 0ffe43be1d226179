package units

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jcourt/go-rally/internal/domain"
)

// paramsNode parses a YAML fragment into the node form that unit parameter
// blocks arrive in.
func paramsNode(t *testing.T, content string) yaml.Node {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(content), &node))
	if len(node.Content) == 0 {
		return yaml.Node{Kind: yaml.MappingNode}
	}
	return *node.Content[0]
}

func newWeatherUnit(t *testing.T) *WeatherScoreUnit {
	t.Helper()
	unit, err := NewWeatherScoreUnit("weather-test", DefaultWeatherScoreConfig())
	require.NoError(t, err)
	return unit
}

func validObservation() domain.WeatherObservation {
	return domain.WeatherObservation{
		Location:     "Lyon",
		Timestamp:    time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC),
		TemperatureC: 22,
		WindSpeed:    5,
		PrecipProb:   0.05,
	}
}

func TestNewWeatherScoreUnit_Validation(t *testing.T) {
	_, err := NewWeatherScoreUnit("", DefaultWeatherScoreConfig())
	assert.ErrorIs(t, err, ErrEmptyUnitName)

	_, err = NewWeatherScoreUnit("w", WeatherScoreConfig{TempMarginC: 0, ComfortFraction: 0.5})
	assert.Error(t, err, "zero temperature margin is rejected")

	_, err = NewWeatherScoreUnit("w", WeatherScoreConfig{TempMarginC: 10, ComfortFraction: 1.0})
	assert.Error(t, err, "comfort fraction must stay below 1")
}

func TestWeatherScoreUnit_Score(t *testing.T) {
	unit := newWeatherUnit(t)

	hiking := domain.Activity{
		ID: "hiking", Name: "Hiking",
		TempMinC: 10, TempMaxC: 30,
		MaxWindSpeed: 20, MaxPrecipProb: 0.3,
	}
	museum := domain.Activity{
		ID: "museum", Name: "Museum", Indoor: true,
		TempMinC: -10, TempMaxC: 40,
		MaxWindSpeed: 0, MaxPrecipProb: 0,
	}

	tests := []struct {
		name     string
		obs      domain.WeatherObservation
		activity domain.Activity
		want     float64
	}{
		{
			name:     "mild morning is a perfect match for hiking",
			obs:      validObservation(),
			activity: hiking,
			want:     1.0,
		},
		{
			name: "indoor activity ignores wind and precipitation",
			obs: domain.WeatherObservation{
				Location: "Lyon", Timestamp: time.Now(),
				TemperatureC: 22, WindSpeed: 80, PrecipProb: 0.95,
			},
			activity: museum,
			want:     1.0,
		},
		{
			name: "temperature five degrees past the range halves the fit",
			obs: domain.WeatherObservation{
				Location: "Lyon", Timestamp: time.Now(),
				TemperatureC: 35, WindSpeed: 0, PrecipProb: 0,
			},
			activity: hiking,
			// tempFit 0.5, wind 1.0, precip 1.0 -> mean 0.8333
			want: (0.5 + 1.0 + 1.0) / 3.0,
		},
		{
			name: "temperature below the margin floor scores zero fit",
			obs: domain.WeatherObservation{
				Location: "Lyon", Timestamp: time.Now(),
				TemperatureC: -5, WindSpeed: 0, PrecipProb: 0,
			},
			activity: hiking,
			// 15 degrees below TempMinC with a 10 degree margin
			want: (0.0 + 1.0 + 1.0) / 3.0,
		},
		{
			name: "wind halfway between comfort and limit",
			obs: domain.WeatherObservation{
				Location: "Lyon", Timestamp: time.Now(),
				TemperatureC: 20, WindSpeed: 15, PrecipProb: 0,
			},
			activity: hiking,
			// wind comfort is 10, limit 20 -> (20-15)/(20-10) = 0.5
			want: (1.0 + 0.5 + 1.0) / 3.0,
		},
		{
			name: "wind at the limit scores zero",
			obs: domain.WeatherObservation{
				Location: "Lyon", Timestamp: time.Now(),
				TemperatureC: 20, WindSpeed: 20, PrecipProb: 0,
			},
			activity: hiking,
			want:     (1.0 + 0.0 + 1.0) / 3.0,
		},
		{
			name: "any rain chance zeroes a zero-tolerance activity",
			obs: domain.WeatherObservation{
				Location: "Lyon", Timestamp: time.Now(),
				TemperatureC: 20, WindSpeed: 0, PrecipProb: 0.01,
			},
			activity: domain.Activity{
				ID: "picnic", Name: "Picnic",
				TempMinC: 15, TempMaxC: 30,
				MaxWindSpeed: 15, MaxPrecipProb: 0,
			},
			want: (1.0 + 1.0 + 0.0) / 3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unit.Score(tt.obs, tt.activity)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestWeatherScoreUnit_ScoreBounds(t *testing.T) {
	unit := newWeatherUnit(t)
	activity := domain.Activity{
		ID: "cycling", Name: "Cycling",
		TempMinC: 5, TempMaxC: 28,
		MaxWindSpeed: 25, MaxPrecipProb: 0.4,
	}

	for temp := -60.0; temp <= 60.0; temp += 7.5 {
		for wind := 0.0; wind <= 60.0; wind += 12.0 {
			obs := domain.WeatherObservation{
				Location: "Lyon", Timestamp: time.Now(),
				TemperatureC: temp, WindSpeed: wind, PrecipProb: 0.2,
			}
			got, err := unit.Score(obs, activity)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestWeatherScoreUnit_ScoreRejectsInvalidObservation(t *testing.T) {
	unit := newWeatherUnit(t)
	obs := validObservation()
	obs.PrecipProb = 1.5

	_, err := unit.Score(obs, domain.Activity{ID: "hiking", TempMinC: 10, TempMaxC: 30})
	assert.ErrorIs(t, err, domain.ErrInvalidObservation)
}

func TestWeatherScoreUnit_Execute(t *testing.T) {
	unit := newWeatherUnit(t)

	candidates := []domain.Activity{
		{ID: "hiking", Name: "Hiking", TempMinC: 10, TempMaxC: 30, MaxWindSpeed: 20, MaxPrecipProb: 0.3},
		{ID: "museum", Name: "Museum", Indoor: true, TempMinC: -10, TempMaxC: 40},
	}

	state := domain.With(domain.NewState(), domain.KeyObservation, validObservation())
	state = domain.With(state, domain.KeyCandidates, candidates)

	next, err := unit.Execute(context.Background(), state)
	require.NoError(t, err)

	scores, ok := domain.Get(next, domain.KeyWeatherScores)
	require.True(t, ok)
	require.Len(t, scores, 2)
	assert.InDelta(t, 1.0, scores["hiking"], 1e-9)
	assert.InDelta(t, 1.0, scores["museum"], 1e-9)
}

func TestWeatherScoreUnit_UnmarshalParameters(t *testing.T) {
	tests := []struct {
		name        string
		yamlContent string
		wantErr     string
		validate    func(t *testing.T, unit *WeatherScoreUnit)
	}{
		{
			name:        "valid parameters",
			yamlContent: "temp_margin_c: 5\ncomfort_fraction: 0.25\n",
			validate: func(t *testing.T, unit *WeatherScoreUnit) {
				assert.Equal(t, 5.0, unit.config.TempMarginC)
				assert.Equal(t, 0.25, unit.config.ComfortFraction)
			},
		},
		{
			name:        "partial block keeps defaults for unnamed fields",
			yamlContent: "comfort_fraction: 0.25\n",
			validate: func(t *testing.T, unit *WeatherScoreUnit) {
				assert.Equal(t, 10.0, unit.config.TempMarginC)
				assert.Equal(t, 0.25, unit.config.ComfortFraction)
			},
		},
		{
			name:        "empty block keeps all defaults",
			yamlContent: "",
			validate: func(t *testing.T, unit *WeatherScoreUnit) {
				assert.Equal(t, DefaultWeatherScoreConfig(), unit.config)
			},
		},
		{
			name:        "comfort fraction at one is rejected",
			yamlContent: "comfort_fraction: 1.0\n",
			wantErr:     "parameter validation failed",
		},
		{
			name:        "malformed value fails decoding",
			yamlContent: "temp_margin_c: [1, 2]\n",
			wantErr:     "failed to decode parameters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := newWeatherUnit(t)
			err := unit.UnmarshalParameters(paramsNode(t, tt.yamlContent))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, DefaultWeatherScoreConfig(), unit.config,
					"configuration is unchanged on error")
			} else {
				require.NoError(t, err)
				tt.validate(t, unit)
			}
		})
	}
}

func TestWeatherScoreUnit_ExecuteMissingInputs(t *testing.T) {
	unit := newWeatherUnit(t)

	_, err := unit.Execute(context.Background(), domain.NewState())
	assert.Error(t, err, "observation is required")

	state := domain.With(domain.NewState(), domain.KeyObservation, validObservation())
	_, err = unit.Execute(context.Background(), state)
	assert.ErrorIs(t, err, domain.ErrEmptyCandidateSet)
}
