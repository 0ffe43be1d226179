package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_GetAndWith(t *testing.T) {
	state := NewState()

	_, ok := Get(state, KeyObservation)
	assert.False(t, ok, "empty state has no observation")

	obs := WeatherObservation{
		Location:     "Lyon",
		Timestamp:    time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC),
		TemperatureC: 22,
		WindSpeed:    5,
		PrecipProb:   0.05,
	}
	next := With(state, KeyObservation, obs)

	got, ok := Get(next, KeyObservation)
	require.True(t, ok)
	assert.Equal(t, obs, got)

	_, ok = Get(state, KeyObservation)
	assert.False(t, ok, "original state is unchanged")
}

func TestState_CloneIsolatesSlices(t *testing.T) {
	activities := []Activity{{ID: "hiking", Name: "Hiking"}}
	state := With(NewState(), KeyCandidates, activities)

	// Mutating the input after storing must not affect the state.
	activities[0].ID = "mutated"
	got, ok := Get(state, KeyCandidates)
	require.True(t, ok)
	assert.Equal(t, "hiking", got[0].ID)

	// Mutating a retrieved value must not affect later reads.
	got[0].ID = "mutated"
	again, ok := Get(state, KeyCandidates)
	require.True(t, ok)
	assert.Equal(t, "hiking", again[0].ID)
}

func TestState_CloneIsolatesMaps(t *testing.T) {
	scores := map[string]float64{"hiking": 0.9}
	state := With(NewState(), KeyWeatherScores, scores)

	scores["hiking"] = 0.1
	got, ok := Get(state, KeyWeatherScores)
	require.True(t, ok)
	assert.Equal(t, 0.9, got["hiking"])
}

func TestState_WithMultiple(t *testing.T) {
	state := NewState().WithMultiple(map[string]any{
		"execution.request_id": "req-1",
		"execution.group_id":   "grp-1",
	})

	rc, ok := state.RequestContext()
	require.True(t, ok)
	assert.Equal(t, "req-1", rc.RequestID)
	assert.Equal(t, "grp-1", rc.GroupID)
}

func TestState_RequestContext(t *testing.T) {
	_, ok := NewState().RequestContext()
	assert.False(t, ok)

	state := NewState().WithRequestContext(RequestContext{RequestID: "r", GroupID: "g"})
	rc, ok := state.RequestContext()
	require.True(t, ok)
	assert.Equal(t, RequestContext{RequestID: "r", GroupID: "g"}, rc)
}

func TestState_Keys(t *testing.T) {
	state := With(NewState(), KeyRequestID, "r")
	state = With(state, KeyGroupID, "g")

	assert.ElementsMatch(t, []string{"execution.request_id", "execution.group_id"}, state.Keys())
}
