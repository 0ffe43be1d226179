package domain

import (
	"fmt"
	"maps"
	"reflect"
	"time"
)

// Key is a type-safe key for values stored in a State. The type parameter
// pins the value type at compile time so callers never need runtime type
// assertions.
type Key[T any] struct{ name string }

// NewKey creates a Key with the given name and value type for use outside
// the domain package.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Predefined state keys for the recommendation and voting pipelines.
var (
	// KeyObservation stores the weather observation backing the request.
	KeyObservation = Key[WeatherObservation]{"observation"}

	// KeyProfile stores the user profile being scored.
	KeyProfile = Key[UserProfile]{"profile"}

	// KeyCandidates stores the activities under consideration.
	KeyCandidates = Key[[]Activity]{"candidates"}

	// KeyWeatherScores stores per-activity weather suitability scores.
	KeyWeatherScores = Key[map[string]float64]{"weather_scores"}

	// KeyPreferenceScores stores per-activity preference affinity scores.
	KeyPreferenceScores = Key[map[string]float64]{"preference_scores"}

	// KeyWeights stores an optional per-request override of the composite
	// blend. When absent, the recommend unit uses its configured weights.
	KeyWeights = Key[Weights]{"weights"}

	// KeyRanked stores the composite ranking produced for one user.
	KeyRanked = Key[[]ScoredCandidate]{"ranked"}

	// KeyUniverse stores the group's agreed candidate set for ballot
	// building.
	KeyUniverse = Key[[]Activity]{"universe"}

	// KeyBallot stores the ballot built for one voter.
	KeyBallot = Key[*Ballot]{"ballot"}

	// KeyBallots stores all ballots of one voting round.
	KeyBallots = Key[[]Ballot]{"ballots"}

	// KeyResult stores the final voting result.
	KeyResult = Key[*VotingResult]{"result"}

	// KeyRequestID stores a unique identifier for the request, used for
	// tracing and log correlation.
	KeyRequestID = Key[string]{"execution.request_id"}

	// KeyGroupID stores the identifier of the group a voting round
	// belongs to.
	KeyGroupID = Key[string]{"execution.group_id"}
)

// State is an immutable collection of request data flowing through the
// pipeline. Every update returns a new State, so a State can be shared
// across goroutines without locks and a unit can never mutate its input.
type State struct {
	data map[string]any
}

// NewState creates an empty State ready for use.
func NewState() State {
	return State{data: make(map[string]any)}
}

// Get retrieves a value from the State. It returns the value and true when
// the key exists with the right type. The value is cloned first, so the
// caller cannot reach back into the State through slices, maps, or
// pointers.
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, ok := s.data[key.name]
	if !ok {
		return zero, false
	}
	val, ok := cloneValue(value).(T)
	return val, ok
}

// With returns a new State with the key set to a clone of value. The
// receiver is left unchanged.
func With[T any](s State, key Key[T], value T) State {
	data := maps.Clone(s.data)
	if data == nil {
		data = make(map[string]any, 1)
	}
	data[key.name] = cloneValue(value)
	return State{data: data}
}

// WithMultiple returns a new State with every entry of updates applied in
// a single clone, which is cheaper than chaining individual With calls.
func (s State) WithMultiple(updates map[string]any) State {
	data := maps.Clone(s.data)
	if data == nil {
		data = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		data[k] = cloneValue(v)
	}
	return State{data: data}
}

// Keys returns the names of all keys present in the State.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// String renders the State for debugging.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.data)
}

// RequestContext identifies one engine invocation for tracing and log
// correlation as the State moves through the pipeline units.
type RequestContext struct {
	// RequestID uniquely identifies this invocation.
	RequestID string

	// GroupID identifies the group for voting rounds; empty for
	// single-user recommendation requests.
	GroupID string
}

// WithRequestContext returns a new State carrying the request metadata.
func (s State) WithRequestContext(rc RequestContext) State {
	return s.WithMultiple(map[string]any{
		KeyRequestID.name: rc.RequestID,
		KeyGroupID.name:   rc.GroupID,
	})
}

// RequestContext extracts the request metadata from the State. The second
// return value is false when no request ID has been recorded.
func (s State) RequestContext() (RequestContext, bool) {
	requestID, ok := Get(s, KeyRequestID)
	if !ok {
		return RequestContext{}, false
	}
	groupID, _ := Get(s, KeyGroupID)
	return RequestContext{RequestID: requestID, GroupID: groupID}, true
}

// cloneValue deep-copies reference types so that State contents cannot be
// modified from outside. Primitives pass through unchanged; time.Time is
// immutable and returned as-is.
func cloneValue(value any) any {
	if value == nil {
		return nil
	}
	if t, ok := value.(time.Time); ok {
		return t
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return value
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(reflect.ValueOf(cloneValue(v.Index(i).Interface())))
		}
		return out.Interface()
	case reflect.Map:
		if v.IsNil() {
			return value
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), reflect.ValueOf(cloneValue(iter.Value().Interface())))
		}
		return out.Interface()
	case reflect.Ptr:
		if v.IsNil() {
			return value
		}
		out := reflect.New(v.Elem().Type())
		out.Elem().Set(reflect.ValueOf(cloneValue(v.Elem().Interface())))
		return out.Interface()
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if out.Field(i).CanSet() {
				out.Field(i).Set(reflect.ValueOf(cloneValue(v.Field(i).Interface())))
			}
		}
		return out.Interface()
	default:
		return value
	}
}
