package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jcourt/go-rally/internal/domain"
)

func TestRateLimit_AllowsWithinBurst(t *testing.T) {
	unit := RateLimit(rate.Limit(100), 5)(&fakeUnit{name: "scorer"})

	for i := 0; i < 5; i++ {
		_, err := unit.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
	}
}

func TestRateLimit_CanceledContext(t *testing.T) {
	// An exhausted bucket plus a canceled context must fail fast instead
	// of blocking until the next token.
	unit := RateLimit(rate.Limit(0.001), 1)(&fakeUnit{name: "scorer"})

	_, err := unit.Execute(context.Background(), domain.NewState())
	require.NoError(t, err, "first call drains the only token")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = unit.Execute(ctx, domain.NewState())
	assert.Error(t, err)
}

func TestRateLimit_SharedBucket(t *testing.T) {
	mw := RateLimit(rate.Limit(0.001), 1)
	first := mw(&fakeUnit{name: "a"})
	second := mw(&fakeUnit{name: "b"})

	_, err := first.Execute(context.Background(), domain.NewState())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = second.Execute(ctx, domain.NewState())
	assert.Error(t, err, "both wrapped units draw from one bucket")
}

func TestRateLimit_PreservesIdentity(t *testing.T) {
	unit := RateLimit(rate.Limit(1), 1)(&fakeUnit{name: "scorer"})

	assert.Equal(t, "scorer", unit.Name())
	assert.NoError(t, unit.Validate())
}
