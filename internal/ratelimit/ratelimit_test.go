package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiterSpacing(t *testing.T) {
	limiter := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))
	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))

	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestSimpleRateLimiterZeroDelay(t *testing.T) {
	limiter := NewSimpleRateLimiter(0, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestSimpleRateLimiterCancelled(t *testing.T) {
	limiter := NewSimpleRateLimiter(time.Second, time.Second)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, limiter.Wait(ctx), context.Canceled)
}

func TestAdaptiveRateLimiter(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(100*time.Millisecond, 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		limiter.RecordError()
	}
	min, max := limiter.Delays()
	assert.Equal(t, 150*time.Millisecond, min)
	assert.Equal(t, 300*time.Millisecond, max)

	for i := 0; i < 6; i++ {
		limiter.RecordSuccess()
	}
	min, _ = limiter.Delays()
	assert.Equal(t, 135*time.Millisecond, min)

	for i := 0; i < 60; i++ {
		limiter.RecordSuccess()
	}
	min, _ = limiter.Delays()
	assert.Equal(t, 100*time.Millisecond, min)
}

func TestAdaptiveRateLimiterFromZero(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(0, 0)

	for i := 0; i < 3; i++ {
		limiter.RecordError()
	}
	min, max := limiter.Delays()
	assert.Equal(t, 500*time.Millisecond, min)
	assert.Equal(t, 500*time.Millisecond, max)
}

func TestRequestRateLimiterDisabled(t *testing.T) {
	limiter := NewRequestRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}

	var nilLimiter *RequestRateLimiter
	assert.NoError(t, nilLimiter.Wait(context.Background()))
}

func TestRequestRateLimiter(t *testing.T) {
	limiter := NewRequestRateLimiter(20, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
