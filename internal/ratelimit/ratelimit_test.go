package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/config"
	"github.com/stretchr/testify/require"
)

func newRedisWindow(t *testing.T, c clock.Clock) (*SlidingWindow, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSlidingWindow(client, c, "test:"), srv
}

func TestSlidingWindowRejectsOverBudget(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	window, _ := newRedisWindow(t, fc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := window.Allow(ctx, "completion:u1", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, 2-i, res.Remaining)
		fc.Advance(10 * time.Second)
	}

	res, err := window.Allow(ctx, "completion:u1", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 30*time.Second, res.RetryAfter)

	other, err := window.Allow(ctx, "completion:u2", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, other.Allowed)
}

func TestSlidingWindowSlides(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	window, _ := newRedisWindow(t, fc)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := window.Allow(ctx, "message:u1", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := window.Allow(ctx, "message:u1", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	fc.Advance(time.Minute)
	res, err = window.Allow(ctx, "message:u1", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestSlidingWindowStoresPrefixedKey(t *testing.T) {
	window, srv := newRedisWindow(t, clock.NewFakeClock(time.Unix(1_700_000_000, 0)))
	_, err := window.Allow(context.Background(), "api:u1", 5, time.Minute)
	require.NoError(t, err)
	require.True(t, srv.Exists("test:api:u1"))
}

func TestMemoryWindow(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	window := NewMemoryWindow(fc)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := window.Allow(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := window.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, time.Minute, res.RetryAfter)

	fc.Advance(time.Minute + time.Second)
	res, err = window.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	_, err = window.Allow(ctx, "", 2, time.Minute)
	require.Error(t, err)
}

func TestLimiterReturnsLimitError(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	limiter := NewLimiterWith(NewMemoryWindow(fc), config.RateLimitConfig{
		CompletionLimit:  1,
		CompletionWindow: time.Minute,
		MessageLimit:     1,
		MessageWindow:    time.Minute,
	}, nil, nil)
	ctx := context.Background()

	require.NoError(t, limiter.AllowCompletion(ctx, "u1"))
	err := limiter.AllowCompletion(ctx, "u1")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, time.Minute, RetryAfter(err))

	// budgets are independent per endpoint
	require.NoError(t, limiter.AllowMessage(ctx, "u1"))
	// unset rule admits everything
	require.NoError(t, limiter.AllowAPI(ctx, "u1"))
}

func TestLimiterFailsOpenWhenRedisIsDown(t *testing.T) {
	window, srv := newRedisWindow(t, clock.NewFakeClock(time.Unix(1_700_000_000, 0)))
	limiter := NewLimiterWith(window, config.RateLimitConfig{
		CompletionLimit:  1,
		CompletionWindow: time.Minute,
	}, nil, nil)
	srv.Close()

	ctx := context.Background()
	require.NoError(t, limiter.AllowCompletion(ctx, "u1"))
	require.NoError(t, limiter.AllowCompletion(ctx, "u1"))
}

func TestDisabledLimiterAllows(t *testing.T) {
	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.AllowCompletion(context.Background(), "u1"))

	limiter := NewLimiterWith(nil, config.RateLimitConfig{CompletionLimit: 1, CompletionWindow: time.Minute}, nil, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.AllowCompletion(context.Background(), "u1"))
	}
	require.Zero(t, RetryAfter(errors.New("other")))
}
