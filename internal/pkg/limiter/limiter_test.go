package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/stretchr/testify/require"
)

func TestMemoryAllowExactQuota(t *testing.T) {
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.clockNow = func() time.Time { return now }

	ctx := context.Background()
	limit := redis_rate.PerMinute(10)

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Allow(ctx, "u1:complete_task", limit))
	}
	require.ErrorIs(t, m.Allow(ctx, "u1:complete_task", limit), ErrRateLimited)

	// other keys are unaffected
	require.NoError(t, m.Allow(ctx, "u2:complete_task", limit))
}

func TestMemoryWindowRollover(t *testing.T) {
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.clockNow = func() time.Time { return now }

	ctx := context.Background()
	limit := redis_rate.PerMinute(2)

	require.NoError(t, m.Allow(ctx, "k", limit))
	require.NoError(t, m.Allow(ctx, "k", limit))
	require.ErrorIs(t, m.Allow(ctx, "k", limit), ErrRateLimited)

	now = now.Add(59 * time.Second)
	require.ErrorIs(t, m.Allow(ctx, "k", limit), ErrRateLimited)

	now = now.Add(time.Second)
	require.NoError(t, m.Allow(ctx, "k", limit))
}

func TestLockoutThreshold(t *testing.T) {
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	l := NewLockout()
	l.clockNow = func() time.Time { return now }

	ctx := context.Background()
	for i := 1; i < lockoutThreshold; i++ {
		require.Equal(t, i, l.Fail(ctx, "ip:abc"))
		require.False(t, l.IsLockedOut(ctx, "ip:abc"))
	}

	l.Fail(ctx, "ip:abc")
	require.True(t, l.IsLockedOut(ctx, "ip:abc"))

	// no manual unlock; the window has to elapse
	now = now.Add(lockoutWindow - time.Minute)
	require.True(t, l.IsLockedOut(ctx, "ip:abc"))

	now = now.Add(time.Minute)
	require.False(t, l.IsLockedOut(ctx, "ip:abc"))
}

func TestMemoryConcurrentCallers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	limit := redis_rate.PerMinute(50)

	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			allowed <- m.Allow(ctx, "shared", limit) == nil
		}()
	}

	passed := 0
	for i := 0; i < 100; i++ {
		if <-allowed {
			passed++
		}
	}
	require.Equal(t, 50, passed)
}
