package interfaces

import (
	"context"

	"github.com/go-redis/redis_rate/v10"
)

// Limiter gates an action under a per-key quota. The default backing store
// is process-local and best-effort; a shared (redis_rate) implementation
// can be swapped in without touching callers.
type Limiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) error
}

// FailureTracker counts failures per key over a fixed window and reports
// lockout once the threshold is crossed. Counters are process-local and
// not durable.
type FailureTracker interface {
	Fail(ctx context.Context, key string) int
	IsLockedOut(ctx context.Context, key string) bool
}
