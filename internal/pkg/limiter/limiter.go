// Package limiter provides the quota and lockout gates in front of every
// engine action. The default implementation keeps its counters in process
// memory: each instance has its own view, which is an accepted weakness,
// not a bug. The redis_rate-backed implementation can be swapped in where
// cross-instance consistency is wanted.
package limiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

var ErrRateLimited = errors.New("rate-limited")

type window struct {
	start time.Time
	count int
}

// Memory is a process-local fixed-window counter. The window resets lazily
// on the first call after it elapses; nothing is persisted.
type Memory struct {
	mu       sync.Mutex
	windows  map[string]*window
	clockNow func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		windows:  make(map[string]*window),
		clockNow: time.Now,
	}
}

func (m *Memory) Allow(ctx context.Context, key string, limit redis_rate.Limit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clockNow()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= limit.Period {
		w = &window{start: now}
		m.windows[key] = w
	}

	if w.count >= limit.Rate {
		return ErrRateLimited
	}

	w.count++
	return nil
}

const (
	lockoutWindow    = time.Hour
	lockoutThreshold = 10
)

// Lockout tracks failures per key over a one-hour window. Once the count
// reaches the threshold the key stays locked until the window elapses;
// there is no manual unlock path.
type Lockout struct {
	mu       sync.Mutex
	windows  map[string]*window
	clockNow func() time.Time
}

func NewLockout() *Lockout {
	return &Lockout{
		windows:  make(map[string]*window),
		clockNow: time.Now,
	}
}

func (l *Lockout) Fail(ctx context.Context, key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clockNow()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= lockoutWindow {
		w = &window{start: now}
		l.windows[key] = w
	}

	w.count++
	return w.count
}

func (l *Lockout) IsLockedOut(ctx context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.clockNow().Sub(w.start) >= lockoutWindow {
		return false
	}
	return w.count >= lockoutThreshold
}

// Redis enforces the same contract against a shared redis_rate store.
type Redis struct {
	instance *redis_rate.Limiter
}

func NewRedis(client redis.UniversalClient) (*Redis, error) {
	return &Redis{redis_rate.NewLimiter(client)}, nil
}

func (l *Redis) Allow(ctx context.Context, key string, limit redis_rate.Limit) error {
	res, err := l.instance.Allow(ctx, key, limit)
	if err != nil {
		return err
	}
	if res.Allowed <= 0 {
		return ErrRateLimited
	}
	return nil
}
