package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker grants at-most-one-at-a-time execution per job kind, per spec.md
// §4.8: "Jobs are at-most-one-at-a-time per kind; a job still running when
// its next tick arrives skips the tick."
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker implements Locker with a Redis SETNX, so the lock holds across
// process restarts and multiple scheduler instances sharing one Redis.
type RedisLocker struct {
	Client *redis.Client
}

// NewRedisLocker dials the given Redis address. Connectivity isn't verified
// until the first TryAcquire; callers that need a fail-fast check should
// Ping before registering jobs.
func NewRedisLocker(addr, password string, db int) *RedisLocker {
	return &RedisLocker{Client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.Client.SetNX(ctx, lockKey(key), "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.Client.Del(ctx, lockKey(key)).Err()
}

func lockKey(key string) string {
	return "ronin:scheduler:lock:" + key
}

// InProcessLocker is the fallback used when no Redis is configured: a single
// process's scheduled jobs still can't overlap, which is the only guarantee
// a single-instance deployment needs.
type InProcessLocker struct {
	mu      sync.Mutex
	running map[string]bool
}

func NewInProcessLocker() *InProcessLocker {
	return &InProcessLocker{running: make(map[string]bool)}
}

func (l *InProcessLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running[key] {
		return false, nil
	}
	l.running[key] = true
	return true, nil
}

func (l *InProcessLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, key)
	return nil
}
