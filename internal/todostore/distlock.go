package todostore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// DistLock coordinates a per-session critical section across multiple
// agentd/agent processes sharing one Store directory (e.g. mounted on the
// same network volume). The in-process sync.Mutex in Store only protects
// against concurrent goroutines within a single process; DistLock closes the
// gap for horizontally-scaled deployments. A nil DistLock (the default) is a
// no-op: single-process deployments pay nothing for it.
type DistLock interface {
	// Lock blocks until the named lock is acquired or ctx is done, and
	// returns a release function that must be called to give it up.
	Lock(ctx context.Context, name string) (release func(), err error)
}

// RedisDistLock implements DistLock with a Redis SET NX PX spin lock.
type RedisDistLock struct {
	client     *redis.Client
	ttl        time.Duration
	retryEvery time.Duration
}

// NewRedisDistLock dials addr and verifies connectivity with a PING.
func NewRedisDistLock(addr string) (*RedisDistLock, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisDistLock{client: c, ttl: 10 * time.Second, retryEvery: 50 * time.Millisecond}, nil
}

func (l *RedisDistLock) Close() error {
	return l.client.Close()
}

func (l *RedisDistLock) Lock(ctx context.Context, name string) (func(), error) {
	key := "agentrt:todostore:lock:" + name
	token := uuid.NewString()
	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire distlock %s: %w", name, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				// Best-effort compare-and-delete: only clear the lock if we
				// still hold it (it may have expired and been re-acquired).
				if v, err := l.client.Get(releaseCtx, key).Result(); err == nil && v == token {
					l.client.Del(releaseCtx, key)
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
