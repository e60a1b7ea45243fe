package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker coordinates a key across replicas. Lock blocks until the
// lock is acquired or ctx is done.
type DistributedLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements DistributedLocker with SET NX PX and a
// compare-and-delete release.
type RedisLocker struct {
	client *redis.Client
	prefix string
	poll   time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if client == nil {
		panic("lock: redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "creditsales:"
	}
	return &RedisLocker{client: client, prefix: prefix, poll: 50 * time.Millisecond}
}

func (l *RedisLocker) key(k string) string {
	return l.prefix + "lock:" + k
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	lockKey := l.key(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("lock: redis setnx: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err(); err != nil {
					return fmt.Errorf("lock: redis release: %w", err)
				}
				return nil
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}
}
