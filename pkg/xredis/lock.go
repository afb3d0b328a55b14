package xredis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived leases so work items are dispatched by at
// most one instance at a time. It is advisory: the database state machine
// remains the correctness boundary.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisLocker struct {
	client *redis.Client
	prefix string
}

func NewLocker(client *redis.Client, prefix string) *redisLocker {
	return &redisLocker{client: client, prefix: prefix}
}

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, 1, ttl).Result()
}

func (l *redisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}

// NoopLocker always acquires. It backs single-instance deployments and
// tests, where the in-process in-flight set is enough.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (NoopLocker) Release(ctx context.Context, key string) error {
	return nil
}
