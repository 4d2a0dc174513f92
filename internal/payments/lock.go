package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultVerifyLockTTL = 30 * time.Second

// lockStore defines the Redis operations VerifyLock uses.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(scope, id string) string
}

// VerifyLock serializes slip verification per order with a Redis SETNX
// lease. The TTL bounds how long a crashed verifier can hold an order.
type VerifyLock struct {
	client lockStore
	ttl    time.Duration
}

// NewVerifyLock constructs a Redis-backed per-order lock.
func NewVerifyLock(client lockStore, ttl time.Duration) (*VerifyLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for verify lock")
	}
	if ttl <= 0 {
		ttl = defaultVerifyLockTTL
	}
	return &VerifyLock{client: client, ttl: ttl}, nil
}

// Acquire tries to lease the order. On success it returns a release
// function that frees the lease only if this caller still owns it.
func (l *VerifyLock) Acquire(ctx context.Context, orderID string) (func(context.Context) error, bool, error) {
	key := l.client.LockKey("verify", orderID)
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		value, err := l.client.Get(ctx, key)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return fmt.Errorf("read lock owner: %w", err)
		}
		if value != owner {
			return nil
		}
		if err := l.client.Del(ctx, key); err != nil {
			return fmt.Errorf("delete lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}
