package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failureKeyPrefix = "auth:fail:"
	lockKeyPrefix    = "auth:lock:"
)

// RedisTracker shares lockout state across instances through Redis. Failures
// accumulate in a counter that expires with the window; the lock is a
// separate key whose TTL is the lockout duration, so expiry needs no sweep.
type RedisTracker struct {
	client       *redis.Client
	threshold    int
	window       time.Duration
	lockDuration time.Duration
	now          func() time.Time
}

func NewRedisTracker(client *redis.Client, threshold int, window, lockDuration time.Duration) *RedisTracker {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	if lockDuration <= 0 {
		lockDuration = DefaultLockoutDuration
	}

	return &RedisTracker{
		client:       client,
		threshold:    threshold,
		window:       window,
		lockDuration: lockDuration,
		now:          time.Now,
	}
}

func (t *RedisTracker) IsLocked(ctx context.Context, identity string) (bool, time.Time, error) {
	value, err := t.client.Get(ctx, lockKeyPrefix+identity).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, fmt.Errorf("get lock key: %w", err)
	}

	until, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("parse lock expiry: %w", err)
	}
	if !t.now().UTC().Before(until) {
		return false, time.Time{}, nil
	}

	return true, until, nil
}

func (t *RedisTracker) RecordFailure(ctx context.Context, identity string) (*time.Time, error) {
	if locked, until, err := t.IsLocked(ctx, identity); err != nil {
		return nil, err
	} else if locked {
		return &until, nil
	}

	count, err := t.client.Incr(ctx, failureKeyPrefix+identity).Result()
	if err != nil {
		return nil, fmt.Errorf("incr failure counter: %w", err)
	}
	if count == 1 {
		if err := t.client.Expire(ctx, failureKeyPrefix+identity, t.window).Err(); err != nil {
			return nil, fmt.Errorf("expire failure counter: %w", err)
		}
	}

	if count < int64(t.threshold) {
		return nil, nil
	}

	until := t.now().UTC().Add(t.lockDuration)
	if err := t.client.Set(ctx, lockKeyPrefix+identity, until.Format(time.RFC3339Nano), t.lockDuration).Err(); err != nil {
		return nil, fmt.Errorf("set lock key: %w", err)
	}
	if err := t.client.Del(ctx, failureKeyPrefix+identity).Err(); err != nil {
		return nil, fmt.Errorf("reset failure counter: %w", err)
	}

	return &until, nil
}

func (t *RedisTracker) Clear(ctx context.Context, identity string) error {
	if err := t.client.Del(ctx, failureKeyPrefix+identity, lockKeyPrefix+identity).Err(); err != nil {
		return fmt.Errorf("clear lockout keys: %w", err)
	}

	return nil
}
