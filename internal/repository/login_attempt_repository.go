package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	loginFailurePrefix = "login_failures:"
	loginLockPrefix    = "login_lock:"
)

// LoginAttemptRepository tracks failed admin logins per email.
type LoginAttemptRepository interface {
	IsLocked(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) (int64, error)
	Lock(ctx context.Context, email string, ttl time.Duration) error
	Reset(ctx context.Context, email string) error
}

type redisLoginAttemptRepository struct {
	client *redis.Client
	window time.Duration
}

// NewLoginAttemptRepository returns a Redis-backed tracker. Failure counters
// expire after window.
func NewLoginAttemptRepository(client *redis.Client, window time.Duration) LoginAttemptRepository {
	return &redisLoginAttemptRepository{client: client, window: window}
}

func (r *redisLoginAttemptRepository) IsLocked(ctx context.Context, email string) (bool, error) {
	n, err := r.client.Exists(ctx, loginLockPrefix+normalizeEmail(email)).Result()
	if err != nil {
		return false, fmt.Errorf("check login lock: %w", err)
	}
	return n > 0, nil
}

func (r *redisLoginAttemptRepository) RecordFailure(ctx context.Context, email string) (int64, error) {
	key := loginFailurePrefix + normalizeEmail(email)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	return incr.Val(), nil
}

func (r *redisLoginAttemptRepository) Lock(ctx context.Context, email string, ttl time.Duration) error {
	if err := r.client.Set(ctx, loginLockPrefix+normalizeEmail(email), "locked", ttl).Err(); err != nil {
		return fmt.Errorf("set login lock: %w", err)
	}
	return nil
}

func (r *redisLoginAttemptRepository) Reset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := r.client.Del(ctx, loginFailurePrefix+email, loginLockPrefix+email).Err(); err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}
