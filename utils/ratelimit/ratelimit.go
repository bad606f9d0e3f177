// Package ratelimit implements a Redis-backed fixed-window request limiter.
// State lives in Redis so limits hold across multiple API instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether a keyed request may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string, window time.Duration) error
}

// WindowLimiter counts requests per (key, window bucket) with Redis INCR.
// When failOpen is set, Redis outages let requests through instead of
// turning the limiter into an outage of its own.
type WindowLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	failOpen    bool
}

func NewWindowLimiter(redisClient *redis.Client, logger *zap.Logger, failOpen bool) *WindowLimiter {
	return &WindowLimiter{
		redisClient: redisClient,
		logger:      logger,
		failOpen:    failOpen,
	}
}

// Allow reports whether one more request under key fits inside limit for the
// current window.
func (l *WindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	bucketKey := l.bucketKey(key, time.Now(), window)

	pipe := l.redisClient.Pipeline()
	incrCmd := pipe.Incr(ctx, bucketKey)
	pipe.Expire(ctx, bucketKey, window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit check failed, allowing request",
				zap.String("key", key), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incrCmd.Val()
	allowed := count <= int64(limit)
	if !allowed {
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", limit))
	}
	return allowed, nil
}

// Reset clears the current window's counter for key.
func (l *WindowLimiter) Reset(ctx context.Context, key string, window time.Duration) error {
	bucketKey := l.bucketKey(key, time.Now(), window)
	if err := l.redisClient.Del(ctx, bucketKey).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for key %s: %w", key, err)
	}
	return nil
}

func (l *WindowLimiter) bucketKey(key string, now time.Time, window time.Duration) string {
	bucket := now.UnixNano() / int64(window)
	return fmt.Sprintf("ratelimit:%s:%d", key, bucket)
}
