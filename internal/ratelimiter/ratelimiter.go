// Package ratelimiter implements a per-client sliding-window request limit
// backed by Redis, so the limit holds across multiple proxy instances even
// though CacheMap itself is deliberately single-process (§6).
package ratelimiter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces a sliding-window request cap per key (typically client
// IP) using a Redis sorted set: each call's timestamp is its own member and
// score, so Allow can evict everything outside the window with one ZREMRANGEBYSCORE.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// New creates a Limiter allowing up to limit requests per window, per key.
func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, limit: limit, window: window}
}

// Decision reports the outcome of an Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	RetryAfter time.Duration
}

// Allow records a request for key at now and reports whether it falls
// within the configured limit for the trailing window ending at now.
func (l *Limiter) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	redisKey := "ratelimit:" + key
	windowStart := now.Add(-l.window)
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uniqueSuffix())

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.PExpire(ctx, redisKey, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("ratelimiter: pipeline exec: %w", err)
	}

	count := int(countCmd.Val())
	if count >= l.limit {
		// The member just added pushes this caller over the limit; remove
		// it so a rejected request doesn't still consume a slot.
		_ = l.client.ZRem(ctx, redisKey, member).Err()
		return Decision{Allowed: false, Remaining: 0, RetryAfter: l.window}, nil
	}

	return Decision{Allowed: true, Remaining: l.limit - count - 1}, nil
}

var seq atomic.Int64

// uniqueSuffix disambiguates members added within the same nanosecond; a
// package-level counter is adequate here since Redis, not this process,
// arbitrates ordering across instances.
func uniqueSuffix() string {
	return fmt.Sprintf("%d", seq.Add(1))
}
