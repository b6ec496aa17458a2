package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/natours/tours-api/internal/core/ports"
)

// RateLimiter is a fixed-window request counter.
// Key format: ratelimit:<client>:<window_start_unix>
type RateLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, max int64, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &RateLimiter{client: client, max: max, window: window, now: time.Now}
}

// Allow counts one request for client in the current window.
func (l *RateLimiter) Allow(ctx context.Context, client string) (ports.RateDecision, error) {
	now := l.now()
	start := now.Truncate(l.window)
	key := fmt.Sprintf("ratelimit:%s:%d", client, start.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return ports.RateDecision{}, fmt.Errorf("rate limit: %w", err)
	}

	count := incr.Val()
	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}
	return ports.RateDecision{
		Allowed:   count <= l.max,
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   start.Add(l.window),
	}, nil
}
