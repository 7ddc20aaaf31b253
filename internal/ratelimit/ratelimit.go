// Package ratelimit tracks recent requests per caller identity inside a
// sliding window.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is implemented by RedisLimiter (shared across instances) and
// MemoryLimiter (per process, bounded).
type Limiter interface {
	Allow(ctx context.Context, identity string) (Decision, error)
}

func retryAfter(oldest time.Time, window time.Duration, now time.Time) time.Duration {
	d := oldest.Add(window).Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}
