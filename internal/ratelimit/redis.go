package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps one sorted set per identity, scored by request time in
// microseconds. Requests older than the window are trimmed on every call and
// the key expires once the identity goes quiet.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, identity string) (Decision, error) {
	key := l.prefix + identity
	now := l.now()
	cutoff := now.Add(-l.window).UnixMicro()
	member := strconv.FormatInt(now.UnixMicro(), 10) + "-" + uuid.NewString()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	card := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.PExpire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	count := int(card.Val())
	if count <= l.limit {
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - count}, nil
	}

	// Rejected requests do not occupy the window.
	if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
		return Decision{}, fmt.Errorf("rate limit rollback: %w", err)
	}

	first := now
	if zs := oldest.Val(); len(zs) > 0 {
		first = time.UnixMicro(int64(zs[0].Score))
	}
	return Decision{
		Allowed:    false,
		Limit:      l.limit,
		Remaining:  0,
		RetryAfter: retryAfter(first, l.window, now),
	}, nil
}
