package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// HoldPrefix namespaces calendar hold keys.
const HoldPrefix = "calendar-hold:"

// ErrHeld means another request holds the resource, typically a booking in
// flight on the same provider calendar.
var ErrHeld = errors.New("calendar is held by another booking")

// Locker serialises work on one resource, such as a provider calendar while
// an overlap check and insert run.
type Locker interface {
	WithLock(ctx context.Context, resource string, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker returns a Locker backed by one expiring key per resource.
// fn always gets a context bounded by ttl so work cannot outlive its hold.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{client: client, ttl: ttl}
}

// hold is an acquired key and the token proving ownership of it.
type hold struct {
	key   string
	token string
}

func (l *redisLocker) acquire(ctx context.Context, resource string) (*hold, error) {
	h := &hold{key: HoldPrefix + resource, token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, h.key, h.token, l.ttl).Result()
	switch {
	case err != nil:
		return nil, fmt.Errorf("take hold on %s: %w", resource, err)
	case !ok:
		return nil, ErrHeld
	}
	return h, nil
}

// releaseScript deletes the key only while it still carries our token, so an
// expired hold taken over by another booking is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *redisLocker) release(ctx context.Context, h *hold) error {
	err := releaseScript.Run(ctx, l.client, []string{h.key}, h.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release hold %s: %w", h.key, err)
	}
	return nil
}

func (l *redisLocker) WithLock(ctx context.Context, resource string, fn func(ctx context.Context) error) error {
	h, err := l.acquire(ctx, resource)
	if err != nil {
		return err
	}
	// Release even when the caller's context is already canceled; the hold
	// would otherwise block the calendar until ttl.
	defer func() { _ = l.release(context.WithoutCancel(ctx), h) }()

	holdCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(holdCtx)
}
