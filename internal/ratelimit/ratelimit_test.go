package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func newRedisLimiter(t *testing.T, limit int, win time.Duration) (*RedisLimiter, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := newClock()
	l := NewRedisLimiter(client, limit, win)
	l.now = c.now
	return l, c
}

func newMemoryLimiter(limit int, win time.Duration, maxKeys int) (*MemoryLimiter, *clock) {
	c := newClock()
	l := NewMemoryLimiter(limit, win, maxKeys)
	l.now = c.now
	return l, c
}

func exerciseLimiter(t *testing.T, l Limiter, c *clock) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if d.Remaining != 2-i {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, 2-i, d.Remaining)
		}
		c.advance(time.Second)
	}

	d, err := l.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected fourth request to be rejected")
	}
	// Oldest hit at t=0, now t=3s, window 10s.
	if d.RetryAfter != 7*time.Second {
		t.Errorf("expected retry after 7s, got %s", d.RetryAfter)
	}

	other, _ := l.Allow(ctx, "user-2")
	if !other.Allowed {
		t.Error("expected independent identity to be allowed")
	}

	c.advance(8 * time.Second)
	d, _ = l.Allow(ctx, "user-1")
	if !d.Allowed {
		t.Error("expected request to be allowed once the oldest hit left the window")
	}
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	l, c := newRedisLimiter(t, 3, 10*time.Second)
	exerciseLimiter(t, l, c)
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	l, c := newMemoryLimiter(3, 10*time.Second, 100)
	exerciseLimiter(t, l, c)
}

func TestRedisLimiter_RejectedRequestsDoNotExtendLockout(t *testing.T) {
	l, c := newRedisLimiter(t, 1, 10*time.Second)
	ctx := context.Background()

	if d, _ := l.Allow(ctx, "u"); !d.Allowed {
		t.Fatal("expected first request allowed")
	}
	for i := 0; i < 5; i++ {
		c.advance(time.Second)
		if d, _ := l.Allow(ctx, "u"); d.Allowed {
			t.Fatal("expected rejection inside the window")
		}
	}
	c.advance(6 * time.Second)
	if d, _ := l.Allow(ctx, "u"); !d.Allowed {
		t.Error("expected allowance once the single accepted hit expired")
	}
}

func TestRedisLimiter_ErrorWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLimiter(client, 5, time.Minute)
	mr.Close()

	if _, err := l.Allow(context.Background(), "u"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestMemoryLimiter_BoundedIdentities(t *testing.T) {
	l, _ := newMemoryLimiter(5, time.Minute, 2)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	_, _ = l.Allow(ctx, "c")

	if l.Tracked() != 2 {
		t.Errorf("expected 2 tracked identities, got %d", l.Tracked())
	}
}
