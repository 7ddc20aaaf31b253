package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestWithLock_RunsAndReleases(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewRedisLocker(client, 5*time.Second)

	ran := false
	err := locker.WithLock(context.Background(), "provider:p1", func(ctx context.Context) error {
		ran = true
		if !mr.Exists(HoldPrefix+"provider:p1") {
			t.Error("expected lock key while inside the critical section")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("expected fn to run")
	}
	if mr.Exists(HoldPrefix+"provider:p1") {
		t.Error("expected lock key to be released")
	}
}

func TestWithLock_ContendedLockFails(t *testing.T) {
	client, _ := newTestClient(t)
	locker := NewRedisLocker(client, 5*time.Second)

	err := locker.WithLock(context.Background(), "provider:p1", func(ctx context.Context) error {
		inner := locker.WithLock(ctx, "provider:p1", func(context.Context) error {
			t.Error("inner fn must not run while the lock is held")
			return nil
		})
		if !errors.Is(inner, ErrHeld) {
			t.Errorf("expected ErrHeld, got %v", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithLock_DoesNotReleaseForeignToken(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewRedisLocker(client, 5*time.Second)

	_ = locker.WithLock(context.Background(), "provider:p1", func(ctx context.Context) error {
		// Simulate expiry and takeover by another holder.
		_ = mr.Set(HoldPrefix+"provider:p1", "someone-else")
		return nil
	})

	got, err := mr.Get(HoldPrefix+"provider:p1")
	if err != nil || got != "someone-else" {
		t.Errorf("expected foreign lock to survive release, got %q err=%v", got, err)
	}
}

func TestWithLock_PropagatesFnError(t *testing.T) {
	client, _ := newTestClient(t)
	locker := NewRedisLocker(client, 5*time.Second)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "provider:p1", func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected fn error, got %v", err)
	}
}

func TestWithLock_ReleasesAfterCallerCancels(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewRedisLocker(client, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	_ = locker.WithLock(ctx, "provider:p2", func(context.Context) error {
		cancel()
		return nil
	})

	if mr.Exists(HoldPrefix + "provider:p2") {
		t.Error("expected hold released after the caller's context was canceled")
	}
}
