package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type window struct {
	mu   sync.Mutex
	hits []time.Time
}

// MemoryLimiter bounds the number of tracked identities with an expiring LRU,
// so idle or churned callers are evicted instead of accumulating forever.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows *expirable.LRU[string, *window]
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewMemoryLimiter(limit int, win time.Duration, maxKeys int) *MemoryLimiter {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryLimiter{
		windows: expirable.NewLRU[string, *window](maxKeys, nil, win),
		limit:   limit,
		window:  win,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, identity string) (Decision, error) {
	w := l.windowFor(identity)
	now := l.now()
	cutoff := now.Add(-l.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	i := 0
	for i < len(w.hits) && w.hits[i].Before(cutoff) {
		i++
	}
	w.hits = w.hits[i:]

	if len(w.hits) >= l.limit {
		return Decision{
			Allowed:    false,
			Limit:      l.limit,
			RetryAfter: retryAfter(w.hits[0], l.window, now),
		}, nil
	}

	w.hits = append(w.hits, now)
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - len(w.hits)}, nil
}

// Tracked reports how many identities currently hold a window.
func (l *MemoryLimiter) Tracked() int {
	return l.windows.Len()
}

func (l *MemoryLimiter) windowFor(identity string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows.Get(identity)
	if !ok {
		w = &window{}
	}
	// Re-adding refreshes the entry's expiry while the identity is active.
	l.windows.Add(identity, w)
	return w
}
