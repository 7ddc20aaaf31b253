// Package cache is the best-effort key/value side channel used to accelerate
// read-heavy endpoints. A failing store must never fail a request: Get
// reports a miss and the mutating calls return an error for the caller to log.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store is implemented by RedisStore and MemoryStore. Keys passed in and
// returned are logical keys; each implementation namespaces them by
// deployment environment.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	HealthCheck(ctx context.Context) bool
}

// DeletePattern removes every key matching the glob pattern one by one.
// Deletion is not atomic: keys written concurrently may survive, and a
// failure part way leaves the remaining keys in place. It returns how many
// keys were removed and the first error encountered.
func DeletePattern(ctx context.Context, store Store, pattern string) (int, error) {
	keys, err := store.Keys(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("list keys %q: %w", pattern, err)
	}

	deleted := 0
	var firstErr error
	for _, k := range keys {
		if err := store.Delete(ctx, k); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("delete key %q: %w", k, err)
			}
			continue
		}
		deleted++
	}
	return deleted, firstErr
}

// Key joins key segments with ':' so every entity shares one layout:
// entity:identifier:fingerprint.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

type namespace string

func (n namespace) wrap(key string) string {
	if n == "" {
		return key
	}
	return string(n) + ":" + key
}

func (n namespace) unwrap(key string) string {
	if n == "" {
		return key
	}
	return strings.TrimPrefix(key, string(n)+":")
}
