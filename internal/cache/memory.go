package cache

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a bounded in-process Store for single-instance deployments.
// The LRU evicts by size and by maxTTL; shorter per-key TTLs are enforced on
// read.
type MemoryStore struct {
	lru *expirable.LRU[string, memoryEntry]
	ns  namespace
	now func() time.Time
}

func NewMemoryStore(env string, maxEntries int, maxTTL time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryStore{
		lru: expirable.NewLRU[string, memoryEntry](maxEntries, nil, maxTTL),
		ns:  namespace(env),
		now: time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	k := s.ns.wrap(key)
	entry, ok := s.lru.Get(k)
	if !ok {
		return nil, false
	}
	if s.expired(entry) {
		s.lru.Remove(k)
		return nil, false
	}
	return entry.data, true
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	data := make([]byte, len(value))
	copy(data, value)
	s.lru.Add(s.ns.wrap(key), memoryEntry{data: data, expiresAt: s.now().Add(ttl)})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lru.Remove(s.ns.wrap(key))
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	full := s.ns.wrap(pattern)
	if _, err := path.Match(full, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	var keys []string
	for _, k := range s.lru.Keys() {
		entry, ok := s.lru.Peek(k)
		if !ok || s.expired(entry) {
			continue
		}
		if ok, _ := path.Match(full, k); ok {
			keys = append(keys, s.ns.unwrap(k))
		}
	}
	return keys, nil
}

func (s *MemoryStore) HealthCheck(context.Context) bool {
	return true
}

// Len reports the number of live and not-yet-evicted entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return !s.now().Before(e.expiresAt)
}
