package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEvictor_DeletesEveryPattern(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("test", 100, time.Minute)
	for _, k := range []string{"appointment:a1:f1", "appointments:p1:f1", "appointments:all:f2", "services:list:f3"} {
		if err := store.Set(ctx, k, []byte("v"), time.Minute); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	NewEvictor(store, zerolog.Nop()).Evict(ctx, "appointment:a1:*", "appointments:p1:*", "appointments:all:*")

	keys, err := store.Keys(ctx, "*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "services:list:f3" {
		t.Errorf("expected only the services entry to survive, got %v", keys)
	}
}
