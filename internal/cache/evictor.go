package cache

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/metrics"
)

// Evictor removes cached views synchronously for writers that do not go
// through the HTTP write path, such as the maintenance jobs.
type Evictor struct {
	store Store
	log   zerolog.Logger
}

func NewEvictor(store Store, log zerolog.Logger) *Evictor {
	return &Evictor{store: store, log: log.With().Str("component", "cache_evictor").Logger()}
}

// Evict deletes every key matching the patterns. Failures are logged and
// the remaining patterns are still processed.
func (e *Evictor) Evict(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		n, err := DeletePattern(ctx, e.store, p)
		metrics.CacheInvalidations.Add(float64(n))
		if err != nil {
			e.log.Warn().Err(err).Str("pattern", p).Int("deleted", n).Msg("cache eviction failed")
		}
	}
}
