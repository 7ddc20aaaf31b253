package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/metrics"
)

const scanBatch = 200

// RedisStore keeps cache entries in Redis under "<env>:" prefixed keys.
type RedisStore struct {
	client *redis.Client
	ns     namespace
	log    zerolog.Logger
}

func NewRedisStore(client *redis.Client, env string, log zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ns:     namespace(env),
		log:    log.With().Str("component", "cache.redis").Logger(),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := s.client.Get(ctx, s.ns.wrap(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.CacheErrors.WithLabelValues("get").Inc()
			s.log.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		}
		return nil, false
	}
	return val, true
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.ns.wrap(key), value, ttl).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.ns.wrap(key)).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys walks the keyspace with SCAN so large caches do not block the server
// the way KEYS would.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.ns.wrap(pattern), scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, s.ns.unwrap(iter.Val()))
	}
	if err := iter.Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("scan").Inc()
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}
