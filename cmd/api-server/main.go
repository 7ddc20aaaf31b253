package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/api"
	"github.com/abhishinde10/healthnexus/internal/appointment"
	"github.com/abhishinde10/healthnexus/internal/cache"
	"github.com/abhishinde10/healthnexus/internal/catalog"
	"github.com/abhishinde10/healthnexus/internal/config"
	"github.com/abhishinde10/healthnexus/internal/db"
	"github.com/abhishinde10/healthnexus/internal/logging"
	"github.com/abhishinde10/healthnexus/internal/notify"
	"github.com/abhishinde10/healthnexus/internal/payment"
	"github.com/abhishinde10/healthnexus/internal/ratelimit"
	redisclient "github.com/abhishinde10/healthnexus/internal/redis"
)

type eventPublisher interface {
	appointment.Publisher
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("api-server", "dev", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	log := logging.New("api-server", cfg.Env, cfg.LogLevel)
	log.Info().Str("http_port", cfg.HTTPPort).Str("version", cfg.Version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	applied, err := db.Migrate(rootCtx, pgPool, log)
	if err != nil {
		log.Fatal().Err(err).Msg("migration error")
	}
	log.Info().Int("applied", applied).Msg("schema up to date")

	optimizer := db.NewOptimizer(pgPool, cfg.HealthCheckTimeout, log)
	if cfg.EnsureIndexesOnStart {
		report, err := optimizer.EnsureIndexes(rootCtx)
		if err != nil {
			log.Fatal().Err(err).Msg("ensure indexes error")
		}
		log.Info().Strs("created", report.Created).Int("present", report.Present).Msg("indexes ensured")
	}

	// Connect Redis. The provider lock needs it; cache and limiter can run
	// without it on the memory backends.
	rdb := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	if err := redisclient.Ping(rootCtx, rdb); err != nil {
		log.Warn().Err(err).Msg("redis unreachable at startup, bookings will fail until it recovers")
	} else {
		log.Info().Msg("connected to Redis")
	}

	store := newCacheStore(cfg, rdb, log)
	limiter := newLimiter(cfg, rdb)
	events := newPublisher(cfg, log)
	defer func() {
		if err := events.Close(); err != nil {
			log.Error().Err(err).Msg("error closing event publisher")
		}
	}()

	var verifier payment.Verifier = payment.Disabled{}
	if cfg.PaymentGatewayURL != "" {
		verifier = payment.NewHTTPGateway(cfg.PaymentGatewayURL, cfg.PaymentTimeout, log)
	}

	listings := catalog.NewService(catalog.NewPgRepository(pgPool), log)
	appointments := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		listings,
		verifier,
		events,
		log,
	)

	cacheLayer := api.NewCacheLayer(store, cfg.CacheTTL, log)

	router := api.NewRouter(api.RouterConfig{
		Appointments:  appointments,
		Catalog:       listings,
		DBAdmin:       optimizer,
		Cache:         cacheLayer,
		Limiter:       limiter,
		DB:            pgPool,
		CacheStore:    store,
		JWTSecret:     cfg.JWTSecret,
		Env:           cfg.Env,
		Version:       cfg.Version,
		HealthTimeout: cfg.HealthCheckTimeout,
		Log:           log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("http server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	cacheLayer.Wait()

	log.Info().Msg("shutting down api-server")
}

func newCacheStore(cfg config.Config, rdb *redis.Client, log zerolog.Logger) cache.Store {
	if cfg.CacheBackend == "memory" {
		log.Info().Int("max_entries", cfg.CacheMaxEntries).Msg("using in-memory cache store")
		return cache.NewMemoryStore(cfg.Env, cfg.CacheMaxEntries, cfg.CacheTTL)
	}
	return cache.NewRedisStore(rdb, cfg.Env, log)
}

func newLimiter(cfg config.Config, rdb *redis.Client) ratelimit.Limiter {
	if cfg.RateLimitBackend == "memory" {
		return ratelimit.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitMaxKeys)
	}
	return ratelimit.NewRedisLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow)
}

func newPublisher(cfg config.Config, log zerolog.Logger) eventPublisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info().Msg("no kafka brokers configured, appointment events are logged only")
		return notify.NewLogPublisher(log)
	}
	return notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
}
