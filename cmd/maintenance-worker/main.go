package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/appointment"
	"github.com/abhishinde10/healthnexus/internal/cache"
	"github.com/abhishinde10/healthnexus/internal/config"
	"github.com/abhishinde10/healthnexus/internal/db"
	"github.com/abhishinde10/healthnexus/internal/logging"
	"github.com/abhishinde10/healthnexus/internal/notify"
	redisclient "github.com/abhishinde10/healthnexus/internal/redis"
)

const jobTimeout = 2 * time.Minute

// cronLogger routes the scheduler's own messages through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("maintenance-worker", "dev", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	log := logging.New("maintenance-worker", cfg.Env, cfg.LogLevel)
	log.Info().
		Str("reminders", cfg.ReminderSchedule).
		Str("expiry", cfg.ExpirySchedule).
		Str("cleanup", cfg.CleanupSchedule).
		Msg("maintenance-worker starting up")

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

	rdb := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	if err := redisclient.Ping(rootCtx, rdb); err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	log.Info().Msg("connected to Redis")

	var events interface {
		appointment.Publisher
		Close() error
	}
	if len(cfg.KafkaBrokers) > 0 {
		events = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	} else {
		events = notify.NewLogPublisher(log)
	}
	defer events.Close()

	// Cached views live in Redis only when the API runs the redis backend;
	// evicting from it is harmless otherwise.
	evictor := cache.NewEvictor(cache.NewRedisStore(rdb, cfg.Env, log), log)

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		nil,
		nil,
		events,
		log,
	).WithEvictor(evictor)
	optimizer := db.NewOptimizer(pgPool, cfg.HealthCheckTimeout, log)

	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context) (int64, error)
	}{
		{"reminders", cfg.ReminderSchedule, func(ctx context.Context) (int64, error) {
			n, err := svc.SendDueReminders(ctx, cfg.ReminderLead)
			return int64(n), err
		}},
		{"expiry", cfg.ExpirySchedule, func(ctx context.Context) (int64, error) {
			n, err := svc.ExpireStale(ctx, cfg.NoShowGrace)
			return int64(n), err
		}},
		{"cleanup", cfg.CleanupSchedule, func(ctx context.Context) (int64, error) {
			var total int64
			for _, table := range []string{"event_logs", "appointments"} {
				n, err := optimizer.Cleanup(ctx, table, cfg.CleanupRetentionDays)
				if err != nil {
					return total, err
				}
				if table == "appointments" && n > 0 {
					evictor.Evict(ctx, "appointment:*", "appointments:*")
				}
				total += n
			}
			return total, nil
		}},
	}

	logger := cronLogger{log: log}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	for _, job := range jobs {
		job := job
		if _, err := c.AddFunc(job.schedule, func() { runOnce(rootCtx, log, job.name, job.run) }); err != nil {
			log.Fatal().Err(err).Str("job", job.name).Str("schedule", job.schedule).Msg("invalid cron schedule")
		}
	}

	// Run expiry and reminders once at startup
	runOnce(rootCtx, log, jobs[0].name, jobs[0].run)
	runOnce(rootCtx, log, jobs[1].name, jobs[1].run)

	c.Start()
	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, waiting for running jobs")
	<-c.Stop().Done()
	log.Info().Msg("maintenance-worker stopped")
}

func runOnce(ctx context.Context, log zerolog.Logger, name string, run func(ctx context.Context) (int64, error)) {
	runCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	n, err := run(runCtx)
	if err != nil {
		log.Error().Err(err).Str("job", name).Int64("affected", n).Msg("job run error")
		return
	}
	log.Info().Str("job", name).Int64("affected", n).Dur("took", time.Since(start)).Msg("job run complete")
}
