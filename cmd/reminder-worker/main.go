package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/config"
	"github.com/hackgods/booking-platform/internal/db"
	"github.com/hackgods/booking-platform/internal/events"
	"github.com/hackgods/booking-platform/internal/logging"
	"github.com/hackgods/booking-platform/internal/notification"
	redisclient "github.com/hackgods/booking-platform/internal/redis"
)

const (
	serviceName   = "reminder-worker"
	reminderBatch = 200
)

type reminderSender interface {
	SendDueReminders(ctx context.Context, now time.Time, lead time.Duration, batch int) (int, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(serviceName, "info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger := logging.New(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("reminder worker starting up", "env", cfg.Env, "interval", cfg.WorkerInterval, "lead", cfg.ReminderLead)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "err", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("redis connection error", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "err", err)
		}
	}()
	logger.Info("connected to Redis")

	// sockets live in the API replicas; reach them through the relay only
	relay := redisclient.NewRoomRelay(rdb, nil, logger)
	notifier := notification.NewService(notification.NewPgRepository(pgPool), relay, cfg.NotifyTimeout, logger)
	defer notifier.Wait()

	publisher := events.NewPublisher(events.KafkaConfig{Brokers: cfg.KafkaBrokers, TopicPrefix: cfg.KafkaTopicPrefix}, logger)
	if c, ok := publisher.(io.Closer); ok {
		defer c.Close()
	}

	runner := db.NewTxRunner(pgPool, cfg.LockTimeout, cfg.TxTimeout)
	svc := appointment.NewService(appointment.NewPgRepository(pgPool, runner), notifier, publisher, logger)

	// Run once at startup
	runOnce(rootCtx, logger, svc, cfg.ReminderLead)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, svc, cfg.ReminderLead)
		}
	}
}

// runOnce drains every due reminder in batches, stopping early on error.
func runOnce(ctx context.Context, logger *slog.Logger, svc reminderSender, lead time.Duration) int {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	total := 0
	for runCtx.Err() == nil {
		n, err := svc.SendDueReminders(runCtx, time.Now().UTC(), lead, reminderBatch)
		total += n
		if err != nil {
			logger.Error("reminder run error", "sent", total, "err", err)
			return total
		}
		if n < reminderBatch {
			break
		}
	}
	logger.Info("reminder run complete", "sent", total, "duration", time.Since(start))
	return total
}
