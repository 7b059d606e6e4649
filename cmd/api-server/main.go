package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/booking-platform/internal/api"
	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/auth"
	"github.com/hackgods/booking-platform/internal/config"
	"github.com/hackgods/booking-platform/internal/db"
	"github.com/hackgods/booking-platform/internal/events"
	"github.com/hackgods/booking-platform/internal/logging"
	"github.com/hackgods/booking-platform/internal/notification"
	"github.com/hackgods/booking-platform/internal/realtime"
	redisclient "github.com/hackgods/booking-platform/internal/redis"
	"github.com/hackgods/booking-platform/internal/stats"
	"github.com/hackgods/booking-platform/internal/telemetry"
)

const serviceName = "api-server"

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(serviceName, "info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger := logging.New(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api-server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := telemetry.Setup(rootCtx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(ctx)
		}()
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 20})
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	applied, err := db.Migrate(rootCtx, pgPool)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", "files", applied)
	}

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "err", err)
		}
	}()
	logger.Info("connected to Redis")

	hub := realtime.NewHub(logger)
	relay := redisclient.NewRoomRelay(rdb, hub, logger)
	go func() {
		if err := relay.Run(rootCtx); err != nil {
			logger.Error("room relay stopped", "err", err)
		}
	}()

	notifier := notification.NewService(notification.NewPgRepository(pgPool), relay, cfg.NotifyTimeout, logger)

	publisher := events.NewPublisher(events.KafkaConfig{Brokers: cfg.KafkaBrokers, TopicPrefix: cfg.KafkaTopicPrefix}, logger)
	if c, ok := publisher.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn("error closing event publisher", "err", err)
			}
		}()
	}

	runner := db.NewTxRunner(pgPool, cfg.LockTimeout, cfg.TxTimeout)
	booking := appointment.NewService(appointment.NewPgRepository(pgPool, runner), notifier, publisher, logger)
	aggregator := stats.NewAggregator(stats.NewPgRepository(pgPool))

	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunSweeper(rootCtx)

	router := api.NewRouter(api.RouterConfig{
		Booking:       booking,
		Slots:         booking.Slots(),
		Notifications: notifier,
		Stats:         aggregator,
		Tokens:        auth.NewTokenManager(cfg.JWTSecret, 0),
		Live:          realtime.NewWSHandler(hub, logger),
		Limiter:       limiter,
		Health:        api.NewHealthHandler(cfg.Env, version, api.PostgresDependency(pgPool), api.RedisDependency(rdb)),
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "err", err)
	}
	notifier.Wait()

	logger.Info("api-server stopped cleanly")
	return nil
}
