package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tradedesk-app/tradedesk-backend/internal/cron"
	"github.com/tradedesk-app/tradedesk-backend/internal/notifications"
	internalresponses "github.com/tradedesk-app/tradedesk-backend/internal/responses"
	"github.com/tradedesk-app/tradedesk-backend/pkg/config"
	"github.com/tradedesk-app/tradedesk-backend/pkg/db"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
	"github.com/tradedesk-app/tradedesk-backend/pkg/metrics"
	"github.com/tradedesk-app/tradedesk-backend/pkg/migrate"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
	"github.com/tradedesk-app/tradedesk-backend/pkg/redis"
)

const serviceName = "cron-worker"

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("td:%s:lock:%s", serviceName, env)
}

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceName})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		boot.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(boot, ctx, "failed to load config", err)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fatal(logg, ctx, "failed to bootstrap database", err)
	}
	defer closeQuietly(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		fatal(logg, ctx, "failed to run dev migrations", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		fatal(logg, ctx, "failed to bootstrap redis", err)
	}
	defer closeQuietly(logg, "redis", redisClient.Close)

	registry, err := buildRegistry(logg, dbClient, cfg)
	if err != nil {
		fatal(logg, ctx, "failed to build cron jobs", err)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		fatal(logg, ctx, "failed to create cron lock", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		fatal(logg, ctx, "failed to create cron service", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	logg.Info(runCtx, "starting cron worker")
	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		fatal(logg, runCtx, "cron worker stopped unexpectedly", err)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

func buildRegistry(logg *logger.Logger, dbClient *db.Client, cfg *config.Config) (*cron.Registry, error) {
	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	cleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notifications.NewRepository(gormDB),
	})
	if err != nil {
		return nil, fmt.Errorf("notification cleanup job: %w", err)
	}

	stalenessJob, err := cron.NewResponseStalenessJob(cron.ResponseStalenessJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: internalresponses.NewRepository(gormDB),
		Outbox:     outbox.NewService(outboxRepo, logg),
		StaleAfter: cfg.Dispatch.ResponseStaleAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("response staleness job: %w", err)
	}

	return cron.NewRegistry(retentionJob, cleanupJob, stalenessJob), nil
}

func fatal(logg *logger.Logger, ctx context.Context, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

func closeQuietly(logg *logger.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
