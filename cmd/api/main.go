package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tradedesk-app/tradedesk-backend/api/routes"
	"github.com/tradedesk-app/tradedesk-backend/internal/callouts"
	"github.com/tradedesk-app/tradedesk-backend/internal/jobs"
	"github.com/tradedesk-app/tradedesk-backend/internal/notifications"
	"github.com/tradedesk-app/tradedesk-backend/internal/partners"
	internalresponses "github.com/tradedesk-app/tradedesk-backend/internal/responses"
	"github.com/tradedesk-app/tradedesk-backend/internal/selection"
	"github.com/tradedesk-app/tradedesk-backend/internal/settlement"
	"github.com/tradedesk-app/tradedesk-backend/pkg/config"
	"github.com/tradedesk-app/tradedesk-backend/pkg/db"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
	"github.com/tradedesk-app/tradedesk-backend/pkg/metrics"
	"github.com/tradedesk-app/tradedesk-backend/pkg/migrate"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
	"github.com/tradedesk-app/tradedesk-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	partnersRepo := partners.NewRepository(gormDB)

	calloutsService, err := callouts.NewService(
		callouts.NewRepository(gormDB), partnersRepo, dbClient, outboxService, dispatchMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create callouts service", err)
		os.Exit(1)
	}

	responsesService, err := internalresponses.NewService(
		internalresponses.NewRepository(gormDB), dbClient, outboxService,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create responses service", err)
		os.Exit(1)
	}

	jobCreator, err := jobs.NewCreator(jobs.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create job creator", err)
		os.Exit(1)
	}

	selectionService, err := selection.NewService(
		selection.NewRepository(gormDB), jobCreator, dbClient, outboxService, dispatchMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create selection service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(
		settlement.NewRepository(gormDB), dbClient, outboxService, dispatchMetrics, cfg.Settlement,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	partnersService, err := partners.NewService(partnersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create partners service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, redisClient,
			calloutsService, responsesService, selectionService,
			settlementService, partnersService, notificationsService,
		),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	case <-shutdownCtx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
