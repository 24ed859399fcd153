package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/reconciler/internal/accounting/accounts"
	"github.com/odyssey-erp/reconciler/internal/accounting/balances"
	"github.com/odyssey-erp/reconciler/internal/accounting/journals"
	"github.com/odyssey-erp/reconciler/internal/app"
	jobmetrics "github.com/odyssey-erp/reconciler/internal/jobs"
	"github.com/odyssey-erp/reconciler/internal/observability"
	"github.com/odyssey-erp/reconciler/internal/platform/cache"
	"github.com/odyssey-erp/reconciler/internal/platform/db"
	"github.com/odyssey-erp/reconciler/internal/reconciliation"
	"github.com/odyssey-erp/reconciler/internal/training"
	"github.com/odyssey-erp/reconciler/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, claims and pattern versions stay local", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	engine, err := app.NewEngine(ctx, app.EngineDeps{
		Config:   cfg,
		Pool:     pool,
		Redis:    redisClient,
		Logger:   logger,
		Observer: jobMetrics,
	})
	if err != nil {
		logger.Error("init engine", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		if err := engine.Patterns.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("pattern version watch stopped", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	checks := map[string]app.Pinger{
		"postgres": app.PingFunc(pool.Ping),
	}
	if redisClient != nil {
		checks["redis"] = app.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		AccountsHandler:       accounts.NewHandler(logger, engine.Accounts),
		JournalsHandler:       journals.NewHandler(logger, engine.Journals),
		BalancesHandler:       balances.NewHandler(logger, engine.Balances),
		ReconciliationHandler: reconciliation.NewHandler(logger, engine.Service),
		TrainingHandler:       training.NewHandler(logger, engine.Feedback, engine.Training, engine.Patterns),
		JobHandler:            jobs.NewHandler(inspector, queue, logger),
		Metrics:               metrics,
		Checks:                checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
