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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/reconciler/internal/app"
	jobmetrics "github.com/odyssey-erp/reconciler/internal/jobs"
	"github.com/odyssey-erp/reconciler/internal/platform/cache"
	"github.com/odyssey-erp/reconciler/internal/platform/db"
	"github.com/odyssey-erp/reconciler/jobs"
)

const idempotencyCleanupCron = "30 4 * * *"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The batch lock and claims need redis; the worker does not start without it.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	go serveMetrics(ctx, cfg.WorkerMetricsAddr, logger)

	engine, err := app.NewEngine(ctx, app.EngineDeps{
		Config:   cfg,
		Pool:     pool,
		Redis:    redisClient,
		Logger:   logger,
		Observer: metrics,
	})
	if err != nil {
		logger.Error("init engine", slog.Any("error", err))
		os.Exit(1)
	}
	if err := engine.Patterns.Watch(ctx); err != nil {
		logger.Warn("pattern version watch", slog.Any("error", err))
	}

	autoJob := &jobs.AutoReconcileJob{
		Service:     engine.Service,
		Patterns:    engine.Patterns,
		Locks:       engine.Claims,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: cfg.Reconciliation.Concurrency,
		Limit:       cfg.Reconciliation.BatchSize,
	}
	integrityJob := &jobs.LedgerIntegrityJob{
		Store:   jobs.NewIntegrityStore(pool),
		Logger:  logger,
		Metrics: metrics,
	}
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:  engine.Idempotency,
		Logger: logger,
	}

	autoTask, err := jobs.NewAutoReconcileTask(jobs.AutoReconcilePayload{Limit: cfg.Reconciliation.BatchSize})
	if err != nil {
		logger.Error("build auto reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.Reconciliation.IdempotencyRetention)
	if err != nil {
		logger.Error("build idempotency cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: 2,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcileAuto, Handler: autoJob.Handle},
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.Reconciliation.Cron, Task: autoTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.Reconciliation.IntegrityCron, Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueMaintenance), asynq.MaxRetry(3)}},
			{Spec: idempotencyCleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.Queue(jobs.QueueMaintenance), asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// serveMetrics exposes the default registry, where job metrics live.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("serving worker metrics", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("worker metrics server", slog.Any("error", err))
	}
}
