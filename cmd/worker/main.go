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

	"github.com/meridian-erp/meridian-erp/internal/accounting/accounts"
	"github.com/meridian-erp/meridian-erp/internal/accounting/controls"
	"github.com/meridian-erp/meridian-erp/internal/accounting/fx"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/numbering"
	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	metrics := observability.NewMetrics()
	audit := shared.NewAuditLogger(pool)
	lease := shared.NewLease(redisClient)

	accountResolver := accounts.NewResolver(accounts.NewRepository(pool))
	controlsService := controls.NewService(controls.NewRepository(pool))

	journalRepo := journals.NewRepository(pool)
	periodRepo := periods.NewRepository(pool)

	numberGen := numbering.NewGenerator(numbering.NewRepository(pool))
	numberGen.WithMetrics(metrics)

	// Validator and period manager reference each other through narrow
	// ports; the manager is the period gate for validation.
	var periodManager *periods.Manager
	validator := journals.NewValidator(accountResolver, periodGate{&periodManager}, controlsService, journalRepo)
	poster := journals.NewService(journalRepo, validator, audit)
	poster.WithMetrics(metrics)
	poster.WithNumbers(numberGen)

	periodManager = periods.NewManager(periodRepo, poster, controlsService, audit)
	periodManager.WithLease(lease)

	fxEngine := fx.NewEngine(fx.NewRepository(pool), periodManager, poster, controlsService, audit)
	fxEngine.WithLease(lease)

	idempotencyStore := shared.NewIdempotencyStore(pool)
	integrityScanner := jobs.NewGLIntegrityScanner(pool, logger, metrics)
	cleanupHandler := jobs.NewIdempotencyCleanupHandler(idempotencyStore, logger, cfg.IdempotencyRetainTo)
	revalHandler := jobs.NewFXRevaluationHandler(fxEngine, logger)

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	scanTask, err := jobs.NewGLIntegrityScanTask(jobs.GLIntegrityScanPayload{BatchSize: cfg.IntegrityScanBatch})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{RetainFor: cfg.IdempotencyRetainTo})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGLIntegrityScan, Handler: integrityScanner.HandleTask},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupHandler.HandleTask},
			{Type: jobs.TaskFXRevaluation, Handler: revalHandler.HandleTask},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// periodGate defers to the period manager once it is constructed, breaking
// the validator/manager construction cycle.
type periodGate struct {
	manager **periods.Manager
}

func (g periodGate) PeriodForDate(ctx context.Context, companyID int64, date time.Time) (journals.PeriodInfo, error) {
	return (*g.manager).PeriodForDate(ctx, companyID, date)
}
