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
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/warehouse/internal/app"
	jobmetrics "github.com/odyssey-erp/warehouse/internal/jobs"
	"github.com/odyssey-erp/warehouse/internal/observability"
	"github.com/odyssey-erp/warehouse/internal/platform/cache"
	"github.com/odyssey-erp/warehouse/internal/platform/db"
	"github.com/odyssey-erp/warehouse/internal/reports"
	"github.com/odyssey-erp/warehouse/internal/shared"
	"github.com/odyssey-erp/warehouse/internal/snapshot"
	"github.com/odyssey-erp/warehouse/internal/warehouse"
	"github.com/odyssey-erp/warehouse/jobs"
)

// notifierFunc adapts a function to warehouse.ChangeNotifier.
type notifierFunc func(context.Context)

func (f notifierFunc) LedgerChanged(ctx context.Context) { f(ctx) }

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("warehouse exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	redisOpts := cache.Options{Addr: cfg.RedisAddr}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		// Reports fall back to uncached reads and retries are not deduplicated.
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	redisUp := err == nil

	var pool *pgxpool.Pool
	snapshotCfg := cfg.SnapshotConfig()
	if snapshotCfg.Backend == snapshot.BackendPostgres {
		pool, err = db.New(ctx, cfg.PGDSN, db.Options{ApplicationName: "warehouse"})
		if err != nil {
			return err
		}
		defer pool.Close()
		snapshotCfg.Pool = pool
	}
	store, err := snapshot.Open(ctx, snapshotCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("snapshot store close", slog.Any("error", err))
		}
	}()

	var reportCache *reports.Cache
	if redisUp {
		reportCache = reports.NewCache(redisClient, cfg.ReportCacheTTL)
	}
	var reportService *reports.Service
	ledgerService := warehouse.NewService(warehouse.NewLedger(), logger, warehouse.ServiceConfig{
		Snapshots: store,
		Audit:     shared.NewAuditLogger(logger),
		Metrics:   metrics,
		Changes:   notifierFunc(func(ctx context.Context) { reportService.LedgerChanged(ctx) }),
	})
	reportService = reports.NewService(ledgerService, reportCache, logger)

	if cfg.RestoreOnStart {
		if err := restore(ctx, ledgerService, logger); err != nil {
			return err
		}
	}

	if reportCache != nil {
		err := reportCache.ListenForInvalidation(ctx, "", func(ver int64) {
			logger.Debug("report cache invalidated", slog.Int64("version", ver))
		})
		if err != nil {
			logger.Warn("report cache listener", slog.Any("error", err))
		}
	}

	var handlerOpts []warehouse.HandlerOption
	if redisUp {
		handlerOpts = append(handlerOpts, warehouse.WithIdempotency(shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)))
	}

	var jobHandler *jobs.Handler
	if redisUp {
		inspector := asynq.NewInspector(redisOpts.AsynqOpts())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	if cfg.JobsEnabled && redisUp {
		if err := startWorker(ctx, cfg, redisOpts, ledgerService, jobMetrics, logger); err != nil {
			return err
		}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		WarehouseHandler: warehouse.NewHandler(logger, ledgerService, handlerOpts...),
		ReportHandler:    reports.NewHandler(logger, reportService),
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if _, err := ledgerService.Save(shutdownCtx); err != nil {
		logger.Error("final snapshot", slog.Any("error", err))
	}
	return nil
}

func restore(ctx context.Context, svc *warehouse.Service, logger *slog.Logger) error {
	meta, err := svc.Load(ctx)
	switch {
	case errors.Is(err, warehouse.ErrSnapshotNotFound):
		logger.Info("no snapshot stored, starting with an empty ledger")
		return nil
	case err != nil:
		return err
	}
	logger.Info("ledger restored", slog.String("snapshot_id", meta.ID), slog.Time("taken_at", meta.TakenAt))
	return nil
}

func startWorker(ctx context.Context, cfg *app.Config, redisOpts cache.Options, svc *warehouse.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) error {
	snapshotJob := jobs.NewSnapshotJob(svc, logger, metrics)
	snapshotTask, err := jobs.NewSnapshotTask("cron")
	if err != nil {
		return err
	}
	var cron []jobs.CronRegistration
	if cfg.SnapshotCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.SnapshotCron, Task: snapshotTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts.AsynqOpts(),
		Logger:    logger,
		Handlers:  []jobs.TaskHandler{{Type: jobs.TaskLedgerSnapshot, Handler: snapshotJob.Handle}},
		Cron:      cron,
	})
	if err != nil {
		return err
	}
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker run", slog.Any("error", err))
		}
	}()
	return nil
}
