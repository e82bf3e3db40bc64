package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
	"github.com/brightpulse/bitrix-warehouse/pkg/config"
	"github.com/brightpulse/bitrix-warehouse/pkg/database"
	"github.com/brightpulse/bitrix-warehouse/pkg/handlers"
	"github.com/brightpulse/bitrix-warehouse/pkg/logging"
	"github.com/brightpulse/bitrix-warehouse/pkg/middleware"
	"github.com/brightpulse/bitrix-warehouse/pkg/models"
	"github.com/brightpulse/bitrix-warehouse/pkg/references"
	"github.com/brightpulse/bitrix-warehouse/pkg/repositories"
	"github.com/brightpulse/bitrix-warehouse/pkg/scheduler"
	"github.com/brightpulse/bitrix-warehouse/pkg/services"
	"github.com/brightpulse/bitrix-warehouse/pkg/services/syncqueue"
	"github.com/brightpulse/bitrix-warehouse/pkg/warehouse"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("dialect", cfg.DBDialect),
		zap.String("bitrix", logging.SanitizeWebhookURL(cfg.BitrixWebhookURL)),
		zap.Int("batch_size", cfg.Sync.BatchSize))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, &database.Config{
		URL:     cfg.DatabaseURL,
		Dialect: database.Dialect(cfg.DBDialect),
	})
	if err != nil {
		logger.Fatal("failed to connect to warehouse",
			zap.String("dsn", logging.SanitizeDSN(cfg.DatabaseURL)), zap.Error(err))
	}
	defer db.Close()

	if err := repositories.Bootstrap(ctx, db, logger); err != nil {
		logger.Fatal("failed to bootstrap bookkeeping tables", zap.Error(err))
	}

	client := bitrix.NewClient(cfg.BitrixWebhookURL, logger)

	tables := warehouse.NewTableBuilder(db, logger)
	writer := warehouse.NewWriter(db, logger)
	introspector := warehouse.NewIntrospector(db, logger)

	configRepo := repositories.NewSyncConfigRepository(db)
	stateRepo := repositories.NewSyncStateRepository(db)
	logRepo := repositories.NewSyncLogRepository(db)

	refService := references.NewService(client, tables, writer, logger)
	syncService := services.NewEntitySyncService(client, tables, writer, refService,
		configRepo, stateRepo, logRepo, logger)

	queue := syncqueue.New(logger)
	registerTaskHandlers(queue, syncService, refService, logRepo)
	queue.Start(ctx)

	sched := scheduler.New(queue, configRepo, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewSyncHandler(configRepo, stateRepo, logRepo, queue, sched, introspector, logger).RegisterRoutes(mux)
	handlers.NewReferencesHandler(queue, introspector, logRepo, logger).RegisterRoutes(mux)
	handlers.NewWebhookHandler(queue, client, logger).RegisterRoutes(mux)
	handlers.NewWarehouseHandler(introspector, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: middleware.RequestLogger(logger)(mux),
	}

	go func() {
		logger.Info("starting bitrix-warehouse",
			zap.String("addr", cfg.Addr()),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	grace := time.Duration(cfg.ShutdownGraceSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}

	sched.Stop()
	queue.Stop(grace)
	logger.Info("shutdown complete")
}

// registerTaskHandlers binds queue task types to their implementations.
// Full and incremental syncs write their own sync_logs rows; webhook and
// reference tasks are wrapped here.
func registerTaskHandlers(
	queue *syncqueue.Queue,
	syncService *services.EntitySyncService,
	refService *references.Service,
	logs repositories.SyncLogRepository,
) {
	queue.Register(syncqueue.TaskFullSync, func(ctx context.Context, task *syncqueue.Task) error {
		_, err := syncService.FullSync(ctx, task.EntityType)
		return err
	})
	queue.Register(syncqueue.TaskIncrementalSync, func(ctx context.Context, task *syncqueue.Task) error {
		_, err := syncService.IncrementalSync(ctx, task.EntityType)
		return err
	})
	queue.Register(syncqueue.TaskWebhookSync, loggedTask(logs, models.SyncTypeWebhook,
		func(ctx context.Context, task *syncqueue.Task) (int64, error) {
			outcome, err := syncService.SyncEntityByID(ctx, task.EntityType, task.RecordID)
			if err != nil {
				return 0, err
			}
			if outcome == "synced" {
				return 1, nil
			}
			return 0, nil
		}))
	queue.Register(syncqueue.TaskWebhookDelete, loggedTask(logs, models.SyncTypeWebhook,
		func(ctx context.Context, task *syncqueue.Task) (int64, error) {
			outcome, err := syncService.DeleteEntityByID(ctx, task.EntityType, task.RecordID)
			if err != nil {
				return 0, err
			}
			if outcome == "deleted" {
				return 1, nil
			}
			return 0, nil
		}))
	queue.Register(syncqueue.TaskReferenceSync, loggedTask(logs, models.SyncTypeReference,
		func(ctx context.Context, task *syncqueue.Task) (int64, error) {
			n, err := refService.SyncOne(ctx, task.EntityType)
			return int64(n), err
		}))
	queue.Register(syncqueue.TaskReferenceSyncAll, loggedTask(logs, models.SyncTypeReference,
		func(ctx context.Context, task *syncqueue.Task) (int64, error) {
			counts, err := refService.SyncAll(ctx)
			var total int64
			for _, n := range counts {
				total += int64(n)
			}
			return total, err
		}))
}

// loggedTask wraps a task handler with a sync_logs row. The entity_type
// column carries the task's entity (the reference name for reference tasks,
// "references" for a sync-all run).
func loggedTask(
	logs repositories.SyncLogRepository,
	syncType string,
	run func(ctx context.Context, task *syncqueue.Task) (int64, error),
) syncqueue.Handler {
	return func(ctx context.Context, task *syncqueue.Task) error {
		entity := task.EntityType
		if entity == "" {
			entity = "references"
		}
		logID, err := logs.Start(ctx, entity, syncType)
		if err != nil {
			return err
		}
		processed, err := run(ctx, task)
		if err != nil {
			_ = logs.Fail(ctx, logID, err.Error())
			return err
		}
		return logs.Complete(ctx, logID, processed, processed)
	}
}
