package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/antoniostano/brandstudio/internal/assets"
	"github.com/antoniostano/brandstudio/internal/autosave"
	"github.com/antoniostano/brandstudio/internal/config"
	"github.com/antoniostano/brandstudio/internal/documents"
	"github.com/antoniostano/brandstudio/internal/executor"
	"github.com/antoniostano/brandstudio/internal/httpapi"
	"github.com/antoniostano/brandstudio/internal/observability"
	"github.com/antoniostano/brandstudio/internal/taskruntime"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	TaskService  *taskruntime.Service
	Assets       *assets.Store
	Autosave     *autosave.Synchronizer
	Metrics      *observability.Metrics
	Logger       *slog.Logger
	ExecutorMode string
	StoreMode    string

	// Cleanup should be called on shutdown to release external resources (DB, Redis, pollers).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	logger := observability.NewLogger(cfg.LogLevel)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	exec, closeExec, err := buildExecutor(ctx, cfg, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("executor init failed: %w", err)
	}

	docs, storeMode, err := documents.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = closeExec()
		return nil, fmt.Errorf("document store init failed: %w", err)
	}
	logger.Info("document store ready", "mode", storeMode)

	store := assets.NewStore(&assets.Document{}, metrics)

	saver := autosave.New(autosave.Config{
		Debounce:      cfg.Autosave.Debounce,
		MaxRetries:    cfg.Autosave.MaxRetries,
		RetryDelay:    cfg.Autosave.RetryDelay,
		StatusDisplay: cfg.Autosave.StatusDisplay,
	}, docs, logger, metrics)

	runCtx, stopRun := context.WithCancel(context.Background())
	changes, unsubscribe := store.Subscribe()
	go saver.Run(runCtx, changes)

	taskService := taskruntime.New(taskruntime.Config{
		UserID:      cfg.Executor.UserID,
		Settings:    cfg.Settings,
		BaseDelay:   cfg.Polling.BaseDelay,
		Growth:      cfg.Polling.Growth,
		MaxDelay:    cfg.Polling.MaxDelay,
		MaxAttempts: cfg.Polling.MaxAttempts,
		GraceWindow: cfg.Polling.GraceWindow,
	}, exec, logger, metrics)
	taskService.RegisterAssetCompletions(store)
	taskService.OnNotify(func(taskID string, status tasks.TaskStatus) {
		logger.Info("task finished", "task_id", taskID, "status", status)
	})
	taskService.OnRefresh(func(brandID string) {
		refreshBrand(runCtx, brandID, docs, store, saver, logger)
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Runtime:   taskService,
		Assets:    store,
		Autosave:  saver,
		Documents: docs,
		StoreMode: storeMode,
		Metrics:   metrics,
		Logger:    logger,
	})

	cleanup := func() error {
		var errs []string
		if err := taskService.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		unsubscribe()
		stopRun()
		saver.Stop()
		if err := closeExec(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := docs.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		TaskService:  taskService,
		Assets:       store,
		Autosave:     saver,
		Metrics:      metrics,
		Logger:       logger,
		ExecutorMode: cfg.Executor.Mode,
		StoreMode:    storeMode,
		Cleanup:      cleanup,
	}, nil
}

func noopClose() error { return nil }

func buildExecutor(ctx context.Context, cfg config.Config, metrics *observability.Metrics, logger *slog.Logger) (executor.Executor, func() error, error) {
	switch cfg.Executor.Mode {
	case "mock":
		logger.Warn("using mock executor; tasks complete locally")
		return executor.NewMockExecutor(), noopClose, nil
	case "http":
		return executor.NewHTTPExecutor(cfg.Executor.HTTPURL, cfg.Executor.Timeout), noopClose, nil
	case "queue":
		q, closeQueue, err := buildQueueExecutor(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return q, closeQueue, nil
	case "failover":
		backends := []executor.Backend{{
			Name:     "http",
			Executor: executor.NewHTTPExecutor(cfg.Executor.HTTPURL, cfg.Executor.Timeout),
		}}
		closeFn := noopClose
		if cfg.Executor.FallbackURL != "" {
			backends = append(backends, executor.Backend{
				Name:     "http-fallback",
				Executor: executor.NewHTTPExecutor(cfg.Executor.FallbackURL, cfg.Executor.Timeout),
			})
		}
		if cfg.Redis.Addr != "" {
			q, closeQueue, err := buildQueueExecutor(ctx, cfg.Redis)
			if err != nil {
				logger.Warn("queue fallback unavailable", "error", err)
			} else {
				backends = append(backends, executor.Backend{Name: "queue", Executor: q})
				closeFn = closeQueue
			}
		}
		if len(backends) < 2 {
			return nil, nil, errors.New("failover mode has no usable fallback backend")
		}
		f := executor.NewFailoverExecutor(backends...).OnFallback(func(from string, err error) {
			metrics.ObserveFailover(from)
			logger.Warn("executor backend failed, trying next", "backend", from, "error", err)
		})
		return f, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unsupported executor mode %q", cfg.Executor.Mode)
	}
}

func buildQueueExecutor(ctx context.Context, rc config.RedisConfig) (*executor.QueueExecutor, func() error, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", rc.Addr, err)
	}
	queue := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	closeFn := func() error {
		return errors.Join(queue.Close(), client.Close())
	}
	return executor.NewQueueExecutor(client, queue), closeFn, nil
}

// refreshBrand pulls a brand created by a background task into the session
// when nothing is loaded yet. An already open document is left alone so
// unsaved local edits survive.
func refreshBrand(ctx context.Context, brandID string, docs documents.Store, store *assets.Store, saver *autosave.Synchronizer, logger *slog.Logger) {
	if brandID == "" {
		return
	}
	current := store.Snapshot()
	if current != nil && current.ID != "" {
		logger.Debug("brand refresh requested", "brand_id", brandID, "current", current.ID)
		return
	}
	doc, err := docs.Load(ctx, brandID)
	if err != nil {
		logger.Warn("brand refresh failed", "brand_id", brandID, "error", err)
		return
	}
	saver.SyncLastSaved(doc)
	if _, err := store.Dispatch(assets.Hydrate{Document: doc}); err != nil {
		logger.Warn("brand hydrate failed", "brand_id", brandID, "error", err)
	}
}
