// Package main is the entrypoint for the Intelligence Module API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nekazari/intelligence/internal/api"
	"github.com/nekazari/intelligence/internal/api/handler"
	mw "github.com/nekazari/intelligence/internal/api/middleware"
	"github.com/nekazari/intelligence/internal/api/response"
	"github.com/nekazari/intelligence/internal/cache"
	"github.com/nekazari/intelligence/internal/config"
	"github.com/nekazari/intelligence/internal/jobs"
	"github.com/nekazari/intelligence/internal/orion"
	"github.com/nekazari/intelligence/internal/plugin"
	"github.com/nekazari/intelligence/internal/plugin/simple"
	"github.com/nekazari/intelligence/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "orion_url", cfg.Orion.BaseURL, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect to Redis. One client backs the job store, the queue,
	// and the rate limiter.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient)
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build the job pipeline
	jobStore := jobs.NewRedisStore(redisClient)
	queue := jobs.NewRedisQueue(redisClient)
	jobService := jobs.NewService(jobStore, queue)

	registry := plugin.NewRegistry()
	if err := registry.Register(simple.New()); err != nil {
		return fmt.Errorf("register plugin: %w", err)
	}

	orionClient := orion.NewHTTPClient(cfg.Orion.BaseURL, cfg.Orion.ContextURL, cfg.Orion.Timeout)

	worker := jobs.NewWorker(jobService, queue, registry, orionClient,
		jobs.WithPopTimeout(cfg.Worker.PopTimeout),
		jobs.WithIdleDelay(cfg.Worker.IdleDelay),
		jobs.WithErrorBackoff(cfg.Worker.ErrorBackoff),
	)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.Run(workerCtx)
	}()
	slog.Info("worker started")

	// 6. Build router with dependencies
	pgStore := store.NewPostgresStore(pool)
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:  healthHandler(pgStore, redisCache),
		AnalyzeHandler: handler.NewSubmitHandler(jobService, "analyze"),
		PredictHandler: handler.NewSubmitHandler(jobService, "predict"),
		GetJobHandler:  handler.NewGetJobHandler(jobService),
		CancelJob:      handler.NewCancelJobHandler(jobService),
		WebhookHandler: handler.NewWebhookHandler(jobService),
		ListPlugins:    handler.NewListPluginsHandler(registry),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown: stop accepting requests, then let the worker
	// finish its in-flight job.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	stopWorker()
	select {
	case err := <-workerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker shutdown: %w", err)
		}
	case <-shutdownCtx.Done():
		slog.Warn("worker did not stop before timeout")
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and Redis connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"redis":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["redis"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["redis"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
