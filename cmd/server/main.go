package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupnotify/internal/config"
	"groupnotify/internal/domain/dispatch"
	"groupnotify/internal/infra/process"
	"groupnotify/internal/infra/queue"
	"groupnotify/internal/infra/store"
	"groupnotify/internal/middleware"
	"groupnotify/internal/router"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded", "port", cfg.Server.Port, "mode", cfg.Server.Mode)

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	// Host CMS directory and delivery log
	st, err := store.Open(cfg.Store)
	if err != nil {
		slog.Error("failed to initialize store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("store initialized", "driver", cfg.Store.Driver)

	registry := dispatch.NewRegistry(cfg.Registry.Entities, cfg.Registry.Annotations)
	secret := dispatch.NewSecret(cfg.Secret.SecretSource())

	// Background launcher
	var launcher dispatch.Launcher
	switch cfg.Launcher.Mode {
	case "process":
		launcher = process.NewLauncher(cfg.Launcher.WorkerBinary)
		slog.Info("process launcher initialized", "binary", cfg.Launcher.WorkerBinary)
	default:
		asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		defer asynqClient.Close()
		launcher = queue.NewLauncher(asynqClient, cfg.Queue.MaxRetry, cfg.Queue.TaskTimeout())
		slog.Info("queue launcher initialized", "redis", cfg.Redis.Address)
	}

	trigger := dispatch.NewTrigger(secret, launcher, cfg.Worker.MemoryLimit)

	// Service
	dispatchService := dispatch.NewService(st, registry, trigger, st)

	// Handler
	dispatchHandler := dispatch.NewHandler(dispatchService)

	// Rate limiter, with idle client eviction
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	evictCtx, stopEviction := context.WithCancel(context.Background())
	defer stopEviction()
	go rateLimiter.RunEviction(evictCtx, time.Minute)

	// Router
	r := router.New(cfg, rateLimiter, dispatchHandler)

	// ==========================================
	// HTTP Server with Graceful Shutdown
	// ==========================================

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}
