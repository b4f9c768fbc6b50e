package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"groupnotify/internal/config"
	"groupnotify/internal/domain/dispatch"
	"groupnotify/internal/infra/email"
	"groupnotify/internal/infra/hook"
	"groupnotify/internal/infra/queue"
	"groupnotify/internal/infra/session"
	"groupnotify/internal/infra/store"
	"groupnotify/internal/infra/template"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	once := flag.Bool("once", false, "process the worker request given as key=value arguments and exit")
	flag.Parse()

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

	slog.Info("worker configuration loaded", "once", *once)

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

	// Email layout
	tmplEngine, err := template.NewEngine()
	if err != nil {
		slog.Error("failed to initialize template engine", "error", err)
		os.Exit(1)
	}

	// Delivery providers
	providers := dispatch.NewProviderRegistry(st, newEmailProvider(cfg.Email, tmplEngine))
	if missing := providers.MissingMethods(cfg.Dispatch.Methods); len(missing) > 0 {
		slog.Warn("delivery methods without a provider will fail every delivery",
			"missing", missing,
			"available", providers.Methods(),
		)
	}

	// Extension hooks
	var hooks dispatch.Hooks = dispatch.NoHooks{}
	if cfg.Hooks.URL != "" {
		hooks = dispatch.Chain(hook.NewWebhookHooks(cfg.Hooks.URL, time.Duration(cfg.Hooks.TimeoutSec)*time.Second))
		slog.Info("extension hooks enabled", "url", cfg.Hooks.URL)
	}

	registry := dispatch.NewRegistry(cfg.Registry.Entities, cfg.Registry.Annotations)
	dispatcher := dispatch.NewDispatcher(st, registry, hooks, providers, dispatch.Config{
		Methods: cfg.Dispatch.Methods,
	})

	// Session lookup for requests without an explicit actor
	sessions := session.NewRedisSessionStore(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.SessionPrefix,
	)
	defer sessions.Close()

	worker := dispatch.NewWorker(dispatch.NewSecret(cfg.Secret.SecretSource()), dispatcher, sessions)

	if *once {
		worker.ApplyRequestMemoryLimit()
		if err := runOnce(worker, flag.Args(), cfg.Queue.TaskTimeout()); err != nil {
			slog.Error("worker run failed", "error", err)
			sessions.Close()
			st.Close()
			os.Exit(1)
		}
		return
	}

	// Concurrent tasks share one process, so the limit comes from config only.
	if limit, ok := dispatch.ParseMemoryLimit(cfg.Worker.MemoryLimit); ok {
		debug.SetMemoryLimit(limit)
		slog.Info("memory limit set", "bytes", limit)
	}

	// ==========================================
	// Metrics endpoint
	// ==========================================

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	// ==========================================
	// Asynq Server (task processing)
	// ==========================================

	asynqServer := queue.NewServer(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Queue.Concurrency,
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(dispatch.TaskTypeDispatch, worker.ProcessTask)

	// Start the asynq worker in a goroutine
	go func() {
		slog.Info("worker starting",
			"concurrency", cfg.Queue.Concurrency,
			"redis", cfg.Redis.Address,
			"methods", cfg.Dispatch.Methods,
		)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	asynqServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)

	slog.Info("worker exited gracefully")
}

// runOnce processes a single worker request passed as key=value arguments,
// as spawned by the process launcher.
func runOnce(worker *dispatch.Worker, args []string, timeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	report, err := worker.Process(ctx, strings.Join(args, "&"))
	if err != nil {
		return err
	}
	slog.Info("worker run finished", "delivered", report.Delivered, "failed", report.Failed)
	return nil
}

func newEmailProvider(cfg config.EmailConfig, renderer email.Renderer) dispatch.Provider {
	if cfg.Provider == "smtp" {
		slog.Info("smtp email provider initialized", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
		return email.NewSMTPProvider(email.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			Encryption:  cfg.SMTP.Encryption,
			FromAddress: cfg.FromAddress,
			FromName:    cfg.FromName,
		}, renderer)
	}
	slog.Info("resend email provider initialized")
	return email.NewResendProvider(cfg.APIKey, cfg.FromAddress, cfg.FromName, renderer)
}
