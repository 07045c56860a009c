package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ktwhotel/concierge/internal/api/router"
	"github.com/ktwhotel/concierge/internal/app/bootstrap"
	appconfig "github.com/ktwhotel/concierge/internal/config"
	"github.com/ktwhotel/concierge/internal/http/handlers"
	"github.com/ktwhotel/concierge/internal/worker"
	"github.com/ktwhotel/concierge/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Default().Warn("failed to read .env", "error", err)
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"tenant_id", cfg.TenantID,
		"session_backend", cfg.SessionBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	// The in-memory queue only exists inside this process, so its consumers
	// must run here too.
	var w *worker.Worker
	if cfg.UseMemoryQueue {
		w = rt.Worker()
		w.Start(ctx)
		logger.Info("in-process workers started", "count", cfg.WorkerCount)
	}
	if cfg.SweepInterval > 0 {
		sweeper, err := rt.Sweeper(ctx)
		if err != nil {
			logger.Error("failed to wire session sweeper", "error", err)
			os.Exit(1)
		}
		go func() { _ = sweeper.Run(ctx) }()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(rt),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	if w != nil {
		w.Wait()
	}
	logger.Info("server stopped")
}

func newHandler(rt *bootstrap.Runtime) http.Handler {
	cfg := rt.Config
	return router.New(&router.Config{
		Logger:             rt.Logger,
		TenantID:           cfg.TenantID,
		LineWebhook:        rt.Webhook(),
		Messages:           handlers.NewMessagesHandler(rt.Dispatcher, cfg.TenantID, rt.Logger),
		AdminSessions:      handlers.NewAdminSessionsHandler(rt.Sessions, rt.Logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MessagesPerMinute:  cfg.MessagesPerMinute,
	})
}
