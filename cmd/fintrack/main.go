package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting fintrack")

	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	store, err := backend.Open(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if store.Cleanup != nil {
			if err := store.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", "error", err)
			}
		}
	}()

	notifier, closeNotifier := cli.BuildNotifier(logger, cfg)
	defer closeNotifier()

	svc := cli.NewTransactionService(logger, cfg, store.Backend, notifier)

	srv := apphttp.NewServer(":"+cfg.Port, svc,
		apphttp.WithLogger(cli.SetupComponentLogger(log.ComponentHTTP)),
		apphttp.WithRateLimit(cfg.RateLimitPerMinute))
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Listening", "port", cfg.Port, "backend", cfg.DataBackend, "rate_limit", cfg.RateLimitPerMinute)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
