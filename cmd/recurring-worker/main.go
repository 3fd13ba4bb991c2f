package main

import (
	"context"
	"os"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	store, err := backend.Open(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if store.Cleanup != nil {
		defer store.Cleanup()
	}

	notifier, closeNotifier := cli.BuildNotifier(logger, cfg)
	defer closeNotifier()

	processor := services.NewRecurringProcessor(store.Backend, notifier)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	interval := cfg.RecurringInterval
	logger.Info("Recurring processor configured",
		"interval", interval,
		"backend", cfg.DataBackend)

	run := func(now time.Time) {
		res, err := processor.ProcessDue(ctx, now)
		if err != nil {
			logger.Error("Recurring processing failed", "error", err)
			return
		}
		logger.Info("Recurring processing complete",
			"checked", res.Checked,
			"processed", res.Processed,
			"deactivated", res.Deactivated,
			"failed", res.Failed,
			"next_check", now.Add(interval).Format("15:04:05"))
	}

	// Run initial processing on startup
	run(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				run(now)
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker shutdown complete")
}
