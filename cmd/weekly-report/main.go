package main

import (
	"context"
	"flag"
	"os"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	cfg := cli.LoadAndValidateConfig(logger)
	owner := flag.String("owner", cfg.ReportOwner, "owner whose week is summarized")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := backend.Open(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if store.Cleanup != nil {
		defer store.Cleanup()
	}

	notifier, closeNotifier := cli.BuildNotifier(logger, cfg)
	defer closeNotifier()

	svc := cli.NewTransactionService(logger, cfg, store.Backend, notifier)
	rep, err := svc.WeeklyReport(ctx, *owner)
	if err != nil {
		logger.Error("Weekly report failed", "error", err, "owner", *owner)
		os.Exit(1)
	}
	logger.Info("Weekly report sent",
		"owner", *owner,
		"transactions", len(rep.Items),
		"summary", services.FormatWeekly(rep))
}
