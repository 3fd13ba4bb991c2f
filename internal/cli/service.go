package cli

import (
	"log/slog"
	"os"

	"fintrack/internal/classifier"
	"fintrack/internal/config"
	"fintrack/internal/csvimport"
	"fintrack/internal/notify"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// NewClassifier loads the configured rule table, or the built-in rules when none is set.
// Exits the process when the configured file cannot be parsed.
func NewClassifier(logger *slog.Logger, rulesFile string) *classifier.Classifier {
	if rulesFile == "" {
		return classifier.NewDefault()
	}
	rules, err := classifier.LoadRules(rulesFile)
	if err != nil {
		logger.Error("Failed to load classifier rules", "error", err, "path", rulesFile)
		os.Exit(1)
	}
	logger.Info("Loaded classifier rules", "path", rulesFile, "rules", len(rules))
	return classifier.New(rules)
}

// NewTransactionService wires the service the HTTP server and workers share.
func NewTransactionService(logger *slog.Logger, cfg *config.Config, store storage.Repository, notifier notify.Notifier) *services.TransactionService {
	return services.NewTransactionService(store, NewClassifier(logger, cfg.ClassifierRulesFile),
		services.WithNotifier(notifier),
		services.WithCSVParser(csvimport.NewParser(cfg.CSVDateLayout, nil)))
}
