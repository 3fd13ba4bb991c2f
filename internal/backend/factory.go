package backend

import (
	"context"
	"fmt"
	"log/slog"

	appconfig "fintrack/internal/config"
	"fintrack/internal/storage"
	"fintrack/internal/storage/gcs"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case GCSBackend:
		return f.createGCSBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createGCSBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := gcs.Open(ctx, config.GCSBucket, config.GCSPrefix, gcs.ClientOptions{
		CredentialsFile: config.GCSCredentialsFile,
		Endpoint:        config.GCSEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloud Storage backend: %w", err)
	}

	f.logger.Info("Initialized Cloud Storage backend",
		"bucket", config.GCSBucket,
		"prefix", config.GCSPrefix,
		"custom_endpoint", config.GCSEndpoint != "")

	return &BackendResult{
		Backend: store,
		Cleanup: store.Close,
	}, nil
}

// Open is the one-call form used by the commands: it converts the application config,
// creates the backend and returns it with its cleanup.
func Open(ctx context.Context, logger *slog.Logger, appConfig *appconfig.Config) (*BackendResult, error) {
	cfg, err := FromAppConfig(appConfig)
	if err != nil {
		return nil, err
	}
	return NewFactory(logger).CreateBackend(ctx, cfg)
}
