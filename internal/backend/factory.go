package backend

import (
	"context"
	"fmt"
	"log/slog"

	"dindin/internal/amqp"
	"dindin/internal/cutoff"
	"dindin/internal/services"
	"dindin/internal/storage"
	"dindin/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	opts   []services.Option
}

// NewFactory creates a new backend factory. opts are passed to every
// service it builds.
func NewFactory(logger *slog.Logger, opts ...services.Option) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
		opts:   opts,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var repo services.Repository
	switch config.Type {
	case SQLiteBackend:
		sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		repo = sqliteRepo
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		repo = memory.New()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	publisher := f.createPublisher(config)
	resolver := cutoff.NewResolver(repo, config.CutoffCacheSize, config.CutoffCacheTTL)
	svc := services.NewSeriesService(repo, resolver, publisher, f.opts...)

	// Seed the dashboard cutoff from the stored cards.
	if _, err := svc.RefreshCutoff(ctx); err != nil {
		f.logger.Warn("Failed to refresh latest cutoff", "error", err)
	}

	return &BackendResult{
		Service:    svc,
		Repository: repo,
		Resolver:   resolver,
		Cleanup:    svc.Close,
	}, nil
}

// createPublisher returns nil when AMQP is disabled or unreachable; the
// service then skips change messages.
func (f *DefaultFactory) createPublisher(config Config) services.Publisher {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
