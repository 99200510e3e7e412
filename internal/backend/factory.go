package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"despesas/internal/amqp"
	"despesas/internal/storage"
	"despesas/internal/storage/memory"
)

type DefaultFactory struct {
	logger *slog.Logger
	// connectAMQP is swapped in tests.
	connectAMQP func(url, exchange, queue string) (*amqp.Client, error)
}

func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger:      logger,
		connectAMQP: amqp.NewClient,
	}
}

// CreateBackend opens the configured store and, when AMQPURL is set, the
// event publisher. A broker that cannot be reached is logged and skipped;
// the API keeps serving without events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *Result
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		result, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		result = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachPublisher(result, config)
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &Result{
		Users:    repo,
		Expenses: repo,
		Pinger:   repo,
		Cleanup:  repo.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*Result, error) {
	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		URL:      config.DatabaseURL,
		MaxConns: int32(config.DBMaxConns),
		MinConns: int32(config.DBMinConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}

	f.logger.Info("Initialized Postgres backend",
		"max_conns", config.DBMaxConns,
		"min_conns", config.DBMinConns)

	return &Result{
		Users:    repo,
		Expenses: repo,
		Pinger:   repo,
		Cleanup:  repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() *Result {
	store := memory.New()

	f.logger.Warn("Initialized memory backend; data is lost on restart")

	return &Result{
		Users:    store,
		Expenses: store,
		Pinger:   store,
	}
}

func (f *DefaultFactory) attachPublisher(result *Result, config Config) {
	if config.AMQPURL == "" {
		return
	}

	client, err := f.connectAMQP(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return
	}

	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	result.Publisher = client
	storeCleanup := result.Cleanup
	result.Cleanup = func() error {
		var errs []error
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close AMQP client: %w", err))
		}
		if storeCleanup != nil {
			if err := storeCleanup(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
