package backend

import (
	"context"

	"despesas/internal/services"
	"despesas/internal/storage"
)

// CleanupFunc releases the resources a backend opened.
type CleanupFunc func() error

// Result holds the stores and optional event publisher for one process.
type Result struct {
	Users     storage.UserStore
	Expenses  storage.ExpenseStore
	Pinger    storage.Pinger
	Publisher services.EventPublisher
	Cleanup   CleanupFunc
}

// Close runs Cleanup if set.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Type BackendType

	SQLiteDBPath string

	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int

	// Empty AMQPURL disables event publishing.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
