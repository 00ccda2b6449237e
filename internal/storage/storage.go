package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pairdex/internal/ledger"
	"pairdex/internal/storage/badger"
	"pairdex/internal/storage/postgres"
)

// Backend kinds accepted by Open.
const (
	KindMemory   = "memory"
	KindFile     = "file"
	KindPostgres = "postgres"
	KindBadger   = "badger"
)

// Backend is a durable pair state store that owns resources.
type Backend interface {
	ledger.StateStore
	Close() error
}

// Options selects and configures a Backend.
type Options struct {
	Kind      string
	StateFile string
	PgDSN     string
	BadgerDir string
}

// Open builds the backend named by opts.Kind.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Kind {
	case KindMemory, "":
		return NewMemoryStore(), nil
	case KindFile:
		if opts.StateFile == "" {
			return nil, fmt.Errorf("state-file is required for file store")
		}
		return NewFileStore(opts.StateFile), nil
	case KindPostgres:
		store, err := postgres.NewStore(ctx, opts.PgDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return pgBackend{store}, nil
	case KindBadger:
		store, err := badger.Open(opts.BadgerDir, logger)
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store %q", opts.Kind)
	}
}

// pgBackend adapts the pool-closing postgres store to Backend.
type pgBackend struct {
	*postgres.Store
}

func (b pgBackend) Close() error {
	b.Store.Close()
	return nil
}

var (
	_ Backend             = (*MemoryStore)(nil)
	_ Backend             = (*FileStore)(nil)
	_ Backend             = (*badger.Store)(nil)
	_ Backend             = pgBackend{}
	_ ledger.TransferSink = (*JsonlTransferSink)(nil)
	_ ledger.TransferSink = (*postgres.Store)(nil)
	_ ledger.TransferSink = (*RetryingSink)(nil)
)
