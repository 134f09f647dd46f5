package core

import (
	"context"
	"fmt"

	"opsdesk/internal/blob"
	"opsdesk/internal/config"
	"opsdesk/internal/infra/persistence/document"
	"opsdesk/internal/infra/persistence/memory"
	"opsdesk/internal/infra/persistence/postgres"
	"opsdesk/internal/infra/persistence/sqlite"
	"opsdesk/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageDocument StorageDriver = "document" // JSON documents in a blob store
)

// OpenPersistentStore opens the backend named by cfg.Driver (default
// sqlite). Corrupted persisted data is logged through logger and replaced
// with empty collections.
func OpenPersistentStore(ctx context.Context, cfg config.Storage, engine *domain.RulesEngine, logger Logger) (PersistentStore, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	opts := []memory.Option{
		memory.WithRulesEngine(engine),
		memory.WithCorruptionHandler(func(err error) {
			logger.Warn("persisted state corrupted, starting empty", "driver", string(driver), "error", err)
		}),
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(opts...), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StorageDocument:
		blobs, err := blob.Open(ctx, blob.Config{
			Driver: blob.Driver(cfg.Blob.Driver),
			FSRoot: cfg.Blob.FSRoot,
			S3: blob.S3Config{
				Bucket:    cfg.Blob.S3Bucket,
				Region:    cfg.Blob.S3Region,
				Endpoint:  cfg.Blob.S3Endpoint,
				PathStyle: cfg.Blob.S3PathStyle,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		store, err := document.NewStore(ctx, blobs, cfg.DocumentKey, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
