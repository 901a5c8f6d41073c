// Package storage provides the shared key-value cache used to persist health
// records and detection results across process restarts.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/chainscout/internal/config"
)

// Cache is a key-value store with per-entry TTL.
// Get returns ErrNotFound for missing or expired keys. A zero TTL never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Store combines the cache with lifecycle methods.
// Consumers define their own minimal interfaces based on their actual usage.
type Store interface {
	Cache

	// PurgeExpired removes expired entries and returns how many were deleted
	PurgeExpired(ctx context.Context) (int64, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
