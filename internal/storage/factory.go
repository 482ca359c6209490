package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/curateops/curator/internal/config"
	"github.com/curateops/curator/internal/storage/postgres"
	"github.com/curateops/curator/internal/storage/sqlite"
)

// NewStorage opens the backend selected by cfg.
func NewStorage(ctx context.Context, cfg config.DatabaseConfig) (Storage, error) {
	switch cfg.Backend {
	case "sqlite", "":
		path := cfg.Path
		if path == "" {
			path = os.Getenv("CURATOR_DB")
		}
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return sqlite.New(path)
	case "postgres":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = os.Getenv("CURATOR_PG_DSN")
		}
		if dsn == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		return postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

// Compile-time interface checks for both backends.
var (
	_ Storage = (*sqlite.SQLiteStorage)(nil)
	_ Storage = (*postgres.PostgresStorage)(nil)
)
