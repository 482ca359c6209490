// Package sqlite is the default storage backend. It holds content,
// claims, sessions, and the activity feed in one database file opened
// in WAL mode so multiple worker processes can share it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStorage implements the storage interface using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and applies the
// schema plus any pending column migrations.
func New(path string) (*SQLiteStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL for concurrent readers, busy_timeout as the first line of
	// defense before the explicit busy-retry in the claim path.
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// migrate applies additive column migrations for databases created by
// older versions. Each migration checks column existence first and
// runs inside a transaction.
func migrate(db *sql.DB) error {
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"work_execution_state", "last_error",
			"ALTER TABLE work_execution_state ADD COLUMN last_error TEXT NOT NULL DEFAULT ''"},
		{"work_execution_state", "intervention_count",
			"ALTER TABLE work_execution_state ADD COLUMN intervention_count INTEGER NOT NULL DEFAULT 0"},
		{"work_execution_state", "last_intervention_at",
			"ALTER TABLE work_execution_state ADD COLUMN last_intervention_at DATETIME"},
		{"worker_instances", "stopped_at",
			"ALTER TABLE worker_instances ADD COLUMN stopped_at DATETIME"},
		{"knowledge_bases", "tracker_project_id",
			"ALTER TABLE knowledge_bases ADD COLUMN tracker_project_id TEXT NOT NULL DEFAULT ''"},
	}

	for _, m := range migrations {
		exists, err := columnExists(db, m.table, m.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}
		if _, err := tx.Exec(m.ddl); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to add %s.%s: %w", m.table, m.column, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration for %s.%s: %w", m.table, m.column, err)
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// busyRetry runs fn, retrying with exponential backoff when SQLite
// reports the database is locked. Five attempts: 10ms, 20ms, 40ms,
// 80ms, 160ms.
func busyRetry(ctx context.Context, fn func() error) error {
	const maxRetries = 5
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = fn()
		if err == nil || !isBusyError(err) {
			return err
		}
		delay := time.Duration(10*(1<<attempt)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// isBusyError checks for SQLite lock contention.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

// isUniqueConstraintError checks for primary key / unique violations.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
