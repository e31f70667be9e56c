// Package store provides the local on-device store backing the sync engine.
//
// The store is an embedded SQLite database (WAL mode for concurrent reads)
// holding the per-table entity records, the durable sync queue, and two
// scalar markers: the last successful sync time and the user the cached data
// belongs to.
//
// All reads the UI performs go through this store; the sync engine is the
// only other writer. Entity fields are kept as an opaque JSON document so the
// store and the engine stay generic across tables.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a record does not exist locally.
var ErrNotFound = errors.New("record not found")

const timeLayout = time.RFC3339Nano

// Store wraps the SQLite connection with sync-specific functionality.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in WAL mode with a busy timeout so the UI can keep
// reading while the engine writes. Pass ":memory:" for an in-memory store
// (tests). The caller MUST call Close when done and InitSchema before first
// use.
func Open(path string) (*Store, error) {
	connStr := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s", path)
	}

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if path == ":memory:" {
		// Each pooled connection would otherwise get its own private
		// in-memory database, so a second connection sees no schema.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the store, checkpointing the WAL first.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the store schema if it doesn't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	-- Entity records for all synchronized tables. Application fields live
	-- in the data JSON document; sync metadata is lifted into columns.
	CREATE TABLE IF NOT EXISTS records (
		tbl TEXT NOT NULL,
		id TEXT NOT NULL,
		cloud_id TEXT,
		updated_at TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (tbl, id)
	);

	-- At most one local record maps to a given cloud_id per table.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_cloud
	    ON records(tbl, cloud_id) WHERE cloud_id IS NOT NULL AND cloud_id != '';

	-- Durable log of not-yet-acknowledged local mutations. seq preserves
	-- enqueue order across process restarts.
	CREATE TABLE IF NOT EXISTS sync_queue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tbl TEXT NOT NULL,
		op TEXT NOT NULL,
		record_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		enqueued_at TEXT NOT NULL,
		retries INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_queue_record ON sync_queue(tbl, record_id);

	-- Scalar sync markers (last_synced_at, user_id).
	CREATE TABLE IF NOT EXISTS sync_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// ClearAll wipes every entity table, the sync queue, and the sync markers.
// Called on logout: local data must never outlive the session that owns it.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM records",
		"DELETE FROM sync_queue",
		"DELETE FROM sync_meta",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}
