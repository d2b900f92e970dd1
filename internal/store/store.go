package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file inside the state directory.
const FileName = "berth.db"

// DB wraps the SQLite connection holding the pull cache and run history.
type DB struct {
	conn *sql.DB
}

// OpenDir opens the database inside stateDir, creating the directory.
func OpenDir(stateDir string) (*DB, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return Open(filepath.Join(stateDir, FileName))
}

// Open creates or opens a SQLite database at the given path.
// It enables WAL mode and runs migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Concurrent `up` and `down` invocations share the file.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates or updates the database schema
func (db *DB) migrate() error {
	schema := `
-- Key/value pairs, used by the image pull cache
CREATE TABLE IF NOT EXISTS kv (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Runs table: one row per batch started by "up"
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    project         TEXT NOT NULL,
    status          TEXT NOT NULL,
    workloads       INTEGER NOT NULL DEFAULT 0,
    started_at      DATETIME NOT NULL,
    stopped_at      DATETIME,
    error           TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_project_status ON runs(project, status);
`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}
