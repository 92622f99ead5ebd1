// Package db provides the SQLite connection and schema for irlightd.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Resource state - desired state as JSON keyed by (kind, id), versioned for dirty tracking
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS resource_state (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL,
			version INTEGER DEFAULT 1,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, id)
		);
		CREATE INDEX IF NOT EXISTS idx_resource_state_kind ON resource_state(kind);
	`)
	if err != nil {
		return fmt.Errorf("failed to create resource_state table: %w", err)
	}

	// Transmission ledger - append-only history of applies and the IR frames they produced.
	// Rows of one apply share a batch id.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ir_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			batch_id TEXT NOT NULL,
			light_id TEXT NOT NULL,
			signal TEXT,
			times INTEGER,
			payload TEXT,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_ir_ledger_ts ON ir_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_ir_ledger_light ON ir_ledger(light_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_ir_ledger_batch ON ir_ledger(batch_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create ir_ledger table: %w", err)
	}

	// Script key-value buckets
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_store (
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			expires_at INTEGER,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (bucket, key)
		);
		CREATE INDEX IF NOT EXISTS idx_kv_store_expires ON kv_store(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create kv_store table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
