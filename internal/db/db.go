// Package db provides the SQLite connection and schema for sonosd.
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
	dsn := dbPath + "?_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
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
	// Notification ledger - append-only history of notification requests
	// Several rows per request (started, then completed or failed)
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS notification_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			request_id TEXT NOT NULL,
			player TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_ts ON notification_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_request ON notification_ledger(request_id, event_type);
	`)
	if err != nil {
		return fmt.Errorf("failed to create notification_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
