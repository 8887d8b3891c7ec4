// internal/store/sqlite.go
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteOptions configures the default embedded backend.
type SQLiteOptions struct {
	Path             string `yaml:"path" json:"path"`
	ConnectionParams string `yaml:"connection_params,omitempty" json:"connection_params,omitempty"`
}

// NewSQLiteStore opens (and if needed creates) an SQLite-backed store.
// SQLite works best with a single writer, so the pool is pinned to one
// connection; record-level atomicity comes from the upsert statement.
func NewSQLiteStore(options SQLiteOptions) (Store, error) {
	if options.Path == "" {
		return nil, fmt.Errorf("SQLite database path is required")
	}

	if dir := filepath.Dir(options.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	params := options.ConnectionParams
	if params == "" {
		params = "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", options.Path+params)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = memory",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return newSQLStore(db, sqlDialect{
		name: "sqlite",
		createTable: `CREATE TABLE IF NOT EXISTS learned_records (
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			data BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (kind, key)
		)`,
		upsert: `INSERT INTO learned_records (kind, key, data, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (kind, key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		load:   `SELECT data FROM learned_records WHERE kind = ? AND key = ?`,
		list:   `SELECT key, data FROM learned_records WHERE kind = ?`,
		remove: `DELETE FROM learned_records WHERE kind = ? AND key = ?`,
		prune:  `DELETE FROM learned_records WHERE kind = ? AND updated_at < ?`,
	})
}
