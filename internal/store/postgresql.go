// internal/store/postgresql.go
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresOptions configures the PostgreSQL backend.
type PostgresOptions struct {
	ConnectionString string `yaml:"connection_string" json:"connection_string"`
	MaxConnections   int    `yaml:"max_connections,omitempty" json:"max_connections,omitempty"`
}

// NewPostgresStore connects to PostgreSQL and prepares the record table.
func NewPostgresStore(options PostgresOptions) (Store, error) {
	if options.ConnectionString == "" {
		return nil, fmt.Errorf("PostgreSQL connection string is required")
	}
	if options.MaxConnections <= 0 {
		options.MaxConnections = 10
	}

	db, err := sql.Open("postgres", options.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(options.MaxConnections)
	db.SetMaxIdleConns(options.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)

	return newSQLStore(db, sqlDialect{
		name: "postgres",
		createTable: `CREATE TABLE IF NOT EXISTS learned_records (
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (kind, key)
		)`,
		upsert: `INSERT INTO learned_records (kind, key, data, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (kind, key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		load:   `SELECT data FROM learned_records WHERE kind = $1 AND key = $2`,
		list:   `SELECT key, data FROM learned_records WHERE kind = $1`,
		remove: `DELETE FROM learned_records WHERE kind = $1 AND key = $2`,
		prune:  `DELETE FROM learned_records WHERE kind = $1 AND updated_at < $2`,
	})
}
