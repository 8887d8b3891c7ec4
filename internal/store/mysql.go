// internal/store/mysql.go
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLOptions configures the MySQL backend.
type MySQLOptions struct {
	DSN            string `yaml:"dsn" json:"dsn"`
	MaxConnections int    `yaml:"max_connections,omitempty" json:"max_connections,omitempty"`
}

// NewMySQLStore connects to MySQL and prepares the record table.
func NewMySQLStore(options MySQLOptions) (Store, error) {
	if options.DSN == "" {
		return nil, fmt.Errorf("MySQL DSN is required")
	}
	if options.MaxConnections <= 0 {
		options.MaxConnections = 10
	}

	db, err := sql.Open("mysql", options.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	db.SetMaxOpenConns(options.MaxConnections)
	db.SetMaxIdleConns(options.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)

	return newSQLStore(db, sqlDialect{
		name: "mysql",
		createTable: `CREATE TABLE IF NOT EXISTS learned_records (
			kind VARCHAR(32) NOT NULL,
			` + "`key`" + ` VARCHAR(255) NOT NULL,
			data JSON NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (kind, ` + "`key`" + `)
		)`,
		upsert: "INSERT INTO learned_records (kind, `key`, data, updated_at) VALUES (?, ?, ?, ?)" +
			" ON DUPLICATE KEY UPDATE data = VALUES(data), updated_at = VALUES(updated_at)",
		load:   "SELECT data FROM learned_records WHERE kind = ? AND `key` = ?",
		list:   "SELECT `key`, data FROM learned_records WHERE kind = ?",
		remove: "DELETE FROM learned_records WHERE kind = ? AND `key` = ?",
		prune:  `DELETE FROM learned_records WHERE kind = ? AND updated_at < ?`,
	})
}
