// internal/store/sql.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// sqlDialect captures the per-driver SQL differences: placeholder style and
// upsert syntax. The record schema itself is shared by every SQL backend.
type sqlDialect struct {
	name        string
	createTable string
	upsert      string
	load        string
	list        string
	remove      string
	prune       string
}

// sqlStore is the shared Store implementation over database/sql. The
// concrete backends (SQLite, PostgreSQL, MySQL) differ only in their
// dialect and connection setup.
type sqlStore struct {
	db      *sql.DB
	dialect sqlDialect
}

func newSQLStore(db *sql.DB, dialect sqlDialect) (*sqlStore, error) {
	if _, err := db.Exec(dialect.createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}
	return &sqlStore{db: db, dialect: dialect}, nil
}

// Load implements Store.
func (s *sqlStore) Load(ctx context.Context, kind Kind, key string, v interface{}) error {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.dialect.load, string(kind), key).Scan(&data)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode record %s/%s: %w", kind, key, err)
	}
	return nil
}

// Save implements Store. The upsert statement makes each record write
// atomic; readers never observe a partially written record.
func (s *sqlStore) Save(ctx context.Context, kind Kind, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record %s/%s: %w", kind, key, err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, string(kind), key, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// List implements Store.
func (s *sqlStore) List(ctx context.Context, kind Kind, each func(key string, data []byte) error) error {
	rows, err := s.db.QueryContext(ctx, s.dialect.list, string(kind))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		if err := each(key, data); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Delete implements Store.
func (s *sqlStore) Delete(ctx context.Context, kind Kind, key string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.remove, string(kind), key); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Prune implements Store.
func (s *sqlStore) Prune(ctx context.Context, kind Kind, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.prune, string(kind), cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Close implements Store.
func (s *sqlStore) Close() error {
	return s.db.Close()
}
