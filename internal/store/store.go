// internal/store/store.go

// Package store provides durable storage for learned state: templates,
// discovered patterns and performance history. All implementations share
// one contract: writes are atomic at the granularity of a single record,
// and an absent record is "no prior evidence", never an error condition
// the engine has to special-case beyond ErrNotFound.
package store

import (
	"context"
	"fmt"
	"time"
)

// Kind partitions records by type.
type Kind string

const (
	KindTemplate    Kind = "template"
	KindPattern     Kind = "pattern"
	KindPerformance Kind = "performance"
)

// Common errors
var (
	ErrNotFound    = fmt.Errorf("record not found")
	ErrUnavailable = fmt.Errorf("persistence unavailable")
)

// Store is the key-value record contract the engine persists through.
// Values are marshaled to JSON by the implementation; callers pass the
// concrete type both ways.
type Store interface {
	// Load unmarshals the record for (kind, key) into v. Returns
	// ErrNotFound when absent.
	Load(ctx context.Context, kind Kind, key string, v interface{}) error

	// Save atomically writes the record for (kind, key).
	Save(ctx context.Context, kind Kind, key string, v interface{}) error

	// List invokes each for every record of the kind, passing the key and
	// raw JSON payload. Iteration order is unspecified.
	List(ctx context.Context, kind Kind, each func(key string, data []byte) error) error

	// Delete removes the record; deleting an absent record is a no-op.
	Delete(ctx context.Context, kind Kind, key string) error

	// Prune removes records of the kind not updated since the cutoff.
	// Retention policy is configuration; the engine merely tolerates
	// records disappearing underneath it.
	Prune(ctx context.Context, kind Kind, cutoff time.Time) (int, error)

	// Close releases underlying resources.
	Close() error
}
