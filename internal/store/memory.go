// internal/store/memory.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryRecord struct {
	data    []byte
	updated time.Time
}

// MemoryStore is an in-process Store used for tests and for degraded
// operation when no durable backend is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Kind]map[string]memoryRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Kind]map[string]memoryRecord)}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, kind Kind, key string, v interface{}) error {
	m.mu.RLock()
	rec, ok := m.records[kind][key]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(rec.data, v); err != nil {
		return fmt.Errorf("failed to decode record %s/%s: %w", kind, key, err)
	}
	return nil
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, kind Kind, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record %s/%s: %w", kind, key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[kind] == nil {
		m.records[kind] = make(map[string]memoryRecord)
	}
	m.records[kind][key] = memoryRecord{data: data, updated: time.Now().UTC()}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, kind Kind, each func(key string, data []byte) error) error {
	m.mu.RLock()
	snapshot := make(map[string][]byte, len(m.records[kind]))
	for key, rec := range m.records[kind] {
		snapshot[key] = rec.data
	}
	m.mu.RUnlock()

	for key, data := range snapshot {
		if err := each(key, data); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, kind Kind, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records[kind], key)
	return nil
}

// Prune implements Store.
func (m *MemoryStore) Prune(ctx context.Context, kind Kind, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := 0
	for key, rec := range m.records[kind] {
		if rec.updated.Before(cutoff) {
			delete(m.records[kind], key)
			pruned++
		}
	}
	return pruned, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
