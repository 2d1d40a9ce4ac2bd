package embedding

import (
	"context"
	"sync"
	"time"
)

// Record is one stored value. Keys are opaque to the store; CellID is kept
// alongside so a cell can be cleared without parsing keys.
type Record struct {
	Key       string
	CellID    string
	Value     []byte
	UpdatedAt time.Time
}

// Persistence is the key-value contract the cache needs. Single-key
// operations must be atomic; GetMany need not be atomic across the batch.
type Persistence interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Set(ctx context.Context, rec Record) error
	GetMany(ctx context.Context, keys []string) (map[string]Record, error)
	ClearCell(ctx context.Context, cellID string) error
	ClearAll(ctx context.Context) error
}

// MemoryPersistence is a process-local Persistence.
type MemoryPersistence struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryPersistence creates an empty store.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{records: make(map[string]Record)}
}

func (m *MemoryPersistence) Get(ctx context.Context, key string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	return rec, ok, nil
}

func (m *MemoryPersistence) Set(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Value = append([]byte(nil), rec.Value...)
	m.records[rec.Key] = rec
	return nil
}

func (m *MemoryPersistence) GetMany(ctx context.Context, keys []string) (map[string]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Record, len(keys))
	for _, k := range keys {
		if rec, ok := m.records[k]; ok {
			out[k] = rec
		}
	}
	return out, nil
}

func (m *MemoryPersistence) ClearCell(ctx context.Context, cellID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.records {
		if rec.CellID == cellID {
			delete(m.records, k)
		}
	}
	return nil
}

func (m *MemoryPersistence) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]Record)
	return nil
}

// Len returns the number of stored records.
func (m *MemoryPersistence) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
