package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"panofinder/types"
)

// FOVBucket rounds a field of view to the nearest 10 degrees. Only the key
// is coarsened; stored vectors are exact.
func FOVBucket(fov float64) int {
	return int(math.Round(fov/10)) * 10
}

// NewKey builds the cache key for a candidate view.
func NewKey(cellID, candidateID string, fov float64) types.CacheKey {
	return types.CacheKey{CellID: cellID, CandidateID: candidateID, FOVBucket: FOVBucket(fov)}
}

// Cache maps (cell, candidate, FOV bucket) to an embedding.
type Cache struct {
	store  Persistence
	maxAge time.Duration
	now    func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithMaxAge makes entries older than d read as absent. Zero keeps entries
// forever.
func WithMaxAge(d time.Duration) CacheOption {
	return func(c *Cache) { c.maxAge = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache wraps a persistence backend.
func NewCache(store Persistence, opts ...CacheOption) *Cache {
	c := &Cache{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the embedding stored for the key, if present and fresh.
func (c *Cache) Get(ctx context.Context, cellID, candidateID string, fov float64) ([]float32, bool, error) {
	key := NewKey(cellID, candidateID, fov)
	rec, ok, err := c.store.Get(ctx, key.String())
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !ok || c.expired(rec) {
		return nil, false, nil
	}
	v, err := Decode(rec.Value)
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return v, true, nil
}

// Entry returns the full cache entry for a key.
func (c *Cache) Entry(ctx context.Context, cellID, candidateID string, fov float64) (types.CacheEntry, bool, error) {
	key := NewKey(cellID, candidateID, fov)
	rec, ok, err := c.store.Get(ctx, key.String())
	if err != nil || !ok || c.expired(rec) {
		return types.CacheEntry{}, false, err
	}
	v, err := Decode(rec.Value)
	if err != nil {
		return types.CacheEntry{}, false, err
	}
	return types.CacheEntry{Key: key, Embedding: v, Timestamp: rec.UpdatedAt}, true, nil
}

// Set stores an embedding, replacing any previous value for the key.
func (c *Cache) Set(ctx context.Context, cellID, candidateID string, fov float64, embedding []float32) error {
	key := NewKey(cellID, candidateID, fov)
	rec := Record{
		Key:       key.String(),
		CellID:    cellID,
		Value:     Encode(embedding),
		UpdatedAt: c.now(),
	}
	if err := c.store.Set(ctx, rec); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// GetMany looks up several candidates of one cell at once. The result only
// contains candidates that were present; it is not a consistent snapshot.
func (c *Cache) GetMany(ctx context.Context, cellID string, candidateIDs []string, fov float64) (map[string][]float32, error) {
	keys := make([]string, len(candidateIDs))
	byKey := make(map[string]string, len(candidateIDs))
	for i, id := range candidateIDs {
		k := NewKey(cellID, id, fov).String()
		keys[i] = k
		byKey[k] = id
	}

	recs, err := c.store.GetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("cache get many for cell %s: %w", cellID, err)
	}

	out := make(map[string][]float32, len(recs))
	for k, rec := range recs {
		if c.expired(rec) {
			continue
		}
		v, err := Decode(rec.Value)
		if err != nil {
			// a corrupt entry behaves like a miss and is recomputed
			continue
		}
		out[byKey[k]] = v
	}
	return out, nil
}

// ClearCell drops every entry for a cell.
func (c *Cache) ClearCell(ctx context.Context, cellID string) error {
	return c.store.ClearCell(ctx, cellID)
}

// ClearAll drops every entry.
func (c *Cache) ClearAll(ctx context.Context) error {
	return c.store.ClearAll(ctx)
}

func (c *Cache) expired(rec Record) bool {
	return c.maxAge > 0 && c.now().Sub(rec.UpdatedAt) > c.maxAge
}
