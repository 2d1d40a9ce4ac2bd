package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"panofinder/embedding"
)

// getManyChunk bounds the number of bound parameters per query.
const getManyChunk = 500

// CacheStore is an embedding.Persistence backed by the embedding_cache table.
type CacheStore struct {
	db *sql.DB
}

// NewCacheStore wraps an initialized database.
func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db}
}

func (s *CacheStore) Get(ctx context.Context, key string) (embedding.Record, bool, error) {
	var rec embedding.Record
	var updated string
	err := s.db.QueryRowContext(ctx,
		"SELECT key, cell_id, value, updated_at FROM embedding_cache WHERE key = ?", key,
	).Scan(&rec.Key, &rec.CellID, &rec.Value, &updated)
	if err == sql.ErrNoRows {
		return embedding.Record{}, false, nil
	}
	if err != nil {
		return embedding.Record{}, false, fmt.Errorf("database error for key %s: %w", key, err)
	}
	rec.UpdatedAt = parseTime(updated)
	return rec, true, nil
}

func (s *CacheStore) Set(ctx context.Context, rec embedding.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO embedding_cache (key, cell_id, value, updated_at)
		VALUES (?, ?, ?, ?)`,
		rec.Key, rec.CellID, rec.Value, rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("cannot store cache entry %s: %w", rec.Key, err)
	}
	return nil
}

func (s *CacheStore) GetMany(ctx context.Context, keys []string) (map[string]embedding.Record, error) {
	out := make(map[string]embedding.Record, len(keys))
	for start := 0; start < len(keys); start += getManyChunk {
		end := min(start+getManyChunk, len(keys))
		if err := s.getChunk(ctx, keys[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *CacheStore) getChunk(ctx context.Context, keys []string, out map[string]embedding.Record) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, cell_id, value, updated_at FROM embedding_cache WHERE key IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("batch cache lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec embedding.Record
		var updated string
		if err := rows.Scan(&rec.Key, &rec.CellID, &rec.Value, &updated); err != nil {
			return fmt.Errorf("scanning cache row: %w", err)
		}
		rec.UpdatedAt = parseTime(updated)
		out[rec.Key] = rec
	}
	return rows.Err()
}

func (s *CacheStore) ClearCell(ctx context.Context, cellID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM embedding_cache WHERE cell_id = ?", cellID); err != nil {
		return fmt.Errorf("clearing cache for cell %s: %w", cellID, err)
	}
	return nil
}

func (s *CacheStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM embedding_cache"); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
