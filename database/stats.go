package database

import (
	"database/sql"
	"fmt"
)

// IndexStats summarizes the index contents.
type IndexStats struct {
	Candidates   int
	Cells        int
	CacheEntries int
}

// GetIndexStats counts candidates, cells and cached embeddings. A non-empty
// cellID restricts the counts to that cell.
func GetIndexStats(db *sql.DB, cellID string) (*IndexStats, error) {
	var stats IndexStats

	var where string
	var args []interface{}
	if cellID != "" {
		where = " WHERE cell_id = ?"
		args = append(args, cellID)
	}

	err := db.QueryRow("SELECT COUNT(*) FROM candidates"+where, args...).Scan(&stats.Candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to count candidates: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(DISTINCT cell_id) FROM candidates"+where, args...).Scan(&stats.Cells)
	if err != nil {
		return nil, fmt.Errorf("failed to count cells: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(*) FROM embedding_cache"+where, args...).Scan(&stats.CacheEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to count cache entries: %w", err)
	}

	return &stats, nil
}
