package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS candidates (
		id TEXT PRIMARY KEY,
		cell_id TEXT NOT NULL,
		lon REAL NOT NULL,
		lat REAL NOT NULL,
		alt REAL,
		heading REAL,
		fov REAL,
		image_path TEXT NOT NULL UNIQUE,
		modified_at TEXT,
		indexed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_candidates_cell ON candidates(cell_id);
	CREATE INDEX IF NOT EXISTS idx_candidates_path ON candidates(image_path);

	CREATE TABLE IF NOT EXISTS embedding_cache (
		key TEXT PRIMARY KEY,
		cell_id TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_embedding_cache_cell ON embedding_cache(cell_id);`

// InitDatabase opens the database at dbPath and creates the schema.
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return db, nil
}

// OpenDatabase opens an existing database connection
func OpenDatabase(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
}
