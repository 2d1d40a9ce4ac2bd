package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"panofinder/types"
)

// CandidateStore lists indexed panorama captures.
type CandidateStore struct {
	db *sql.DB
}

// NewCandidateStore wraps an initialized database.
func NewCandidateStore(db *sql.DB) *CandidateStore {
	return &CandidateStore{db: db}
}

// CheckCandidateExists checks if a capture file is already indexed and
// returns its stored modification time.
func CheckCandidateExists(db *sql.DB, imagePath string) (bool, string, error) {
	var storedModTime sql.NullString
	err := db.QueryRow("SELECT modified_at FROM candidates WHERE image_path = ?", imagePath).Scan(&storedModTime)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("database error for %s: %w", imagePath, err)
	}
	return true, storedModTime.String, nil
}

// StoreCandidate stores a capture location. Without forceRewrite an existing
// row for the same id is left untouched.
func StoreCandidate(db *sql.DB, c types.Candidate, modifiedAt string, forceRewrite bool) error {
	verb := "INSERT OR IGNORE"
	if forceRewrite {
		verb = "INSERT OR REPLACE"
	}

	stmt, err := db.Prepare(verb + ` INTO candidates (
			id, cell_id, lon, lat, alt, heading, fov, image_path, modified_at, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cannot prepare statement for %s: %w", c.ImagePath, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		c.ID,
		c.CellID,
		c.Position.Lon(),
		c.Position.Lat(),
		c.Altitude,
		c.Heading,
		c.FOV,
		c.ImagePath,
		modifiedAt,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("cannot insert data for %s: %w", c.ImagePath, err)
	}
	return nil
}

// StoreCandidate stores c through the wrapped database.
func (s *CandidateStore) StoreCandidate(c types.Candidate, modifiedAt string, forceRewrite bool) error {
	return StoreCandidate(s.db, c, modifiedAt, forceRewrite)
}

// CheckCandidateExists reports whether imagePath is indexed.
func (s *CandidateStore) CheckCandidateExists(imagePath string) (bool, string, error) {
	return CheckCandidateExists(s.db, imagePath)
}

// ListCandidates returns every capture in a cell ordered by id.
func (s *CandidateStore) ListCandidates(ctx context.Context, cellID string) ([]types.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cell_id, lon, lat, COALESCE(alt, 0), COALESCE(heading, 0), COALESCE(fov, 0), image_path
		FROM candidates WHERE cell_id = ? ORDER BY id`, cellID)
	if err != nil {
		return nil, fmt.Errorf("listing candidates for cell %s: %w", cellID, err)
	}
	defer rows.Close()

	var out []types.Candidate
	for rows.Next() {
		var c types.Candidate
		var lon, lat float64
		if err := rows.Scan(&c.ID, &c.CellID, &lon, &lat, &c.Altitude, &c.Heading, &c.FOV, &c.ImagePath); err != nil {
			return nil, fmt.Errorf("scanning candidate row: %w", err)
		}
		c.Position = orb.Point{lon, lat}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCandidate returns a single capture by id.
func (s *CandidateStore) GetCandidate(ctx context.Context, id string) (types.Candidate, bool, error) {
	var c types.Candidate
	var lon, lat float64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cell_id, lon, lat, COALESCE(alt, 0), COALESCE(heading, 0), COALESCE(fov, 0), image_path
		FROM candidates WHERE id = ?`, id,
	).Scan(&c.ID, &c.CellID, &lon, &lat, &c.Altitude, &c.Heading, &c.FOV, &c.ImagePath)
	if err == sql.ErrNoRows {
		return types.Candidate{}, false, nil
	}
	if err != nil {
		return types.Candidate{}, false, fmt.Errorf("loading candidate %s: %w", id, err)
	}
	c.Position = orb.Point{lon, lat}
	return c, true, nil
}

// ListCells returns every cell id with its candidate count.
func (s *CandidateStore) ListCells(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT cell_id, COUNT(*) FROM candidates GROUP BY cell_id")
	if err != nil {
		return nil, fmt.Errorf("listing cells: %w", err)
	}
	defer rows.Close()

	cells := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		cells[id] = n
	}
	return cells, rows.Err()
}
