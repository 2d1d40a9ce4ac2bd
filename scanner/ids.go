package scanner

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// CellID names the slippy-map tile containing p as "z/x/y".
func CellID(p orb.Point, zoom int) string {
	t := maptile.At(p, maptile.Zoom(zoom))
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// CandidateID derives a stable id from the capture's absolute path, so a
// rescan updates the same row.
func CandidateID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}
