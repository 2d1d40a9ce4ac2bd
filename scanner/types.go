package scanner

import (
	"io"
	"sync"
	"time"

	"panofinder/embedding"
	"panofinder/imageprocessor"
	"panofinder/search"
	"panofinder/types"
)

// ScanOptions defines the options for scanning
type ScanOptions struct {
	FolderPath   string
	CellID       string // overrides the tile-derived cell for every capture
	CellZoom     int    // slippy-map zoom for derived cells
	ForceRewrite bool
	WarmCache    bool
	WarmFOVs     []float64 // query FOVs the warm-up embeddings are keyed under
	MaxWorkers   int
	DebugMode    bool
	Progress     io.Writer // nil disables the progress line
}

const (
	DefaultCellZoom   = 17
	DefaultMaxWorkers = 8
	DefaultWarmFOV    = 60.0
)

func (o ScanOptions) withDefaults() ScanOptions {
	if o.CellZoom <= 0 {
		o.CellZoom = DefaultCellZoom
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if len(o.WarmFOVs) == 0 {
		o.WarmFOVs = []float64{DefaultWarmFOV}
	}
	return o
}

// CandidateIndex is the part of the candidate store the scanner writes to.
type CandidateIndex interface {
	CheckCandidateExists(imagePath string) (bool, string, error)
	StoreCandidate(c types.Candidate, modifiedAt string, forceRewrite bool) error
}

// Stores bundles what a scan reads from and writes to. Views, Model and
// Cache are only needed for cache warm-up; Views must be the source the
// search pipeline uses so warmed vectors match.
type Stores struct {
	Candidates CandidateIndex
	Metadata   imageprocessor.MetadataReader
	Views      search.ViewSource
	Model      embedding.Model
	Cache      *embedding.Cache
}

// ProcessCaptureResult holds the result of indexing one capture file
type ProcessCaptureResult struct {
	Path    string
	Success bool
	Skipped bool
	Warmed  bool
	IsRaw   bool
	Error   error
}

// FileStats tracks information about files to be processed
type FileStats struct {
	totalFiles int
	rawFiles   int
}

// Summary reports the outcome of a scan.
type Summary struct {
	Processed int           `json:"processed"`
	Indexed   int           `json:"indexed"`
	Skipped   int           `json:"skipped"`
	Warmed    int           `json:"warmed"`
	Errors    int           `json:"errors"`
	Raw       int           `json:"raw"`
	Elapsed   time.Duration `json:"elapsed"`
}

// ProgressTracker tracks progress of the scan operation
type ProgressTracker struct {
	summary    Summary
	totalFiles int
	ticker     *time.Ticker
	done       chan struct{}
	drained    sync.WaitGroup
	mu         sync.Mutex
	out        io.Writer
}
