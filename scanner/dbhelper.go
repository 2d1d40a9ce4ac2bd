package scanner

import (
	"fmt"
	"os"
	"time"

	"panofinder/logging"
)

// checkAndSkipIfUnchanged returns a result when path can be skipped because
// it is indexed and has not changed since. exists reports whether a row for
// path is already stored.
func checkAndSkipIfUnchanged(idx CandidateIndex, path string, options ScanOptions) (skip *ProcessCaptureResult, exists bool) {
	exists, storedModTime, err := idx.CheckCandidateExists(path)
	if err != nil {
		return &ProcessCaptureResult{Path: path, Error: fmt.Errorf("database error for %s: %w", path, err)}, false
	}
	if !exists {
		return nil, false
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		return &ProcessCaptureResult{Path: path, Error: fmt.Errorf("cannot stat file %s: %w", path, err)}, true
	}

	storedTime, err := time.Parse(time.RFC3339, storedModTime)
	if err != nil {
		// unreadable timestamp: reindex
		return nil, true
	}

	// stored times have second precision
	if !fileInfo.ModTime().Truncate(time.Second).After(storedTime) {
		if options.DebugMode {
			logging.DebugLog("Skipping unchanged capture: %s", path)
		}
		return &ProcessCaptureResult{Path: path, Success: true, Skipped: true}, true
	}
	return nil, true
}
