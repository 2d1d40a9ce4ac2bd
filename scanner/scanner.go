// Package scanner indexes folders of panorama captures into the candidate
// store, optionally warming the embedding cache as it goes.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"panofinder/embedding"
	"panofinder/imageprocessor"
	"panofinder/logging"
	"panofinder/types"
)

// ScanAndStoreFolder walks options.FolderPath and stores every capture with
// a GPS fix. Cancelling ctx stops the walk; captures already in flight
// finish. The returned error is the walk or context error.
func ScanAndStoreFolder(ctx context.Context, stores Stores, options ScanOptions) (Summary, error) {
	if stores.Candidates == nil || stores.Metadata == nil {
		return Summary{}, fmt.Errorf("scanner needs a candidate index and a metadata reader")
	}
	options = options.withDefaults()

	var wg sync.WaitGroup
	resultsChan := make(chan ProcessCaptureResult, 100)
	semaphore := make(chan struct{}, options.MaxWorkers)

	fileStats := countFilesToProcess(options)
	PrintStartupInfo(fileStats, options)

	tracker := NewProgressTracker(fileStats, resultsChan, options)

	startTime := time.Now()
	err := walkAndProcessFiles(ctx, stores, options, &wg, resultsChan, semaphore)

	wg.Wait()
	close(resultsChan)

	summary := tracker.Stop()
	summary.Elapsed = time.Since(startTime)
	PrintCompletionStats(summary, options)

	return summary, err
}

func countFilesToProcess(options ScanOptions) FileStats {
	var stats FileStats
	_ = filepath.WalkDir(options.FolderPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if imageprocessor.IsImageFile(path) {
			stats.totalFiles++
			if imageprocessor.IsRawFormat(path) {
				stats.rawFiles++
			}
		}
		return nil
	})
	return stats
}

func walkAndProcessFiles(ctx context.Context, stores Stores, options ScanOptions, wg *sync.WaitGroup, resultsChan chan<- ProcessCaptureResult, semaphore chan struct{}) error {
	return filepath.WalkDir(options.FolderPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == options.FolderPath {
				return err
			}
			logging.LogError("Error accessing path %s: %v", path, err)
			return nil
		}
		if d.IsDir() || !imageprocessor.IsImageFile(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			resultsChan <- processAndStoreCapture(ctx, stores, p, options)
		}(path)
		return nil
	})
}

func processAndStoreCapture(ctx context.Context, stores Stores, path string, options ScanOptions) ProcessCaptureResult {
	result := ProcessCaptureResult{Path: path, IsRaw: imageprocessor.IsRawFormat(path)}

	skip, exists := checkAndSkipIfUnchanged(stores.Candidates, path, options)
	if skip != nil && (!skip.Success || !options.ForceRewrite) {
		skip.IsRaw = result.IsRaw
		return *skip
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		result.Error = fmt.Errorf("cannot stat file %s: %w", path, err)
		return result
	}

	md, err := stores.Metadata.ReadMetadata(path)
	if err != nil {
		result.Error = fmt.Errorf("cannot read metadata of %s: %w", path, err)
		return result
	}
	if !md.HasPosition {
		result.Error = fmt.Errorf("%s: %w", path, imageprocessor.ErrNoPosition)
		return result
	}

	cellID := options.CellID
	if cellID == "" {
		cellID = CellID(md.Position, options.CellZoom)
	}

	candidate := types.Candidate{
		ID:        CandidateID(path),
		CellID:    cellID,
		Position:  md.Position,
		Altitude:  md.Altitude,
		Heading:   md.Heading,
		FOV:       md.FOV,
		ImagePath: path,
	}

	// a changed file must replace its stale row
	force := options.ForceRewrite || exists
	if err := stores.Candidates.StoreCandidate(candidate, fileInfo.ModTime().Format(time.RFC3339), force); err != nil {
		result.Error = fmt.Errorf("cannot store data for %s: %w", path, err)
		return result
	}

	if options.WarmCache {
		if err := warmCache(ctx, stores, candidate, options); err != nil {
			logging.LogWarning("Cache warm-up failed for %s: %v", path, err)
		} else {
			result.Warmed = true
		}
	}

	if options.DebugMode {
		logging.DebugLog("Indexed %s into cell %s", path, cellID)
	}
	result.Success = true
	return result
}

func warmCache(ctx context.Context, stores Stores, c types.Candidate, options ScanOptions) error {
	if stores.Model == nil || stores.Cache == nil || stores.Views == nil {
		return errors.New("warm-up needs a model, a cache and a view source")
	}
	view, err := stores.Views.LoadView(ctx, c)
	if err != nil {
		return err
	}
	emb, err := stores.Model.Embed(ctx, view.Image)
	if err != nil {
		return err
	}

	// the view does not depend on the query FOV, so one vector serves every bucket
	seen := make(map[int]bool, len(options.WarmFOVs))
	for _, fov := range options.WarmFOVs {
		b := embedding.FOVBucket(fov)
		if seen[b] {
			continue
		}
		seen[b] = true
		if err := stores.Cache.Set(ctx, c.CellID, c.ID, fov, emb); err != nil {
			return err
		}
	}
	return nil
}
