package scanner

import (
	"fmt"
	"time"

	"panofinder/logging"
)

// NewProgressTracker consumes results until resultsChan is closed.
func NewProgressTracker(stats FileStats, resultsChan <-chan ProcessCaptureResult, options ScanOptions) *ProgressTracker {
	tracker := &ProgressTracker{
		ticker:     time.NewTicker(500 * time.Millisecond),
		done:       make(chan struct{}),
		totalFiles: stats.totalFiles,
		out:        options.Progress,
	}

	go tracker.displayProgress()

	tracker.drained.Add(1)
	go tracker.processResults(resultsChan)

	return tracker
}

func (p *ProgressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			if p.out == nil {
				continue
			}
			p.mu.Lock()
			s := p.summary
			p.mu.Unlock()
			if s.Errors > 0 {
				fmt.Fprintf(p.out, "\rProgress: %d/%d (Skipped: %d, Errors: %d)", s.Processed, p.totalFiles, s.Skipped, s.Errors)
			} else {
				fmt.Fprintf(p.out, "\rProgress: %d/%d (Skipped: %d)", s.Processed, p.totalFiles, s.Skipped)
			}
		}
	}
}

func (p *ProgressTracker) processResults(resultsChan <-chan ProcessCaptureResult) {
	defer p.drained.Done()
	for result := range resultsChan {
		p.mu.Lock()
		p.summary.Processed++
		if result.IsRaw {
			p.summary.Raw++
		}
		switch {
		case !result.Success:
			p.summary.Errors++
		case result.Skipped:
			p.summary.Skipped++
		default:
			p.summary.Indexed++
		}
		if result.Warmed {
			p.summary.Warmed++
		}
		p.mu.Unlock()

		errMsg := ""
		if result.Error != nil {
			errMsg = result.Error.Error()
		}
		logging.LogCaptureIndexed(result.Path, result.Success, errMsg)
	}
}

// Stop waits for the results channel to drain, stops the display and
// returns the totals.
func (p *ProgressTracker) Stop() Summary {
	p.drained.Wait()
	p.ticker.Stop()
	close(p.done)

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

// PrintStartupInfo displays information about the scan before starting
func PrintStartupInfo(stats FileStats, options ScanOptions) {
	if options.Progress == nil {
		return
	}
	fmt.Fprintf(options.Progress, "Starting capture indexing...\nCapture files to process: %d (including %d RAW files)\n",
		stats.totalFiles, stats.rawFiles)
	fmt.Fprintf(options.Progress, "Force rewrite mode: %v\n", options.ForceRewrite)
	if options.CellID != "" {
		fmt.Fprintf(options.Progress, "Cell: %s\n", options.CellID)
	}
	if options.DebugMode {
		logging.DebugLog("Found %d capture files to process (%d RAW files)", stats.totalFiles, stats.rawFiles)
	}
}

// PrintCompletionStats displays statistics after scan completion
func PrintCompletionStats(s Summary, options ScanOptions) {
	logging.Info("scan complete",
		"processed", s.Processed, "indexed", s.Indexed, "skipped", s.Skipped,
		"warmed", s.Warmed, "errors", s.Errors, "elapsed", s.Elapsed)

	if options.Progress == nil {
		return
	}
	fmt.Fprintln(options.Progress, "\nIndexing complete.")
	fmt.Fprintf(options.Progress, "Processed %d captures in %v (%d indexed, %d unchanged).\n",
		s.Processed, s.Elapsed.Round(time.Second), s.Indexed, s.Skipped)
	if s.Warmed > 0 {
		fmt.Fprintf(options.Progress, "Warmed %d embedding cache entries.\n", s.Warmed)
	}
	if s.Errors > 0 {
		fmt.Fprintf(options.Progress, "Encountered %d errors during indexing.\n", s.Errors)
		fmt.Fprintln(options.Progress, "Check the log file for details.")
	}
}
