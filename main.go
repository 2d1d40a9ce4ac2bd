package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"panofinder/config"
	"panofinder/cvfeatures"
	"panofinder/database"
	"panofinder/embedding"
	"panofinder/geometry"
	"panofinder/imageprocessor"
	"panofinder/logging"
	"panofinder/scanner"
	"panofinder/search"
	"panofinder/signalhandler"
	"panofinder/triangulation"
	"panofinder/types"
	"panofinder/utils"
)

func main() {
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	args := utils.ParseArguments()
	command, hasCommand := args["command"]
	if !hasCommand {
		utils.PrintUsage()
		os.Exit(1)
	}

	cfg, err := config.FromArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		utils.PrintUsage()
		os.Exit(1)
	}

	if cfg.Log.Debug {
		if err := logging.SetupLogger(cfg.Log.File, cfg.Log.Level); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Debug mode enabled. Logging to: %s\n", cfg.Log.File)
		}
	} else {
		logging.Init(cfg.Log.Level)
	}
	defer logging.CloseLogger()

	ctx, handler := signalhandler.SetupHandler(context.Background())
	defer handler.Stop()

	switch command {
	case "index":
		err = handleIndexCommand(ctx, cfg)
	case "locate":
		err = handleLocateCommand(ctx, handler, cfg)
	case "triangulate":
		err = handleTriangulateCommand(ctx, cfg)
	case "cache-clear":
		err = handleCacheClearCommand(ctx, cfg)
	case "stats":
		err = handleStatsCommand(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}

	if err != nil {
		logging.Error("command failed", "command", command, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		handler.Stop()
		logging.CloseLogger()
		os.Exit(1)
	}
}

// openIndex opens the database, creating it with retries for commands that
// write to it.
func openIndex(dbPath string, create bool) (*sql.DB, error) {
	if !create {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database does not exist: %s. Run index first", dbPath)
		}
		return database.OpenDatabase(dbPath)
	}

	var db *sql.DB
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		db, err = database.InitDatabase(dbPath)
		if err == nil {
			return db, nil
		}
		if i < maxRetries-1 {
			logging.LogWarning("Error initializing database (attempt %d/%d): %v - retrying...", i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	return nil, fmt.Errorf("initializing database after %d attempts: %w", maxRetries, err)
}

func newCache(db *sql.DB, cfg config.Config) *embedding.Cache {
	var opts []embedding.CacheOption
	if cfg.Cache.MaxAge > 0 {
		opts = append(opts, embedding.WithMaxAge(cfg.Cache.MaxAge))
	}
	return embedding.NewCache(database.NewCacheStore(db), opts...)
}

func handleIndexCommand(ctx context.Context, cfg config.Config) error {
	folder := cfg.Index.Folder
	if folder == "" {
		return errors.New("missing folder path (use --folder=PATH)")
	}
	info, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("cannot access folder path %s: %w", folder, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folder)
	}

	db, err := openIndex(cfg.Database, true)
	if err != nil {
		return err
	}
	defer db.Close()

	meta, err := imageprocessor.NewExiftoolReader()
	if err != nil {
		return err
	}
	defer meta.Close()

	stores := scanner.Stores{
		Candidates: database.NewCandidateStore(db),
		Metadata:   meta,
	}
	if cfg.Index.WarmCache {
		stores.Views = imageprocessor.NewFileViewSource(cfg.Search.MaxDimension)
		stores.Model = embedding.NewThumbnailEmbedder()
		stores.Cache = newCache(db, cfg)
	}

	workers := cfg.Index.Workers
	if workers <= 0 {
		workers = signalhandler.GetOptimalProcs()
	}

	summary, err := scanner.ScanAndStoreFolder(ctx, stores, scanner.ScanOptions{
		FolderPath:   folder,
		CellID:       cfg.Cell,
		CellZoom:     cfg.Index.Zoom,
		ForceRewrite: cfg.Index.Force,
		WarmCache:    cfg.Index.WarmCache,
		WarmFOVs:     cfg.Index.WarmFOV,
		MaxWorkers:   workers,
		DebugMode:    cfg.Log.Debug,
		Progress:     os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("scanning folder: %w", err)
	}

	fmt.Printf("Database: %s\n", cfg.Database)
	if stats, err := database.GetIndexStats(db, ""); err == nil {
		fmt.Printf("\nSummary:\n")
		fmt.Printf("- Captures indexed this run: %d\n", summary.Indexed)
		fmt.Printf("- Captures in index: %d across %d cells\n", stats.Candidates, stats.Cells)
		fmt.Printf("- Cached embeddings: %d\n", stats.CacheEntries)
	}
	return nil
}

// locateOutput is what locate prints: the session plus the absolute bearing
// of the best match.
type locateOutput struct {
	Session     *search.Session `json:"session"`
	BestBearing *float64        `json:"best_bearing,omitempty"`
}

func handleLocateCommand(ctx context.Context, handler *signalhandler.Handler, cfg config.Config) error {
	if cfg.Search.Image == "" {
		return errors.New("missing query image path (use --image=PATH)")
	}
	if cfg.Cell == "" {
		return errors.New("missing cell (use --cell=ID)")
	}

	img, err := imageprocessor.LoadImage(cfg.Search.Image)
	if err != nil {
		return fmt.Errorf("loading query image: %w", err)
	}

	db, err := openIndex(cfg.Database, false)
	if err != nil {
		return err
	}
	defer db.Close()

	adapter, err := cvfeatures.New(cvfeatures.Options{
		Detector:    cfg.Features.Detector,
		MaxFeatures: cfg.Features.MaxFeatures,
		Policy:      cfg.FeaturePolicy(),
	})
	if err != nil {
		return err
	}
	defer adapter.Close()

	deps := search.Dependencies{
		Provider: database.NewCandidateStore(db),
		Views:    imageprocessor.NewFileViewSource(cfg.Search.MaxDimension),
		Features: adapter,
	}
	if !cfg.Search.NoEmbedding {
		deps.Model = embedding.NewThumbnailEmbedder()
		deps.Cache = newCache(db, cfg)
	}

	pipeline, err := search.NewPipeline(deps, cfg.SearchOptions())
	if err != nil {
		return err
	}
	handler.OnSignal(pipeline.Cancel)

	start := time.Now()
	session, err := pipeline.Search(ctx, cfg.Cell, search.Query{
		Image: imageprocessor.Downscale(img, cfg.Search.MaxDimension),
		FOV:   cfg.Search.FOV,
	})
	if err != nil {
		return err
	}

	out := locateOutput{Session: session}
	if best, ok := session.Best(); ok && best.EstimateView != nil {
		bearing := absoluteBearing(best.Candidate, *best.EstimateView)
		out.BestBearing = &bearing
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	if session.Partial {
		fmt.Fprintf(os.Stderr, "Search interrupted; partial results after %v\n", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// absoluteBearing turns a view facing within a capture into a compass bearing.
func absoluteBearing(c types.Candidate, view types.ViewParameters) float64 {
	return geometry.NormalizeAzimuth(c.Heading + view.Facing)
}

func handleTriangulateCommand(ctx context.Context, cfg config.Config) error {
	if cfg.Search.Observations == "" {
		return errors.New("missing observations file (use --observations=FILE.json)")
	}
	f, err := triangulation.LoadObservationFile(cfg.Search.Observations)
	if err != nil {
		return err
	}

	// candidate references resolve against the index when there is one
	var lookup triangulation.CandidateLookup
	if db, err := openIndex(cfg.Database, false); err == nil {
		defer db.Close()
		lookup = database.NewCandidateStore(db)
	}

	results, err := f.Solve(ctx, lookup)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func handleCacheClearCommand(ctx context.Context, cfg config.Config) error {
	db, err := openIndex(cfg.Database, false)
	if err != nil {
		return err
	}
	defer db.Close()

	cache := newCache(db, cfg)
	if cfg.Cell != "" {
		if err := cache.ClearCell(ctx, cfg.Cell); err != nil {
			return err
		}
		fmt.Printf("Cleared cached embeddings for cell %s\n", cfg.Cell)
		return nil
	}
	if err := cache.ClearAll(ctx); err != nil {
		return err
	}
	fmt.Println("Cleared all cached embeddings")
	return nil
}

func handleStatsCommand(ctx context.Context, cfg config.Config) error {
	db, err := openIndex(cfg.Database, false)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := database.GetIndexStats(db, cfg.Cell)
	if err != nil {
		return err
	}
	fmt.Printf("Database: %s\n", cfg.Database)
	if cfg.Cell != "" {
		fmt.Printf("Cell: %s\n", cfg.Cell)
	}
	fmt.Printf("Captures: %d\nCells: %d\nCached embeddings: %d\n", stats.Candidates, stats.Cells, stats.CacheEntries)

	if cfg.Cell == "" {
		cells, err := database.NewCandidateStore(db).ListCells(ctx)
		if err != nil {
			return err
		}
		for cell, n := range cells {
			fmt.Printf("  %s: %d\n", cell, n)
		}
	}
	return nil
}
