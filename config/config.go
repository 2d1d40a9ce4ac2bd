// Package config collects the tunables of every command into one struct
// decoded from command-line flags and the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"panofinder/features"
	"panofinder/pose"
	"panofinder/search"
	"panofinder/utils"
)

// Environment overrides, applied before flags.
const (
	EnvDatabase = "PANOFINDER_DB"
	EnvLogLevel = "PANOFINDER_LOG_LEVEL"
)

// Config is the full command configuration. Sections are squashed so each
// flag is a flat --key.
type Config struct {
	Database string         `mapstructure:"database"`
	Cell     string         `mapstructure:"cell"`
	Search   SearchConfig   `mapstructure:",squash"`
	Pose     PoseConfig     `mapstructure:",squash"`
	Features FeaturesConfig `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Index    IndexConfig    `mapstructure:",squash"`
	Log      LogConfig      `mapstructure:",squash"`
}

type SearchConfig struct {
	Image              string  `mapstructure:"image"`
	Mode               string  `mapstructure:"mode"`
	FOV                float64 `mapstructure:"fov"`
	TopK               int     `mapstructure:"top-k"`
	SampleSize         int     `mapstructure:"sample-size"`
	MinKeypoints       int     `mapstructure:"min-keypoints"`
	MinMatches         int     `mapstructure:"min-matches"`
	MinInliers         int     `mapstructure:"min-inliers"`
	NoEmbedding        bool    `mapstructure:"no-embedding"`
	Seed               int64   `mapstructure:"seed"`
	MaxDimension       int     `mapstructure:"max-dimension"`
	InlierWeight       float64 `mapstructure:"inlier-weight"`
	SimilarityWeight   float64 `mapstructure:"similarity-weight"`
	SimilarityBaseline float64 `mapstructure:"similarity-baseline"`
	Observations       string  `mapstructure:"observations"`
}

type PoseConfig struct {
	Iterations      int     `mapstructure:"ransac-iterations"`
	ReprojThreshold float64 `mapstructure:"reproj-threshold"`
	Seed            int64   `mapstructure:"ransac-seed"`
}

type FeaturesConfig struct {
	Detector    string  `mapstructure:"detector"`
	MaxFeatures int     `mapstructure:"max-features"`
	Ratio       float64 `mapstructure:"ratio"`
}

type CacheConfig struct {
	MaxAge time.Duration `mapstructure:"cache-ttl"` // 0 keeps entries forever
}

type IndexConfig struct {
	Folder    string    `mapstructure:"folder"`
	Zoom      int       `mapstructure:"zoom"`
	Force     bool      `mapstructure:"force"`
	WarmCache bool      `mapstructure:"warm-cache"`
	WarmFOV   []float64 `mapstructure:"warm-fov"` // comma separated, one cache bucket each
	Workers   int       `mapstructure:"workers"`
}

type LogConfig struct {
	Level string `mapstructure:"log-level"`
	Debug bool   `mapstructure:"debug"`
	File  string `mapstructure:"logfile"`
}

// DefaultConfig returns the defaults for every command.
func DefaultConfig() Config {
	so := search.DefaultOptions()
	pc := pose.DefaultConfig()
	fp := features.DefaultPolicy()
	return Config{
		Database: utils.GetDefaultDatabasePath(),
		Search: SearchConfig{
			Mode:               string(so.Mode),
			FOV:                60,
			TopK:               so.TopK,
			SampleSize:         so.SampleSize,
			MinKeypoints:       so.MinKeypoints,
			MinMatches:         so.MinMatches,
			MinInliers:         so.MinInliers,
			Seed:               so.Seed,
			MaxDimension:       1024,
			InlierWeight:       so.Weights.Inlier,
			SimilarityWeight:   so.Weights.Similarity,
			SimilarityBaseline: so.Weights.Baseline,
		},
		Pose: PoseConfig{
			Iterations:      pc.Iterations,
			ReprojThreshold: pc.ReprojThreshold,
			Seed:            pc.Seed,
		},
		Features: FeaturesConfig{
			Detector:    "orb",
			MaxFeatures: 1000,
			Ratio:       fp.Ratio,
		},
		Index: IndexConfig{
			Zoom: 17,
		},
		Log: LogConfig{
			Level: "info",
			File:  "panofinder.log",
		},
	}
}

// FromArgs layers the environment and then args over DefaultConfig. Keys
// not naming a field, such as "command", are ignored.
func FromArgs(args map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}

	// accepted as an alias, like the --db flag
	if v, ok := args["db"]; ok && args["database"] == "" {
		args = withKey(args, "database", v)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(args); err != nil {
		return Config{}, fmt.Errorf("decoding flags: %w", err)
	}
	if cfg.Log.Debug {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func withKey(args map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(args)+1)
	for key, val := range args {
		out[key] = val
	}
	out[k] = v
	return out
}

// Validate rejects values no command can run with.
func (c Config) Validate() error {
	switch search.Mode(c.Search.Mode) {
	case search.ModeSampled, search.ModeExhaustive:
	default:
		return fmt.Errorf("unknown mode %q", c.Search.Mode)
	}
	if c.Search.FOV <= 0 || c.Search.FOV >= 180 {
		return fmt.Errorf("fov %v out of (0,180)", c.Search.FOV)
	}
	if c.Search.TopK < 0 || c.Search.SampleSize < 0 {
		return fmt.Errorf("top-k and sample-size must not be negative")
	}
	for _, fov := range c.Index.WarmFOV {
		if fov <= 0 || fov >= 180 {
			return fmt.Errorf("warm-fov %v out of (0,180)", fov)
		}
	}
	if c.Cache.MaxAge < 0 {
		return fmt.Errorf("cache-ttl must not be negative")
	}
	if c.Features.Ratio <= 0 || c.Features.Ratio > 1 {
		return fmt.Errorf("ratio %v out of (0,1]", c.Features.Ratio)
	}
	return nil
}

// PoseConfig returns the estimator configuration.
func (c Config) PoseConfig() pose.Config {
	pc := pose.DefaultConfig()
	pc.Iterations = c.Pose.Iterations
	pc.ReprojThreshold = c.Pose.ReprojThreshold
	pc.Seed = c.Pose.Seed
	return pc
}

// FeaturePolicy returns the correspondence filter.
func (c Config) FeaturePolicy() features.Policy {
	p := features.DefaultPolicy()
	p.Ratio = c.Features.Ratio
	return p
}

// SearchOptions returns the pipeline options.
func (c Config) SearchOptions() search.Options {
	return search.Options{
		Mode:         search.Mode(c.Search.Mode),
		TopK:         c.Search.TopK,
		SampleSize:   c.Search.SampleSize,
		MinKeypoints: c.Search.MinKeypoints,
		MinMatches:   c.Search.MinMatches,
		MinInliers:   c.Search.MinInliers,
		Weights: search.ScoreWeights{
			Inlier:     c.Search.InlierWeight,
			Similarity: c.Search.SimilarityWeight,
			Baseline:   c.Search.SimilarityBaseline,
		},
		Pose: c.PoseConfig(),
		Seed: c.Search.Seed,
	}
}
