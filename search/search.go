// Package search ranks the panorama captures of a cell against a query photo:
// a cheap embedding similarity narrows the set, then feature matching and a
// robust homography verify each survivor.
package search

import (
	"context"
	"image"
	"log/slog"

	"panofinder/pose"
	"panofinder/types"
)

// Mode selects how many candidates reach geometric verification.
type Mode string

const (
	// ModeSampled verifies a bounded subset: the embedding top-K, or a seeded
	// sample when running without embeddings.
	ModeSampled Mode = "sampled"
	// ModeExhaustive verifies every candidate in the cell.
	ModeExhaustive Mode = "exhaustive"
)

// CandidateProvider lists the captures in a cell.
type CandidateProvider interface {
	ListCandidates(ctx context.Context, cellID string) ([]types.Candidate, error)
}

// CandidateView is a rendered perspective view of a capture together with
// the view parameters it was rendered at.
type CandidateView struct {
	Image image.Image
	View  types.ViewParameters
}

// ViewSource loads the image used to compare against a query.
type ViewSource interface {
	LoadView(ctx context.Context, c types.Candidate) (CandidateView, error)
}

// Query is the photo being localized.
type Query struct {
	Image image.Image
	// FOV is the assumed vertical field of view of the query camera. It keys
	// the embedding cache, although candidate views do not depend on it:
	// entries warmed at index time are only hit when their bucket matches,
	// so index --warm-fov should list the FOVs locate runs with.
	FOV float64
}

// Options tunes a Pipeline.
type Options struct {
	Mode         Mode
	TopK         int // candidates kept after embedding ranking
	SampleSize   int // candidates verified in sampled fallback
	MinKeypoints int // below this an image has insufficient features
	MinMatches   int // below this no homography is attempted
	MinInliers   int // below this a candidate is not a match
	Weights      ScoreWeights
	Pose         pose.Config
	Seed         int64 // fallback sampling seed
	Logger       *slog.Logger
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Mode:         ModeSampled,
		TopK:         20,
		SampleSize:   20,
		MinKeypoints: 20,
		MinMatches:   8,
		MinInliers:   15,
		Weights:      DefaultScoreWeights(),
		Pose:         pose.DefaultConfig(),
		Seed:         1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.SampleSize <= 0 {
		o.SampleSize = d.SampleSize
	}
	if o.MinKeypoints <= 0 {
		o.MinKeypoints = d.MinKeypoints
	}
	if o.MinMatches <= 0 {
		o.MinMatches = d.MinMatches
	}
	if o.MinInliers <= 0 {
		o.MinInliers = d.MinInliers
	}
	if o.Weights == (ScoreWeights{}) {
		o.Weights = d.Weights
	}
	return o
}

// Result is one ranked candidate. Match is nil when the candidate was ranked
// by embedding similarity only; Similarity is nil in geometric-only mode.
type Result struct {
	CandidateID  string                      `json:"candidate_id"`
	Candidate    types.Candidate             `json:"candidate"`
	Score        float64                     `json:"score"`
	Similarity   *float64                    `json:"similarity,omitempty"`
	Match        *types.MatchResult          `json:"match,omitempty"`
	PoseOffset   *pose.PoseOffset            `json:"pose_offset,omitempty"`
	EstimateView *types.ViewParameters       `json:"estimated_view,omitempty"`
	InlierPoints []types.SphericalCoordinate `json:"inlier_points,omitempty"`
}

// InlierCount returns the verified inlier count, or 0 without a match.
func (r Result) InlierCount() int {
	if r.Match == nil {
		return 0
	}
	return r.Match.InlierCount
}
