package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"panofinder/embedding"
	"panofinder/features"
	"panofinder/logging"
	"panofinder/pose"
	"panofinder/types"
)

// Dependencies are the collaborators a Pipeline calls. Model and Cache may
// be nil; without a model the pipeline runs geometric-only.
type Dependencies struct {
	Provider CandidateProvider
	Views    ViewSource
	Features features.Adapter
	Model    embedding.Model
	Cache    *embedding.Cache
}

// Pipeline runs one search at a time.
type Pipeline struct {
	deps Dependencies
	opts Options
	log  *slog.Logger

	running   atomic.Bool
	cancelled atomic.Bool
	state     atomic.Value // types.Stage
}

// NewPipeline validates the dependencies and applies option defaults.
func NewPipeline(deps Dependencies, opts Options) (*Pipeline, error) {
	if deps.Provider == nil || deps.Views == nil || deps.Features == nil {
		return nil, fmt.Errorf("candidate provider, view source and feature adapter are required")
	}
	opts = opts.withDefaults()
	p := &Pipeline{deps: deps, opts: opts, log: opts.Logger}
	if p.log == nil {
		p.log = logging.L()
	}
	p.state.Store(types.StageIdle)
	return p, nil
}

// State returns the stage of the search in flight, or of the last one.
func (p *Pipeline) State() types.Stage {
	return p.state.Load().(types.Stage)
}

// Cancel asks the search in flight to stop at its next check. Results
// gathered so far are returned with Partial set.
func (p *Pipeline) Cancel() {
	p.cancelled.Store(true)
}

func (p *Pipeline) stopRequested(ctx context.Context) bool {
	return p.cancelled.Load() || ctx.Err() != nil
}

func (p *Pipeline) enter(s *Session, stage types.Stage) {
	s.State = stage
	p.state.Store(stage)
}

// ranked is a candidate with its optional embedding similarity.
type ranked struct {
	cand types.Candidate
	sim  *float64
}

// Search localizes query within cellID. A second call while one is running
// returns ErrSearchInProgress. Per-candidate failures are recorded on the
// session and never abort the search. A cancelled search returns the
// session with State Cancelled, Partial set and a nil error.
func (p *Pipeline) Search(ctx context.Context, cellID string, query Query) (*Session, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, types.ErrSearchInProgress
	}
	defer p.running.Store(false)
	p.cancelled.Store(false)

	s := newSession(cellID, p.opts.Mode)
	p.enter(s, types.StageIdle)
	log := p.log.With("session", s.ID, "cell", cellID)
	defer func() { s.Duration = time.Since(s.StartedAt) }()

	candidates, err := p.deps.Provider.ListCandidates(ctx, cellID)
	if err != nil {
		p.enter(s, types.StageFailed)
		return s, fmt.Errorf("listing candidates for cell %s: %w", cellID, err)
	}
	log.Debug("search started", "candidates", len(candidates), "mode", p.opts.Mode)

	queryFS, err := p.extractQuery(ctx, query)
	if err != nil {
		p.enter(s, types.StageFailed)
		return s, err
	}
	defer queryFS.Close()

	// Embedding stage
	p.enter(s, types.StageEmbedding)
	order, ok := p.embeddingStage(ctx, s, log, query, candidates)
	if !ok {
		s.Fallback = true
		order = p.fallbackSelection(candidates)
		log.Warn("embedding model unavailable, running geometric-only", "verifying", len(order))
	}

	if p.stopRequested(ctx) {
		s.Results = make([]Result, 0, len(order))
		for _, r := range order {
			s.Results = append(s.Results, Result{
				CandidateID: r.cand.ID,
				Candidate:   r.cand,
				Similarity:  r.sim,
				Score:       p.opts.Weights.Score(0, r.sim),
			})
		}
		Rank(s.Results)
		return p.cancel(s, log), nil
	}

	if !s.Fallback {
		order = p.selectForVerification(order)
	}

	// Geometric stage
	p.enter(s, types.StageGeometric)
	for _, r := range order {
		if p.stopRequested(ctx) {
			Rank(s.Results)
			return p.cancel(s, log), nil
		}

		res, err := p.verify(ctx, queryFS, r.cand, r.sim)
		if err != nil {
			s.fail(r.cand.ID, types.StageGeometric, err)
			log.Debug("candidate rejected", "candidate", r.cand.ID, "error", err)
			continue
		}
		s.Results = append(s.Results, *res)
	}

	p.enter(s, types.StageRanked)
	Rank(s.Results)

	p.enter(s, types.StageComplete)
	log.Info("search complete", "matches", len(s.Results), "failures", len(s.Failures), "fallback", s.Fallback)
	return s, nil
}

func (p *Pipeline) cancel(s *Session, log *slog.Logger) *Session {
	s.Partial = true
	p.enter(s, types.StageCancelled)
	log.Info("search cancelled", "results", len(s.Results))
	return s
}

func (p *Pipeline) extractQuery(ctx context.Context, query Query) (*features.FeatureSet, error) {
	fs, err := p.deps.Features.Extract(ctx, query.Image)
	if err != nil {
		return nil, fmt.Errorf("extracting query features: %w", err)
	}
	if fs.Len() < p.opts.MinKeypoints {
		fs.Close()
		return nil, fmt.Errorf("query has %d keypoints, need %d: %w", fs.Len(), p.opts.MinKeypoints, types.ErrInsufficientFeatures)
	}
	return fs, nil
}

// embeddingStage ranks candidates by similarity to the query. It reports
// false when the model is unavailable for the query or any candidate, or
// when no candidate could be ranked, which selects the geometric-only
// fallback.
func (p *Pipeline) embeddingStage(ctx context.Context, s *Session, log *slog.Logger, query Query, candidates []types.Candidate) ([]ranked, bool) {
	if p.deps.Model == nil {
		return nil, false
	}

	queryEmb, err := p.deps.Model.Embed(ctx, query.Image)
	if err != nil {
		if !errors.Is(err, types.ErrCollaboratorUnavailable) {
			log.Warn("query embedding failed", "error", err)
		}
		return nil, false
	}

	var cached map[string][]float32
	if p.deps.Cache != nil {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		cached, err = p.deps.Cache.GetMany(ctx, s.CellID, ids, query.FOV)
		if err != nil {
			log.Warn("embedding cache lookup failed", "error", err)
			cached = nil
		}
	}

	var hits int
	out := make([]ranked, 0, len(candidates))
	var unranked []ranked
	for _, c := range candidates {
		if p.stopRequested(ctx) {
			break
		}

		emb, ok := cached[c.ID]
		if ok {
			hits++
		} else {
			emb, err = p.embedCandidate(ctx, s.CellID, c, query.FOV)
			if err != nil {
				s.fail(c.ID, types.StageEmbedding, err)
				if errors.Is(err, types.ErrCollaboratorUnavailable) {
					log.Warn("embedding model lost during candidate embedding", "candidate", c.ID, "error", err)
					return nil, false
				}
				log.Debug("candidate embedding failed", "candidate", c.ID, "error", err)
				unranked = append(unranked, ranked{cand: c})
				continue
			}
		}

		sim := embedding.Cosine(queryEmb, emb)
		out = append(out, ranked{cand: c, sim: &sim})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if *out[i].sim != *out[j].sim {
			return *out[i].sim > *out[j].sim
		}
		return out[i].cand.ID < out[j].cand.ID
	})
	log.Debug("embedding stage done", "ranked", len(out), "cache_hits", hits)

	// nothing ranked: sampled mode would verify nothing
	if len(out) == 0 && len(candidates) > 0 && !p.stopRequested(ctx) {
		return nil, false
	}

	// candidates without an embedding still reach exhaustive verification
	return append(out, unranked...), true
}

func (p *Pipeline) embedCandidate(ctx context.Context, cellID string, c types.Candidate, fov float64) ([]float32, error) {
	view, err := p.deps.Views.LoadView(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("loading view: %w", err)
	}
	emb, err := p.deps.Model.Embed(ctx, view.Image)
	if err != nil {
		return nil, fmt.Errorf("embedding view: %w", err)
	}
	if p.deps.Cache != nil {
		if err := p.deps.Cache.Set(ctx, cellID, c.ID, fov, emb); err != nil {
			p.log.Debug("embedding cache write failed", "candidate", c.ID, "error", err)
		}
	}
	return emb, nil
}

func (p *Pipeline) selectForVerification(order []ranked) []ranked {
	if p.opts.Mode == ModeExhaustive {
		return order
	}
	var out []ranked
	for _, r := range order {
		if r.sim == nil || len(out) >= p.opts.TopK {
			break
		}
		out = append(out, r)
	}
	return out
}

// fallbackSelection picks candidates without embedding ranking: a seeded
// sample in sampled mode, all of them in exhaustive mode.
func (p *Pipeline) fallbackSelection(candidates []types.Candidate) []ranked {
	if p.opts.Mode == ModeExhaustive || len(candidates) <= p.opts.SampleSize {
		out := make([]ranked, len(candidates))
		for i, c := range candidates {
			out[i] = ranked{cand: c}
		}
		return out
	}

	//nolint:gosec
	rng := rand.New(rand.NewSource(p.opts.Seed))
	perm := rng.Perm(len(candidates))[:p.opts.SampleSize]
	out := make([]ranked, len(perm))
	for i, idx := range perm {
		out[i] = ranked{cand: candidates[idx]}
	}
	return out
}

// verify runs feature matching and homography estimation for one candidate.
func (p *Pipeline) verify(ctx context.Context, queryFS *features.FeatureSet, c types.Candidate, sim *float64) (*Result, error) {
	view, err := p.deps.Views.LoadView(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("loading view: %w", err)
	}

	candFS, err := p.deps.Features.Extract(ctx, view.Image)
	if err != nil {
		return nil, fmt.Errorf("extracting features: %w", err)
	}
	defer candFS.Close()

	if candFS.Len() < p.opts.MinKeypoints {
		return nil, fmt.Errorf("%d keypoints, need %d: %w", candFS.Len(), p.opts.MinKeypoints, types.ErrInsufficientFeatures)
	}

	corrs, err := p.deps.Features.Match(queryFS, candFS)
	if err != nil {
		return nil, fmt.Errorf("matching features: %w", err)
	}
	if len(corrs) < p.opts.MinMatches {
		return nil, fmt.Errorf("%d matches, need %d: %w", len(corrs), p.opts.MinMatches, types.ErrInsufficientMatches)
	}

	est, err := pose.EstimateHomography(corrs, p.opts.Pose)
	if err != nil {
		return nil, err
	}
	if est.InlierCount < p.opts.MinInliers {
		return nil, fmt.Errorf("%d inliers, need %d: %w", est.InlierCount, p.opts.MinInliers, types.ErrInsufficientInliers)
	}

	match := est.Result(len(corrs))
	res := &Result{
		CandidateID: c.ID,
		Candidate:   c,
		Similarity:  sim,
		Match:       &match,
		Score:       p.opts.Weights.Score(est.InlierCount, sim),
	}

	w, h := float64(candFS.Width), float64(candFS.Height)
	if w <= 0 || h <= 0 {
		b := view.Image.Bounds()
		w, h = float64(b.Dx()), float64(b.Dy())
	}

	offset, err := pose.EstimatePoseOffset(est.H, w, h, view.View.FOV, p.opts.Pose)
	if err == nil {
		abs := pose.ComposeAbsoluteView(view.View, offset, p.opts.Pose)
		res.PoseOffset = &offset
		res.EstimateView = &abs
	} else {
		p.log.Debug("pose offset unavailable", "candidate", c.ID, "error", err)
	}
	res.InlierPoints = pose.InlierSpherical(pose.InlierPoints(corrs, est.InlierMask), w, h, view.View)

	return res, nil
}

// Localize verifies query against a single candidate. Unlike Search, every
// failure is returned to the caller.
func (p *Pipeline) Localize(ctx context.Context, query Query, c types.Candidate) (*Result, error) {
	queryFS, err := p.extractQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	defer queryFS.Close()

	res, err := p.verify(ctx, queryFS, c, nil)
	if err != nil {
		return nil, &types.StageError{Stage: types.StageGeometric, CandidateID: c.ID, Err: err}
	}
	return res, nil
}
