// Package triangulation estimates the 3D position of a tagged scene point
// from rays cast out of several panorama capture positions.
package triangulation

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/r3"

	"panofinder/geometry"
	"panofinder/types"
)

// Iterations is the fixed number of refinement passes. There is no
// convergence test, so results are reproducible.
const Iterations = 10

// CameraPose places a capture in the local ENU frame (metres). Heading
// rotates panorama azimuth zero onto true north (degrees).
type CameraPose struct {
	Position r3.Vector
	Heading  float64
}

// PoseFromCandidate places a capture relative to frame.
func PoseFromCandidate(frame geometry.LocalFrame, c types.Candidate) CameraPose {
	return CameraPose{Position: frame.ToLocal(c.Position, c.Altitude), Heading: c.Heading}
}

// Engine keeps named observation sets. Callers adding to and solving the
// same set from several goroutines must serialize those calls themselves.
type Engine struct {
	sets map[string]*types.TriangulationSet
	mu   sync.RWMutex
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{sets: make(map[string]*types.TriangulationSet)}
}

// AddObservation casts a ray from pose through the tagged point and appends
// it to setName, creating the set on first use.
func (e *Engine) AddObservation(setName string, tagged types.TaggedPoint, pose CameraPose) (types.TriangulationSet, error) {
	if setName == "" {
		return types.TriangulationSet{}, fmt.Errorf("set name is required")
	}

	obs := types.ViewObservation{
		PointID:   tagged.ID,
		Origin:    pose.Position,
		Direction: geometry.Direction(tagged.Spherical, pose.Heading),
		Weight:    1,
	}
	if tagged.DepthEstimate != nil {
		d := *tagged.DepthEstimate
		obs.DepthHint = &d
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	set, ok := e.sets[setName]
	if !ok {
		set = &types.TriangulationSet{Name: setName}
		e.sets[setName] = set
	}
	set.Observations = append(set.Observations, obs)
	return copySet(set), nil
}

// RemoveObservation drops every observation derived from pointID.
func (e *Engine) RemoveObservation(setName, pointID string) (types.TriangulationSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	set, ok := e.sets[setName]
	if !ok {
		return types.TriangulationSet{}, fmt.Errorf("%s: %w", setName, types.ErrUnknownSet)
	}
	kept := set.Observations[:0]
	for _, o := range set.Observations {
		if o.PointID != pointID {
			kept = append(kept, o)
		}
	}
	set.Observations = kept
	return copySet(set), nil
}

// Set returns a copy of a named set.
func (e *Engine) Set(name string) (types.TriangulationSet, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set, ok := e.sets[name]
	if !ok {
		return types.TriangulationSet{}, false
	}
	return copySet(set), true
}

// Sets returns the set names in sorted order.
func (e *Engine) Sets() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.sets))
	for name := range e.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteSet removes a set and reports whether it existed.
func (e *Engine) DeleteSet(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sets[name]
	delete(e.sets, name)
	return ok
}

// Triangulate solves the named set. Results are recomputed on every call.
func (e *Engine) Triangulate(setName string) (types.TriangulationResult, error) {
	e.mu.RLock()
	set, ok := e.sets[setName]
	var obs []types.ViewObservation
	if ok {
		obs = append(obs, set.Observations...)
	}
	e.mu.RUnlock()

	if !ok {
		return types.TriangulationResult{}, fmt.Errorf("%s: %w", setName, types.ErrUnknownSet)
	}
	return Solve(obs)
}

// Solve finds the point closest to every ray. It starts from the mean of
// origin+direction*depth (depth 1 when no hint) and runs Iterations passes
// of weighted projection onto the rays. Hinted observations are weighted
// 1-0.5*depth/maxDepth so nearer ones pull harder.
func Solve(obs []types.ViewObservation) (types.TriangulationResult, error) {
	if len(obs) < 2 {
		return types.TriangulationResult{}, fmt.Errorf("%d observations: %w", len(obs), types.ErrInsufficientObservations)
	}

	rays := make([]types.ViewObservation, len(obs))
	for i, o := range obs {
		n := o.Direction.Norm()
		if n == 0 || math.IsNaN(n) {
			return types.TriangulationResult{}, fmt.Errorf("observation %d has no direction", i)
		}
		o.Direction = o.Direction.Mul(1 / n)
		rays[i] = o
	}

	weights := rayWeights(rays)

	var estimate r3.Vector
	for _, o := range rays {
		depth := 1.0
		if o.DepthHint != nil {
			depth = *o.DepthHint
		}
		estimate = estimate.Add(o.Origin.Add(o.Direction.Mul(depth)))
	}
	estimate = estimate.Mul(1 / float64(len(rays)))

	for iter := 0; iter < Iterations; iter++ {
		var sum r3.Vector
		var wsum float64
		for i, o := range rays {
			sum = sum.Add(closestOnRay(o, estimate).Mul(weights[i]))
			wsum += weights[i]
		}
		if wsum == 0 {
			break
		}
		estimate = sum.Mul(1 / wsum)
	}

	res := types.TriangulationResult{
		Position:         estimate,
		Residuals:        make([]float64, len(rays)),
		ObservationCount: len(rays),
	}
	var total float64
	for i, o := range rays {
		d := estimate.Sub(closestOnRay(o, estimate)).Norm()
		res.Residuals[i] = d
		total += d
		if d > res.MaxError {
			res.MaxError = d
		}
	}
	res.AverageError = total / float64(len(rays))
	res.Confidence = 1 / (1 + res.AverageError)
	return res, nil
}

func rayWeights(rays []types.ViewObservation) []float64 {
	var maxDepth float64
	for _, o := range rays {
		if o.DepthHint != nil && *o.DepthHint > maxDepth {
			maxDepth = *o.DepthHint
		}
	}

	weights := make([]float64, len(rays))
	for i, o := range rays {
		w := 1.0
		if o.DepthHint != nil && maxDepth > 0 {
			w = 1 - 0.5*(*o.DepthHint/maxDepth)
		}
		if o.Weight > 0 {
			w *= o.Weight
		}
		weights[i] = w
	}
	return weights
}

// closestOnRay projects p onto the ray; points behind the origin clamp to it.
func closestOnRay(o types.ViewObservation, p r3.Vector) r3.Vector {
	t := p.Sub(o.Origin).Dot(o.Direction)
	if t < 0 {
		t = 0
	}
	return o.Origin.Add(o.Direction.Mul(t))
}

func copySet(s *types.TriangulationSet) types.TriangulationSet {
	out := types.TriangulationSet{Name: s.Name, Observations: make([]types.ViewObservation, len(s.Observations))}
	copy(out.Observations, s.Observations)
	return out
}
