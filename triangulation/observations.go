package triangulation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"

	"panofinder/geometry"
	"panofinder/types"
)

// CaptureRef places a capture either inline or by indexed candidate id.
type CaptureRef struct {
	CandidateID string   `json:"candidate_id,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Alt         float64  `json:"alt,omitempty"`
	Heading     float64  `json:"heading,omitempty"`
}

// TaggedObservation is one point tagged on one capture.
type TaggedObservation struct {
	Capture   CaptureRef `json:"capture"`
	Azimuth   float64    `json:"azimuth"`
	Elevation float64    `json:"elevation"`
	Depth     *float64   `json:"depth,omitempty"`
}

// ObservationSet is the file form of a TriangulationSet.
type ObservationSet struct {
	Name         string              `json:"name"`
	Observations []TaggedObservation `json:"observations"`
}

// ObservationFile is the input of the triangulate command.
type ObservationFile struct {
	Sets []ObservationSet `json:"sets"`
}

// SetResult is a solved set in local and geographic coordinates.
type SetResult struct {
	Name     string                    `json:"name"`
	Result   types.TriangulationResult `json:"result"`
	Position orb.Point                 `json:"position,omitempty"`
	Altitude float64                   `json:"altitude,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

// CandidateLookup resolves candidate ids.
type CandidateLookup interface {
	GetCandidate(ctx context.Context, id string) (types.Candidate, bool, error)
}

// LoadObservationFile reads and decodes path.
func LoadObservationFile(path string) (*ObservationFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f ObservationFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Validate requires every set to have a name no other set uses.
func (f *ObservationFile) Validate() error {
	seen := make(map[string]int, len(f.Sets))
	for i, s := range f.Sets {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("set %d has no name", i)
		}
		if prev, ok := seen[s.Name]; ok {
			return fmt.Errorf("sets %d and %d are both named %q", prev, i, s.Name)
		}
		seen[s.Name] = i
	}
	return nil
}

// Solve resolves every capture, anchors a local frame at the first one and
// triangulates each set. A set that cannot be solved carries its error;
// only capture resolution failures abort.
func (f *ObservationFile) Solve(ctx context.Context, lookup CandidateLookup) ([]SetResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	captures := make(map[*TaggedObservation]types.Candidate)
	var frame *geometry.LocalFrame

	for si := range f.Sets {
		for oi := range f.Sets[si].Observations {
			o := &f.Sets[si].Observations[oi]
			c, err := resolveCapture(ctx, o.Capture, lookup)
			if err != nil {
				return nil, fmt.Errorf("set %q observation %d: %w", f.Sets[si].Name, oi, err)
			}
			captures[o] = c
			if frame == nil {
				fr := geometry.NewLocalFrame(c.Position, c.Altitude)
				frame = &fr
			}
		}
	}

	engine := NewEngine()
	out := make([]SetResult, 0, len(f.Sets))
	for si := range f.Sets {
		set := &f.Sets[si]
		for oi := range set.Observations {
			o := &set.Observations[oi]
			tagged := types.TaggedPoint{
				ID:            fmt.Sprintf("%s-%d", set.Name, oi),
				Spherical:     types.SphericalCoordinate{Azimuth: geometry.NormalizeAzimuth(o.Azimuth), Elevation: geometry.ClampElevation(o.Elevation)},
				DepthEstimate: o.Depth,
			}
			if _, err := engine.AddObservation(set.Name, tagged, PoseFromCandidate(*frame, captures[o])); err != nil {
				return nil, err
			}
		}

		sr := SetResult{Name: set.Name}
		res, err := engine.Triangulate(set.Name)
		if err != nil {
			sr.Error = err.Error()
		} else {
			sr.Result = res
			sr.Position, sr.Altitude = frame.ToGeo(res.Position)
		}
		out = append(out, sr)
	}
	return out, nil
}

func resolveCapture(ctx context.Context, ref CaptureRef, lookup CandidateLookup) (types.Candidate, error) {
	if ref.CandidateID != "" {
		if lookup == nil {
			return types.Candidate{}, fmt.Errorf("candidate %s: no index to look it up in", ref.CandidateID)
		}
		c, ok, err := lookup.GetCandidate(ctx, ref.CandidateID)
		if err != nil {
			return types.Candidate{}, err
		}
		if !ok {
			return types.Candidate{}, fmt.Errorf("candidate %s not indexed", ref.CandidateID)
		}
		if ref.Heading != 0 {
			c.Heading = ref.Heading
		}
		return c, nil
	}
	if ref.Lon == nil || ref.Lat == nil {
		return types.Candidate{}, fmt.Errorf("capture needs candidate_id or lon/lat")
	}
	return types.Candidate{Position: orb.Point{*ref.Lon, *ref.Lat}, Altitude: ref.Alt, Heading: ref.Heading}, nil
}
