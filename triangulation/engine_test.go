package triangulation

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"

	"panofinder/geometry"
	"panofinder/types"
)

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func ptr(v float64) *float64 { return &v }

// perpendicularRays meet at (5,5,0).
func perpendicularRays(depth *float64) []types.ViewObservation {
	return []types.ViewObservation{
		{Origin: r3.Vector{}, Direction: r3.Vector{X: 1, Y: 1}.Normalize(), DepthHint: depth, Weight: 1},
		{Origin: r3.Vector{X: 10}, Direction: r3.Vector{X: -1, Y: 1}.Normalize(), DepthHint: depth, Weight: 1},
	}
}

func TestSolveIntersectingRays(t *testing.T) {
	res, err := Solve(perpendicularRays(nil))
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	target := r3.Vector{X: 5, Y: 5}
	if d := res.Position.Sub(target).Norm(); d > 1e-2 {
		t.Errorf("position %v is %.4f from %v", res.Position, d, target)
	}
	if !floatEquals(res.AverageError, 0, 1e-2) {
		t.Errorf("average error = %v, want ~0", res.AverageError)
	}
	if !floatEquals(res.Confidence, 1, 1e-2) {
		t.Errorf("confidence = %v, want ~1", res.Confidence)
	}
	if res.ObservationCount != 2 || len(res.Residuals) != 2 {
		t.Errorf("count = %d, residuals = %v", res.ObservationCount, res.Residuals)
	}
	if res.MaxError < res.AverageError {
		t.Errorf("max %v < avg %v", res.MaxError, res.AverageError)
	}
}

func TestSolveWithExactDepthHints(t *testing.T) {
	res, err := Solve(perpendicularRays(ptr(math.Sqrt(50))))
	if err != nil {
		t.Fatal(err)
	}
	if d := res.Position.Sub(r3.Vector{X: 5, Y: 5}).Norm(); d > 1e-9 {
		t.Errorf("position off by %v", d)
	}
	if res.AverageError > 1e-9 || !floatEquals(res.Confidence, 1, 1e-9) {
		t.Errorf("avg=%v conf=%v", res.AverageError, res.Confidence)
	}
}

func TestSolveDeterministic(t *testing.T) {
	obs := []types.ViewObservation{
		{Origin: r3.Vector{}, Direction: r3.Vector{X: 1, Y: 1, Z: 0.1}, Weight: 1},
		{Origin: r3.Vector{X: 10}, Direction: r3.Vector{X: -1, Y: 1.2}, DepthHint: ptr(7), Weight: 1},
		{Origin: r3.Vector{X: 5, Y: -3}, Direction: r3.Vector{Y: 1, Z: 0.05}, DepthHint: ptr(9), Weight: 1},
	}
	a, _ := Solve(obs)
	b, _ := Solve(obs)
	if a.Position != b.Position || a.AverageError != b.AverageError {
		t.Error("Solve is not deterministic")
	}
	if a.Confidence <= 0 || a.Confidence > 1 {
		t.Errorf("confidence %v out of (0,1]", a.Confidence)
	}
}

func TestSolveInsufficient(t *testing.T) {
	for _, n := range []int{0, 1} {
		_, err := Solve(perpendicularRays(nil)[:n])
		if !errors.Is(err, types.ErrInsufficientObservations) {
			t.Errorf("%d observations: err = %v", n, err)
		}
	}
}

func TestRayWeights(t *testing.T) {
	rays := []types.ViewObservation{
		{DepthHint: ptr(10)},
		{DepthHint: ptr(5)},
		{},
	}
	w := rayWeights(rays)
	want := []float64{0.5, 0.75, 1}
	for i := range want {
		if !floatEquals(w[i], want[i], 1e-12) {
			t.Errorf("weight[%d] = %v, want %v", i, w[i], want[i])
		}
	}
}

func TestEngine(t *testing.T) {
	e := NewEngine()

	// two captures 10 m apart looking at a point 5 m north of their midpoint
	left := CameraPose{Position: r3.Vector{}, Heading: 0}
	right := CameraPose{Position: r3.Vector{X: 10}, Heading: 0}
	p1 := types.TaggedPoint{ID: "p1", Spherical: types.SphericalCoordinate{Azimuth: 45}}
	p2 := types.TaggedPoint{ID: "p2", Spherical: types.SphericalCoordinate{Azimuth: 315}}

	if _, err := e.AddObservation("", p1, left); err == nil {
		t.Error("empty set name accepted")
	}

	set, err := e.AddObservation("mast", p1, left)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Observations) != 1 {
		t.Fatalf("observations = %d", len(set.Observations))
	}
	if _, err := e.Triangulate("mast"); !errors.Is(err, types.ErrInsufficientObservations) {
		t.Errorf("single observation err = %v", err)
	}

	if _, err := e.AddObservation("mast", p2, right); err != nil {
		t.Fatal(err)
	}
	res, err := e.Triangulate("mast")
	if err != nil {
		t.Fatal(err)
	}
	if d := res.Position.Sub(r3.Vector{X: 5, Y: 5}).Norm(); d > 1e-2 {
		t.Errorf("position = %v", res.Position)
	}

	if _, err := e.Triangulate("nope"); !errors.Is(err, types.ErrUnknownSet) {
		t.Errorf("unknown set err = %v", err)
	}

	set, err = e.RemoveObservation("mast", "p2")
	if err != nil || len(set.Observations) != 1 {
		t.Errorf("RemoveObservation = %d observations, %v", len(set.Observations), err)
	}

	if names := e.Sets(); len(names) != 1 || names[0] != "mast" {
		t.Errorf("Sets = %v", names)
	}
	if !e.DeleteSet("mast") || e.DeleteSet("mast") {
		t.Error("DeleteSet should succeed once")
	}
}

func TestAddObservationUsesHeading(t *testing.T) {
	e := NewEngine()
	// panorama zero points east, tagged straight ahead
	set, _ := e.AddObservation("s", types.TaggedPoint{ID: "a"}, CameraPose{Heading: 90})
	dir := set.Observations[0].Direction
	if dir.Sub(r3.Vector{X: 1}).Norm() > 1e-9 {
		t.Errorf("direction = %v, want east", dir)
	}
}

func TestPoseFromCandidate(t *testing.T) {
	frame := geometry.NewLocalFrame(orb.Point{13.4, 52.5}, 30)
	pose := PoseFromCandidate(frame, types.Candidate{Position: orb.Point{13.4, 52.5}, Altitude: 32, Heading: 12})
	if pose.Position.Norm() > 2+1e-9 || pose.Heading != 12 {
		t.Errorf("pose = %+v", pose)
	}
}
