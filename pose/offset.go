package pose

import (
	"math"

	"github.com/golang/geo/r2"

	"panofinder/geometry"
	"panofinder/types"
)

// PoseOffset is the angular correction from a candidate view to the query
// camera. All angles are degrees.
type PoseOffset struct {
	YawOffset   float64 `json:"yaw_offset"`
	PitchOffset float64 `json:"pitch_offset"`
	Scale       float64 `json:"scale"`
	RefinedFOV  float64 `json:"refined_fov"`
}

// EstimatePoseOffset reads the query camera's orientation relative to a
// candidate view out of H, which maps query pixels onto the candidate view.
// width, height and assumedFOV describe the candidate view; assumedFOV is
// vertical, as in types.ViewParameters, so the offsets agree with
// geometry.ScreenToSpherical for the same view. Scale is the query's
// magnification relative to that view, so the query FOV is assumedFOV/Scale.
func EstimatePoseOffset(h types.Homography, width, height, assumedFOV float64, cfg Config) (PoseOffset, error) {
	cfg = cfg.withDefaults()
	if !wellConditioned(h) || width <= 0 || height <= 0 || assumedFOV <= 0 {
		return PoseOffset{}, types.ErrDegenerateHomography
	}

	// square pixels: one focal length serves both axes
	f := geometry.FocalLengthPx(height, assumedFOV)
	center := r2.Point{X: width / 2, Y: height / 2}
	mapped, ok := h.Apply(center)
	if !ok {
		return PoseOffset{}, types.ErrDegenerateHomography
	}
	d := mapped.Sub(center)

	// normalize so h22 == 1 before reading the linear part
	n := h
	if math.Abs(n[8]) < 1e-12 {
		return PoseOffset{}, types.ErrDegenerateHomography
	}
	for i := range n {
		n[i] /= h[8]
	}
	linearDet := math.Abs(n[0]*n[4] - n[1]*n[3])
	if linearDet < 1e-12 || math.IsNaN(linearDet) || math.IsInf(linearDet, 0) {
		return PoseOffset{}, types.ErrDegenerateHomography
	}
	scale := 1 / math.Sqrt(linearDet)

	return PoseOffset{
		YawOffset:   geometry.Degrees(math.Atan(d.X / f)),
		PitchOffset: -geometry.Degrees(math.Atan(d.Y / f)),
		Scale:       scale,
		RefinedFOV:  geometry.Clamp(assumedFOV/scale, cfg.MinFOV, cfg.MaxFOV),
	}, nil
}

// ComposeAbsoluteView applies an offset to the view the homography was
// measured against.
func ComposeAbsoluteView(current types.ViewParameters, offset PoseOffset, cfg Config) types.ViewParameters {
	cfg = cfg.withDefaults()
	fov := offset.RefinedFOV
	if fov <= 0 {
		fov = current.FOV
	}
	return types.ViewParameters{
		Facing:  geometry.NormalizeAzimuth(current.Facing + offset.YawOffset),
		Horizon: geometry.Clamp(current.Horizon+offset.PitchOffset, -cfg.MaxHorizon, cfg.MaxHorizon),
		FOV:     fov,
	}
}

// InlierSpherical converts candidate-side inlier pixels to spherical
// coordinates through the candidate view.
func InlierSpherical(points []r2.Point, width, height float64, view types.ViewParameters) []types.SphericalCoordinate {
	out := make([]types.SphericalCoordinate, 0, len(points))
	for _, p := range points {
		out = append(out, geometry.ScreenToSpherical(p.X, p.Y, width, height, view))
	}
	return out
}
