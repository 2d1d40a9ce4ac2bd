// Package geometry maps between viewport pixels and view-invariant
// spherical coordinates on a panorama.
package geometry

import (
	"math"

	"panofinder/types"
)

const (
	// offViewMargin is how far (radians) past the half-FOV a point may sit and
	// still be reported on screen.
	offViewMargin = 0.2

	// maxNormalized bounds the normalized screen coordinate for visible points.
	maxNormalized = 1.2
)

// ScreenPoint is a pixel position in a viewport.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScreenToSpherical projects a viewport pixel through view into a spherical
// coordinate. Angular offsets use the perspective tangent relation, not a
// linear interpolation across the field of view.
func ScreenToSpherical(pixelX, pixelY, width, height float64, view types.ViewParameters) types.SphericalCoordinate {
	nx := 2*pixelX/width - 1
	ny := 1 - 2*pixelY/height

	tanV := math.Tan(Radians(view.FOV) / 2)
	tanH := tanV * (width / height)

	azOffset := Degrees(math.Atan(nx * tanH))
	elOffset := Degrees(math.Atan(ny * tanV))

	return types.SphericalCoordinate{
		Azimuth:   NormalizeAzimuth(view.Facing + azOffset),
		Elevation: ClampElevation(view.Horizon + elOffset),
	}
}

// SphericalToScreen is the inverse of ScreenToSpherical. The second return is
// false when the coordinate lies out of view; that is not an error.
func SphericalToScreen(coord types.SphericalCoordinate, width, height float64, view types.ViewParameters) (ScreenPoint, bool) {
	halfV := Radians(view.FOV) / 2
	tanV := math.Tan(halfV)
	tanH := tanV * (width / height)
	halfH := math.Atan(tanH)

	azOffset := Radians(NormalizeSigned(coord.Azimuth - view.Facing))
	elOffset := Radians(coord.Elevation - view.Horizon)

	if math.Abs(azOffset) >= math.Pi/2 || math.Abs(elOffset) >= math.Pi/2 {
		return ScreenPoint{}, false
	}
	if math.Abs(azOffset) > halfH+offViewMargin || math.Abs(elOffset) > halfV+offViewMargin {
		return ScreenPoint{}, false
	}

	nx := math.Tan(azOffset) / tanH
	ny := math.Tan(elOffset) / tanV
	if math.Abs(nx) > maxNormalized || math.Abs(ny) > maxNormalized {
		return ScreenPoint{}, false
	}

	return ScreenPoint{
		X: (nx + 1) / 2 * width,
		Y: (1 - ny) / 2 * height,
	}, true
}

// HorizontalFOV derives the horizontal field of view (degrees) from a
// vertical one and the viewport aspect ratio.
func HorizontalFOV(verticalFOV, aspect float64) float64 {
	return Degrees(2 * math.Atan(math.Tan(Radians(verticalFOV)/2)*aspect))
}

// FocalLengthPx returns the pinhole focal length in pixels for an image
// extent and the FOV spanning that same extent. Pass the height with a
// vertical FOV or the width with a horizontal one.
func FocalLengthPx(extent, fov float64) float64 {
	return extent / (2 * math.Tan(Radians(fov)/2))
}
