package geometry

import (
	"math"

	"github.com/golang/geo/r3"

	"panofinder/types"
)

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// NormalizeAzimuth wraps any angle into [0,360).
func NormalizeAzimuth(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	// -1e-15 mod 360 + 360 rounds to 360
	if a >= 360 {
		a = 0
	}
	return a
}

// NormalizeSigned wraps any angle into (-180,180].
func NormalizeSigned(deg float64) float64 {
	a := NormalizeAzimuth(deg)
	if a > 180 {
		a -= 360
	}
	return a
}

// ClampElevation limits an elevation to [-90,90].
func ClampElevation(deg float64) float64 {
	if math.IsNaN(deg) {
		return 0
	}
	return Clamp(deg, -90, 90)
}

// Clamp limits v to [lo,hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Direction converts a spherical coordinate to a unit vector in a local
// east-north-up frame. heading rotates the panorama's azimuth zero onto true
// north.
func Direction(coord types.SphericalCoordinate, heading float64) r3.Vector {
	az := Radians(NormalizeAzimuth(coord.Azimuth + heading))
	el := Radians(ClampElevation(coord.Elevation))
	cosEl := math.Cos(el)
	return r3.Vector{
		X: cosEl * math.Sin(az),
		Y: cosEl * math.Cos(az),
		Z: math.Sin(el),
	}
}

// SphericalFromDirection is the inverse of Direction with zero heading.
func SphericalFromDirection(v r3.Vector) types.SphericalCoordinate {
	n := v.Norm()
	if n == 0 {
		return types.SphericalCoordinate{}
	}
	v = v.Mul(1 / n)
	return types.SphericalCoordinate{
		Azimuth:   NormalizeAzimuth(Degrees(math.Atan2(v.X, v.Y))),
		Elevation: ClampElevation(Degrees(math.Asin(Clamp(v.Z, -1, 1)))),
	}
}
