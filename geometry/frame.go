package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
)

// LocalFrame converts geographic positions to metres in an east-north-up
// frame anchored at Origin. It uses an equirectangular approximation, which
// is accurate enough across a single capture cell.
type LocalFrame struct {
	Origin   orb.Point
	Altitude float64
}

// NewLocalFrame anchors a frame at the given position.
func NewLocalFrame(origin orb.Point, altitude float64) LocalFrame {
	return LocalFrame{Origin: origin, Altitude: altitude}
}

// ToLocal returns the ENU offset of p from the frame origin.
func (f LocalFrame) ToLocal(p orb.Point, altitude float64) r3.Vector {
	cosLat := math.Cos(Radians(f.Origin.Lat()))
	return r3.Vector{
		X: Radians(p.Lon()-f.Origin.Lon()) * orb.EarthRadius * cosLat,
		Y: Radians(p.Lat()-f.Origin.Lat()) * orb.EarthRadius,
		Z: altitude - f.Altitude,
	}
}

// ToGeo is the inverse of ToLocal.
func (f LocalFrame) ToGeo(v r3.Vector) (orb.Point, float64) {
	cosLat := math.Cos(Radians(f.Origin.Lat()))
	lon := f.Origin.Lon()
	if cosLat > 1e-12 {
		lon += Degrees(v.X / (orb.EarthRadius * cosLat))
	}
	lat := f.Origin.Lat() + Degrees(v.Y/orb.EarthRadius)
	return orb.Point{lon, lat}, f.Altitude + v.Z
}
