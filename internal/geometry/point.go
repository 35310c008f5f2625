package geometry

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// DefaultRadius is the amenity search radius used when none, or a
// non-positive one, is given.
const DefaultRadius = 1000.0

// NewPoint builds an orb point from latitude and longitude. orb stores
// points as [lon, lat].
func NewPoint(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// EffectiveRadius coerces radius <= 0 to DefaultRadius.
func EffectiveRadius(radius float64) float64 {
	if radius <= 0 {
		return DefaultRadius
	}
	return radius
}

// DistanceMeters is the haversine distance between two points.
func DistanceMeters(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// FormatCoord renders a coordinate or radius with the shortest exact
// representation, so 1000 prints as "1000" and 55.7522 as "55.7522".
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
