package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const earthRadiusMeters = 6_371_000.0

// Coordinates is a geographic position in degrees.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Point converts c to an orb point (X = longitude, Y = latitude).
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// FromPoint converts an orb point back to Coordinates.
func FromPoint(p orb.Point) Coordinates {
	return Coordinates{Lat: p.Lat(), Lng: p.Lon()}
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Coordinates) float64 {
	if a == b {
		return 0
	}
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// EquirectangularDist returns an approximate distance in meters.
// Accurate to well under 1% at city scale; use for candidate comparisons only.
func EquirectangularDist(lat1, lon1, lat2, lon2 float64) float64 {
	x := (lon2 - lon1) * math.Cos((lat1+lat2)/2*math.Pi/180) * math.Pi / 180
	y := (lat2 - lat1) * math.Pi / 180
	return math.Sqrt(x*x+y*y) * earthRadiusMeters
}

// MetersToDegrees converts a distance in meters to degrees of latitude.
func MetersToDegrees(m float64) float64 {
	return m / (math.Pi / 180 * earthRadiusMeters)
}

// Lerp returns the point at fraction t along the straight segment a→b.
func Lerp(a, b Coordinates, t float64) Coordinates {
	return Coordinates{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}
