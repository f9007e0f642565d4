package routing

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"

	"github.com/azybler/transit_router/pkg/geo"
	"github.com/azybler/transit_router/pkg/transit"
)

// initialSearchDeg is the first search box half-size, roughly 550 m.
const initialSearchDeg = 0.005

// ErrPointTooFar is returned when no stop lies within the search limit.
var ErrPointTooFar = errors.New("point too far from any stop")

// NearestResult is a stop found by StopIndex.Nearest.
type NearestResult struct {
	Stop           string
	DistanceMeters float64
}

// StopIndex answers nearest-stop queries over an R-tree of stop positions.
// It is read-only after construction.
type StopIndex struct {
	tr    rtree.RTreeG[uint32]
	names []string
	pos   []geo.Coordinates
}

// NewStopIndex indexes every stop of the model.
func NewStopIndex(m *transit.Model) *StopIndex {
	stops := m.Stops()
	idx := &StopIndex{
		names: make([]string, len(stops)),
		pos:   make([]geo.Coordinates, len(stops)),
	}
	for i, s := range stops {
		idx.names[i] = s.Name
		idx.pos[i] = s.Position
		pt := [2]float64{s.Position.Lng, s.Position.Lat}
		idx.tr.Insert(pt, pt, uint32(i))
	}
	return idx
}

// Len returns the number of indexed stops.
func (s *StopIndex) Len() int { return len(s.names) }

// Nearest finds the closest stop to (lat, lng) within maxMeters.
// A non-positive maxMeters means no limit.
func (s *StopIndex) Nearest(lat, lng, maxMeters float64) (NearestResult, error) {
	if len(s.names) == 0 {
		return NearestResult{}, ErrPointTooFar
	}

	radius := initialSearchDeg
	limit := 180.0
	if maxMeters > 0 {
		limit = geo.MetersToDegrees(maxMeters)
		radius = min(radius, limit)
	}

	for {
		best, bestDist := s.searchBox(lat, lng, radius)
		if best >= 0 {
			// Anything closer than bestDist lies inside a box of that radius.
			covered := geo.MetersToDegrees(bestDist)
			if covered > radius {
				best, bestDist = s.searchBox(lat, lng, covered*1.01)
			}
			if maxMeters > 0 && bestDist > maxMeters {
				return NearestResult{}, ErrPointTooFar
			}
			return NearestResult{Stop: s.names[best], DistanceMeters: bestDist}, nil
		}
		if radius >= limit {
			return NearestResult{}, ErrPointTooFar
		}
		radius = min(radius*2, limit)
	}
}

// searchBox scans stops inside a box of half-size radius degrees of latitude
// (widened in longitude by the latitude's cosine) and returns the closest one.
func (s *StopIndex) searchBox(lat, lng, radius float64) (int, float64) {
	cosLat := math.Max(math.Cos(lat*math.Pi/180), 0.01)
	lngRadius := radius / cosLat

	best := -1
	bestDist := math.Inf(1)
	s.tr.Search(
		[2]float64{lng - lngRadius, lat - radius},
		[2]float64{lng + lngRadius, lat + radius},
		func(_, _ [2]float64, i uint32) bool {
			p := s.pos[i]
			d := geo.EquirectangularDist(lat, lng, p.Lat, p.Lng)
			if d < bestDist || (d == bestDist && s.names[i] < s.names[best]) {
				best = int(i)
				bestDist = d
			}
			return true
		},
	)
	return best, bestDist
}
