// Package layout assigns canvas coordinates to stops by rank compression.
//
// Each axis is handled independently. Distinct source values are sorted and
// given integer ranks: a value must rank strictly above every value it is
// linked to (stops consecutive on some bus) and never below a smaller value.
// Ranks are then spread evenly across the canvas. Unlinked stops collapse onto
// shared ranks while linked stops always stay apart.
package layout

import (
	"slices"
	"sort"

	"github.com/azybler/transit_router/pkg/geo"
)

// Point is a canvas position in pixels.
type Point struct {
	X float64
	Y float64
}

// axis holds the compressed ranks for one coordinate.
type axis struct {
	values  []float64 // distinct source values, ascending
	ranks   []int     // rank per value
	targets []float64 // canvas coordinate per value, set by fill
	maxRank int
}

// Compressor maps geographic coordinates to canvas coordinates.
// It is immutable once FillTargets has run.
type Compressor struct {
	lat axis
	lon axis
}

// NewCompressor ranks the given points. links holds index pairs of points that
// must stay visually separated.
func NewCompressor(points []geo.Coordinates, links [][2]int) *Compressor {
	lats := make([]float64, len(points))
	lons := make([]float64, len(points))
	for i, p := range points {
		lats[i] = p.Lat
		lons[i] = p.Lng
	}
	return &Compressor{
		lat: buildAxis(lats, links),
		lon: buildAxis(lons, links),
	}
}

// buildAxis computes ranks for one coordinate. Distinct values are processed
// in ascending order; the rank of a value is the larger of the running maximum
// rank over smaller values and 1 + the highest rank among its smaller linked
// neighbors.
func buildAxis(src []float64, links [][2]int) axis {
	if len(src) == 0 {
		return axis{}
	}

	values := slices.Clone(src)
	slices.Sort(values)
	values = slices.Compact(values)

	valueIdx := func(v float64) int {
		i, _ := slices.BinarySearch(values, v)
		return i
	}

	// For every distinct value, the distinct smaller values it is linked to.
	lesser := make([][]int, len(values))
	for _, l := range links {
		a, b := valueIdx(src[l[0]]), valueIdx(src[l[1]])
		switch {
		case a < b:
			lesser[b] = append(lesser[b], a)
		case b < a:
			lesser[a] = append(lesser[a], b)
		}
	}

	ranks := make([]int, len(values))
	floor := 0
	for i := range values {
		r := floor
		for _, j := range lesser[i] {
			r = max(r, ranks[j]+1)
		}
		ranks[i] = r
		floor = r
	}

	return axis{
		values:  values,
		ranks:   ranks,
		targets: make([]float64, len(values)),
		maxRank: ranks[len(ranks)-1],
	}
}

// fill spreads ranks over [padding, dimension-padding]. With inverse set, rank
// 0 lands at dimension-padding and the highest rank at padding.
func (a *axis) fill(dimension, padding float64, inverse bool) {
	step := 0.0
	if a.maxRank > 0 {
		step = (dimension - 2*padding) / float64(a.maxRank)
	}
	for i, r := range a.ranks {
		offset := float64(r) * step
		if inverse {
			a.targets[i] = dimension - padding - offset
		} else {
			a.targets[i] = padding + offset
		}
	}
}

func (a *axis) lookup(v float64) (int, bool) {
	i := sort.SearchFloat64s(a.values, v)
	if i == len(a.values) || a.values[i] != v {
		return 0, false
	}
	return i, true
}

// FillTargets converts ranks to canvas coordinates. Longitude maps to x from
// left to right; latitude maps to y inversely since the canvas grows downward.
func (c *Compressor) FillTargets(width, height, padding float64) {
	c.lon.fill(width, padding, false)
	c.lat.fill(height, padding, true)
}

// MapLat returns the y coordinate for a latitude seen at construction.
func (c *Compressor) MapLat(v float64) (float64, bool) {
	i, ok := c.lat.lookup(v)
	if !ok {
		return 0, false
	}
	return c.lat.targets[i], true
}

// MapLon returns the x coordinate for a longitude seen at construction.
func (c *Compressor) MapLon(v float64) (float64, bool) {
	i, ok := c.lon.lookup(v)
	if !ok {
		return 0, false
	}
	return c.lon.targets[i], true
}

// Project maps a point seen at construction to the canvas.
func (c *Compressor) Project(p geo.Coordinates) (Point, bool) {
	x, okX := c.MapLon(p.Lng)
	y, okY := c.MapLat(p.Lat)
	return Point{X: x, Y: y}, okX && okY
}

// latRank and lonRank expose ranks to tests.
func (c *Compressor) latRank(v float64) int {
	i, _ := c.lat.lookup(v)
	return c.lat.ranks[i]
}

func (c *Compressor) lonRank(v float64) int {
	i, _ := c.lon.lookup(v)
	return c.lon.ranks[i]
}
