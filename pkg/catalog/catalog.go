// Package catalog ties a frozen transit model to its router, nearest-stop
// index and map layout. A Catalog is immutable and safe for concurrent use.
package catalog

import (
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/azybler/transit_router/pkg/errors"
	"github.com/azybler/transit_router/pkg/geo"
	"github.com/azybler/transit_router/pkg/graph"
	"github.com/azybler/transit_router/pkg/layout"
	"github.com/azybler/transit_router/pkg/render"
	"github.com/azybler/transit_router/pkg/routing"
	"github.com/azybler/transit_router/pkg/transit"
)

// StopInfo answers a stop query.
type StopInfo struct {
	Name  string
	Buses []string // sorted; empty for a stop no bus visits
}

// BusInfo answers a bus query.
type BusInfo struct {
	Name            string
	StopCount       int
	UniqueStopCount int
	RouteLength     int // meters
	Curvature       float64
}

// Stats summarizes catalog size.
type Stats struct {
	Stops    int    `json:"stops"`
	Buses    int    `json:"buses"`
	Vertices uint32 `json:"vertices"`
	Edges    uint32 `json:"edges"`
}

// Catalog answers stop, bus, route and map queries.
type Catalog struct {
	model  *transit.Model
	router *routing.Engine
	index  *routing.StopIndex
	style  render.Settings
	layout render.Map
	svg    []byte
}

// New builds the routing graph and map layout for a frozen model.
func New(m *transit.Model, rs routing.Settings, vs render.Settings) (*Catalog, error) {
	start := time.Now()
	router, err := routing.NewEngine(m, rs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "build router")
	}
	c, err := Restore(m, router, vs)
	if err != nil {
		return nil, err
	}
	v, e := router.Stats()
	log.Info("Catalog built", "stops", m.NumStops(), "buses", m.NumBuses(),
		"vertices", v, "edges", e, "elapsed", time.Since(start).Round(time.Millisecond))
	return c, nil
}

// Restore assembles a catalog around an existing router, as loaded from a
// snapshot.
func Restore(m *transit.Model, router *routing.Engine, vs render.Settings) (*Catalog, error) {
	if !m.Frozen() {
		return nil, errors.New(errors.ErrCodeInvalidInput, "model is still in its build phase")
	}
	if err := vs.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "render settings")
	}
	c := &Catalog{
		model:  m,
		router: router,
		index:  routing.NewStopIndex(m),
		style:  vs,
	}
	c.layout = buildLayout(m, vs)
	c.svg = render.SVG(c.layout, vs)
	return c, nil
}

// Model returns the underlying model. Callers must not modify it.
func (c *Catalog) Model() *transit.Model { return c.model }

// Snapshot is the persisted form of a catalog's routing graph.
type Snapshot struct {
	Routing routing.Settings
	Render  render.Settings
	Edges   []graph.Edge
}

// Snapshot returns a copy of the built routing graph for persistence.
// Vertex ids in Edges are only meaningful to routing.RestoreEngine.
func (c *Catalog) Snapshot() Snapshot {
	return Snapshot{
		Routing: c.router.Settings(),
		Render:  c.style,
		Edges:   slices.Clone(c.router.Edges()),
	}
}

// InFlight returns the number of route searches currently running.
func (c *Catalog) InFlight() int64 { return c.router.InFlight() }

// RoutingSettings returns the settings the router was built with.
func (c *Catalog) RoutingSettings() routing.Settings { return c.router.Settings() }

// RenderSettings returns the map style.
func (c *Catalog) RenderSettings() render.Settings { return c.style }

// GetStop returns the buses visiting a stop.
func (c *Catalog) GetStop(name string) (StopInfo, bool) {
	s, ok := c.model.Stop(name)
	if !ok {
		return StopInfo{}, false
	}
	return StopInfo{Name: s.Name, Buses: slices.Clone(s.Buses())}, true
}

// GetBus returns the aggregates of a bus.
func (c *Catalog) GetBus(name string) (BusInfo, bool) {
	b, ok := c.model.Bus(name)
	if !ok {
		return BusInfo{}, false
	}
	return BusInfo{
		Name:            b.Name,
		StopCount:       b.StopCount,
		UniqueStopCount: b.UniqueStopCount,
		RouteLength:     b.RouteLength,
		Curvature:       b.Curvature(),
	}, true
}

// FindRoute returns the minimum-time route between two stops.
func (c *Catalog) FindRoute(from, to string) (*routing.Route, bool) {
	return c.router.FindRoute(from, to)
}

// NearestStop returns the stop closest to a point. A non-positive maxMeters
// means no limit.
func (c *Catalog) NearestStop(lat, lng, maxMeters float64) (routing.NearestResult, error) {
	return c.index.Nearest(lat, lng, maxMeters)
}

// RenderMap returns the laid-out map.
func (c *Catalog) RenderMap() render.Map { return c.layout }

// MapSVG returns the rendered map document. Callers must not modify it.
func (c *Catalog) MapSVG() []byte { return c.svg }

// Stats reports catalog size.
func (c *Catalog) Stats() Stats {
	v, e := c.router.Stats()
	return Stats{
		Stops:    c.model.NumStops(),
		Buses:    c.model.NumBuses(),
		Vertices: v,
		Edges:    e,
	}
}

// buildLayout compresses the positions of served stops onto the canvas and
// projects bus polylines, endpoint labels and stop marks.
func buildLayout(m *transit.Model, vs render.Settings) render.Map {
	var names []string
	for _, s := range m.Stops() {
		if len(s.Buses()) > 0 {
			names = append(names, s.Name)
		}
	}

	positions := layout.Positions(m, vs.Interpolate)
	points := make([]geo.Coordinates, len(names))
	for i, n := range names {
		points[i] = positions[n]
	}
	comp := layout.NewCompressor(points, layout.Links(m, names))
	comp.FillTargets(vs.Width, vs.Height, vs.Padding)

	project := func(name string) layout.Point {
		p, ok := comp.Project(positions[name])
		if !ok {
			panic("catalog: stop " + name + " missing from layout")
		}
		return p
	}

	var out render.Map
	drawn := 0
	for _, b := range m.Buses() {
		if len(b.Stops) == 0 {
			continue
		}
		line := render.BusLine{
			Name:   b.Name,
			Color:  vs.PaletteColor(drawn),
			Points: make([]layout.Point, len(b.Stops)),
		}
		for i, s := range b.Stops {
			line.Points[i] = project(s)
		}
		for _, f := range b.Finals {
			line.Labels = append(line.Labels, project(f))
		}
		out.Buses = append(out.Buses, line)
		drawn++
	}
	for _, n := range names {
		out.Stops = append(out.Stops, render.StopMark{Name: n, Point: project(n)})
	}
	return out
}
