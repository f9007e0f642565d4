package routing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/azybler/transit_router/pkg/graph"
	"github.com/azybler/transit_router/pkg/transit"
)

// ErrNoRoute is returned when no route exists between the two stops.
var ErrNoRoute = errors.New("no route found")

// minRideStops is the distinct-stop count below which a bus adds no ride edges.
const minRideStops = 3

// Settings configures travel times.
type Settings struct {
	BusWaitTime float64 `json:"bus_wait_time"` // minutes
	BusVelocity float64 `json:"bus_velocity"`  // km/h
}

// Validate rejects a negative wait time or a non-positive velocity.
func (s Settings) Validate() error {
	if s.BusWaitTime < 0 {
		return fmt.Errorf("bus_wait_time must not be negative, got %v", s.BusWaitTime)
	}
	if s.BusVelocity <= 0 {
		return fmt.Errorf("bus_velocity must be positive, got %v", s.BusVelocity)
	}
	return nil
}

// metersPerMinute converts the configured velocity.
func (s Settings) metersPerMinute() float64 {
	return s.BusVelocity * 1000 / 60
}

// LegKind distinguishes waiting from riding.
type LegKind uint8

const (
	LegWait LegKind = iota
	LegRide
)

func (k LegKind) String() string {
	if k == LegWait {
		return "Wait"
	}
	return "Bus"
}

// Leg is one step of a route: waiting at Stop, or riding Bus for SpanCount stops.
type Leg struct {
	Kind      LegKind
	Stop      string // wait legs
	Bus       string // ride legs
	SpanCount int    // ride legs
	Minutes   float64
}

// Route is the output of a route query.
type Route struct {
	TotalMinutes float64
	Legs         []Leg
}

// Router answers minimum-time queries between stops.
type Router interface {
	FindRoute(from, to string) (*Route, bool)
}

// Engine implements Router over a two-vertex-per-stop graph:
// boarding(i) = 2i, riding(i) = 2i+1.
type Engine struct {
	settings Settings
	g        *graph.Graph

	stops     []string // stop names by stop index
	stopIndex map[string]uint32
	buses     []string // bus names by bus index

	components []uint32 // weak component label per vertex

	pool     sync.Pool
	inFlight atomic.Int64
}

func boarding(stop uint32) uint32 { return 2 * stop }
func riding(stop uint32) uint32   { return 2*stop + 1 }
func stopOf(vertex uint32) uint32 { return vertex / 2 }

// NewEngine builds the routing graph from a frozen model.
func NewEngine(m *transit.Model, s Settings) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !m.Frozen() {
		return nil, errors.New("routing: model is still in its build phase")
	}

	e := newEngine(m, s)
	b := graph.NewBuilder(2 * uint32(len(e.stops)))

	// Step 1: wait edges.
	for i := range e.stops {
		b.AddEdge(graph.Edge{
			From:   boarding(uint32(i)),
			To:     riding(uint32(i)),
			Weight: s.BusWaitTime,
			Bus:    graph.NoBus,
		})
	}

	// Step 2: ride edges, one per (start, end) pair along each bus.
	speed := s.metersPerMinute()
	for busID, bus := range m.Buses() {
		if bus.UniqueStopCount < minRideStops {
			log.Debug("Bus adds no ride edges", "bus", bus.Name, "unique_stops", bus.UniqueStopCount)
			continue
		}
		for i := 0; i < len(bus.Stops); i++ {
			from := e.stopIndex[bus.Stops[i]]
			distance := 0
			for j := i + 1; j < len(bus.Stops); j++ {
				d, err := m.StopDistance(bus.Stops[j-1], bus.Stops[j])
				if err != nil {
					return nil, fmt.Errorf("bus %q: %w", bus.Name, err)
				}
				distance += d
				b.AddEdge(graph.Edge{
					From:   riding(from),
					To:     boarding(e.stopIndex[bus.Stops[j]]),
					Weight: float64(distance) / speed,
					Bus:    int32(busID),
					Span:   uint32(j - i),
				})
			}
		}
	}

	e.setGraph(b.Build())
	log.Debug("Routing graph built", "vertices", e.g.NumVertices, "edges", e.g.NumEdges())
	return e, nil
}

// RestoreEngine rebuilds an engine from a persisted edge list without
// re-running ride-edge expansion. Bus indices refer to m.Buses() order.
func RestoreEngine(m *transit.Model, s Settings, edges []graph.Edge) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !m.Frozen() {
		return nil, errors.New("routing: model is still in its build phase")
	}
	e := newEngine(m, s)
	n := 2 * uint32(len(e.stops))
	for i, edge := range edges {
		if edge.From >= n || edge.To >= n {
			return nil, fmt.Errorf("restore graph: edge %d: %d->%d out of range (%d vertices)", i, edge.From, edge.To, n)
		}
	}
	g := graph.Build(n, edges)
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("restore graph: %w", err)
	}
	for i, edge := range g.Edges {
		if edge.Bus != graph.NoBus && (edge.Bus < 0 || int(edge.Bus) >= len(e.buses)) {
			return nil, fmt.Errorf("restore graph: edge %d references bus %d of %d", i, edge.Bus, len(e.buses))
		}
	}
	e.setGraph(g)
	return e, nil
}

func newEngine(m *transit.Model, s Settings) *Engine {
	names := m.StopNames()
	e := &Engine{
		settings:  s,
		stops:     names,
		stopIndex: make(map[string]uint32, len(names)),
	}
	for i, n := range names {
		e.stopIndex[n] = uint32(i)
	}
	for _, b := range m.Buses() {
		e.buses = append(e.buses, b.Name)
	}
	return e
}

func (e *Engine) setGraph(g *graph.Graph) {
	e.g = g
	var count uint32
	e.components, count = graph.Components(g)
	log.Debug("Graph components", "count", count, "largest", graph.LargestComponentSize(e.components, count))
	n := g.NumVertices
	e.pool.New = func() any { return NewQueryState(n) }
}

// Settings returns the travel-time settings the engine was built with.
func (e *Engine) Settings() Settings { return e.settings }

// Edges returns the edge arena for persistence. Callers must not modify it.
func (e *Engine) Edges() []graph.Edge { return e.g.Edges }

// Stats reports graph size.
func (e *Engine) Stats() (vertices, edges uint32) {
	return e.g.NumVertices, e.g.NumEdges()
}

// InFlight returns the number of query states currently checked out.
func (e *Engine) InFlight() int64 { return e.inFlight.Load() }

func (e *Engine) acquire() *QueryState {
	e.inFlight.Add(1)
	return e.pool.Get().(*QueryState)
}

func (e *Engine) release(qs *QueryState) {
	qs.Reset()
	e.pool.Put(qs)
	e.inFlight.Add(-1)
}

// FindRoute computes the minimum-time route between two stops. The second
// result is false if either stop is unknown or the target is unreachable.
func (e *Engine) FindRoute(from, to string) (*Route, bool) {
	src, ok := e.stopIndex[from]
	if !ok {
		return nil, false
	}
	dst, ok := e.stopIndex[to]
	if !ok {
		return nil, false
	}
	if src == dst {
		return &Route{}, true
	}

	source, target := boarding(src), boarding(dst)
	if e.components[source] != e.components[target] {
		return nil, false
	}

	qs := e.acquire()
	defer e.release(qs)

	if !shortestPath(e.g, qs, source, target) {
		return nil, false
	}

	ids := pathEdges(e.g, qs, source, target)
	route := &Route{
		TotalMinutes: qs.Dist[target],
		Legs:         make([]Leg, 0, len(ids)),
	}
	for _, id := range ids {
		route.Legs = append(route.Legs, e.leg(e.g.Edge(id)))
	}
	return route, true
}

func (e *Engine) leg(edge graph.Edge) Leg {
	if edge.IsWait() {
		return Leg{
			Kind:    LegWait,
			Stop:    e.stops[stopOf(edge.From)],
			Minutes: edge.Weight,
		}
	}
	return Leg{
		Kind:      LegRide,
		Bus:       e.buses[edge.Bus],
		SpanCount: int(edge.Span),
		Minutes:   edge.Weight,
	}
}
