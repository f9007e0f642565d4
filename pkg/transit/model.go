// Package transit holds the immutable stop and bus records of a transit network.
//
// A Model is populated during a build phase (AddStop, then AddBus) and frozen
// with Freeze. After that it is read-only and safe for concurrent readers.
package transit

import (
	"slices"
	"sort"

	"github.com/azybler/transit_router/pkg/errors"
	"github.com/azybler/transit_router/pkg/geo"
)

// Stop is a named stop with its forward road distances to neighbor stops.
type Stop struct {
	Name      string
	Position  geo.Coordinates
	Distances map[string]int // neighbor name → forward road distance in meters

	buses []string // sorted names of buses visiting this stop
}

// Buses returns the sorted names of the buses visiting s.
func (s *Stop) Buses() []string {
	return s.buses
}

// BusRoute is the input description of a bus.
type BusRoute struct {
	Name        string
	Stops       []string // as listed: full cycle for a roundtrip, one direction otherwise
	IsRoundtrip bool
}

// Bus is a registered bus with its expanded stop sequence and cached aggregates.
type Bus struct {
	Name        string
	IsRoundtrip bool
	Stops       []string // physical travel order; a linear route is expanded to A,B,C,B,A
	Finals      []string // endpoint stops used for labels (one for a roundtrip or a symmetric line)

	StopCount       int
	UniqueStopCount int
	RouteLength     int     // road distance in meters
	GeoLength       float64 // great-circle distance in meters
}

// Curvature is the ratio of road length to great-circle length.
func (b *Bus) Curvature() float64 {
	if b.GeoLength == 0 {
		return 0
	}
	return float64(b.RouteLength) / b.GeoLength
}

// Route returns the stop list as originally given to AddBus.
func (b *Bus) Route() BusRoute {
	stops := b.Stops
	if !b.IsRoundtrip {
		stops = stops[:(len(stops)+1)/2]
	}
	return BusRoute{Name: b.Name, Stops: slices.Clone(stops), IsRoundtrip: b.IsRoundtrip}
}

// Model stores stops and buses.
type Model struct {
	stops  map[string]*Stop
	buses  map[string]*Bus
	frozen bool

	stopOrder []string
	busOrder  []string
}

// NewModel returns an empty model in its build phase.
func NewModel() *Model {
	return &Model{
		stops: make(map[string]*Stop),
		buses: make(map[string]*Bus),
	}
}

// AddStop inserts or overwrites a stop.
func (m *Model) AddStop(name string, pos geo.Coordinates, distances map[string]int) error {
	if m.frozen {
		return errors.New(errors.ErrCodeModelFrozen, "add stop %q after build", name)
	}
	if name == "" {
		return errors.New(errors.ErrCodeInvalidInput, "stop name is empty")
	}
	d := make(map[string]int, len(distances))
	for k, v := range distances {
		if v < 0 {
			return errors.New(errors.ErrCodeInvalidInput, "negative distance %q -> %q", name, k)
		}
		d[k] = v
	}
	var buses []string
	if prev, ok := m.stops[name]; ok {
		buses = prev.buses
	} else {
		m.stopOrder = nil
	}
	m.stops[name] = &Stop{Name: name, Position: pos, Distances: d, buses: buses}
	return nil
}

// AddBus registers a bus, computes its aggregates and back-registers the bus
// into every visited stop. All referenced stops and distances must exist.
func (m *Model) AddBus(route BusRoute) (*Bus, error) {
	if m.frozen {
		return nil, errors.New(errors.ErrCodeModelFrozen, "add bus %q after build", route.Name)
	}
	if route.Name == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "bus name is empty")
	}
	if _, ok := m.buses[route.Name]; ok {
		return nil, errors.New(errors.ErrCodeDuplicate, "bus %q already registered", route.Name)
	}
	for _, name := range route.Stops {
		if _, ok := m.stops[name]; !ok {
			return nil, errors.New(errors.ErrCodeUnknownStop, "bus %q references unknown stop %q", route.Name, name)
		}
	}

	bus := &Bus{
		Name:        route.Name,
		IsRoundtrip: route.IsRoundtrip,
		Stops:       ExpandStops(route.Stops, route.IsRoundtrip),
		Finals:      finals(route.Stops, route.IsRoundtrip),
	}

	unique := make(map[string]struct{}, len(bus.Stops))
	for i, name := range bus.Stops {
		unique[name] = struct{}{}
		if i == 0 {
			continue
		}
		prev := bus.Stops[i-1]
		d, err := m.StopDistance(prev, name)
		if err != nil {
			return nil, err
		}
		bus.RouteLength += d
		bus.GeoLength += geo.Distance(m.stops[prev].Position, m.stops[name].Position)
	}
	bus.StopCount = len(bus.Stops)
	bus.UniqueStopCount = len(unique)

	m.buses[bus.Name] = bus
	m.busOrder = nil
	for name := range unique {
		s := m.stops[name]
		i, _ := slices.BinarySearch(s.buses, bus.Name)
		s.buses = slices.Insert(s.buses, i, bus.Name)
	}
	return bus, nil
}

// StopDistance returns the forward road distance a→b, falling back to b→a.
func (m *Model) StopDistance(a, b string) (int, error) {
	sa, ok := m.stops[a]
	if !ok {
		return 0, errors.New(errors.ErrCodeUnknownStop, "unknown stop %q", a)
	}
	if d, ok := sa.Distances[b]; ok {
		return d, nil
	}
	sb, ok := m.stops[b]
	if !ok {
		return 0, errors.New(errors.ErrCodeUnknownStop, "unknown stop %q", b)
	}
	if d, ok := sb.Distances[a]; ok {
		return d, nil
	}
	return 0, errors.New(errors.ErrCodeMissingDistance, "no road distance between %q and %q", a, b)
}

// Freeze ends the build phase. Further AddStop/AddBus calls fail.
func (m *Model) Freeze() {
	m.frozen = true
	m.ensureOrder()
}

// Frozen reports whether the build phase has ended.
func (m *Model) Frozen() bool { return m.frozen }

// Stop looks up a stop by name.
func (m *Model) Stop(name string) (*Stop, bool) {
	s, ok := m.stops[name]
	return s, ok
}

// Bus looks up a bus by name.
func (m *Model) Bus(name string) (*Bus, bool) {
	b, ok := m.buses[name]
	return b, ok
}

// StopNames returns all stop names sorted.
func (m *Model) StopNames() []string {
	m.ensureOrder()
	return m.stopOrder
}

// Stops returns all stops sorted by name.
func (m *Model) Stops() []*Stop {
	names := m.StopNames()
	out := make([]*Stop, len(names))
	for i, n := range names {
		out[i] = m.stops[n]
	}
	return out
}

// Buses returns all buses sorted by name.
func (m *Model) Buses() []*Bus {
	m.ensureOrder()
	out := make([]*Bus, len(m.busOrder))
	for i, n := range m.busOrder {
		out[i] = m.buses[n]
	}
	return out
}

// NumStops returns the number of stops.
func (m *Model) NumStops() int { return len(m.stops) }

// NumBuses returns the number of buses.
func (m *Model) NumBuses() int { return len(m.buses) }

// ensureOrder rebuilds the sorted name indexes. It only mutates during the
// build phase: Freeze leaves both orders populated.
func (m *Model) ensureOrder() {
	if m.stopOrder == nil && len(m.stops) > 0 {
		m.stopOrder = make([]string, 0, len(m.stops))
		for n := range m.stops {
			m.stopOrder = append(m.stopOrder, n)
		}
		sort.Strings(m.stopOrder)
	}
	if m.busOrder == nil && len(m.buses) > 0 {
		m.busOrder = make([]string, 0, len(m.buses))
		for n := range m.buses {
			m.busOrder = append(m.busOrder, n)
		}
		sort.Strings(m.busOrder)
	}
}

// ExpandStops returns the physical travel order of a route. A linear route
// A,B,C becomes the round trip A,B,C,B,A.
func ExpandStops(stops []string, isRoundtrip bool) []string {
	if isRoundtrip || len(stops) < 2 {
		return slices.Clone(stops)
	}
	out := make([]string, 0, 2*len(stops)-1)
	out = append(out, stops...)
	for i := len(stops) - 2; i >= 0; i-- {
		out = append(out, stops[i])
	}
	return out
}

func finals(stops []string, isRoundtrip bool) []string {
	if len(stops) == 0 {
		return nil
	}
	first, last := stops[0], stops[len(stops)-1]
	if isRoundtrip || first == last {
		return []string{first}
	}
	return []string{first, last}
}
