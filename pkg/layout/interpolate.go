package layout

import (
	"github.com/azybler/transit_router/pkg/geo"
	"github.com/azybler/transit_router/pkg/transit"
)

// Positions returns the geographic position of every stop, keyed by name.
// With interpolate set, stops that are not key stops are moved evenly along
// each bus between the surrounding key stops. Key stops are route endpoints,
// stops served by more than one bus and stops one bus visits more than twice.
func Positions(m *transit.Model, interpolate bool) map[string]geo.Coordinates {
	pos := make(map[string]geo.Coordinates, m.NumStops())
	for _, s := range m.Stops() {
		pos[s.Name] = s.Position
	}
	if !interpolate {
		return pos
	}

	key := keyStops(m)
	for _, bus := range m.Buses() {
		seq := bus.Stops
		last := -1
		for i, name := range seq {
			if i != 0 && i != len(seq)-1 && !key[name] {
				continue
			}
			if last >= 0 && i-last > 1 {
				from, to := pos[seq[last]], pos[seq[i]]
				span := float64(i - last)
				for k := last + 1; k < i; k++ {
					pos[seq[k]] = geo.Lerp(from, to, float64(k-last)/span)
				}
			}
			last = i
		}
	}
	return pos
}

func keyStops(m *transit.Model) map[string]bool {
	key := make(map[string]bool)
	for _, s := range m.Stops() {
		if len(s.Buses()) > 1 {
			key[s.Name] = true
		}
	}
	for _, bus := range m.Buses() {
		if len(bus.Stops) == 0 {
			continue
		}
		for _, f := range bus.Finals {
			key[f] = true
		}
		visits := make(map[string]int, len(bus.Stops))
		for _, name := range bus.Stops {
			visits[name]++
			if visits[name] > 2 {
				key[name] = true
			}
		}
	}
	return key
}

// Links returns index pairs of stops that are consecutive on some bus, with
// indices into names.
func Links(m *transit.Model, names []string) [][2]int {
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	seen := make(map[[2]int]struct{})
	var links [][2]int
	for _, bus := range m.Buses() {
		for i := 1; i < len(bus.Stops); i++ {
			a, b := index[bus.Stops[i-1]], index[bus.Stops[i]]
			if a == b {
				continue
			}
			if a > b {
				a, b = b, a
			}
			if _, ok := seen[[2]int{a, b}]; ok {
				continue
			}
			seen[[2]int{a, b}] = struct{}{}
			links = append(links, [2]int{a, b})
		}
	}
	return links
}
