package routing

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/azybler/transit_router/pkg/geo"
	"github.com/azybler/transit_router/pkg/graph"
	"github.com/azybler/transit_router/pkg/transit"
)

type testStop struct {
	name      string
	lat, lng  float64
	distances map[string]int
}

func buildModel(t testing.TB, stops []testStop, buses []transit.BusRoute) *transit.Model {
	t.Helper()
	m := transit.NewModel()
	for _, s := range stops {
		if err := m.AddStop(s.name, geo.Coordinates{Lat: s.lat, Lng: s.lng}, s.distances); err != nil {
			t.Fatalf("AddStop(%s): %v", s.name, err)
		}
	}
	for _, b := range buses {
		if _, err := m.AddBus(b); err != nil {
			t.Fatalf("AddBus(%s): %v", b.Name, err)
		}
	}
	m.Freeze()
	return m
}

// buildLineEngine: A(0,0) - B(0,0.01) - C(0,0.02), bus "1" A>B>C>B>A.
func buildLineEngine(t testing.TB) *Engine {
	t.Helper()
	m := buildModel(t,
		[]testStop{
			{"A", 0, 0, map[string]int{"B": 1000}},
			{"B", 0, 0.01, map[string]int{"C": 1000}},
			{"C", 0, 0.02, nil},
		},
		[]transit.BusRoute{{Name: "1", Stops: []string{"A", "B", "C", "B", "A"}, IsRoundtrip: true}},
	)
	e, err := NewEngine(m, Settings{BusWaitTime: 5, BusVelocity: 60})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestFindRouteScenario(t *testing.T) {
	e := buildLineEngine(t)

	route, ok := e.FindRoute("A", "C")
	if !ok {
		t.Fatal("FindRoute(A, C) found no route")
	}
	if math.Abs(route.TotalMinutes-7) > 1e-9 {
		t.Errorf("TotalMinutes = %f, want 7", route.TotalMinutes)
	}
	if len(route.Legs) != 2 {
		t.Fatalf("len(Legs) = %d, want 2: %+v", len(route.Legs), route.Legs)
	}

	wait := route.Legs[0]
	if wait.Kind != LegWait || wait.Stop != "A" || wait.Minutes != 5 {
		t.Errorf("leg 0 = %+v, want wait at A for 5", wait)
	}
	ride := route.Legs[1]
	if ride.Kind != LegRide || ride.Bus != "1" || ride.SpanCount != 2 || math.Abs(ride.Minutes-2) > 1e-9 {
		t.Errorf("leg 1 = %+v, want ride 1 span 2 for 2", ride)
	}
}

func TestFindRouteSameStop(t *testing.T) {
	e := buildLineEngine(t)
	for _, s := range []string{"A", "B", "C"} {
		route, ok := e.FindRoute(s, s)
		if !ok {
			t.Fatalf("FindRoute(%s, %s) not found", s, s)
		}
		if route.TotalMinutes != 0 || len(route.Legs) != 0 {
			t.Errorf("FindRoute(%s, %s) = %+v, want empty route", s, s, route)
		}
	}
}

func TestFindRouteUnknownStop(t *testing.T) {
	e := buildLineEngine(t)
	if _, ok := e.FindRoute("A", "Nowhere"); ok {
		t.Error("route to unknown stop reported found")
	}
	if _, ok := e.FindRoute("Nowhere", "A"); ok {
		t.Error("route from unknown stop reported found")
	}
}

func TestFindRouteUnreachable(t *testing.T) {
	m := buildModel(t,
		[]testStop{
			{"A", 0, 0, map[string]int{"B": 500}},
			{"B", 0, 0.01, map[string]int{"C": 500}},
			{"C", 0, 0.02, nil},
			{"D", 1, 1, map[string]int{"E": 500}},
			{"E", 1, 1.01, map[string]int{"F": 500}},
			{"F", 1, 1.02, nil},
		},
		[]transit.BusRoute{
			{Name: "x", Stops: []string{"A", "B", "C"}},
			{Name: "y", Stops: []string{"D", "E", "F"}},
		},
	)
	e, err := NewEngine(m, Settings{BusWaitTime: 2, BusVelocity: 30})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.FindRoute("A", "F"); ok {
		t.Error("route across disconnected components reported found")
	}
	if e.InFlight() != 0 {
		t.Errorf("InFlight = %d after query, want 0", e.InFlight())
	}
}

func TestFindRouteNoDirectedPath(t *testing.T) {
	// Circular bus A>B>C without a return leg: C is weakly connected to A
	// but has no outgoing ride, so the search runs and fails.
	m := buildModel(t,
		[]testStop{
			{"A", 0, 0, map[string]int{"B": 500}},
			{"B", 0, 0.01, map[string]int{"C": 500}},
			{"C", 0, 0.02, nil},
		},
		[]transit.BusRoute{{Name: "ring", Stops: []string{"A", "B", "C"}, IsRoundtrip: true}},
	)
	e, err := NewEngine(m, Settings{BusWaitTime: 2, BusVelocity: 30})
	if err != nil {
		t.Fatal(err)
	}
	if e.components[boarding(0)] != e.components[boarding(2)] {
		t.Fatal("A and C should share a weak component")
	}

	for range 3 {
		route, ok := e.FindRoute("C", "A")
		if ok || route != nil {
			t.Errorf("FindRoute(C, A) = %+v, %v; want nil, false", route, ok)
		}
		if e.InFlight() != 0 {
			t.Errorf("InFlight = %d after failed search, want 0", e.InFlight())
		}
	}
	if _, ok := e.FindRoute("A", "C"); !ok {
		t.Error("FindRoute(A, C) after failed searches found no route")
	}
}

func TestFindRouteOneWayRoundtrip(t *testing.T) {
	// Circular bus A>B>C>A: C→B must go around through A.
	m := buildModel(t,
		[]testStop{
			{"A", 0, 0, map[string]int{"B": 600}},
			{"B", 0, 0.01, map[string]int{"C": 600}},
			{"C", 0.01, 0.01, map[string]int{"A": 600}},
		},
		[]transit.BusRoute{{Name: "ring", Stops: []string{"A", "B", "C", "A"}, IsRoundtrip: true}},
	)
	e, err := NewEngine(m, Settings{BusWaitTime: 1, BusVelocity: 36}) // 600 m/min
	if err != nil {
		t.Fatal(err)
	}
	route, ok := e.FindRoute("C", "B")
	if !ok {
		t.Fatal("no route C→B")
	}
	// The sequence ends at A, so C→B transfers there: wait, ride, wait, ride.
	if math.Abs(route.TotalMinutes-4) > 1e-9 {
		t.Errorf("TotalMinutes = %f, want 4: %+v", route.TotalMinutes, route.Legs)
	}
	if len(route.Legs) != 4 {
		t.Errorf("len(Legs) = %d, want 4", len(route.Legs))
	}
}

func TestShortBusAddsNoRideEdges(t *testing.T) {
	m := buildModel(t,
		[]testStop{
			{"A", 0, 0, map[string]int{"B": 1000}},
			{"B", 0, 0.01, nil},
		},
		[]transit.BusRoute{{Name: "shuttle", Stops: []string{"A", "B"}}},
	)
	e, err := NewEngine(m, Settings{BusWaitTime: 5, BusVelocity: 60})
	if err != nil {
		t.Fatal(err)
	}
	vertices, edges := e.Stats()
	if vertices != 4 || edges != 2 {
		t.Errorf("Stats = %d vertices, %d edges; want 4, 2 (wait edges only)", vertices, edges)
	}
	if _, ok := e.FindRoute("A", "B"); ok {
		t.Error("route over a two-stop bus reported found")
	}
}

func TestNewEngineRejectsUnfrozenModel(t *testing.T) {
	m := transit.NewModel()
	if _, err := NewEngine(m, Settings{BusWaitTime: 1, BusVelocity: 1}); err == nil {
		t.Error("expected error for unfrozen model")
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"valid", Settings{BusWaitTime: 6, BusVelocity: 40}, false},
		{"zero wait", Settings{BusWaitTime: 0, BusVelocity: 40}, false},
		{"negative wait", Settings{BusWaitTime: -1, BusVelocity: 40}, true},
		{"zero velocity", Settings{BusWaitTime: 6, BusVelocity: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// buildGridModel creates a network of crossing lines with a few transfers.
func buildGridModel(t testing.TB) *transit.Model {
	t.Helper()
	var stops []testStop
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			stops = append(stops, testStop{
				name:      fmt.Sprintf("S%d%d", r, c),
				lat:       float64(r) * 0.01,
				lng:       float64(c) * 0.01,
				distances: map[string]int{},
			})
		}
	}
	byName := make(map[string]*testStop)
	for i := range stops {
		byName[stops[i].name] = &stops[i]
	}
	link := func(a, b string, d int) { byName[a].distances[b] = d }

	var buses []transit.BusRoute
	for r := 0; r < 4; r++ {
		var seq []string
		for c := 0; c < 4; c++ {
			seq = append(seq, fmt.Sprintf("S%d%d", r, c))
			if c > 0 {
				link(seq[c-1], seq[c], 700+100*r+37*c)
			}
		}
		buses = append(buses, transit.BusRoute{Name: fmt.Sprintf("row%d", r), Stops: seq})
	}
	for c := 0; c < 4; c++ {
		var seq []string
		for r := 0; r < 4; r++ {
			seq = append(seq, fmt.Sprintf("S%d%d", r, c))
			if r > 0 {
				link(seq[r-1], seq[r], 900+50*c)
			}
		}
		buses = append(buses, transit.BusRoute{Name: fmt.Sprintf("col%d", c), Stops: seq})
	}
	return buildModel(t, stops, buses)
}

// plainDijkstra runs textbook Dijkstra over the whole graph.
func plainDijkstra(g *graph.Graph, source, target uint32) float64 {
	dist := make([]float64, g.NumVertices)
	done := make([]bool, g.NumVertices)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	dist[source] = 0
	for {
		u := -1
		for v := range dist {
			if !done[v] && !math.IsInf(dist[v], 1) && (u < 0 || dist[v] < dist[u]) {
				u = v
			}
		}
		if u < 0 {
			break
		}
		done[u] = true
		for _, e := range g.Edges {
			if e.From == uint32(u) && dist[u]+e.Weight < dist[e.To] {
				dist[e.To] = dist[u] + e.Weight
			}
		}
	}
	return dist[target]
}

func TestFindRouteMatchesPlainDijkstra(t *testing.T) {
	m := buildGridModel(t)
	settings := Settings{BusWaitTime: 3, BusVelocity: 25}
	e, err := NewEngine(m, settings)
	if err != nil {
		t.Fatal(err)
	}

	names := m.StopNames()
	for _, from := range names {
		for _, to := range names {
			route, ok := e.FindRoute(from, to)
			if !ok {
				t.Fatalf("no route %s→%s", from, to)
			}
			want := plainDijkstra(e.g, boarding(e.stopIndex[from]), boarding(e.stopIndex[to]))
			if math.Abs(route.TotalMinutes-want) > 1e-9 {
				t.Errorf("%s→%s: total %f, plain Dijkstra %f", from, to, route.TotalMinutes, want)
			}

			var sum float64
			rides := 0
			for i, leg := range route.Legs {
				sum += leg.Minutes
				if leg.Kind == LegRide {
					rides++
					if i == 0 || route.Legs[i-1].Kind != LegWait {
						t.Errorf("%s→%s: ride leg %d not preceded by a wait", from, to, i)
					}
				}
			}
			if math.Abs(sum-route.TotalMinutes) > 1e-9 {
				t.Errorf("%s→%s: legs sum %f != total %f", from, to, sum, route.TotalMinutes)
			}
			// Wait-only lower bound: every ride is paid for with one wait.
			if route.TotalMinutes < float64(rides)*settings.BusWaitTime {
				t.Errorf("%s→%s: total %f below wait lower bound", from, to, route.TotalMinutes)
			}
			if from != to && route.TotalMinutes < settings.BusWaitTime {
				t.Errorf("%s→%s: total %f below one wait", from, to, route.TotalMinutes)
			}
		}
	}
	if e.InFlight() != 0 {
		t.Errorf("InFlight = %d, want 0", e.InFlight())
	}
}

func TestRemovingRideEdgeNeverShortens(t *testing.T) {
	m := buildGridModel(t)
	settings := Settings{BusWaitTime: 3, BusVelocity: 25}
	full, err := NewEngine(m, settings)
	if err != nil {
		t.Fatal(err)
	}

	var pruned []graph.Edge
	dropped := false
	for _, edge := range full.Edges() {
		if !dropped && !edge.IsWait() && edge.Span > 1 {
			dropped = true
			continue
		}
		pruned = append(pruned, edge)
	}
	reduced, err := RestoreEngine(m, settings, pruned)
	if err != nil {
		t.Fatal(err)
	}

	names := m.StopNames()
	for _, from := range names {
		for _, to := range names {
			a, okA := full.FindRoute(from, to)
			b, okB := reduced.FindRoute(from, to)
			if okB && !okA {
				t.Fatalf("%s→%s reachable only after removing an edge", from, to)
			}
			if okA && okB && b.TotalMinutes < a.TotalMinutes-1e-9 {
				t.Errorf("%s→%s: %f after removal < %f before", from, to, b.TotalMinutes, a.TotalMinutes)
			}
		}
	}
}

func TestRestoreEngineEquivalent(t *testing.T) {
	m := buildGridModel(t)
	settings := Settings{BusWaitTime: 4, BusVelocity: 40}
	built, err := NewEngine(m, settings)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := RestoreEngine(m, settings, built.Edges())
	if err != nil {
		t.Fatal(err)
	}
	a, _ := built.FindRoute("S00", "S33")
	b, _ := restored.FindRoute("S00", "S33")
	if a.TotalMinutes != b.TotalMinutes || len(a.Legs) != len(b.Legs) {
		t.Errorf("restored route %+v differs from built %+v", b, a)
	}
}

func TestRestoreEngineRejectsBadEdges(t *testing.T) {
	e := buildLineEngine(t)
	m := buildModel(t, []testStop{{"A", 0, 0, nil}}, nil)

	if _, err := RestoreEngine(m, e.Settings(), e.Edges()); err == nil {
		t.Error("expected error for edges outside the vertex range")
	}
	bad := []graph.Edge{{From: 1, To: 0, Weight: 1, Bus: 3, Span: 1}}
	if _, err := RestoreEngine(m, e.Settings(), bad); err == nil {
		t.Error("expected error for unknown bus index")
	}

	building := transit.NewModel()
	if err := building.AddStop("A", geo.Coordinates{}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := RestoreEngine(building, e.Settings(), nil); err == nil {
		t.Error("expected error for a model still in its build phase")
	}
}

func TestFindRouteConcurrent(t *testing.T) {
	m := buildGridModel(t)
	e, err := NewEngine(m, Settings{BusWaitTime: 3, BusVelocity: 25})
	if err != nil {
		t.Fatal(err)
	}
	want, _ := e.FindRoute("S00", "S33")

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				got, ok := e.FindRoute("S00", "S33")
				if !ok || got.TotalMinutes != want.TotalMinutes {
					errs <- fmt.Sprintf("concurrent route = %+v, want total %f", got, want.TotalMinutes)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
	if e.InFlight() != 0 {
		t.Errorf("InFlight = %d, want 0", e.InFlight())
	}
}

func TestMinHeap(t *testing.T) {
	var h MinHeap

	h.Push(1, 30)
	h.Push(2, 10)
	h.Push(3, 20)

	if h.PeekDist() != 10 {
		t.Errorf("PeekDist = %f, want 10", h.PeekDist())
	}

	item := h.Pop()
	if item.Vertex != 2 || item.Dist != 10 {
		t.Errorf("Pop = {%d, %f}, want {2, 10}", item.Vertex, item.Dist)
	}

	item = h.Pop()
	if item.Vertex != 3 || item.Dist != 20 {
		t.Errorf("Pop = {%d, %f}, want {3, 20}", item.Vertex, item.Dist)
	}

	item = h.Pop()
	if item.Vertex != 1 || item.Dist != 30 {
		t.Errorf("Pop = {%d, %f}, want {1, 30}", item.Vertex, item.Dist)
	}

	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
	if !math.IsInf(h.PeekDist(), 1) {
		t.Errorf("PeekDist on empty heap = %f, want +Inf", h.PeekDist())
	}
}

func TestQueryStateReset(t *testing.T) {
	qs := NewQueryState(4)
	qs.touch(1, 3, 7)
	qs.touch(1, 2, 8)
	qs.touch(3, 5, 9)
	qs.PQ.Push(1, 2)

	if len(qs.Touched) != 2 {
		t.Fatalf("Touched = %v, want 2 entries", qs.Touched)
	}
	qs.Reset()
	for v := range 4 {
		if !math.IsInf(qs.Dist[v], 1) || qs.PredEdge[v] != noEdge {
			t.Errorf("vertex %d not reset", v)
		}
	}
	if qs.PQ.Len() != 0 || len(qs.Touched) != 0 {
		t.Error("queue or touched list not cleared")
	}
}

func BenchmarkFindRoute(b *testing.B) {
	m := buildGridModel(b)
	e, err := NewEngine(m, Settings{BusWaitTime: 3, BusVelocity: 25})
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.FindRoute("S00", "S33")
	}
}
