package transit

import (
	"math"
	"slices"
	"testing"

	"github.com/azybler/transit_router/pkg/errors"
	"github.com/azybler/transit_router/pkg/geo"
)

// buildLine creates A(0,0) → B(0,0.01) → C(0,0.02) with asymmetric distances.
func buildLine(t *testing.T) *Model {
	t.Helper()
	m := NewModel()
	mustAddStop(t, m, "A", 0, 0, map[string]int{"B": 1000})
	mustAddStop(t, m, "B", 0, 0.01, map[string]int{"C": 1000, "A": 1200})
	mustAddStop(t, m, "C", 0, 0.02, nil)
	return m
}

func mustAddStop(t *testing.T, m *Model, name string, lat, lng float64, d map[string]int) {
	t.Helper()
	if err := m.AddStop(name, geo.Coordinates{Lat: lat, Lng: lng}, d); err != nil {
		t.Fatalf("AddStop(%s): %v", name, err)
	}
}

func TestStopDistanceAsymmetric(t *testing.T) {
	m := buildLine(t)

	tests := []struct {
		a, b string
		want int
	}{
		{"A", "B", 1000},
		{"B", "A", 1200}, // forward entry wins over the mirror
		{"B", "C", 1000},
		{"C", "B", 1000}, // no C→B entry: falls back to B→C
	}
	for _, tt := range tests {
		got, err := m.StopDistance(tt.a, tt.b)
		if err != nil {
			t.Fatalf("StopDistance(%s, %s): %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("StopDistance(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestStopDistanceMissing(t *testing.T) {
	m := buildLine(t)
	_, err := m.StopDistance("A", "C")
	if !errors.Is(err, errors.ErrCodeMissingDistance) {
		t.Fatalf("err = %v, want MISSING_DISTANCE", err)
	}
	_, err = m.StopDistance("A", "Z")
	if !errors.Is(err, errors.ErrCodeUnknownStop) {
		t.Fatalf("err = %v, want UNKNOWN_STOP", err)
	}
}

func TestExpandStopsPalindrome(t *testing.T) {
	inputs := [][]string{
		{"A", "B"},
		{"A", "B", "C"},
		{"A", "B", "C", "D", "E"},
		{"A", "B", "A", "C"},
	}
	for _, in := range inputs {
		got := ExpandStops(in, false)
		if len(got) != 2*len(in)-1 {
			t.Fatalf("ExpandStops(%v) len = %d, want %d", in, len(got), 2*len(in)-1)
		}
		n := len(got)
		for i := range got {
			if got[i] != got[n-1-i] {
				t.Errorf("ExpandStops(%v) = %v is not a palindrome", in, got)
				break
			}
		}
	}

	cycle := []string{"A", "B", "C", "A"}
	if got := ExpandStops(cycle, true); !slices.Equal(got, cycle) {
		t.Errorf("ExpandStops roundtrip = %v, want %v", got, cycle)
	}
}

func TestAddBusAggregates(t *testing.T) {
	m := buildLine(t)
	bus, err := m.AddBus(BusRoute{Name: "1", Stops: []string{"A", "B", "C"}})
	if err != nil {
		t.Fatalf("AddBus: %v", err)
	}

	if !slices.Equal(bus.Stops, []string{"A", "B", "C", "B", "A"}) {
		t.Errorf("Stops = %v", bus.Stops)
	}
	if bus.StopCount != 5 {
		t.Errorf("StopCount = %d, want 5", bus.StopCount)
	}
	if bus.UniqueStopCount != 3 {
		t.Errorf("UniqueStopCount = %d, want 3", bus.UniqueStopCount)
	}
	// A→B 1000, B→C 1000, C→B 1000 (mirror), B→A 1200.
	if bus.RouteLength != 4200 {
		t.Errorf("RouteLength = %d, want 4200", bus.RouteLength)
	}
	wantGeo := 4 * geo.Haversine(0, 0, 0, 0.01)
	if math.Abs(bus.GeoLength-wantGeo) > 1e-6 {
		t.Errorf("GeoLength = %f, want %f", bus.GeoLength, wantGeo)
	}
	if c := bus.Curvature(); math.Abs(c-4200/wantGeo) > 1e-9 {
		t.Errorf("Curvature = %f", c)
	}
	if !slices.Equal(bus.Finals, []string{"A", "C"}) {
		t.Errorf("Finals = %v, want [A C]", bus.Finals)
	}
}

func TestAddBusRegistersStops(t *testing.T) {
	m := buildLine(t)
	if _, err := m.AddBus(BusRoute{Name: "2", Stops: []string{"B", "C"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddBus(BusRoute{Name: "1", Stops: []string{"A", "B"}}); err != nil {
		t.Fatal(err)
	}

	b, _ := m.Stop("B")
	if !slices.Equal(b.Buses(), []string{"1", "2"}) {
		t.Errorf("B.Buses() = %v, want [1 2]", b.Buses())
	}
	c, _ := m.Stop("C")
	if !slices.Equal(c.Buses(), []string{"2"}) {
		t.Errorf("C.Buses() = %v, want [2]", c.Buses())
	}
}

func TestAddBusErrors(t *testing.T) {
	tests := []struct {
		name  string
		route BusRoute
		code  errors.Code
	}{
		{"unknown stop", BusRoute{Name: "x", Stops: []string{"A", "Z"}}, errors.ErrCodeUnknownStop},
		{"missing distance", BusRoute{Name: "x", Stops: []string{"A", "C"}}, errors.ErrCodeMissingDistance},
		{"empty name", BusRoute{Stops: []string{"A", "B"}}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := buildLine(t)
			if _, err := m.AddBus(tt.route); !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
			if m.NumBuses() != 0 {
				t.Errorf("failed AddBus left %d buses behind", m.NumBuses())
			}
		})
	}
}

func TestAddBusDuplicate(t *testing.T) {
	m := buildLine(t)
	if _, err := m.AddBus(BusRoute{Name: "1", Stops: []string{"A", "B"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddBus(BusRoute{Name: "1", Stops: []string{"B", "C"}}); !errors.Is(err, errors.ErrCodeDuplicate) {
		t.Errorf("err = %v, want DUPLICATE", err)
	}
}

func TestFrozenModelRejectsWrites(t *testing.T) {
	m := buildLine(t)
	m.Freeze()

	if err := m.AddStop("D", geo.Coordinates{}, nil); !errors.Is(err, errors.ErrCodeModelFrozen) {
		t.Errorf("AddStop err = %v, want MODEL_FROZEN", err)
	}
	if _, err := m.AddBus(BusRoute{Name: "1", Stops: []string{"A", "B"}}); !errors.Is(err, errors.ErrCodeModelFrozen) {
		t.Errorf("AddBus err = %v, want MODEL_FROZEN", err)
	}
}

func TestLookupNotFound(t *testing.T) {
	m := buildLine(t)
	m.Freeze()
	if _, ok := m.Bus("missing"); ok {
		t.Error("Bus(missing) reported found")
	}
	if _, ok := m.Stop("missing"); ok {
		t.Error("Stop(missing) reported found")
	}
}

func TestStableOrder(t *testing.T) {
	m := NewModel()
	for _, n := range []string{"Zeta", "Alpha", "Mid"} {
		mustAddStop(t, m, n, 0, 0, nil)
	}
	m.Freeze()
	if got := m.StopNames(); !slices.Equal(got, []string{"Alpha", "Mid", "Zeta"}) {
		t.Errorf("StopNames = %v", got)
	}
	if len(m.Buses()) != 0 {
		t.Errorf("Buses = %v, want empty", m.Buses())
	}
}

func TestOverwriteStopKeepsBuses(t *testing.T) {
	m := buildLine(t)
	if _, err := m.AddBus(BusRoute{Name: "1", Stops: []string{"A", "B"}}); err != nil {
		t.Fatal(err)
	}
	mustAddStop(t, m, "A", 1, 1, map[string]int{"B": 900})

	a, _ := m.Stop("A")
	if a.Position.Lat != 1 || a.Distances["B"] != 900 {
		t.Errorf("stop A not overwritten: %+v", a)
	}
	if !slices.Equal(a.Buses(), []string{"1"}) {
		t.Errorf("A.Buses() = %v, want [1]", a.Buses())
	}
}

func TestBusRouteRecoversInput(t *testing.T) {
	m := buildLine(t)
	for _, in := range []BusRoute{
		{Name: "line", Stops: []string{"A", "B", "C"}},
		{Name: "ring", Stops: []string{"A", "B", "A"}, IsRoundtrip: true},
	} {
		bus, err := m.AddBus(in)
		if err != nil {
			t.Fatalf("AddBus(%s): %v", in.Name, err)
		}
		got := bus.Route()
		if got.Name != in.Name || got.IsRoundtrip != in.IsRoundtrip || !slices.Equal(got.Stops, in.Stops) {
			t.Errorf("Route() = %+v, want %+v", got, in)
		}
	}
}
