// Package osm imports bus routes from OpenStreetMap data into base requests.
package osm

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/azybler/transit_router/pkg/geo"
	"github.com/azybler/transit_router/pkg/request"
)

// DefaultDetourFactor scales great-circle distance to an estimated road
// distance between consecutive stops.
const DefaultDetourFactor = 1.3

// busRoutes lists route tag values imported as buses.
var busRoutes = map[string]bool{
	"bus":        true,
	"trolleybus": true,
}

// isBusRoute returns true if the relation is a public bus route.
func isBusRoute(tags osm.Tags) bool {
	if tags.Find("type") != "route" {
		return false
	}
	return busRoutes[tags.Find("route")]
}

// isStopRole returns true for members marking where the bus stops.
func isStopRole(role string) bool {
	switch role {
	case "stop", "stop_entry_only", "stop_exit_only":
		return true
	}
	return false
}

// routeInfo holds a bus route collected during pass 1.
type routeInfo struct {
	ID        osm.RelationID
	Name      string
	Stops     []osm.NodeID
	Roundtrip bool
}

// Options configures the importer.
type Options struct {
	// BBox, when set, drops stops outside the box.
	BBox *orb.Bound
	// DetourFactor multiplies great-circle distances; zero means DefaultDetourFactor.
	DetourFactor float64
}

// Result holds the imported network.
type Result struct {
	BaseRequests []request.BaseRequest
	NumStops     int
	NumBuses     int
}

// ScannerFunc opens a fresh scanner over the same data for each pass.
type ScannerFunc func(pass int) (osm.Scanner, error)

// Import reads an OSM PBF file and returns stop and bus base requests.
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func Import(ctx context.Context, rs io.ReadSeeker, opts Options) (*Result, error) {
	open := func(pass int) (osm.Scanner, error) {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek for pass %d: %w", pass, err)
		}
		s := osmpbf.New(ctx, rs, 1)
		s.SkipWays = true
		if pass == 1 {
			s.SkipNodes = true
		} else {
			s.SkipRelations = true
		}
		return s, nil
	}
	return ImportScanner(open, opts)
}

// ImportScanner runs the two import passes over scanners from open.
// Pass 1 collects bus route relations, pass 2 the stop nodes they reference.
func ImportScanner(open ScannerFunc, opts Options) (*Result, error) {
	detour := opts.DetourFactor
	if detour <= 0 {
		detour = DefaultDetourFactor
	}

	// Pass 1: Scan relations for bus routes and their stop members.
	referenced := make(map[osm.NodeID]struct{})
	var routes []routeInfo

	scanner, err := open(1)
	if err != nil {
		return nil, err
	}
	for scanner.Scan() {
		r, ok := scanner.Object().(*osm.Relation)
		if !ok || !isBusRoute(r.Tags) {
			continue
		}
		info := routeInfo{ID: r.ID, Name: routeName(r)}
		for _, m := range r.Members {
			if m.Type != osm.TypeNode || !isStopRole(m.Role) {
				continue
			}
			id := osm.NodeID(m.Ref)
			info.Stops = append(info.Stops, id)
			referenced[id] = struct{}{}
		}
		if len(info.Stops) < 2 {
			continue
		}
		info.Roundtrip = r.Tags.Find("roundtrip") == "yes" || info.Stops[0] == info.Stops[len(info.Stops)-1]
		routes = append(routes, info)
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (relations): %w", err)
	}
	scanner.Close()

	log.Info("Pass 1 complete", "routes", len(routes), "referenced_stops", len(referenced))

	// Pass 2: Scan nodes for referenced stop names and coordinates.
	nodes := make(map[osm.NodeID]*osm.Node, len(referenced))
	scanner, err = open(2)
	if err != nil {
		return nil, err
	}
	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referenced[n.ID]; !needed {
			continue
		}
		nodes[n.ID] = n
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Info("Pass 2 complete", "stops", len(nodes))

	b := newBuilder(nodes, opts.BBox, detour)
	for _, r := range routes {
		b.addRoute(r)
	}
	res := b.result()

	if b.missing > 0 {
		log.Warn("Skipped stops with missing nodes", "count", b.missing)
	}
	if b.filtered > 0 {
		log.Info("Filtered stops outside bounding box", "count", b.filtered)
	}
	log.Info("Import complete", "stops", res.NumStops, "buses", res.NumBuses)
	return res, nil
}

// builder turns routes and nodes into stop and bus records.
type builder struct {
	nodes  map[osm.NodeID]*osm.Node
	bbox   *orb.Bound
	detour float64

	stopName  map[osm.NodeID]string
	nameOwner map[string]osm.NodeID
	stops     map[string]*request.StopRecord
	buses     []request.BusRecord
	busNames  map[string]bool

	missing  int
	filtered int
}

func newBuilder(nodes map[osm.NodeID]*osm.Node, bbox *orb.Bound, detour float64) *builder {
	return &builder{
		nodes:     nodes,
		bbox:      bbox,
		detour:    detour,
		stopName:  make(map[osm.NodeID]string),
		nameOwner: make(map[string]osm.NodeID),
		stops:     make(map[string]*request.StopRecord),
		busNames:  make(map[string]bool),
	}
}

// stop registers the node as a stop and returns its unique name.
func (b *builder) stop(id osm.NodeID) (string, bool) {
	if name, ok := b.stopName[id]; ok {
		return name, true
	}
	n, ok := b.nodes[id]
	if !ok {
		b.missing++
		return "", false
	}
	if b.bbox != nil && !b.bbox.Contains(orb.Point{n.Lon, n.Lat}) {
		b.filtered++
		return "", false
	}

	name := n.Tags.Find("name")
	if name == "" {
		name = "node/" + strconv.FormatInt(int64(id), 10)
	}
	if owner, taken := b.nameOwner[name]; taken && owner != id {
		name = fmt.Sprintf("%s (%d)", name, id)
	}
	b.nameOwner[name] = id
	b.stopName[id] = name
	b.stops[name] = &request.StopRecord{
		Name:          name,
		Latitude:      n.Lat,
		Longitude:     n.Lon,
		RoadDistances: make(map[string]int),
	}
	return name, true
}

func (b *builder) addRoute(r routeInfo) {
	var names []string
	for _, id := range r.Stops {
		name, ok := b.stop(id)
		if !ok {
			continue
		}
		if len(names) > 0 && names[len(names)-1] == name {
			continue
		}
		names = append(names, name)
	}
	if len(names) < 2 {
		return
	}
	if r.Roundtrip && names[0] != names[len(names)-1] {
		names = append(names, names[0])
	}

	// Forward distances, plus reverse ones for lines travelled back.
	for i := 1; i < len(names); i++ {
		b.link(names[i-1], names[i])
		if !r.Roundtrip {
			b.link(names[i], names[i-1])
		}
	}

	busName := r.Name
	if b.busNames[busName] {
		busName = fmt.Sprintf("%s (%d)", busName, r.ID)
	}
	b.busNames[busName] = true
	b.buses = append(b.buses, request.BusRecord{Name: busName, Stops: names, IsRoundtrip: r.Roundtrip})
}

// link records an estimated road distance unless one is already known.
func (b *builder) link(from, to string) {
	s := b.stops[from]
	if _, ok := s.RoadDistances[to]; ok {
		return
	}
	t := b.stops[to]
	d := geo.Haversine(s.Latitude, s.Longitude, t.Latitude, t.Longitude) * b.detour
	s.RoadDistances[to] = max(1, int(math.Round(d)))
}

func (b *builder) result() *Result {
	names := make([]string, 0, len(b.stops))
	for n := range b.stops {
		names = append(names, n)
	}
	sort.Strings(names)

	res := &Result{NumStops: len(names), NumBuses: len(b.buses)}
	for _, n := range names {
		res.BaseRequests = append(res.BaseRequests, request.NewStopRequest(*b.stops[n]))
	}
	for _, bus := range b.buses {
		res.BaseRequests = append(res.BaseRequests, request.NewBusRequest(bus))
	}
	return res
}

// routeName picks the public route number, falling back to the name.
func routeName(r *osm.Relation) string {
	if ref := r.Tags.Find("ref"); ref != "" {
		return ref
	}
	if name := r.Tags.Find("name"); name != "" {
		return name
	}
	return "relation/" + strconv.FormatInt(int64(r.ID), 10)
}

// ParseBBox parses "minLat,minLng,maxLat,maxLng".
func ParseBBox(s string) (orb.Bound, error) {
	var minLat, minLng, maxLat, maxLng float64
	if _, err := fmt.Sscanf(s, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q (expected minLat,minLng,maxLat,maxLng): %w", s, err)
	}
	if minLat > maxLat || minLng > maxLng {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q: min exceeds max", s)
	}
	return orb.Bound{Min: orb.Point{minLng, minLat}, Max: orb.Point{maxLng, maxLat}}, nil
}
