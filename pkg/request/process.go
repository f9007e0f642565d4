package request

import (
	"github.com/charmbracelet/log"

	"github.com/azybler/transit_router/pkg/catalog"
	"github.com/azybler/transit_router/pkg/errors"
	"github.com/azybler/transit_router/pkg/geo"
	"github.com/azybler/transit_router/pkg/render"
	"github.com/azybler/transit_router/pkg/routing"
	"github.com/azybler/transit_router/pkg/transit"
)

// NotFound is the error_message of a query naming an unknown object or an
// unreachable route.
const NotFound = "not found"

// Catalog is the query surface Process needs.
type Catalog interface {
	GetStop(name string) (catalog.StopInfo, bool)
	GetBus(name string) (catalog.BusInfo, bool)
	FindRoute(from, to string) (*routing.Route, bool)
	MapSVG() []byte
}

// Defaults fill in settings a document leaves out.
type Defaults struct {
	Routing routing.Settings
	Render  render.Settings
}

// BuildModel registers all stops, then all buses, and freezes the model.
func BuildModel(reqs []BaseRequest) (*transit.Model, error) {
	m := transit.NewModel()
	for i, r := range reqs {
		if r.Type != BaseStop {
			continue
		}
		s := r.Stop
		pos := geo.Coordinates{Lat: s.Latitude, Lng: s.Longitude}
		if err := m.AddStop(s.Name, pos, s.RoadDistances); err != nil {
			return nil, errors.Wrap(errors.GetCode(err), err, "base request %d", i)
		}
	}
	for i, r := range reqs {
		if r.Type != BaseBus {
			continue
		}
		b := r.Bus
		if _, err := m.AddBus(transit.BusRoute{Name: b.Name, Stops: b.Stops, IsRoundtrip: b.IsRoundtrip}); err != nil {
			return nil, errors.Wrap(errors.GetCode(err), err, "base request %d", i)
		}
	}
	m.Freeze()
	log.Debug("Model built", "stops", m.NumStops(), "buses", m.NumBuses())
	return m, nil
}

// Settings returns the document's settings, falling back to def. Routing
// settings fall back field by field.
func (d *Document) Settings(def Defaults) (routing.Settings, render.Settings) {
	rs, vs := d.RoutingSettings.Merge(def.Routing), def.Render
	if d.RenderSettings != nil {
		vs = *d.RenderSettings
	}
	return rs, vs
}

// BuildCatalog turns the base requests of doc into a catalog.
func BuildCatalog(doc *Document, def Defaults) (*catalog.Catalog, error) {
	m, err := BuildModel(doc.BaseRequests)
	if err != nil {
		return nil, err
	}
	rs, vs := doc.Settings(def)
	return catalog.New(m, rs, vs)
}

// StopResponse lists the buses of a stop.
type StopResponse struct {
	RequestID int      `json:"request_id"`
	Buses     []string `json:"buses"`
}

// BusResponse reports bus aggregates.
type BusResponse struct {
	RequestID       int     `json:"request_id"`
	Curvature       float64 `json:"curvature"`
	RouteLength     int     `json:"route_length"`
	StopCount       int     `json:"stop_count"`
	UniqueStopCount int     `json:"unique_stop_count"`
}

// RouteItem is one leg of a route response.
type RouteItem struct {
	Type      string  `json:"type"`
	StopName  string  `json:"stop_name,omitempty"`
	Bus       string  `json:"bus,omitempty"`
	SpanCount int     `json:"span_count,omitempty"`
	Time      float64 `json:"time"`
}

// RouteResponse is a found route.
type RouteResponse struct {
	RequestID int         `json:"request_id"`
	TotalTime float64     `json:"total_time"`
	Items     []RouteItem `json:"items"`
}

// MapResponse carries the rendered SVG document.
type MapResponse struct {
	RequestID int    `json:"request_id"`
	Map       string `json:"map"`
}

// ErrorResponse answers a query that found nothing.
type ErrorResponse struct {
	RequestID    int    `json:"request_id"`
	ErrorMessage string `json:"error_message"`
}

// Process answers each request in order.
func Process(c Catalog, reqs []StatRequest) []any {
	out := make([]any, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, Answer(c, r))
	}
	return out
}

// Answer answers one request.
func Answer(c Catalog, r StatRequest) any {
	switch r.Type {
	case StatStop:
		s, ok := c.GetStop(r.Name)
		if !ok {
			return notFound(r.ID)
		}
		buses := s.Buses
		if buses == nil {
			buses = []string{}
		}
		return StopResponse{RequestID: r.ID, Buses: buses}

	case StatBus:
		b, ok := c.GetBus(r.Name)
		if !ok {
			return notFound(r.ID)
		}
		return BusResponse{
			RequestID:       r.ID,
			Curvature:       b.Curvature,
			RouteLength:     b.RouteLength,
			StopCount:       b.StopCount,
			UniqueStopCount: b.UniqueStopCount,
		}

	case StatRoute:
		route, ok := c.FindRoute(r.From, r.To)
		if !ok {
			return notFound(r.ID)
		}
		return NewRouteResponse(r.ID, route)

	case StatMap:
		return MapResponse{RequestID: r.ID, Map: string(c.MapSVG())}

	default:
		panic("request: unhandled stat request type " + string(r.Type))
	}
}

// NewRouteResponse converts a route to its JSON shape.
func NewRouteResponse(id int, route *routing.Route) RouteResponse {
	resp := RouteResponse{
		RequestID: id,
		TotalTime: route.TotalMinutes,
		Items:     make([]RouteItem, 0, len(route.Legs)),
	}
	for _, leg := range route.Legs {
		item := RouteItem{Type: leg.Kind.String(), Time: leg.Minutes}
		switch leg.Kind {
		case routing.LegWait:
			item.StopName = leg.Stop
		case routing.LegRide:
			item.Bus = leg.Bus
			item.SpanCount = leg.SpanCount
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}

func notFound(id int) ErrorResponse {
	return ErrorResponse{RequestID: id, ErrorMessage: NotFound}
}
