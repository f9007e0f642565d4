package api

import (
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/azybler/transit_router/pkg/catalog"
	"github.com/azybler/transit_router/pkg/request"
	"github.com/azybler/transit_router/pkg/routing"
)

const (
	maxBodyBytes     = 1 << 20
	maxNearestMeters = 5000
)

// Catalog is the query surface the handlers need.
type Catalog interface {
	request.Catalog
	NearestStop(lat, lng, maxMeters float64) (routing.NearestResult, error)
	Stats() catalog.Stats
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	catalog Catalog
}

// NewHandlers creates handlers over the given catalog.
func NewHandlers(c Catalog) *Handlers {
	return &Handlers{catalog: c}
}

// HandleRequests handles POST /api/v1/requests with a JSON array of stat requests.
func (h *Handlers) HandleRequests(w http.ResponseWriter, r *http.Request) {
	// Enforce Content-Type.
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "")
		return
	}

	reqs, err := request.DecodeStatRequests(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "")
		return
	}
	writeJSON(w, http.StatusOK, request.Process(h.catalog, reqs))
}

// HandleStop handles GET /api/v1/stops/{name}.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	s, ok := h.catalog.GetStop(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "stop_not_found", "name")
		return
	}
	buses := s.Buses
	if buses == nil {
		buses = []string{}
	}
	writeJSON(w, http.StatusOK, StopResponse{Name: s.Name, Buses: buses})
}

// HandleBus handles GET /api/v1/buses/{name}.
func (h *Handlers) HandleBus(w http.ResponseWriter, r *http.Request) {
	b, ok := h.catalog.GetBus(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "bus_not_found", "name")
		return
	}
	writeJSON(w, http.StatusOK, BusResponse{
		Name:            b.Name,
		RouteLength:     b.RouteLength,
		Curvature:       b.Curvature,
		StopCount:       b.StopCount,
		UniqueStopCount: b.UniqueStopCount,
	})
}

// HandleRoute handles GET /api/v1/route?from=&to=.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "from")
		return
	}
	if to == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "to")
		return
	}

	route, ok := h.catalog.FindRoute(from, to)
	if !ok {
		writeRouteError(w, r, routing.ErrNoRoute)
		return
	}
	resp := request.NewRouteResponse(0, route)
	writeJSON(w, http.StatusOK, RouteResponse{TotalTime: resp.TotalTime, Items: resp.Items})
}

// HandleNearest handles GET /api/v1/stops/nearest?lat=&lon=.
func (h *Handlers) HandleNearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_coordinates", "lat")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_coordinates", "lon")
		return
	}
	if err := validateCoord(lat, lon); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_coordinates", "")
		return
	}

	res, err := h.catalog.NearestStop(lat, lon, maxNearestMeters)
	if err != nil {
		writeRouteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NearestResponse{Stop: res.Stop, DistanceMeters: res.DistanceMeters})
}

// HandleMap handles GET /api/v1/map.
func (h *Handlers) HandleMap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write(h.catalog.MapSVG())
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	st := h.catalog.Stats()
	writeJSON(w, http.StatusOK, StatsResponse{
		NumStops:    st.Stops,
		NumBuses:    st.Buses,
		NumVertices: st.Vertices,
		NumEdges:    st.Edges,
	})
}

func validateCoord(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

// writeRouteError maps query errors to status codes.
func writeRouteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, routing.ErrPointTooFar):
		writeError(w, r, http.StatusUnprocessableEntity, "point_too_far_from_stop", "")
	case errors.Is(err, routing.ErrNoRoute):
		writeError(w, r, http.StatusNotFound, "no_route_found", "")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field, RequestID: RequestIDFrom(r.Context())})
}
