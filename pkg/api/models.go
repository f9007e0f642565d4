package api

import "github.com/azybler/transit_router/pkg/request"

// StopResponse is the JSON response for GET /api/v1/stops/{name}.
type StopResponse struct {
	Name  string   `json:"name"`
	Buses []string `json:"buses"`
}

// BusResponse is the JSON response for GET /api/v1/buses/{name}.
type BusResponse struct {
	Name            string  `json:"name"`
	RouteLength     int     `json:"route_length"`
	Curvature       float64 `json:"curvature"`
	StopCount       int     `json:"stop_count"`
	UniqueStopCount int     `json:"unique_stop_count"`
}

// RouteResponse is the JSON response for a successful route query.
type RouteResponse struct {
	TotalTime float64             `json:"total_time"`
	Items     []request.RouteItem `json:"items"`
}

// NearestResponse is the JSON response for GET /api/v1/stops/nearest.
type NearestResponse struct {
	Stop           string  `json:"stop"`
	DistanceMeters float64 `json:"distance_meters"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	NumStops    int    `json:"num_stops"`
	NumBuses    int    `json:"num_buses"`
	NumVertices uint32 `json:"num_vertices"`
	NumEdges    uint32 `json:"num_edges"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
