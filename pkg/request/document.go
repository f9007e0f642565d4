// Package request decodes JSON request documents, builds a catalog from base
// requests and answers stat requests.
package request

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/azybler/transit_router/pkg/errors"
	"github.com/azybler/transit_router/pkg/render"
	"github.com/azybler/transit_router/pkg/routing"
)

// BaseKind tags a base request.
type BaseKind string

const (
	BaseStop BaseKind = "Stop"
	BaseBus  BaseKind = "Bus"
)

// StatKind tags a stat request.
type StatKind string

const (
	StatStop  StatKind = "Stop"
	StatBus   StatKind = "Bus"
	StatRoute StatKind = "Route"
	StatMap   StatKind = "Map"
)

// RoutingSettings is the routing_settings object of a document. A field left
// out falls back to the configured default.
type RoutingSettings struct {
	BusWaitTime *float64 `json:"bus_wait_time,omitempty"`
	BusVelocity *float64 `json:"bus_velocity,omitempty"`
}

// NewRoutingSettings returns document settings with both fields set.
func NewRoutingSettings(s routing.Settings) *RoutingSettings {
	return &RoutingSettings{BusWaitTime: &s.BusWaitTime, BusVelocity: &s.BusVelocity}
}

// Merge overlays the fields present in r onto def.
func (r *RoutingSettings) Merge(def routing.Settings) routing.Settings {
	if r == nil {
		return def
	}
	if r.BusWaitTime != nil {
		def.BusWaitTime = *r.BusWaitTime
	}
	if r.BusVelocity != nil {
		def.BusVelocity = *r.BusVelocity
	}
	return def
}

// Document is a full input: the network, its settings and the queries.
type Document struct {
	BaseRequests    []BaseRequest    `json:"base_requests"`
	RoutingSettings *RoutingSettings `json:"routing_settings,omitempty"`
	RenderSettings  *render.Settings `json:"render_settings,omitempty"`
	StatRequests    []StatRequest    `json:"stat_requests,omitempty"`
}

// StopRecord describes a stop and its forward road distances.
type StopRecord struct {
	Name          string         `json:"name"`
	Latitude      float64        `json:"latitude"`
	Longitude     float64        `json:"longitude"`
	RoadDistances map[string]int `json:"road_distances"`
}

// BusRecord describes a bus route.
type BusRecord struct {
	Name        string   `json:"name"`
	Stops       []string `json:"stops"`
	IsRoundtrip bool     `json:"is_roundtrip"`
}

// BaseRequest is either a stop or a bus, selected by Type.
type BaseRequest struct {
	Type BaseKind
	Stop StopRecord
	Bus  BusRecord
}

// NewStopRequest wraps a stop record.
func NewStopRequest(s StopRecord) BaseRequest { return BaseRequest{Type: BaseStop, Stop: s} }

// NewBusRequest wraps a bus record.
func NewBusRequest(b BusRecord) BaseRequest { return BaseRequest{Type: BaseBus, Bus: b} }

type stopJSON struct {
	Type BaseKind `json:"type"`
	StopRecord
}

type busJSON struct {
	Type BaseKind `json:"type"`
	BusRecord
}

// UnmarshalJSON decodes by the "type" field and rejects unknown kinds.
func (r *BaseRequest) UnmarshalJSON(data []byte) error {
	var head struct {
		Type BaseKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case BaseStop:
		var s stopJSON
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = NewStopRequest(s.StopRecord)
	case BaseBus:
		var b busJSON
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*r = NewBusRequest(b.BusRecord)
	default:
		return fmt.Errorf("unknown base request type %q", head.Type)
	}
	return nil
}

// MarshalJSON writes the record of the active kind with its "type" tag.
func (r BaseRequest) MarshalJSON() ([]byte, error) {
	switch r.Type {
	case BaseStop:
		s := r.Stop
		if s.RoadDistances == nil {
			s.RoadDistances = map[string]int{}
		}
		return json.Marshal(stopJSON{Type: BaseStop, StopRecord: s})
	case BaseBus:
		return json.Marshal(busJSON{Type: BaseBus, BusRecord: r.Bus})
	default:
		return nil, fmt.Errorf("unknown base request type %q", r.Type)
	}
}

// StatRequest is a query. Name is used by Stop and Bus, From and To by Route.
type StatRequest struct {
	ID   int      `json:"id"`
	Type StatKind `json:"type"`
	Name string   `json:"name,omitempty"`
	From string   `json:"from,omitempty"`
	To   string   `json:"to,omitempty"`
}

// UnmarshalJSON rejects unknown request kinds.
func (r *StatRequest) UnmarshalJSON(data []byte) error {
	type plain StatRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Type {
	case StatStop, StatBus, StatRoute, StatMap:
	default:
		return fmt.Errorf("unknown stat request type %q (id %d)", p.Type, p.ID)
	}
	*r = StatRequest(p)
	return nil
}

// Decode reads a document.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode request document")
	}
	return &doc, nil
}

// DecodeStatRequests reads a bare JSON array of stat requests.
func DecodeStatRequests(r io.Reader) ([]StatRequest, error) {
	var reqs []StatRequest
	if err := json.NewDecoder(r).Decode(&reqs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode stat requests")
	}
	return reqs, nil
}

// Encode writes v as indented JSON.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
