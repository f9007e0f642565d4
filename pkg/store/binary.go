// Package store persists a built catalog as a binary snapshot.
//
// Layout (little-endian, CRC32 of everything before the trailer):
//
//	header    magic "TRCATLOG", version, stop/bus/edge counts
//	routing   bus_wait_time, bus_velocity (float64)
//	render    length-prefixed JSON settings
//	stops     name, lat, lng, distance count, (neighbor, meters)...
//	buses     name, roundtrip flag, stop count, stop names...
//	edges     From[], To[], Weight[], Bus[], Span[] columns
//	trailer   CRC32
package store

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"slices"
	"unsafe"

	"github.com/charmbracelet/log"

	"github.com/azybler/transit_router/pkg/catalog"
	"github.com/azybler/transit_router/pkg/errors"
	"github.com/azybler/transit_router/pkg/geo"
	"github.com/azybler/transit_router/pkg/graph"
	"github.com/azybler/transit_router/pkg/render"
	"github.com/azybler/transit_router/pkg/routing"
	"github.com/azybler/transit_router/pkg/transit"
)

const (
	magicBytes = "TRCATLOG"
	version    = uint32(1)
	maxStops   = 10_000_000
	maxBuses   = 1_000_000
	maxEdges   = 200_000_000
	maxString  = 1 << 20
)

// fileHeader is the binary header.
type fileHeader struct {
	Magic    [8]byte
	Version  uint32
	NumStops uint32
	NumBuses uint32
	NumEdges uint32
}

// Save writes the catalog to path through a temp file and an atomic rename.
func Save(path string, c *catalog.Catalog) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	bw := bufio.NewWriter(f)
	w := &crc32Writer{w: bw, hash: crc32.NewIEEE()}

	m := c.Model()
	stops := m.Stops()
	buses := m.Buses()
	snap := c.Snapshot()
	edges := snap.Edges

	hdr := fileHeader{
		Version:  version,
		NumStops: uint32(len(stops)),
		NumBuses: uint32(len(buses)),
		NumEdges: uint32(len(edges)),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rs := snap.Routing
	if err := binary.Write(w, binary.LittleEndian, [2]float64{rs.BusWaitTime, rs.BusVelocity}); err != nil {
		return fmt.Errorf("write routing settings: %w", err)
	}
	style, err := json.Marshal(snap.Render)
	if err != nil {
		return fmt.Errorf("encode render settings: %w", err)
	}
	if err := writeBytes(w, style); err != nil {
		return fmt.Errorf("write render settings: %w", err)
	}

	for _, s := range stops {
		if err := writeStop(w, s); err != nil {
			return fmt.Errorf("write stop %q: %w", s.Name, err)
		}
	}
	for _, b := range buses {
		if err := writeBus(w, b.Route()); err != nil {
			return fmt.Errorf("write bus %q: %w", b.Name, err)
		}
	}
	if err := writeEdges(w, edges); err != nil {
		return fmt.Errorf("write edges: %w", err)
	}

	// CRC32 trailer.
	if err := binary.Write(bw, binary.LittleEndian, w.hash.Sum32()); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Atomic rename.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	log.Debug("Snapshot written", "path", path, "stops", len(stops), "buses", len(buses), "edges", len(edges))
	return nil
}

// Load reads a snapshot and restores the catalog without rebuilding ride
// edges.
func Load(path string) (*catalog.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	r := &crc32Reader{r: br, hash: crc32.NewIEEE()}

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported version: %d", hdr.Version)
	}
	if hdr.NumStops > maxStops || hdr.NumBuses > maxBuses || hdr.NumEdges > maxEdges {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "counts exceed limits: %d stops, %d buses, %d edges",
			hdr.NumStops, hdr.NumBuses, hdr.NumEdges)
	}

	var rsRaw [2]float64
	if err := binary.Read(r, binary.LittleEndian, &rsRaw); err != nil {
		return nil, fmt.Errorf("read routing settings: %w", err)
	}
	rs := routing.Settings{BusWaitTime: rsRaw[0], BusVelocity: rsRaw[1]}

	style, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("read render settings: %w", err)
	}
	var vs render.Settings
	if err := json.Unmarshal(style, &vs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode render settings")
	}

	m := transit.NewModel()
	for i := range hdr.NumStops {
		name, pos, dist, err := readStop(r)
		if err != nil {
			return nil, fmt.Errorf("read stop %d: %w", i, err)
		}
		if err := m.AddStop(name, pos, dist); err != nil {
			return nil, fmt.Errorf("restore stop %d: %w", i, err)
		}
	}
	for i := range hdr.NumBuses {
		route, err := readBus(r)
		if err != nil {
			return nil, fmt.Errorf("read bus %d: %w", i, err)
		}
		if _, err := m.AddBus(route); err != nil {
			return nil, fmt.Errorf("restore bus %d: %w", i, err)
		}
	}
	m.Freeze()

	edges, err := readEdges(r, int(hdr.NumEdges))
	if err != nil {
		return nil, fmt.Errorf("read edges: %w", err)
	}

	// Read and validate CRC32.
	expectedCRC := r.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(br, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	router, err := routing.RestoreEngine(m, rs, edges)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "restore router")
	}
	c, err := catalog.Restore(m, router, vs)
	if err != nil {
		return nil, err
	}
	log.Debug("Snapshot loaded", "path", path, "stops", hdr.NumStops, "buses", hdr.NumBuses, "edges", hdr.NumEdges)
	return c, nil
}

func writeStop(w io.Writer, s *transit.Stop) error {
	if err := writeString(w, s.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, [2]float64{s.Position.Lat, s.Position.Lng}); err != nil {
		return err
	}
	neighbors := make([]string, 0, len(s.Distances))
	for n := range s.Distances {
		neighbors = append(neighbors, n)
	}
	slices.Sort(neighbors)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(neighbors))); err != nil {
		return err
	}
	for _, n := range neighbors {
		if err := writeString(w, n); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(s.Distances[n])); err != nil {
			return err
		}
	}
	return nil
}

func readStop(r io.Reader) (string, geo.Coordinates, map[string]int, error) {
	name, err := readString(r)
	if err != nil {
		return "", geo.Coordinates{}, nil, err
	}
	var pos [2]float64
	if err := binary.Read(r, binary.LittleEndian, &pos); err != nil {
		return "", geo.Coordinates{}, nil, err
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", geo.Coordinates{}, nil, err
	}
	if n > maxStops {
		return "", geo.Coordinates{}, nil, fmt.Errorf("distance count %d exceeds limit", n)
	}
	dist := make(map[string]int, n)
	for range n {
		neighbor, err := readString(r)
		if err != nil {
			return "", geo.Coordinates{}, nil, err
		}
		var d uint32
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return "", geo.Coordinates{}, nil, err
		}
		dist[neighbor] = int(d)
	}
	return name, geo.Coordinates{Lat: pos[0], Lng: pos[1]}, dist, nil
}

func writeBus(w io.Writer, b transit.BusRoute) error {
	if err := writeString(w, b.Name); err != nil {
		return err
	}
	var flag uint8
	if b.IsRoundtrip {
		flag = 1
	}
	if err := binary.Write(w, binary.LittleEndian, flag); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b.Stops))); err != nil {
		return err
	}
	for _, s := range b.Stops {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readBus(r io.Reader) (transit.BusRoute, error) {
	var b transit.BusRoute
	var err error
	if b.Name, err = readString(r); err != nil {
		return b, err
	}
	var flag uint8
	if err := binary.Read(r, binary.LittleEndian, &flag); err != nil {
		return b, err
	}
	b.IsRoundtrip = flag == 1
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return b, err
	}
	if n > maxStops {
		return b, fmt.Errorf("stop count %d exceeds limit", n)
	}
	b.Stops = make([]string, n)
	for i := range b.Stops {
		if b.Stops[i], err = readString(r); err != nil {
			return b, err
		}
	}
	return b, nil
}

// writeEdges stores the edge arena column by column.
func writeEdges(w io.Writer, edges []graph.Edge) error {
	from := make([]uint32, len(edges))
	to := make([]uint32, len(edges))
	weight := make([]float64, len(edges))
	bus := make([]int32, len(edges))
	span := make([]uint32, len(edges))
	for i, e := range edges {
		from[i], to[i], weight[i], bus[i], span[i] = e.From, e.To, e.Weight, e.Bus, e.Span
	}
	if err := writeUint32Slice(w, from); err != nil {
		return fmt.Errorf("From: %w", err)
	}
	if err := writeUint32Slice(w, to); err != nil {
		return fmt.Errorf("To: %w", err)
	}
	if err := writeFloat64Slice(w, weight); err != nil {
		return fmt.Errorf("Weight: %w", err)
	}
	if err := writeInt32Slice(w, bus); err != nil {
		return fmt.Errorf("Bus: %w", err)
	}
	if err := writeUint32Slice(w, span); err != nil {
		return fmt.Errorf("Span: %w", err)
	}
	return nil
}

func readEdges(r io.Reader, n int) ([]graph.Edge, error) {
	from, err := readUint32Slice(r, n)
	if err != nil {
		return nil, fmt.Errorf("From: %w", err)
	}
	to, err := readUint32Slice(r, n)
	if err != nil {
		return nil, fmt.Errorf("To: %w", err)
	}
	weight, err := readFloat64Slice(r, n)
	if err != nil {
		return nil, fmt.Errorf("Weight: %w", err)
	}
	bus, err := readInt32Slice(r, n)
	if err != nil {
		return nil, fmt.Errorf("Bus: %w", err)
	}
	span, err := readUint32Slice(r, n)
	if err != nil {
		return nil, fmt.Errorf("Span: %w", err)
	}
	edges := make([]graph.Edge, n)
	for i := range edges {
		edges[i] = graph.Edge{From: from[i], To: to[i], Weight: weight[i], Bus: bus[i], Span: span[i]}
	}
	return edges, nil
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxString {
		return nil, fmt.Errorf("length %d exceeds limit %d", n, maxString)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Zero-copy I/O helpers using unsafe.Slice.

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt32Slice(w io.Writer, s []int32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	s := make([]uint32, n)
	if n == 0 {
		return s, nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt32Slice(r io.Reader, n int) ([]int32, error) {
	s := make([]int32, n)
	if n == 0 {
		return s, nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	s := make([]float64, n)
	if n == 0 {
		return s, nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

// CRC32 wrapping writers/readers.

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
