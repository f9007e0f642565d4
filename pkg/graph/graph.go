package graph

// NoBus marks an edge that does not belong to a bus (a wait edge).
const NoBus = int32(-1)

// Edge is a directed weighted edge. Wait edges carry Bus == NoBus and Span == 0.
type Edge struct {
	From   uint32
	To     uint32
	Weight float64 // minutes
	Bus    int32   // index into the bus table, or NoBus
	Span   uint32  // number of stops traversed by a ride edge
}

// IsWait reports whether e models waiting at a stop.
func (e Edge) IsWait() bool { return e.Bus == NoBus }

// Graph is a directed graph stored as a flat edge arena plus a CSR index.
// Edge ids are positions in Edges and stay stable for the graph's lifetime.
type Graph struct {
	NumVertices uint32
	Edges       []Edge   // edge arena in insertion order
	FirstOut    []uint32 // len: NumVertices + 1; FirstOut[v]..FirstOut[v+1] index into Out
	Out         []uint32 // edge ids grouped by source vertex
}

// NumEdges returns the number of edges.
func (g *Graph) NumEdges() uint32 { return uint32(len(g.Edges)) }

// EdgesFrom returns the range of Out positions for edges originating from v.
func (g *Graph) EdgesFrom(v uint32) (start, end uint32) {
	return g.FirstOut[v], g.FirstOut[v+1]
}

// Edge returns the edge with the given id. An out-of-range id is a build bug
// and panics.
func (g *Graph) Edge(id uint32) Edge {
	return g.Edges[id]
}
