package graph

import "fmt"

// Builder accumulates edges for a graph with a fixed vertex count.
type Builder struct {
	numVertices uint32
	edges       []Edge
}

// NewBuilder creates a builder for n vertices.
func NewBuilder(n uint32) *Builder {
	return &Builder{numVertices: n}
}

// AddEdge appends an edge and returns its id.
func (b *Builder) AddEdge(e Edge) uint32 {
	if e.From >= b.numVertices || e.To >= b.numVertices {
		panic(fmt.Sprintf("graph: edge %d->%d out of range (%d vertices)", e.From, e.To, b.numVertices))
	}
	if e.Weight < 0 {
		panic(fmt.Sprintf("graph: negative weight %f on edge %d->%d", e.Weight, e.From, e.To))
	}
	b.edges = append(b.edges, e)
	return uint32(len(b.edges) - 1)
}

// Build freezes the accumulated edges into a Graph.
func (b *Builder) Build() *Graph {
	return Build(b.numVertices, b.edges)
}

// Build creates a Graph from an edge list. Edge ids follow the order of edges.
func Build(numVertices uint32, edges []Edge) *Graph {
	numEdges := uint32(len(edges))
	firstOut := make([]uint32, numVertices+1)
	out := make([]uint32, numEdges)

	// Count edges per vertex.
	for _, e := range edges {
		firstOut[e.From+1]++
	}
	// Prefix sum.
	for i := uint32(1); i <= numVertices; i++ {
		firstOut[i] += firstOut[i-1]
	}

	// Place edge ids into CSR order. Stable: ids from one vertex keep insertion order.
	pos := make([]uint32, numVertices)
	copy(pos, firstOut[:numVertices])
	for id, e := range edges {
		out[pos[e.From]] = uint32(id)
		pos[e.From]++
	}

	return &Graph{
		NumVertices: numVertices,
		Edges:       edges,
		FirstOut:    firstOut,
		Out:         out,
	}
}

// Validate checks CSR and arena invariants.
func (g *Graph) Validate() error {
	if uint32(len(g.FirstOut)) != g.NumVertices+1 {
		return fmt.Errorf("FirstOut length %d != NumVertices+1 %d", len(g.FirstOut), g.NumVertices+1)
	}
	if g.FirstOut[g.NumVertices] != g.NumEdges() || uint32(len(g.Out)) != g.NumEdges() {
		return fmt.Errorf("Out length %d, FirstOut[NumVertices] %d, edges %d",
			len(g.Out), g.FirstOut[g.NumVertices], g.NumEdges())
	}
	for i := uint32(1); i <= g.NumVertices; i++ {
		if g.FirstOut[i] < g.FirstOut[i-1] {
			return fmt.Errorf("FirstOut not monotonic at %d: %d < %d", i, g.FirstOut[i], g.FirstOut[i-1])
		}
	}
	for i, e := range g.Edges {
		if e.From >= g.NumVertices || e.To >= g.NumVertices {
			return fmt.Errorf("edge %d: %d->%d out of range (%d vertices)", i, e.From, e.To, g.NumVertices)
		}
		if e.Weight < 0 {
			return fmt.Errorf("edge %d: negative weight %f", i, e.Weight)
		}
	}
	return nil
}
