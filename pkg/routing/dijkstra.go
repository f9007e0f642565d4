package routing

import (
	"math"

	"github.com/azybler/transit_router/pkg/graph"
)

const noEdge = ^uint32(0) // sentinel for "no predecessor edge"

// MinHeap is a concrete-typed min-heap for the Dijkstra priority queue.
// Avoids interface boxing overhead of container/heap.
type MinHeap struct {
	items []PQItem
}

// PQItem is a priority queue entry.
type PQItem struct {
	Vertex uint32
	Dist   float64
}

func (h *MinHeap) Len() int { return len(h.items) }

func (h *MinHeap) Push(vertex uint32, dist float64) {
	h.items = append(h.items, PQItem{vertex, dist})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap) Pop() PQItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

func (h *MinHeap) PeekDist() float64 {
	if len(h.items) == 0 {
		return math.Inf(1)
	}
	return h.items[0].Dist
}

func (h *MinHeap) Reset() {
	h.items = h.items[:0]
}

func (h *MinHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].Dist >= h.items[parent].Dist {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.items[left].Dist < h.items[smallest].Dist {
			smallest = left
		}
		if right < n && h.items[right].Dist < h.items[smallest].Dist {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// QueryState holds per-query scratch for one shortest-path search.
// A QueryState is owned by exactly one FindRoute call at a time.
type QueryState struct {
	Dist     []float64
	PredEdge []uint32 // edge id that settled each vertex (noEdge = none)
	Touched  []uint32 // vertices touched during this query (for fast reset)
	PQ       MinHeap
}

// NewQueryState creates a new QueryState for a graph with n vertices.
func NewQueryState(n uint32) *QueryState {
	dist := make([]float64, n)
	pred := make([]uint32, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		pred[i] = noEdge
	}
	return &QueryState{
		Dist:     dist,
		PredEdge: pred,
		Touched:  make([]uint32, 0, 64),
		PQ:       MinHeap{items: make([]PQItem, 0, 64)},
	}
}

// Reset clears only the touched entries for fast reuse.
func (qs *QueryState) Reset() {
	for _, v := range qs.Touched {
		qs.Dist[v] = math.Inf(1)
		qs.PredEdge[v] = noEdge
	}
	qs.Touched = qs.Touched[:0]
	qs.PQ.Reset()
}

func (qs *QueryState) touch(v uint32, dist float64, pred uint32) {
	if math.IsInf(qs.Dist[v], 1) {
		qs.Touched = append(qs.Touched, v)
	}
	qs.Dist[v] = dist
	qs.PredEdge[v] = pred
}

// shortestPath runs Dijkstra from source and stops once target is settled.
// Returns false if target is unreachable.
func shortestPath(g *graph.Graph, qs *QueryState, source, target uint32) bool {
	qs.touch(source, 0, noEdge)
	qs.PQ.Push(source, 0)

	for qs.PQ.Len() > 0 {
		item := qs.PQ.Pop()
		u := item.Vertex
		if item.Dist > qs.Dist[u] {
			continue // stale entry
		}
		if u == target {
			return true
		}

		start, end := g.EdgesFrom(u)
		for k := start; k < end; k++ {
			id := g.Out[k]
			e := &g.Edges[id]
			newDist := item.Dist + e.Weight
			if newDist < qs.Dist[e.To] {
				qs.touch(e.To, newDist, id)
				qs.PQ.Push(e.To, newDist)
			}
		}
	}
	return false
}

// pathEdges walks predecessor edges back from target and returns the edge ids
// in travel order.
func pathEdges(g *graph.Graph, qs *QueryState, source, target uint32) []uint32 {
	var ids []uint32
	for v := target; v != source; {
		id := qs.PredEdge[v]
		if id == noEdge {
			panic("routing: broken predecessor chain")
		}
		ids = append(ids, id)
		v = g.Edges[id].From
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}
