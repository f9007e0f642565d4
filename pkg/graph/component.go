package graph

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte // rank grows logarithmically
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	for i := range n {
		parent[i] = i
	}
	return &UnionFind{parent: parent, rank: make([]byte, n)}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}

	// Union by rank.
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// Components labels every vertex with a weakly connected component id
// (edges treated as undirected). Ids are dense, assigned in vertex order.
// Two vertices with different labels can never reach each other.
func Components(g *Graph) (labels []uint32, count uint32) {
	if g.NumVertices == 0 {
		return nil, 0
	}

	uf := NewUnionFind(g.NumVertices)
	for _, e := range g.Edges {
		uf.Union(e.From, e.To)
	}

	labels = make([]uint32, g.NumVertices)
	byRoot := make(map[uint32]uint32)
	for v := range g.NumVertices {
		root := uf.Find(v)
		id, ok := byRoot[root]
		if !ok {
			id = count
			byRoot[root] = id
			count++
		}
		labels[v] = id
	}
	return labels, count
}

// LargestComponentSize returns the vertex count of the largest weakly
// connected component.
func LargestComponentSize(labels []uint32, count uint32) uint32 {
	if count == 0 {
		return 0
	}
	sizes := make([]uint32, count)
	var best uint32
	for _, l := range labels {
		sizes[l]++
		if sizes[l] > best {
			best = sizes[l]
		}
	}
	return best
}
