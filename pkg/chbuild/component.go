package chbuild

import "github.com/azybler/chmatrix/pkg/chgraph"

// unionFind implements a disjoint-set data structure with path halving and
// union by rank.
type unionFind struct {
	parent []uint32
	rank   []byte
	size   []uint32
}

func newUnionFind(n uint32) *unionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range parent {
		parent[i] = uint32(i)
		size[i] = 1
	}
	return &unionFind{parent: parent, rank: make([]byte, n), size: size}
}

func (uf *unionFind) find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(x, y uint32) {
	rx, ry := uf.find(x), uf.find(y)
	if rx == ry {
		return
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
}

// LargestComponent returns the node indices of g's largest weakly connected
// component, treating every directed arc as undirected for connectivity.
func LargestComponent(g *BaseGraph) []chgraph.NodeID {
	n := g.NumNodes
	if n == 0 {
		return nil
	}

	uf := newUnionFind(n)
	for u := chgraph.NodeID(0); uint32(u) < n; u++ {
		for _, a := range g.EdgesFrom(u) {
			uf.union(uint32(u), uint32(a.Target))
		}
	}

	bestRoot, bestSize := uint32(0), uint32(0)
	for i := uint32(0); i < n; i++ {
		root := uf.find(i)
		if uf.size[root] > bestSize {
			bestRoot, bestSize = root, uf.size[root]
		}
	}

	nodes := make([]chgraph.NodeID, 0, bestSize)
	for i := uint32(0); i < n; i++ {
		if uf.find(i) == bestRoot {
			nodes = append(nodes, chgraph.NodeID(i))
		}
	}
	return nodes
}

// FilterToComponent rebuilds g (and its parallel lat/lon arrays) containing
// only the given nodes and the arcs fully within them.
func FilterToComponent(g *BaseGraph, nodeLat, nodeLon []float64, nodes []chgraph.NodeID) *Result {
	if len(nodes) == 0 {
		return &Result{Graph: &BaseGraph{FirstEdge: []uint32{0}}}
	}

	oldToNew := make(map[chgraph.NodeID]chgraph.NodeID, len(nodes))
	for newIdx, oldIdx := range nodes {
		oldToNew[oldIdx] = chgraph.NodeID(newIdx)
	}

	numNodes := uint32(len(nodes))
	type arc struct {
		from, to chgraph.NodeID
		weight   chgraph.Weight
		duration chgraph.Weight
	}
	var arcs []arc
	for _, oldU := range nodes {
		for _, a := range g.EdgesFrom(oldU) {
			if newV, ok := oldToNew[a.Target]; ok {
				arcs = append(arcs, arc{oldToNew[oldU], newV, a.Weight, a.Duration})
			}
		}
	}

	numArcs := uint32(len(arcs))
	firstEdge := make([]uint32, numNodes+1)
	for _, a := range arcs {
		firstEdge[a.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		firstEdge[i] += firstEdge[i-1]
	}
	pos := make([]uint32, numNodes)
	copy(pos, firstEdge[:numNodes])
	ordered := make([]Arc, numArcs)
	for _, a := range arcs {
		idx := pos[a.from]
		ordered[idx] = Arc{Target: a.to, Weight: a.weight, Duration: a.duration}
		pos[a.from]++
	}

	newLat := make([]float64, numNodes)
	newLon := make([]float64, numNodes)
	for newIdx, oldIdx := range nodes {
		newLat[newIdx] = nodeLat[oldIdx]
		newLon[newIdx] = nodeLon[oldIdx]
	}

	return &Result{
		Graph:   &BaseGraph{NumNodes: numNodes, FirstEdge: firstEdge, Edges: ordered},
		NodeLat: newLat,
		NodeLon: newLon,
	}
}
