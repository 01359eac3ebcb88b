// Package chbuild turns parsed OSM edges into the directed base graph
// contraction starts from, restricted to its largest connected component.
// Unlike the final contracted graph, the base graph has no notion of
// per-edge forward/backward flags: a bidirectional way segment is
// materialized as two independent directed arcs.
package chbuild

import (
	"sort"

	"github.com/paulmach/osm"

	"github.com/azybler/chmatrix/pkg/chgraph"
	"github.com/azybler/chmatrix/pkg/chspeed"
	osmparser "github.com/azybler/chmatrix/pkg/osm"
)

// Arc is one directed CSR entry of a BaseGraph.
type Arc struct {
	Target   chgraph.NodeID
	Weight   chgraph.Weight
	Duration chgraph.Weight
}

// BaseGraph is a plain directed CSR graph: the uncontracted road network,
// before any shortcut has been added.
type BaseGraph struct {
	NumNodes  uint32
	FirstEdge []uint32
	Edges     []Arc
}

// EdgesFrom returns node u's outgoing arc range.
func (g *BaseGraph) EdgesFrom(u chgraph.NodeID) []Arc {
	return g.Edges[g.FirstEdge[u]:g.FirstEdge[u+1]]
}

// Result bundles a BaseGraph with the node coordinates chcontract and
// chstore need alongside it.
type Result struct {
	Graph   *BaseGraph
	NodeLat []float64
	NodeLon []float64
}

// Build compacts parsed OSM node IDs into a dense NodeID space and expands
// each way segment into one or two directed arcs depending on its
// Forward/Backward flags.
func Build(result *osmparser.ParseResult) *Result {
	edges := result.Edges
	if len(edges) == 0 {
		return &Result{Graph: &BaseGraph{FirstEdge: []uint32{0}}}
	}

	nodeSet := make(map[osm.NodeID]chgraph.NodeID)
	var nodeIDs []osm.NodeID
	addNode := func(id osm.NodeID) chgraph.NodeID {
		if idx, ok := nodeSet[id]; ok {
			return idx
		}
		idx := chgraph.NodeID(len(nodeIDs))
		nodeSet[id] = idx
		nodeIDs = append(nodeIDs, id)
		return idx
	}
	for i := range edges {
		addNode(edges[i].FromNodeID)
		addNode(edges[i].ToNodeID)
	}
	numNodes := uint32(len(nodeIDs))

	type directedArc struct {
		from, to chgraph.NodeID
		weight   chgraph.Weight
		duration chgraph.Weight
	}
	var arcs []directedArc
	for _, e := range edges {
		from := nodeSet[e.FromNodeID]
		to := nodeSet[e.ToNodeID]
		w := chgraph.Weight(e.DistanceMM)
		d := chgraph.Weight(chspeed.Duration(e.DistanceMM, e.Highway))
		if e.Forward {
			arcs = append(arcs, directedArc{from, to, w, d})
		}
		if e.Backward {
			arcs = append(arcs, directedArc{to, from, w, d})
		}
	}

	sort.Slice(arcs, func(i, j int) bool {
		if arcs[i].from != arcs[j].from {
			return arcs[i].from < arcs[j].from
		}
		return arcs[i].to < arcs[j].to
	})

	numArcs := uint32(len(arcs))
	firstEdge := make([]uint32, numNodes+1)
	baseArcs := make([]Arc, numArcs)
	for i, a := range arcs {
		baseArcs[i] = Arc{Target: a.to, Weight: a.weight, Duration: a.duration}
		firstEdge[a.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		firstEdge[i] += firstEdge[i-1]
	}

	nodeLat := make([]float64, numNodes)
	nodeLon := make([]float64, numNodes)
	for id, idx := range nodeSet {
		nodeLat[idx] = result.NodeLat[id]
		nodeLon[idx] = result.NodeLon[id]
	}

	return &Result{
		Graph:   &BaseGraph{NumNodes: numNodes, FirstEdge: firstEdge, Edges: baseArcs},
		NodeLat: nodeLat,
		NodeLon: nodeLon,
	}
}
