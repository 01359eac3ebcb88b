// Package chsearch implements the one-sided CH Dijkstra search that the
// many-to-many orchestrator runs once per source (forward) and once per
// target (backward), with CH's stall-on-demand pruning.
package chsearch

import (
	"github.com/azybler/chmatrix/pkg/chgraph"
	"github.com/azybler/chmatrix/pkg/queryheap"
)

// Bucket records "from middle_node, reaching column_index costs
// (weight, duration)". It is the sole artifact that survives between the
// backward and forward phases of a many-to-many computation.
type Bucket struct {
	MiddleNode  chgraph.NodeID
	ColumnIndex int
	Weight      chgraph.Weight
	Duration    chgraph.Weight
}

// Search drives a monotone CH search from a set of seed queries in one
// direction, emitting a bucket for every settled node.
type Search struct {
	graph     *chgraph.Graph
	direction chgraph.Direction
	owner     int // the row or column index every emitted bucket is stamped with
	seeds     []queryheap.Query
}

// New creates a Search. direction is Forward for a source's search,
// Backward for a target's. owner is the row (source) or column (target)
// index carried into every Bucket this search emits.
func New(graph *chgraph.Graph, direction chgraph.Direction, owner int, seeds []queryheap.Query) *Search {
	return &Search{graph: graph, direction: direction, owner: owner, seeds: seeds}
}

// Perform runs the search to heap exhaustion and returns one bucket per
// settled node. CH's node-ordering property bounds the frontier size in
// practice; there is no explicit cutoff.
func (s *Search) Perform() []Bucket {
	heap := queryheap.New()
	for _, q := range s.seeds {
		heap.Push(q)
	}

	var buckets []Bucket
	for {
		q, ok := heap.Pop()
		if !ok {
			break
		}
		buckets = append(buckets, Bucket{
			MiddleNode:  q.Node,
			ColumnIndex: s.owner,
			Weight:      q.Weight,
			Duration:    q.Duration,
		})
		relaxOutgoingEdges(s.graph, heap, s.direction, q.Node, q.Weight, q.Duration)
	}
	return buckets
}

// stallAtNode is CH's pruning optimization: node was reached via a
// suboptimal route if some already-settled neighbor, approached from the
// opposite direction, offers a cheaper way in.
func stallAtNode(graph *chgraph.Graph, heap *queryheap.QueryHeap, direction chgraph.Direction, node chgraph.NodeID, weight chgraph.Weight) bool {
	for edge := range graph.AdjacentEdges(node, direction.Opposite()) {
		if q, ok := heap.Get(edge.Target); ok {
			if q.Weight+edge.Weight < weight {
				return true
			}
		}
	}
	return false
}

// relaxOutgoingEdges pushes a candidate for every edge out of node in the
// forward sense of direction, unless stallAtNode determines node itself was
// reached suboptimally, in which case no relaxation happens at all.
//
// Duration accumulates from duration, never from weight: an edge's
// duration is added to the running duration, independently of the weight
// sum. A sibling implementation that computed
// `duration: weight + edge.duration` would silently corrupt every
// duration in the result; that form must never be used here.
func relaxOutgoingEdges(graph *chgraph.Graph, heap *queryheap.QueryHeap, direction chgraph.Direction, node chgraph.NodeID, weight, duration chgraph.Weight) {
	if stallAtNode(graph, heap, direction, node, weight) {
		return
	}

	for edge := range graph.AdjacentEdges(node, direction) {
		candidate := queryheap.Query{
			Node:     edge.Target,
			Parent:   node,
			Weight:   weight + edge.Weight,
			Duration: duration + edge.Duration,
		}
		if current, ok := heap.Get(edge.Target); ok {
			if lexLess(candidate.Weight, candidate.Duration, current.Weight, current.Duration) {
				heap.Push(candidate)
			}
			continue
		}
		heap.Push(candidate)
	}
}

func lexLess(w1, d1, w2, d2 chgraph.Weight) bool {
	if w1 != w2 {
		return w1 < w2
	}
	return d1 < d2
}
