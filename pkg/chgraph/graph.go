// Package chgraph implements the read-only contraction-hierarchies graph
// abstraction the many-to-many search runs on: a CSR node/edge layout with
// an edge-inclusion bitmap, exposing only the adjacency iteration the
// search layer needs.
package chgraph

import (
	"fmt"
	"iter"

	"github.com/azybler/chmatrix/pkg/bitpack"
)

// NodeID indexes into the dense node array.
type NodeID uint32

// Weight is signed because CH shortcut edges can carry a negative weight
// (the self-loop artifact corrected in package bucketjoin). Duration uses
// the same type and is summed independently.
type Weight int32

// Direction selects which logical direction of an edge to traverse.
type Direction uint8

const (
	Forward Direction = iota
	Backward
)

// Opposite swaps Forward and Backward.
func (d Direction) Opposite() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// Edge is an immutable adjacency record. Forward and Backward are
// independent: an edge may be usable in neither, one, or both directions,
// and must never be coalesced into a single direction value.
type Edge struct {
	Target   NodeID
	Weight   Weight
	Duration Weight
	Forward  bool
	Backward bool
}

// Graph is an immutable CSR graph: firstEdge[i]..firstEdge[i+1] names node
// i's adjacency range into edges. firstEdge carries one sentinel entry past
// the last node so every node's range can be read with no branching.
type Graph struct {
	firstEdge []uint32
	edges     []Edge
	include   bitpack.Bitset
}

// New validates and constructs a Graph from CSR arrays. firstEdge must have
// length numNodes+1, be non-decreasing, and its last entry must equal
// len(edges); include must declare exactly len(edges) bits. A violation
// here is a programmer error in the storage layer that produced these
// arrays, not a recoverable runtime condition, so New panics rather than
// returning an error.
func New(numNodes uint32, firstEdge []uint32, edges []Edge, include bitpack.Bitset) *Graph {
	if uint32(len(firstEdge)) != numNodes+1 {
		panic(fmt.Sprintf("chgraph: firstEdge has %d entries, want %d", len(firstEdge), numNodes+1))
	}
	for i := 1; i < len(firstEdge); i++ {
		if firstEdge[i] < firstEdge[i-1] {
			panic(fmt.Sprintf("chgraph: firstEdge not monotonic at %d: %d < %d", i, firstEdge[i], firstEdge[i-1]))
		}
	}
	if int(firstEdge[numNodes]) != len(edges) {
		panic(fmt.Sprintf("chgraph: firstEdge[num_nodes]=%d != len(edges)=%d", firstEdge[numNodes], len(edges)))
	}
	if include.Len() != len(edges) {
		panic(fmt.Sprintf("chgraph: include_edges has %d bits, want %d", include.Len(), len(edges)))
	}
	return &Graph{firstEdge: firstEdge, edges: edges, include: include}
}

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() uint32 {
	return uint32(len(g.firstEdge) - 1)
}

// NumEdges returns the total number of stored edges (including ones masked
// out by the include bitmap).
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// AdjacentEdges yields node n's edges usable in direction d, in stored
// order, filtered to those whose include bit is set. The sequence borrows
// from the graph and is finite; each range over it walks node n's
// adjacency from the start, with no state carried over from an earlier
// range. n out of range is a programmer error.
func (g *Graph) AdjacentEdges(n NodeID, d Direction) iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		start := g.firstEdge[n]
		end := g.firstEdge[n+1]
		for i := start; i < end; i++ {
			if !g.include.Get(int(i)) {
				continue
			}
			e := g.edges[i]
			usable := (d == Forward && e.Forward) || (d == Backward && e.Backward)
			if !usable {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}
