// Package bucketjoin combines a source's forward buckets with a target's
// backward buckets wherever they share a middle node, picking the
// lexicographically smallest (weight, duration) over every shared middle
// node, and correcting for the negative self-loop artifact CH contraction
// can leave behind.
package bucketjoin

import (
	"sort"

	"github.com/azybler/chmatrix/pkg/chgraph"
	"github.com/azybler/chmatrix/pkg/chsearch"
)

// Cell is one entry of a many-to-many result matrix: either unreached
// (Valid == false) or the cheapest (weight, duration) found.
type Cell struct {
	Weight   chgraph.Weight
	Duration chgraph.Weight
	Valid    bool
}

// update keeps the lexicographically smallest (weight, duration) seen so
// far: a candidate replaces the current cell if it is unset, or if
// (weight, duration) is strictly smaller in lexicographic order.
func (c *Cell) update(weight, duration chgraph.Weight) {
	if !c.Valid || weight < c.Weight || (weight == c.Weight && duration < c.Duration) {
		c.Weight = weight
		c.Duration = duration
		c.Valid = true
	}
}

// SortByMiddleNode sorts buckets in place by MiddleNode, the precondition
// Join requires of targetBuckets for its binary-search equal-range lookup.
func SortByMiddleNode(buckets []chsearch.Bucket) {
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].MiddleNode < buckets[j].MiddleNode
	})
}

// Join produces one Cell per target column by pairing every sourceBucket
// against every targetBucket sharing the same middle node. targetBuckets
// must already be sorted by MiddleNode (see SortByMiddleNode); sourceBuckets
// need not be sorted. graph supplies the self-loop edges used to correct
// negative-weight candidates.
func Join(graph *chgraph.Graph, sourceBuckets []chsearch.Bucket, targetBuckets []chsearch.Bucket, numTargets int) []Cell {
	results := make([]Cell, numTargets)

	for _, sb := range sourceBuckets {
		lo, hi := equalRange(targetBuckets, sb.MiddleNode)
		for _, tb := range targetBuckets[lo:hi] {
			nw := sb.Weight + tb.Weight
			nd := sb.Duration + tb.Duration

			if nw < 0 {
				lw, ld, ok := selfLoopMinima(graph, sb.MiddleNode)
				if !ok || nw+lw < 0 {
					continue
				}
				nw += lw
				nd += ld
			}

			results[tb.ColumnIndex].update(nw, nd)
		}
	}
	return results
}

// equalRange returns the [lo, hi) slice bounds of entries in buckets (sorted
// by MiddleNode) whose MiddleNode equals node.
func equalRange(buckets []chsearch.Bucket, node chgraph.NodeID) (int, int) {
	lo := sort.Search(len(buckets), func(i int) bool {
		return buckets[i].MiddleNode >= node
	})
	hi := sort.Search(len(buckets), func(i int) bool {
		return buckets[i].MiddleNode > node
	})
	return lo, hi
}

// selfLoopMinima finds the minimum weight and minimum duration among node's
// self-loop edges (edges whose target is node itself), computed as two
// independent minima rather than the weight and duration of a single
// cheapest loop: the cheapest-weight loop and the cheapest-duration loop
// need not be the same edge. Returns ok=false if node has no self-loop.
//
// This corrects a CH contraction artifact: a negative-weight shortcut can
// make a candidate joined through a node read as cheaper than it is, and
// adding the weight of that node's self-loop undoes the deficit. A
// candidate that joins through such a node with nw < 0 is only valid once
// corrected by the node's loop minima; if
// even the correction leaves it negative, the candidate is spurious and
// must be discarded rather than reported.
func selfLoopMinima(graph *chgraph.Graph, node chgraph.NodeID) (minWeight, minDuration chgraph.Weight, ok bool) {
	for e := range graph.AdjacentEdges(node, chgraph.Forward) {
		if e.Target != node {
			continue
		}
		if !ok || e.Weight < minWeight {
			minWeight = e.Weight
		}
		if !ok || e.Duration < minDuration {
			minDuration = e.Duration
		}
		ok = true
	}
	return minWeight, minDuration, ok
}
