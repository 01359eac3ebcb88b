// Package chcontract performs contraction-hierarchies preprocessing: it
// contracts chbuild's plain directed base graph into chgraph's dual-flagged,
// upward-only query graph, synthesizing shortcut edges along the way.
package chcontract

import (
	"container/heap"
	"log"

	"github.com/azybler/chmatrix/pkg/bitpack"
	"github.com/azybler/chmatrix/pkg/chbuild"
	"github.com/azybler/chmatrix/pkg/chgraph"
)

// maxShortcutsPerNode bounds the shortcuts a single contraction may create.
// Nodes exceeding this form an uncontracted "core" at the top of the
// hierarchy, their original edges preserved as-is.
const maxShortcutsPerNode = 1000

// adjEntry is one entry of the mutable adjacency lists contraction works
// against. middle is -1 for an original edge, else the node whose
// contraction introduced this shortcut.
type adjEntry struct {
	to       chgraph.NodeID
	weight   chgraph.Weight
	duration chgraph.Weight
	middle   int64
}

// Result is a contracted graph paired with the rank contraction assigned
// each node, lowest rank contracted first.
type Result struct {
	Graph *chgraph.Graph
	Rank  []uint32
}

// Contract runs contraction-hierarchies preprocessing on base and returns
// the resulting query graph.
func Contract(base *chbuild.BaseGraph) *Result {
	n := base.NumNodes
	if n == 0 {
		return &Result{Graph: chgraph.New(0, []uint32{0}, nil, bitpack.New(0))}
	}

	outAdj := make([][]adjEntry, n)
	inAdj := make([][]adjEntry, n)
	for u := chgraph.NodeID(0); uint32(u) < n; u++ {
		for _, a := range base.EdgesFrom(u) {
			outAdj[u] = append(outAdj[u], adjEntry{to: a.Target, weight: a.Weight, duration: a.Duration, middle: -1})
			inAdj[a.Target] = append(inAdj[a.Target], adjEntry{to: u, weight: a.Weight, duration: a.Duration, middle: -1})
		}
	}

	contracted := make([]bool, n)
	rank := make([]uint32, n)
	contractedNeighbors := make([]int, n)
	level := make([]int, n)

	pq := make(priorityQueue, n)
	for i := uint32(0); i < n; i++ {
		pq[i] = &pqEntry{
			node:     chgraph.NodeID(i),
			priority: computePriority(outAdj, inAdj, chgraph.NodeID(i), contracted, 0, 0),
			index:    int(i),
		}
	}
	heap.Init(&pq)

	ws := newWitnessState(n)

	log.Printf("chcontract: contracting %d nodes", n)

	var totalShortcuts int
	order := uint32(0)
	logInterval := uint32(50000)

	for pq.Len() > 0 {
		entry := heap.Pop(&pq).(*pqEntry)
		node := entry.node

		if contracted[node] {
			continue
		}

		newPriority := computePriority(outAdj, inAdj, node, contracted, contractedNeighbors[node], level[node])
		if newPriority > entry.priority && pq.Len() > 0 && newPriority > pq[0].priority {
			entry.priority = newPriority
			heap.Push(&pq, entry)
			continue
		}

		shortcuts := findShortcuts(ws, outAdj, inAdj, node, contracted)
		if len(shortcuts) > maxShortcutsPerNode {
			log.Printf("chcontract: stopping at node %d (%d shortcuts > limit %d); %d nodes remain in core",
				node, len(shortcuts), maxShortcutsPerNode, n-order)
			break
		}

		contracted[node] = true
		rank[node] = order
		order++
		totalShortcuts += len(shortcuts)

		for _, sc := range shortcuts {
			outAdj[sc.from] = append(outAdj[sc.from], adjEntry{to: sc.to, weight: sc.weight, duration: sc.duration, middle: int64(node)})
			inAdj[sc.to] = append(inAdj[sc.to], adjEntry{to: sc.from, weight: sc.weight, duration: sc.duration, middle: int64(node)})
		}

		for _, e := range outAdj[node] {
			if !contracted[e.to] {
				contractedNeighbors[e.to]++
				if level[node]+1 > level[e.to] {
					level[e.to] = level[node] + 1
				}
			}
		}
		for _, e := range inAdj[node] {
			if !contracted[e.to] {
				contractedNeighbors[e.to]++
				if level[node]+1 > level[e.to] {
					level[e.to] = level[node] + 1
				}
			}
		}

		remaining := n - order
		switch {
		case remaining < 1000:
			logInterval = 100
		case remaining < 10000:
			logInterval = 1000
		case remaining < 100000:
			logInterval = 10000
		default:
			logInterval = 50000
		}
		if order%logInterval == 0 {
			log.Printf("chcontract: contracted %d/%d nodes, %d shortcuts so far", order, n, totalShortcuts)
		}
	}

	coreSize := uint32(0)
	for i := uint32(0); i < n; i++ {
		if !contracted[i] {
			contracted[i] = true
			rank[i] = order
			order++
			coreSize++
		}
	}

	log.Printf("chcontract: done, %d shortcuts (%.1fx base edges), %d core nodes",
		totalShortcuts, float64(totalShortcuts)/float64(len(base.Edges)+1), coreSize)

	g := buildOverlay(n, outAdj, inAdj, rank)
	return &Result{Graph: g, Rank: rank}
}

// shortcut is a shortcut edge pending insertion into the adjacency lists.
type shortcut struct {
	from, to chgraph.NodeID
	weight   chgraph.Weight
	duration chgraph.Weight
}

// findShortcuts determines which shortcuts are needed when contracting node,
// via batch witness search: one Dijkstra per incoming neighbor rather than
// one per (incoming, outgoing) pair, bringing the search count from
// O(|in|*|out|) down to O(|in|).
func findShortcuts(ws *witnessState, outAdj, inAdj [][]adjEntry, node chgraph.NodeID, contracted []bool) []shortcut {
	var incoming []adjEntry
	for _, e := range inAdj[node] {
		if !contracted[e.to] {
			incoming = append(incoming, e)
		}
	}
	var outgoing []adjEntry
	for _, e := range outAdj[node] {
		if !contracted[e.to] {
			outgoing = append(outgoing, e)
		}
	}
	if len(incoming) == 0 || len(outgoing) == 0 {
		return nil
	}

	var shortcuts []shortcut

	for _, in := range incoming {
		var maxOut chgraph.Weight
		for _, out := range outgoing {
			if out.to != in.to && out.weight > maxOut {
				maxOut = out.weight
			}
		}
		if maxOut == 0 {
			continue
		}

		maxWeight := in.weight + maxOut
		batchWitnessSearch(ws, outAdj, in.to, node, maxWeight, contracted)

		for _, out := range outgoing {
			if out.to == in.to {
				continue
			}
			scWeight := in.weight + out.weight
			if ws.dist[out.to] > scWeight {
				shortcuts = append(shortcuts, shortcut{
					from:     in.to,
					to:       out.to,
					weight:   scWeight,
					duration: in.duration + out.duration,
				})
			}
		}
	}

	return shortcuts
}

// computePriority returns a node's contraction priority; lower contracts
// first. The edge-difference term approximates the shortcut count a full
// witness search would report, traded off for speed during ordering.
func computePriority(outAdj, inAdj [][]adjEntry, node chgraph.NodeID, contracted []bool, contractedNeighbors, level int) int {
	activeIn := 0
	for _, e := range inAdj[node] {
		if !contracted[e.to] {
			activeIn++
		}
	}
	activeOut := 0
	for _, e := range outAdj[node] {
		if !contracted[e.to] {
			activeOut++
		}
	}
	edgeDifference := activeIn*activeOut - (activeIn + activeOut)
	return edgeDifference + 2*contractedNeighbors + level
}

// buildOverlay builds the final dual-flagged query graph from the
// contracted adjacency lists and node ranks. A forward-upward edge u->v
// (rank[u] < rank[v]) is stored at row u with Forward set; the
// corresponding backward-upward entry for an edge v->u (rank[u] < rank[v])
// is stored at row u targeting v with Backward set, so a backward search
// starting at u can walk it directly. When both conditions produce the
// same (u, v) pair, they merge into a single stored edge with both flags
// set rather than two separate records.
func buildOverlay(n uint32, outAdj, inAdj [][]adjEntry, rank []uint32) *chgraph.Graph {
	type key struct {
		u, v chgraph.NodeID
	}
	merged := make(map[key]*chgraph.Edge)
	order := make([]key, 0)

	addEdge := func(u, v chgraph.NodeID, weight, duration chgraph.Weight, forward, backward bool) {
		k := key{u, v}
		if e, ok := merged[k]; ok {
			if forward {
				e.Forward = true
			}
			if backward {
				e.Backward = true
			}
			return
		}
		e := &chgraph.Edge{Target: v, Weight: weight, Duration: duration, Forward: forward, Backward: backward}
		merged[k] = e
		order = append(order, k)
	}

	for u := chgraph.NodeID(0); uint32(u) < n; u++ {
		for _, e := range outAdj[u] {
			if rank[u] < rank[e.to] {
				addEdge(u, e.to, e.weight, e.duration, true, false)
			}
		}
		for _, e := range inAdj[u] {
			if rank[u] < rank[e.to] {
				addEdge(u, e.to, e.weight, e.duration, false, true)
			}
		}
	}

	// Stable ordering by source row, preserving first-seen order within a row.
	byRow := make([][]chgraph.Edge, n)
	for _, k := range order {
		byRow[k.u] = append(byRow[k.u], *merged[key{k.u, k.v}])
	}

	firstEdge := make([]uint32, n+1)
	var edges []chgraph.Edge
	for u := uint32(0); u < n; u++ {
		firstEdge[u] = uint32(len(edges))
		edges = append(edges, byRow[u]...)
	}
	firstEdge[n] = uint32(len(edges))

	include := bitpack.New(len(edges))
	for i := range edges {
		include.Set(i, true)
	}

	log.Printf("chcontract: overlay has %d stored edges", len(edges))

	return chgraph.New(n, firstEdge, edges, include)
}

// Priority queue implementation for contraction ordering.

type pqEntry struct {
	node     chgraph.NodeID
	priority int
	index    int
}

type priorityQueue []*pqEntry

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return pq[i].priority < pq[j].priority }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	entry := x.(*pqEntry)
	entry.index = len(*pq)
	*pq = append(*pq, entry)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*pq = old[:n-1]
	return entry
}
