package chcontract

import "github.com/azybler/chmatrix/pkg/chgraph"

const (
	maxSettled = 500 // max nodes settled during one witness search
	maxHops    = 5   // max hops from the search's source
)

// witnessHeapItem is an entry in the witness search min-heap.
type witnessHeapItem struct {
	node chgraph.NodeID
	dist chgraph.Weight
	hops int
}

// witnessHeap is a concrete-typed binary min-heap ordered by dist.
type witnessHeap struct {
	items []witnessHeapItem
}

func (h *witnessHeap) Len() int { return len(h.items) }

func (h *witnessHeap) Push(node chgraph.NodeID, dist chgraph.Weight, hops int) {
	h.items = append(h.items, witnessHeapItem{node, dist, hops})
	h.siftUp(len(h.items) - 1)
}

func (h *witnessHeap) Pop() witnessHeapItem {
	top := h.items[0]
	n := len(h.items) - 1
	h.items[0] = h.items[n]
	h.items = h.items[:n]
	if n > 0 {
		h.siftDown(0)
	}
	return top
}

func (h *witnessHeap) siftUp(i int) {
	item := h.items[i]
	for i > 0 {
		parent := (i - 1) / 2
		if item.dist >= h.items[parent].dist {
			break
		}
		h.items[i] = h.items[parent]
		i = parent
	}
	h.items[i] = item
}

func (h *witnessHeap) siftDown(i int) {
	n := len(h.items)
	item := h.items[i]
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if right := child + 1; right < n && h.items[right].dist < h.items[child].dist {
			child = right
		}
		if item.dist <= h.items[child].dist {
			break
		}
		h.items[i] = h.items[child]
		i = child
	}
	h.items[i] = item
}

func (h *witnessHeap) Reset() {
	h.items = h.items[:0]
}

// maxWeight is a sentinel larger than any real distance a witness search
// will compare against; chosen well under the int32 overflow boundary so
// additions against it during relaxation never wrap.
const maxWeight chgraph.Weight = 1 << 30

// witnessState holds reusable state for batch witness searches, avoiding
// per-call allocation via a touched-list reset pattern.
type witnessState struct {
	dist    []chgraph.Weight
	touched []chgraph.NodeID
	heap    witnessHeap
}

func newWitnessState(numNodes uint32) *witnessState {
	dist := make([]chgraph.Weight, numNodes)
	for i := range dist {
		dist[i] = maxWeight
	}
	return &witnessState{
		dist: dist,
		heap: witnessHeap{items: make([]witnessHeapItem, 0, 256)},
	}
}

func (ws *witnessState) reset() {
	for _, n := range ws.touched {
		ws.dist[n] = maxWeight
	}
	ws.touched = ws.touched[:0]
	ws.heap.Reset()
}

// batchWitnessSearch runs a single Dijkstra from source (excluding the node
// being contracted) bounded by weight only, matching contraction-hierarchy
// theory: a shortcut is redundant exactly when a witness path of no greater
// total weight exists, irrespective of duration.
func batchWitnessSearch(ws *witnessState, outAdj [][]adjEntry, source, excluded chgraph.NodeID, bound chgraph.Weight, contracted []bool) {
	ws.reset()

	ws.dist[source] = 0
	ws.touched = append(ws.touched, source)
	ws.heap.Push(source, 0, 0)

	settled := 0

	for ws.heap.Len() > 0 {
		cur := ws.heap.Pop()

		if cur.dist > ws.dist[cur.node] {
			continue
		}

		settled++
		if settled >= maxSettled {
			break
		}

		if cur.dist > bound {
			continue
		}
		if cur.hops >= maxHops {
			continue
		}

		for _, e := range outAdj[cur.node] {
			if e.to == excluded || contracted[e.to] {
				continue
			}

			newDist := cur.dist + e.weight
			if newDist > bound {
				continue
			}

			if newDist < ws.dist[e.to] {
				if ws.dist[e.to] == maxWeight {
					ws.touched = append(ws.touched, e.to)
				}
				ws.dist[e.to] = newDist
				ws.heap.Push(e.to, newDist, cur.hops+1)
			}
		}
	}
}
