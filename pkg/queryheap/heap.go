// Package queryheap implements a min-priority queue keyed by node ID,
// specialized for the small-integer-domain case a CH search runs in:
// pushing an already-present node re-keys it in place, and the payload of
// a node is retained even after it has been popped, which is what lets the
// search layer's stall-on-demand check peek at settled neighbors.
package queryheap

import "github.com/azybler/chmatrix/pkg/chgraph"

// Query is a search seed or frontier candidate. Parent is carried through
// for a possible future path-reconstruction extension and is never
// consulted by the cost algorithm or by heap ordering.
type Query struct {
	Node     chgraph.NodeID
	Parent   chgraph.NodeID
	Weight   chgraph.Weight
	Duration chgraph.Weight
}

// heapEntry is one slot of the order-heap: a reference to a payload plus
// the weight it was last keyed by (kept alongside the payload slot so the
// heap's sift comparisons never have to chase a pointer back into payload).
type heapEntry struct {
	slot   int
	weight chgraph.Weight
}

// QueryHeap separates heap order from payload storage: popping a node
// removes it from the order-heap but never frees its payload slot, so Get
// keeps returning the latest pushed value for any node ever seen.
type QueryHeap struct {
	order   []heapEntry
	pos     []int // pos[slot] = index into order, or -1 if not currently heaped
	payload []Query
	slotOf  map[chgraph.NodeID]int
}

// New creates an empty QueryHeap.
func New() *QueryHeap {
	return &QueryHeap{slotOf: make(map[chgraph.NodeID]int)}
}

// Len reports the number of entries currently in the heap (popped nodes,
// though still retained for Get, do not count).
func (h *QueryHeap) Len() int { return len(h.order) }

// Push inserts q, or if a query for q.Node is already present, updates its
// payload and re-keys it (decrease or increase) by q.Weight.
func (h *QueryHeap) Push(q Query) {
	slot, seen := h.slotOf[q.Node]
	if !seen {
		slot = len(h.payload)
		h.payload = append(h.payload, q)
		h.pos = append(h.pos, -1)
		h.slotOf[q.Node] = slot
		h.heapPush(slot, q.Weight)
		return
	}

	h.payload[slot] = q
	if h.pos[slot] == -1 {
		// Was popped earlier; pushing again re-inserts it into the order.
		h.heapPush(slot, q.Weight)
		return
	}
	h.reKey(slot, q.Weight)
}

// Pop removes and returns the query with the smallest current weight. Its
// payload remains retrievable via Get.
func (h *QueryHeap) Pop() (Query, bool) {
	if len(h.order) == 0 {
		return Query{}, false
	}
	top := h.order[0]
	h.removeRoot()
	return h.payload[top.slot], true
}

// Get returns the current payload for node, without mutating the heap.
// Returns false if node was never pushed.
func (h *QueryHeap) Get(node chgraph.NodeID) (Query, bool) {
	slot, ok := h.slotOf[node]
	if !ok {
		return Query{}, false
	}
	return h.payload[slot], true
}

// --- binary heap over heapEntry, ordered by weight, indexed by slot ---

func (h *QueryHeap) heapPush(slot int, weight chgraph.Weight) {
	i := len(h.order)
	h.order = append(h.order, heapEntry{slot: slot, weight: weight})
	h.pos[slot] = i
	h.siftUp(i)
}

// reKey updates the weight of an already-heaped slot and restores heap
// order; works for both decrease and increase.
func (h *QueryHeap) reKey(slot int, weight chgraph.Weight) {
	i := h.pos[slot]
	old := h.order[i].weight
	h.order[i].weight = weight
	if weight < old {
		h.siftUp(i)
	} else if weight > old {
		h.siftDown(i)
	}
}

func (h *QueryHeap) removeRoot() {
	n := len(h.order) - 1
	h.pos[h.order[0].slot] = -1
	if n == 0 {
		h.order = h.order[:0]
		return
	}
	h.order[0] = h.order[n]
	h.pos[h.order[0].slot] = 0
	h.order = h.order[:n]
	h.siftDown(0)
}

// siftUp/siftDown use hole-sift: the moving entry is saved once and written
// back after its final position is found, rather than swapped level by
// level.
func (h *QueryHeap) siftUp(i int) {
	entry := h.order[i]
	for i > 0 {
		parent := (i - 1) / 2
		if entry.weight >= h.order[parent].weight {
			break
		}
		h.order[i] = h.order[parent]
		h.pos[h.order[i].slot] = i
		i = parent
	}
	h.order[i] = entry
	h.pos[entry.slot] = i
}

func (h *QueryHeap) siftDown(i int) {
	n := len(h.order)
	entry := h.order[i]
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		smallest := left
		if right := left + 1; right < n && h.order[right].weight < h.order[left].weight {
			smallest = right
		}
		if entry.weight <= h.order[smallest].weight {
			break
		}
		h.order[i] = h.order[smallest]
		h.pos[h.order[i].slot] = i
		i = smallest
	}
	h.order[i] = entry
	h.pos[entry.slot] = i
}
