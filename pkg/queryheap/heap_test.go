package queryheap

import (
	"math/rand"
	"testing"

	"github.com/azybler/chmatrix/pkg/chgraph"
)

func TestPushPopOrdersByWeight(t *testing.T) {
	h := New()
	h.Push(Query{Node: 1, Weight: 30})
	h.Push(Query{Node: 2, Weight: 10})
	h.Push(Query{Node: 3, Weight: 20})

	var order []chgraph.NodeID
	for {
		q, ok := h.Pop()
		if !ok {
			break
		}
		order = append(order, q.Node)
	}
	want := []chgraph.NodeID{2, 3, 1}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPushDecreaseKeyReordersPop(t *testing.T) {
	h := New()
	h.Push(Query{Node: 1, Weight: 100})
	h.Push(Query{Node: 2, Weight: 50})
	h.Push(Query{Node: 1, Weight: 1}) // decrease-key on node 1

	q, ok := h.Pop()
	if !ok || q.Node != 1 || q.Weight != 1 {
		t.Fatalf("Pop() = %+v, %v, want node 1 weight 1", q, ok)
	}
}

func TestPushIncreaseKeyReordersPop(t *testing.T) {
	h := New()
	h.Push(Query{Node: 1, Weight: 1})
	h.Push(Query{Node: 2, Weight: 50})
	h.Push(Query{Node: 1, Weight: 1000}) // increase-key on node 1

	q, ok := h.Pop()
	if !ok || q.Node != 2 {
		t.Fatalf("Pop() = %+v, want node 2 first", q)
	}
}

// After push(q1); push(q2) with q1.node == q2.node, Get(q1.node) returns
// the most recently pushed payload regardless of relative weight.
func TestGetReturnsMostRecentPushRegardlessOfWeight(t *testing.T) {
	h := New()
	h.Push(Query{Node: 5, Parent: 1, Weight: 10, Duration: 10})
	h.Push(Query{Node: 5, Parent: 2, Weight: 999, Duration: 999}) // heavier, still "most recent"

	got, ok := h.Get(5)
	if !ok {
		t.Fatal("Get(5) = false, want true")
	}
	if got.Parent != 2 || got.Weight != 999 {
		t.Fatalf("Get(5) = %+v, want most recent push (parent=2, weight=999)", got)
	}
}

// Payload retention across pop is load-bearing for stall-on-demand.
func TestGetRetainsPayloadAfterPop(t *testing.T) {
	h := New()
	h.Push(Query{Node: 7, Weight: 5})
	popped, ok := h.Pop()
	if !ok || popped.Node != 7 {
		t.Fatalf("Pop() = %+v, %v", popped, ok)
	}

	got, ok := h.Get(7)
	if !ok {
		t.Fatal("Get(7) after pop = false, want true (payload must be retained)")
	}
	if got.Weight != 5 {
		t.Fatalf("Get(7).Weight = %d, want 5", got.Weight)
	}
}

func TestGetUnseenNodeReturnsFalse(t *testing.T) {
	h := New()
	h.Push(Query{Node: 1, Weight: 1})
	if _, ok := h.Get(42); ok {
		t.Fatal("Get(42) = true, want false for an unseen node")
	}
}

func TestPushAfterPopReinsertsIntoOrder(t *testing.T) {
	h := New()
	h.Push(Query{Node: 1, Weight: 1})
	h.Push(Query{Node: 2, Weight: 2})
	h.Pop() // pops node 1, retains its payload

	h.Push(Query{Node: 1, Weight: 0}) // re-insert with a new, lower weight
	q, ok := h.Pop()
	if !ok || q.Node != 1 || q.Weight != 0 {
		t.Fatalf("Pop() = %+v, %v, want re-inserted node 1 weight 0", q, ok)
	}
}

func TestRandomizedHeapOrderMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	h := New()
	want := make(map[chgraph.NodeID]chgraph.Weight)

	const n = 500
	for i := 0; i < n; i++ {
		node := chgraph.NodeID(rng.Intn(n / 2))
		w := chgraph.Weight(rng.Intn(10000) - 5000)
		h.Push(Query{Node: node, Weight: w})
		want[node] = w
	}

	var lastWeight chgraph.Weight
	first := true
	seen := make(map[chgraph.NodeID]bool)
	for {
		q, ok := h.Pop()
		if !ok {
			break
		}
		if !first && q.Weight < lastWeight {
			t.Fatalf("pop order violated: got weight %d after %d", q.Weight, lastWeight)
		}
		if w, ok := want[q.Node]; !ok || w != q.Weight {
			t.Fatalf("popped node %d weight %d, want %d", q.Node, q.Weight, want[q.Node])
		}
		seen[q.Node] = true
		lastWeight = q.Weight
		first = false
	}
	if len(seen) != len(want) {
		t.Fatalf("popped %d distinct nodes, want %d", len(seen), len(want))
	}
}
