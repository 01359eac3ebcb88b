package bucketjoin

import (
	"testing"

	"github.com/azybler/chmatrix/pkg/bitpack"
	"github.com/azybler/chmatrix/pkg/chgraph"
	"github.com/azybler/chmatrix/pkg/chsearch"
)

func TestCellUpdateLexicographicOrder(t *testing.T) {
	var c Cell
	c.update(10, 5)
	c.update(10, 3) // same weight, cheaper duration: replaces
	if c.Weight != 10 || c.Duration != 3 {
		t.Fatalf("cell = %+v, want weight=10 duration=3", c)
	}
	c.update(20, 0) // worse weight: ignored
	if c.Weight != 10 || c.Duration != 3 {
		t.Fatalf("cell regressed to %+v", c)
	}
	c.update(5, 999) // better weight wins regardless of duration
	if c.Weight != 5 || c.Duration != 999 {
		t.Fatalf("cell = %+v, want weight=5 duration=999", c)
	}
}

func TestEqualRangeFindsAllMatches(t *testing.T) {
	buckets := []chsearch.Bucket{
		{MiddleNode: 1}, {MiddleNode: 1}, {MiddleNode: 3}, {MiddleNode: 5}, {MiddleNode: 5}, {MiddleNode: 5},
	}
	lo, hi := equalRange(buckets, 5)
	if hi-lo != 3 {
		t.Fatalf("equalRange(5) = [%d,%d), want 3 matches", lo, hi)
	}
	lo, hi = equalRange(buckets, 4)
	if hi != lo {
		t.Fatalf("equalRange(4) = [%d,%d), want empty", lo, hi)
	}
}

func emptyGraph() *chgraph.Graph {
	return chgraph.New(1, []uint32{0, 0}, nil, bitpack.New(0))
}

func TestJoinPicksCheapestAcrossSharedMiddleNodes(t *testing.T) {
	g := emptyGraph()
	sourceBuckets := []chsearch.Bucket{
		{MiddleNode: 10, Weight: 5, Duration: 50},
		{MiddleNode: 20, Weight: 1, Duration: 999},
	}
	targetBuckets := []chsearch.Bucket{
		{MiddleNode: 10, ColumnIndex: 0, Weight: 5, Duration: 50},
		{MiddleNode: 20, ColumnIndex: 0, Weight: 1, Duration: 1},
	}
	SortByMiddleNode(targetBuckets)

	results := Join(g, sourceBuckets, targetBuckets, 1)
	want := chgraph.Weight(2) // via middle node 20: 1+1
	if !results[0].Valid || results[0].Weight != want {
		t.Fatalf("results[0] = %+v, want weight=%d", results[0], want)
	}
}

func TestJoinLeavesUnreachedColumnsInvalid(t *testing.T) {
	g := emptyGraph()
	results := Join(g, nil, nil, 3)
	for i, c := range results {
		if c.Valid {
			t.Fatalf("column %d = %+v, want unreached", i, c)
		}
	}
}

// graphWithLoop builds a single node with a self-loop edge of the given
// weight and duration, usable in both directions.
func graphWithLoop(loopWeight, loopDuration chgraph.Weight) *chgraph.Graph {
	firstEdge := []uint32{0, 1}
	edges := []chgraph.Edge{
		{Target: 0, Weight: loopWeight, Duration: loopDuration, Forward: true, Backward: true},
	}
	include := bitpack.New(1)
	include.Set(0, true)
	return chgraph.New(1, firstEdge, edges, include)
}

func TestSelfLoopMinimaFindsLoopEdge(t *testing.T) {
	g := graphWithLoop(-3, 7)
	lw, ld, ok := selfLoopMinima(g, 0)
	if !ok || lw != -3 || ld != 7 {
		t.Fatalf("selfLoopMinima = (%d, %d, %v), want (-3, 7, true)", lw, ld, ok)
	}
}

func TestSelfLoopMinimaNoLoopReturnsFalse(t *testing.T) {
	firstEdge := []uint32{0, 1, 1}
	edges := []chgraph.Edge{{Target: 1, Weight: 1, Forward: true}}
	include := bitpack.New(1)
	include.Set(0, true)
	g := chgraph.New(2, firstEdge, edges, include)

	_, _, ok := selfLoopMinima(g, 0)
	if ok {
		t.Fatal("expected no self-loop at node 0")
	}
}

// A negative candidate weight is only valid once corrected by the middle
// node's self-loop minima; here the loop weight of -3 cannot rescue a
// candidate of nw=-1 (the corrected -4 is still negative), so it must be
// discarded, while a candidate summing to exactly 0 is kept without any
// correction.
func TestJoinAppliesSelfLoopFixup(t *testing.T) {
	g := graphWithLoop(-3, 7)
	sourceBuckets := []chsearch.Bucket{{MiddleNode: 0, Weight: -5, Duration: 1}}
	targetBuckets := []chsearch.Bucket{{MiddleNode: 0, ColumnIndex: 0, Weight: 4, Duration: 1}}
	// nw = -5 + 4 = -1, corrected by loop weight -3: -1 + -3 = -4, still
	// negative, so the candidate must be discarded.
	results := Join(g, sourceBuckets, targetBuckets, 1)
	if results[0].Valid {
		t.Fatalf("results[0] = %+v, want discarded (correction still negative)", results[0])
	}

	sourceBuckets = []chsearch.Bucket{{MiddleNode: 0, Weight: -1, Duration: 1}}
	targetBuckets = []chsearch.Bucket{{MiddleNode: 0, ColumnIndex: 0, Weight: 1, Duration: 1}}
	// nw = -1 + 1 = 0, never enters the negative branch at all.
	results = Join(g, sourceBuckets, targetBuckets, 1)
	if !results[0].Valid || results[0].Weight != 0 {
		t.Fatalf("results[0] = %+v, want weight=0", results[0])
	}
}

func TestJoinDiscardsNegativeCandidateWithNoLoopToCorrectIt(t *testing.T) {
	firstEdge := []uint32{0, 0}
	g := chgraph.New(1, firstEdge, nil, bitpack.New(0))
	sourceBuckets := []chsearch.Bucket{{MiddleNode: 0, Weight: -5, Duration: 1}}
	targetBuckets := []chsearch.Bucket{{MiddleNode: 0, ColumnIndex: 0, Weight: 1, Duration: 1}}

	results := Join(g, sourceBuckets, targetBuckets, 1)
	if results[0].Valid {
		t.Fatalf("results[0] = %+v, want discarded (no loop to correct with)", results[0])
	}
}
