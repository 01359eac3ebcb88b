// Package manytomany is the top-level orchestrator: it accumulates sources
// and targets, runs one backward search per target and one forward search
// per source, and joins their buckets into a results matrix. Sources and
// targets can be added incrementally between Compute calls; already-settled
// rows and columns are never recomputed from scratch.
package manytomany

import (
	"golang.org/x/sync/errgroup"

	"github.com/azybler/chmatrix/pkg/bucketjoin"
	"github.com/azybler/chmatrix/pkg/chgraph"
	"github.com/azybler/chmatrix/pkg/chsearch"
	"github.com/azybler/chmatrix/pkg/queryheap"
)

// ManyToMany accumulates sources and targets against a fixed graph and
// computes the cost matrix between them. The zero value is not usable; use
// New.
type ManyToMany struct {
	graph *chgraph.Graph

	sourceSeeds [][]queryheap.Query
	targetSeeds [][]queryheap.Query

	sourceBuckets [][]chsearch.Bucket // cached per row; recomputed only when that row is added
	targetBuckets []chsearch.Bucket   // cached, flat, kept sorted by MiddleNode

	results [][]bucketjoin.Cell

	pendingSources []int
	pendingTargets []int
}

// New creates an empty ManyToMany over graph. graph must outlive it.
func New(graph *chgraph.Graph) *ManyToMany {
	return &ManyToMany{graph: graph}
}

// AddSource queues a new source, identified by its seed queries (typically
// one or two, for a point snapped onto an edge), and returns its row index
// in the eventual result matrix. Its bucket search does not run until the
// next Compute call.
func (m *ManyToMany) AddSource(seeds []queryheap.Query) int {
	row := len(m.sourceSeeds)
	m.sourceSeeds = append(m.sourceSeeds, seeds)
	m.sourceBuckets = append(m.sourceBuckets, nil)
	m.results = append(m.results, make([]bucketjoin.Cell, len(m.targetSeeds)))
	m.pendingSources = append(m.pendingSources, row)
	return row
}

// AddTarget queues a new target and returns its column index.
func (m *ManyToMany) AddTarget(seeds []queryheap.Query) int {
	col := len(m.targetSeeds)
	m.targetSeeds = append(m.targetSeeds, seeds)
	for row := range m.results {
		m.results[row] = append(m.results[row], bucketjoin.Cell{})
	}
	m.pendingTargets = append(m.pendingTargets, col)
	return col
}

// NumSources and NumTargets report how many rows/columns have been added so
// far, regardless of whether Compute has run.
func (m *ManyToMany) NumSources() int { return len(m.sourceSeeds) }
func (m *ManyToMany) NumTargets() int { return len(m.targetSeeds) }

// Compute runs any outstanding backward and forward searches and returns
// the full results matrix, row = source insertion order, column = target
// insertion order. It is safe to call repeatedly as more sources and
// targets are added; already-computed rows and columns are preserved and
// only the cells that could have changed are rejoined.
//
// The search and join phases below are each a flat worker-pool fan-out with
// no internal suspension points and no cancellation: every goroutine writes
// to a disjoint slot (its own per-target bucket slice, a distinct row of
// sourceBuckets, or a distinct row of results), so the result is
// deterministic and identical whether the phases run in parallel or
// serially.
func (m *ManyToMany) Compute() [][]bucketjoin.Cell {
	newTargets := m.pendingTargets
	newSources := m.pendingSources
	m.pendingTargets = nil
	m.pendingSources = nil

	var newTargetBuckets []chsearch.Bucket
	if len(newTargets) > 0 {
		newTargetBuckets = m.runBackwardSearches(newTargets)
		bucketjoin.SortByMiddleNode(newTargetBuckets)
		m.targetBuckets = append(m.targetBuckets, newTargetBuckets...)
		bucketjoin.SortByMiddleNode(m.targetBuckets)
	}
	if len(newSources) > 0 {
		m.runForwardSearches(newSources)
	}

	numTargets := len(m.targetSeeds)

	// A brand new row has never been joined before: join it against every
	// target collected so far, old and new alike.
	if len(newSources) > 0 {
		m.joinRows(newSources, m.targetBuckets, numTargets)
	}

	// An existing row's old columns are already correct; only the new
	// target columns need filling in, so extend rather than rejoin.
	if len(newTargets) > 0 {
		existingRows := rowsExcluding(len(m.sourceSeeds), newSources)
		m.extendRows(existingRows, newTargetBuckets, newTargets, numTargets)
	}

	return m.results
}

func (m *ManyToMany) runBackwardSearches(cols []int) []chsearch.Bucket {
	perTarget := make([][]chsearch.Bucket, len(cols))
	var g errgroup.Group
	for i, col := range cols {
		i, col := i, col
		g.Go(func() error {
			s := chsearch.New(m.graph, chgraph.Backward, col, m.targetSeeds[col])
			perTarget[i] = s.Perform()
			return nil
		})
	}
	_ = g.Wait()
	var newBuckets []chsearch.Bucket
	for _, buckets := range perTarget {
		newBuckets = append(newBuckets, buckets...)
	}
	return newBuckets
}

func (m *ManyToMany) runForwardSearches(rows []int) {
	var g errgroup.Group
	for _, row := range rows {
		row := row
		g.Go(func() error {
			s := chsearch.New(m.graph, chgraph.Forward, row, m.sourceSeeds[row])
			m.sourceBuckets[row] = s.Perform()
			return nil
		})
	}
	_ = g.Wait()
}

// joinRows fully joins each of rows against targetBuckets, overwriting
// m.results[row] from scratch. Used only for rows that have never been
// joined before.
func (m *ManyToMany) joinRows(rows []int, targetBuckets []chsearch.Bucket, numTargets int) {
	var g errgroup.Group
	for _, row := range rows {
		row := row
		g.Go(func() error {
			m.results[row] = bucketjoin.Join(m.graph, m.sourceBuckets[row], targetBuckets, numTargets)
			return nil
		})
	}
	_ = g.Wait()
}

// extendRows joins each of rows against only newTargetBuckets, and copies
// the resulting cells into newTargetCols of the already-computed
// m.results[row], leaving every previously-joined column untouched.
func (m *ManyToMany) extendRows(rows []int, newTargetBuckets []chsearch.Bucket, newTargetCols []int, numTargets int) {
	var g errgroup.Group
	for _, row := range rows {
		row := row
		g.Go(func() error {
			partial := bucketjoin.Join(m.graph, m.sourceBuckets[row], newTargetBuckets, numTargets)
			for _, col := range newTargetCols {
				m.results[row][col] = partial[col]
			}
			return nil
		})
	}
	_ = g.Wait()
}

// rowsExcluding returns every row index in [0, n) not present in exclude.
func rowsExcluding(n int, exclude []int) []int {
	excluded := make(map[int]bool, len(exclude))
	for _, r := range exclude {
		excluded[r] = true
	}
	rows := make([]int, 0, n-len(exclude))
	for i := 0; i < n; i++ {
		if !excluded[i] {
			rows = append(rows, i)
		}
	}
	return rows
}
