// Command m2m runs a batch of many-to-many matrix queries against a
// preprocessed graph container and prints timing, bypassing the HTTP layer
// for load testing and numeric comparison against a reference output.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/azybler/chmatrix/pkg/bucketjoin"
	"github.com/azybler/chmatrix/pkg/chstore"
	"github.com/azybler/chmatrix/pkg/manytomany"
	"github.com/azybler/chmatrix/pkg/queryheap"
)

// queries is the on-disk batch format: one seed slice per source/target,
// already resolved to graph nodes (skipping phantom snapping entirely).
type queries struct {
	Sources [][]queryheap.Query `json:"sources"`
	Targets [][]queryheap.Query `json:"targets"`
}

func main() {
	graphPath := flag.String("graph", "graph.chm", "Path to preprocessed graph container")
	queriesPath := flag.String("queries", "queries.json", "Path to batch query JSON file")
	expectedPath := flag.String("expected", "", "Optional path to an expected-durations JSON file (seconds, one row per source)")
	flag.Parse()

	g, err := chstore.Read(*graphPath)
	if err != nil {
		log.Fatalf("failed to load graph: %v", err)
	}
	log.Printf("loaded graph: %d nodes, %d stored edges", g.Query.NumNodes(), g.Query.NumEdges())

	q, err := loadJSON[queries](*queriesPath)
	if err != nil {
		log.Fatalf("failed to load queries: %v", err)
	}
	log.Printf("loaded %d sources, %d targets", len(q.Sources), len(q.Targets))

	m := manytomany.New(g.Query)
	for _, s := range q.Sources {
		m.AddSource(s)
	}
	for _, t := range q.Targets {
		m.AddTarget(t)
	}

	var cells [][]bucketjoin.Cell
	elapsed := timeIt("manytomany.Compute", func() {
		cells = m.Compute()
	})
	log.Printf("computed %dx%d matrix in %s", len(q.Sources), len(q.Targets), elapsed)

	if *expectedPath == "" {
		printSample(cells)
		return
	}

	expected, err := loadJSON[[][]float64](*expectedPath)
	if err != nil {
		log.Fatalf("failed to load expected results: %v", err)
	}
	ok := compare(cells, expected)
	fmt.Printf("equal? %v\n", ok)
	if !ok {
		os.Exit(1)
	}
}

func timeIt(name string, f func()) time.Duration {
	start := time.Now()
	f()
	elapsed := time.Since(start)
	log.Printf("%s took %s", name, elapsed)
	return elapsed
}

func loadJSON[T any](path string) (T, error) {
	var v T
	f, err := os.Open(path)
	if err != nil {
		return v, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}

// compare checks cells against expected durations in seconds, converting
// from the graph's decisecond duration unit the way the reference data is
// expressed.
func compare(cells [][]bucketjoin.Cell, expected [][]float64) bool {
	if len(cells) != len(expected) {
		return false
	}
	for i := range cells {
		if len(cells[i]) != len(expected[i]) {
			return false
		}
		for j, c := range cells[i] {
			got := 0.0
			if c.Valid {
				got = float64(c.Duration) / 10.0
			}
			if got != expected[i][j] {
				return false
			}
		}
	}
	return true
}

func printSample(cells [][]bucketjoin.Cell) {
	for i, row := range cells {
		if i >= 5 {
			fmt.Printf("... (%d more rows)\n", len(cells)-5)
			break
		}
		fmt.Println(row)
	}
}
