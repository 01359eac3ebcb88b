package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/azybler/chmatrix/pkg/api"
	"github.com/azybler/chmatrix/pkg/chstore"
	"github.com/azybler/chmatrix/pkg/phantom"
)

func main() {
	graphPath := flag.String("graph", "graph.chm", "Path to preprocessed graph container")
	port := flag.Int("port", 8080, "HTTP port")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	flag.Parse()

	start := time.Now()

	// Load graph.
	log.Printf("Loading graph from %s...", *graphPath)
	g, err := chstore.Read(*graphPath)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}
	log.Printf("Loaded: %d nodes, %d stored edges", g.Query.NumNodes(), g.Query.NumEdges())

	// Build spatial index for phantom-point snapping off the base graph
	// carried alongside the CH overlay.
	log.Println("Building spatial index...")
	snapper := phantom.NewSnapper(g.Base, g.NodeLat, g.NodeLon)

	// Reclaim memory from init-time temporaries. Without this, Go's heap
	// retains peak RSS from index construction (GC doubles heap each cycle:
	// 120→240→480→960→1920 MB). This returns unused pages to the OS.
	runtime.GC()
	debug.FreeOSMemory()

	loadTime := time.Since(start)
	log.Printf("Ready in %s", loadTime.Round(time.Millisecond))

	// Setup HTTP server.
	addr := fmt.Sprintf(":%d", *port)
	cfg := api.DefaultConfig(addr)
	cfg.CORSOrigin = *corsOrigin

	stats := api.StatsResponse{
		NumNodes: g.Query.NumNodes(),
		NumEdges: g.Query.NumEdges(),
	}

	handlers := api.NewHandlers(g.Query, snapper, stats)
	srv := api.NewServer(cfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
