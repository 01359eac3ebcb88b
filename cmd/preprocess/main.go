// Command preprocess turns an .osm.pbf extract into a contracted graph
// container ready for cmd/server or cmd/m2m to load.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/azybler/chmatrix/pkg/chbuild"
	"github.com/azybler/chmatrix/pkg/chcontract"
	"github.com/azybler/chmatrix/pkg/chstore"
	osmparser "github.com/azybler/chmatrix/pkg/osm"
)

func main() {
	input := flag.String("input", "", "Path to .osm.pbf file")
	output := flag.String("output", "graph.chm", "Output graph container path")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 1.15,103.6,1.48,104.1)")
	singapore := flag.Bool("singapore", false, "Shortcut for --bbox 1.15,103.6,1.48,104.1 (Singapore bounding box)")
	kl := flag.Bool("kl", false, "Shortcut for --bbox 2.75,101.2,3.5,102.0 (Selangor + Kuala Lumpur bounding box)")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --input <file.osm.pbf> [--output graph.chm] [--singapore | --kl | --bbox minLat,minLng,maxLat,maxLng]")
		os.Exit(1)
	}

	var opts osmparser.ParseOptions
	switch {
	case *kl:
		opts.BBox = osmparser.BBox{MinLat: 2.75, MaxLat: 3.5, MinLng: 101.2, MaxLng: 102.0}
		log.Println("Using Selangor + KL bounding box filter: lat [2.75, 3.50], lng [101.20, 102.00]")
	case *singapore:
		opts.BBox = osmparser.BBox{MinLat: 1.15, MaxLat: 1.48, MinLng: 103.6, MaxLng: 104.1}
		log.Println("Using Singapore bounding box filter: lat [1.15, 1.48], lng [103.6, 104.1]")
	case *bbox != "":
		var minLat, minLng, maxLat, maxLng float64
		if _, err := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
			log.Fatalf("Invalid bbox format (expected minLat,minLng,maxLat,maxLng): %v", err)
		}
		opts.BBox = osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", minLat, maxLat, minLng, maxLng)
	}

	start := time.Now()

	log.Println("Opening OSM file...")
	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}
	defer f.Close()

	log.Println("Parsing OSM data...")
	parseResult, err := osmparser.Parse(context.Background(), f, opts)
	if err != nil {
		log.Fatalf("Failed to parse OSM data: %v", err)
	}
	log.Printf("Parsed %d edges, %d nodes", len(parseResult.Edges), len(parseResult.NodeLat))

	log.Println("Building base graph...")
	built := chbuild.Build(parseResult)
	log.Printf("Base graph: %d nodes, %d arcs", built.Graph.NumNodes, len(built.Graph.Edges))

	log.Println("Extracting largest connected component...")
	componentNodes := chbuild.LargestComponent(built.Graph)
	log.Printf("Largest component: %d nodes (%.1f%%)",
		len(componentNodes), float64(len(componentNodes))/float64(built.Graph.NumNodes)*100)
	built = chbuild.FilterToComponent(built.Graph, built.NodeLat, built.NodeLon, componentNodes)
	log.Printf("Filtered base graph: %d nodes, %d arcs", built.Graph.NumNodes, len(built.Graph.Edges))

	log.Println("Running Contraction Hierarchies...")
	contracted := chcontract.Contract(built.Graph)
	log.Printf("CH complete: %d nodes, %d stored edges", contracted.Graph.NumNodes(), contracted.Graph.NumEdges())

	log.Printf("Writing container to %s...", *output)
	out := &chstore.Graph{
		Query:   contracted.Graph,
		NodeLat: built.NodeLat,
		NodeLon: built.NodeLon,
		Rank:    contracted.Rank,
		Base:    built.Graph,
	}
	if err := chstore.Write(*output, out); err != nil {
		log.Fatalf("Failed to write graph container: %v", err)
	}

	info, _ := os.Stat(*output)
	elapsed := time.Since(start)
	log.Printf("Done in %s. Output: %s (%.1f MB)", elapsed.Round(time.Second), *output, float64(info.Size())/(1024*1024))
}
