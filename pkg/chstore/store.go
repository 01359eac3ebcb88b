// Package chstore persists a contracted graph to, and loads it from, a
// tarball of named binary arrays plus a JSON sidecar header carrying
// authoritative element counts. Unlike a single fixed-struct binary header,
// a tar stream of named entries lets the container hold a variable set of
// arrays without the reader needing to know their order in advance.
package chstore

import (
	"archive/tar"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"

	"github.com/azybler/chmatrix/pkg/bitpack"
	"github.com/azybler/chmatrix/pkg/chbuild"
	"github.com/azybler/chmatrix/pkg/chgraph"
)

const (
	formatVersion = 1

	entryFirstEdge = "first_edge.bin"
	entryTarget    = "edge_target.bin"
	entryWeight    = "edge_weight.bin"
	entryDuration  = "edge_duration.bin"
	entryFlags     = "edge_flags.bin"
	entryInclude   = "include.bin"
	entryNodeLat   = "node_lat.bin"
	entryNodeLon   = "node_lon.bin"
	entryRank      = "rank.bin"

	// Base graph entries: the pre-contraction directed arc list, kept
	// alongside the CH overlay so a server can rebuild a phantom snapper
	// at load time without re-parsing the source OSM extract.
	entryBaseFirstEdge = "base_first_edge.bin"
	entryBaseTarget    = "base_target.bin"
	entryBaseWeight    = "base_weight.bin"
	entryBaseDuration  = "base_duration.bin"
)

// StorageError is a tagged error identifying which phase of a store
// operation failed, rather than an opaque wrapped error.
type StorageError struct {
	Op  string // e.g. "write header", "read edge_target.bin", "crc mismatch"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("chstore: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// header is the JSON sidecar entry, always named "header.json" and always
// the first entry in the tar stream.
type header struct {
	Version  int    `json:"version"`
	NumNodes uint32 `json:"num_nodes"`
	NumEdges uint32 `json:"num_edges"`
}

// Graph bundles the pieces of a contracted graph that round-trip to disk:
// the query graph itself, the node coordinates phantom snapping needs, the
// contraction rank order (kept for diagnostics; query time never reads it
// back from chgraph.Graph, which has no Rank field), and the pre-contraction
// base graph a phantom.Snapper indexes to resolve arbitrary lat/lng points
// onto the road network.
type Graph struct {
	Query   *chgraph.Graph
	NodeLat []float64
	NodeLon []float64
	Rank    []uint32
	Base    *chbuild.BaseGraph
}

// Write serializes g to path as a tar stream wrapped in a CRC32 trailer,
// written to a temp file and atomically renamed into place so a reader
// never observes a partial file.
func Write(path string, g *Graph) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return &StorageError{"create temp file", err}
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	crcW := &crc32Writer{w: f, hash: crc32.NewIEEE()}
	tw := tar.NewWriter(crcW)

	firstEdge, target, weight, duration, flags, include := flattenGraph(g.Query)
	baseFirstEdge, baseTarget, baseWeight, baseDuration := flattenBase(g.Base)

	hdr := header{Version: formatVersion, NumNodes: g.Query.NumNodes(), NumEdges: uint32(len(target))}
	hdrBytes, err := json.Marshal(hdr)
	if err != nil {
		return &StorageError{"marshal header", err}
	}
	if err := writeEntry(tw, "header.json", hdrBytes); err != nil {
		return &StorageError{"write header.json", err}
	}

	entries := []struct {
		name string
		data []byte
	}{
		{entryFirstEdge, uint32Bytes(firstEdge)},
		{entryTarget, uint32Bytes(target)},
		{entryWeight, int32Bytes(weight)},
		{entryDuration, int32Bytes(duration)},
		{entryFlags, flags},
		{entryInclude, uint64Bytes(include.Words())},
		{entryNodeLat, float64Bytes(g.NodeLat)},
		{entryNodeLon, float64Bytes(g.NodeLon)},
		{entryRank, uint32Bytes(g.Rank)},
		{entryBaseFirstEdge, uint32Bytes(baseFirstEdge)},
		{entryBaseTarget, uint32Bytes(baseTarget)},
		{entryBaseWeight, int32Bytes(baseWeight)},
		{entryBaseDuration, int32Bytes(baseDuration)},
	}
	for _, e := range entries {
		if err := writeEntry(tw, e.name, e.data); err != nil {
			return &StorageError{"write " + e.name, err}
		}
	}

	if err := tw.Close(); err != nil {
		return &StorageError{"close tar writer", err}
	}

	checksum := crcW.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return &StorageError{"write crc32 trailer", err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{"close temp file", err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &StorageError{"rename into place", err}
	}
	return nil
}

// Read deserializes a Graph previously written by Write, validating the
// trailing CRC32 before trusting any entry's contents.
func Read(path string) (*Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{"open", err}
	}
	if len(raw) < 4 {
		return nil, &StorageError{"truncated file", io.ErrUnexpectedEOF}
	}

	body, trailer := raw[:len(raw)-4], raw[len(raw)-4:]
	storedCRC := binary.LittleEndian.Uint32(trailer)
	computedCRC := crc32.ChecksumIEEE(body)
	if storedCRC != computedCRC {
		return nil, &StorageError{"crc mismatch", fmt.Errorf("stored=%08x computed=%08x", storedCRC, computedCRC)}
	}

	tr := tar.NewReader(&byteReader{body})
	entries := make(map[string][]byte)
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &StorageError{"read tar entry", err}
		}
		data := make([]byte, th.Size)
		if _, err := io.ReadFull(tr, data); err != nil {
			return nil, &StorageError{"read " + th.Name, err}
		}
		entries[th.Name] = data
	}

	hdrBytes, ok := entries["header.json"]
	if !ok {
		return nil, &StorageError{"missing header.json", fmt.Errorf("no such entry")}
	}
	var hdr header
	if err := json.Unmarshal(hdrBytes, &hdr); err != nil {
		return nil, &StorageError{"unmarshal header.json", err}
	}
	if hdr.Version != formatVersion {
		return nil, &StorageError{"unsupported version", fmt.Errorf("got %d, want %d", hdr.Version, formatVersion)}
	}

	firstEdge := bytesToUint32(entries[entryFirstEdge])
	target := bytesToUint32(entries[entryTarget])
	weight := bytesToInt32(entries[entryWeight])
	duration := bytesToInt32(entries[entryDuration])
	flags := entries[entryFlags]
	includeWords := bytesToUint64(entries[entryInclude])
	nodeLat := bytesToFloat64(entries[entryNodeLat])
	nodeLon := bytesToFloat64(entries[entryNodeLon])
	rank := bytesToUint32(entries[entryRank])

	baseFirstEdge := bytesToUint32(entries[entryBaseFirstEdge])
	baseTarget := bytesToUint32(entries[entryBaseTarget])
	baseWeight := bytesToInt32(entries[entryBaseWeight])
	baseDuration := bytesToInt32(entries[entryBaseDuration])

	if uint32(len(target)) != hdr.NumEdges || uint32(len(weight)) != hdr.NumEdges ||
		uint32(len(duration)) != hdr.NumEdges || uint32(len(flags)) != hdr.NumEdges {
		return nil, &StorageError{"edge array length mismatch", fmt.Errorf("want %d entries", hdr.NumEdges)}
	}

	edges := make([]chgraph.Edge, hdr.NumEdges)
	for i := range edges {
		edges[i] = chgraph.Edge{
			Target:   chgraph.NodeID(target[i]),
			Weight:   chgraph.Weight(weight[i]),
			Duration: chgraph.Weight(duration[i]),
			Forward:  flags[i]&flagForward != 0,
			Backward: flags[i]&flagBackward != 0,
		}
	}
	include := bitpack.FromWords(includeWords, int(hdr.NumEdges))

	g := chgraph.New(hdr.NumNodes, firstEdge, edges, include)

	baseArcs := make([]chbuild.Arc, len(baseTarget))
	for i := range baseArcs {
		baseArcs[i] = chbuild.Arc{
			Target:   chgraph.NodeID(baseTarget[i]),
			Weight:   chgraph.Weight(baseWeight[i]),
			Duration: chgraph.Weight(baseDuration[i]),
		}
	}
	base := &chbuild.BaseGraph{NumNodes: hdr.NumNodes, FirstEdge: baseFirstEdge, Edges: baseArcs}

	return &Graph{Query: g, NodeLat: nodeLat, NodeLon: nodeLon, Rank: rank, Base: base}, nil
}

// flattenBase copies a base graph's CSR arrays into the parallel-array form
// this container stores on disk.
func flattenBase(b *chbuild.BaseGraph) (firstEdge, target []uint32, weight, duration []int32) {
	firstEdge = append([]uint32(nil), b.FirstEdge...)
	target = make([]uint32, len(b.Edges))
	weight = make([]int32, len(b.Edges))
	duration = make([]int32, len(b.Edges))
	for i, e := range b.Edges {
		target[i] = uint32(e.Target)
		weight[i] = int32(e.Weight)
		duration[i] = int32(e.Duration)
	}
	return
}

const (
	flagForward  = 1 << 0
	flagBackward = 1 << 1
)

// flattenGraph walks g's stored edges into parallel arrays plus a one-byte
// flag field per edge, since chgraph.Graph exposes edges only through its
// AdjacentEdges iterator.
func flattenGraph(g *chgraph.Graph) (firstEdge, target []uint32, weight, duration []int32, flags []byte, include bitpack.Bitset) {
	n := g.NumNodes()
	numEdges := g.NumEdges()
	firstEdge = make([]uint32, n+1)
	target = make([]uint32, 0, numEdges)
	weight = make([]int32, 0, numEdges)
	duration = make([]int32, 0, numEdges)
	flags = make([]byte, 0, numEdges)
	include = bitpack.New(numEdges)

	idx := 0
	for u := chgraph.NodeID(0); uint32(u) < n; u++ {
		firstEdge[u] = uint32(idx)
		// AdjacentEdges filters by direction and by the include bitmap, so
		// the row is rebuilt by unioning both directions. Only edges whose
		// include bit is set and that are usable in at least one direction
		// are recovered; masked-out and flagless edges are not written.
		for _, e := range bothDirections(g, u) {
			target = append(target, uint32(e.Target))
			weight = append(weight, int32(e.Weight))
			duration = append(duration, int32(e.Duration))
			var fl byte
			if e.Forward {
				fl |= flagForward
			}
			if e.Backward {
				fl |= flagBackward
			}
			flags = append(flags, fl)
			include.Set(idx, true)
			idx++
		}
	}
	firstEdge[n] = uint32(idx)
	return
}

// bothDirections merges node u's forward and backward adjacency into the
// stored-edge order, de-duplicating edges usable in both directions (which
// AdjacentEdges would otherwise yield twice, once per direction call).
func bothDirections(g *chgraph.Graph, u chgraph.NodeID) []chgraph.Edge {
	seen := make(map[chgraph.NodeID]int)
	var out []chgraph.Edge
	for e := range g.AdjacentEdges(u, chgraph.Forward) {
		seen[e.Target] = len(out)
		out = append(out, e)
	}
	for e := range g.AdjacentEdges(u, chgraph.Backward) {
		if i, ok := seen[e.Target]; ok {
			out[i].Backward = true
			continue
		}
		out = append(out, e)
	}
	return out
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// byteReader adapts a byte slice to io.Reader without a copy.
type byteReader struct{ b []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	n := copy(p, r.b)
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	r.b = r.b[n:]
	return n, nil
}

// crc32Writer hashes every byte written before forwarding it.
type crc32Writer struct {
	w    io.Writer
	hash interface {
		io.Writer
		Sum32() uint32
	}
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

// Zero-copy slice<->bytes helpers using unsafe.Slice.

func uint32Bytes(s []uint32) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}

func int32Bytes(s []int32) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}

func uint64Bytes(s []uint64) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
}

func float64Bytes(s []float64) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
}

func bytesToUint32(b []byte) []uint32 {
	if len(b) == 0 {
		return nil
	}
	return append([]uint32(nil), unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)...)
}

func bytesToInt32(b []byte) []int32 {
	if len(b) == 0 {
		return nil
	}
	return append([]int32(nil), unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)...)
}

func bytesToUint64(b []byte) []uint64 {
	if len(b) == 0 {
		return nil
	}
	return append([]uint64(nil), unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)...)
}

func bytesToFloat64(b []byte) []float64 {
	if len(b) == 0 {
		return nil
	}
	return append([]float64(nil), unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), len(b)/8)...)
}
