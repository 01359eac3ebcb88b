// Package phantom turns an arbitrary lat/lng query point into the CH seed
// queries a search starts from: it snaps the point to its nearest road
// segment, then splits that segment's weight and duration proportionally
// between the segment's two endpoints.
package phantom

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"

	"github.com/azybler/chmatrix/pkg/chbuild"
	"github.com/azybler/chmatrix/pkg/chgraph"
	"github.com/azybler/chmatrix/pkg/geo"
	"github.com/azybler/chmatrix/pkg/queryheap"
)

// maxSnapDistMeters bounds how far a query point may be from the nearest
// road before it is rejected outright.
const maxSnapDistMeters = 500.0

// ErrPointTooFar is returned when no road segment lies within
// maxSnapDistMeters of the query point.
var ErrPointTooFar = errors.New("phantom: point too far from any road")

// segment is one directed base-graph arc indexed by the R-tree.
type segment struct {
	from, to chgraph.NodeID
	weight   chgraph.Weight
	duration chgraph.Weight
}

// SnapResult is a query point's projection onto a road segment.
type SnapResult struct {
	From, To chgraph.NodeID
	Weight   chgraph.Weight
	Duration chgraph.Weight
	Ratio    float64 // 0 = at From, 1 = at To
	DistM    float64 // meters from the query point to its projection
}

// Snapper answers nearest-road queries over a base graph via an in-memory
// R-tree of segment bounding boxes.
type Snapper struct {
	tree    rtree.RTreeG[segment]
	nodeLat []float64
	nodeLon []float64
}

// degreesPerMeter approximates one meter in degrees of latitude, used to
// pad each segment's bounding box so near-miss points still fall inside
// a search window.
const degreesPerMeter = 1.0 / 111_320.0

// NewSnapper indexes every arc of base into an R-tree keyed by its
// lat/lng bounding box.
func NewSnapper(base *chbuild.BaseGraph, nodeLat, nodeLon []float64) *Snapper {
	s := &Snapper{nodeLat: nodeLat, nodeLon: nodeLon}
	for u := chgraph.NodeID(0); uint32(u) < base.NumNodes; u++ {
		for _, a := range base.EdgesFrom(u) {
			s.insert(u, a.Target, a.Weight, a.Duration)
		}
	}
	return s
}

func (s *Snapper) insert(u, v chgraph.NodeID, weight, duration chgraph.Weight) {
	uLat, uLon := s.nodeLat[u], s.nodeLon[u]
	vLat, vLon := s.nodeLat[v], s.nodeLon[v]
	pad := maxSnapDistMeters * degreesPerMeter
	min := [2]float64{math.Min(uLon, vLon) - pad, math.Min(uLat, vLat) - pad}
	max := [2]float64{math.Max(uLon, vLon) + pad, math.Max(uLat, vLat) + pad}
	s.tree.Insert(min, max, segment{from: u, to: v, weight: weight, duration: duration})
}

// Snap finds the nearest road segment to (lat, lng) and projects the point
// onto it, returning ErrPointTooFar if nothing lies within range.
func (s *Snapper) Snap(lat, lng float64) (SnapResult, error) {
	pad := maxSnapDistMeters * degreesPerMeter
	min := [2]float64{lng - pad, lat - pad}
	max := [2]float64{lng + pad, lat + pad}

	bestDist := math.Inf(1)
	var best SnapResult
	found := false

	s.tree.Search(min, max, func(_, _ [2]float64, seg segment) bool {
		uLat, uLon := s.nodeLat[seg.from], s.nodeLon[seg.from]
		vLat, vLon := s.nodeLat[seg.to], s.nodeLon[seg.to]
		dist, ratio := geo.PointToSegmentDist(lat, lng, uLat, uLon, vLat, vLon)
		if dist < bestDist {
			bestDist = dist
			found = true
			best = SnapResult{
				From: seg.from, To: seg.to,
				Weight: seg.weight, Duration: seg.duration,
				Ratio: ratio, DistM: dist,
			}
		}
		return true
	})

	if !found || bestDist > maxSnapDistMeters {
		return SnapResult{}, ErrPointTooFar
	}
	return best, nil
}

// ForwardSeeds splits snap's segment proportionally to produce the two
// seed queries a forward (source) search starts from: the cost to reach
// To by continuing along the segment, and the cost to reach From by
// backing up to it.
func ForwardSeeds(snap SnapResult) []queryheap.Query {
	toWeight := chgraph.Weight(math.Round(float64(snap.Weight) * (1 - snap.Ratio)))
	toDuration := chgraph.Weight(math.Round(float64(snap.Duration) * (1 - snap.Ratio)))
	fromWeight := chgraph.Weight(math.Round(float64(snap.Weight) * snap.Ratio))
	fromDuration := chgraph.Weight(math.Round(float64(snap.Duration) * snap.Ratio))

	return []queryheap.Query{
		{Node: snap.To, Weight: toWeight, Duration: toDuration},
		{Node: snap.From, Weight: fromWeight, Duration: fromDuration},
	}
}

// BackwardSeeds is ForwardSeeds' mirror for a backward (target) search: the
// cost of arriving at the snap point from From is the distance already
// covered along the segment, and from To is the remaining distance run in
// reverse.
func BackwardSeeds(snap SnapResult) []queryheap.Query {
	fromWeight := chgraph.Weight(math.Round(float64(snap.Weight) * snap.Ratio))
	fromDuration := chgraph.Weight(math.Round(float64(snap.Duration) * snap.Ratio))
	toWeight := chgraph.Weight(math.Round(float64(snap.Weight) * (1 - snap.Ratio)))
	toDuration := chgraph.Weight(math.Round(float64(snap.Duration) * (1 - snap.Ratio)))

	return []queryheap.Query{
		{Node: snap.From, Weight: fromWeight, Duration: fromDuration},
		{Node: snap.To, Weight: toWeight, Duration: toDuration},
	}
}
