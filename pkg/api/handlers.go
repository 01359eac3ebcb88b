package api

import (
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"

	"github.com/azybler/chmatrix/pkg/chgraph"
	"github.com/azybler/chmatrix/pkg/manytomany"
	"github.com/azybler/chmatrix/pkg/phantom"
)

// maxRequestBytes bounds the JSON body of a matrix request.
const maxRequestBytes = 1 << 20

// maxPointsPerSide bounds sources and targets independently, so the
// resulting matrix never exceeds maxPointsPerSide^2 cells.
const maxPointsPerSide = 2000

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	graph   *chgraph.Graph
	snapper *phantom.Snapper
	stats   StatsResponse
}

// NewHandlers creates handlers serving matrix queries against graph, with
// phantom points resolved through snapper.
func NewHandlers(graph *chgraph.Graph, snapper *phantom.Snapper, stats StatsResponse) *Handlers {
	return &Handlers{graph: graph, snapper: snapper, stats: stats}
}

// HandleMatrix handles POST /api/v1/matrix.
func (h *Handlers) HandleMatrix(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	var req MatrixRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	if len(req.Sources) == 0 || len(req.Targets) == 0 {
		writeError(w, http.StatusBadRequest, "empty_request", "")
		return
	}
	if len(req.Sources) > maxPointsPerSide || len(req.Targets) > maxPointsPerSide {
		writeError(w, http.StatusBadRequest, "too_many_points", "")
		return
	}

	for _, ll := range req.Sources {
		if err := validateCoord(ll); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_coordinates", "sources")
			return
		}
	}
	for _, ll := range req.Targets {
		if err := validateCoord(ll); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_coordinates", "targets")
			return
		}
	}

	m := manytomany.New(h.graph)
	for _, ll := range req.Sources {
		snap, err := h.snapper.Snap(ll.Lat, ll.Lng)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "point_too_far_from_road", "sources")
			return
		}
		m.AddSource(phantom.ForwardSeeds(snap))
	}
	for _, ll := range req.Targets {
		snap, err := h.snapper.Snap(ll.Lat, ll.Lng)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "point_too_far_from_road", "targets")
			return
		}
		m.AddTarget(phantom.BackwardSeeds(snap))
	}

	cells := m.Compute()

	resp := MatrixResponse{Rows: make([][]MatrixCell, len(cells))}
	for i, row := range cells {
		jsonRow := make([]MatrixCell, len(row))
		for j, c := range row {
			jsonRow[j] = MatrixCell{Weight: int32(c.Weight), Duration: int32(c.Duration), Valid: c.Valid}
		}
		resp.Rows[i] = jsonRow
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.stats)
}

func validateCoord(ll LatLngJSON) error {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Field: field})
}
