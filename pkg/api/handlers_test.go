package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/azybler/chmatrix/pkg/bitpack"
	"github.com/azybler/chmatrix/pkg/chbuild"
	"github.com/azybler/chmatrix/pkg/chgraph"
	"github.com/azybler/chmatrix/pkg/phantom"
)

// fixtureHandlers builds a tiny two-node contracted graph (0 <-> 1, both
// directions) and a matching phantom snapper over the same geometry, close
// enough together that any point near either node snaps successfully.
func fixtureHandlers(stats StatsResponse) *Handlers {
	edges := []chgraph.Edge{
		{Target: 1, Weight: 1000, Duration: 100, Forward: true, Backward: true},
	}
	include := bitpack.New(1)
	include.Set(0, true)
	graph := chgraph.New(2, []uint32{0, 1, 1}, edges, include)

	base := &chbuild.BaseGraph{
		NumNodes:  2,
		FirstEdge: []uint32{0, 1, 2},
		Edges: []chbuild.Arc{
			{Target: 1, Weight: 1000, Duration: 100},
			{Target: 0, Weight: 1000, Duration: 100},
		},
	}
	nodeLat := []float64{1.3000, 1.3010}
	nodeLon := []float64{103.8000, 103.8000}
	snapper := phantom.NewSnapper(base, nodeLat, nodeLon)

	return NewHandlers(graph, snapper, stats)
}

func TestHandleMatrix_Success(t *testing.T) {
	h := fixtureHandlers(StatsResponse{NumNodes: 2})

	body := `{"sources":[{"lat":1.3000,"lng":103.8000}],"targets":[{"lat":1.3010,"lng":103.8000}]}`
	req := httptest.NewRequest("POST", "/api/v1/matrix", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleMatrix(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}

	var resp MatrixResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Rows) != 1 || len(resp.Rows[0]) != 1 {
		t.Fatalf("Rows = %+v, want a 1x1 matrix", resp.Rows)
	}
	if !resp.Rows[0][0].Valid {
		t.Errorf("cell should be valid: %+v", resp.Rows[0][0])
	}
}

func TestHandleMatrix_InvalidJSON(t *testing.T) {
	h := fixtureHandlers(StatsResponse{})

	req := httptest.NewRequest("POST", "/api/v1/matrix", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleMatrix(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleMatrix_MissingContentType(t *testing.T) {
	h := fixtureHandlers(StatsResponse{})

	body := `{"sources":[{"lat":1.3,"lng":103.8}],"targets":[{"lat":1.3,"lng":103.8}]}`
	req := httptest.NewRequest("POST", "/api/v1/matrix", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleMatrix(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleMatrix_EmptySources(t *testing.T) {
	h := fixtureHandlers(StatsResponse{})

	body := `{"sources":[],"targets":[{"lat":1.3,"lng":103.8}]}`
	req := httptest.NewRequest("POST", "/api/v1/matrix", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleMatrix(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleMatrix_OutOfBoundsCoordinate(t *testing.T) {
	h := fixtureHandlers(StatsResponse{})

	body := `{"sources":[{"lat":91.0,"lng":103.8}],"targets":[{"lat":1.3,"lng":103.8}]}`
	req := httptest.NewRequest("POST", "/api/v1/matrix", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleMatrix(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleMatrix_PointTooFar(t *testing.T) {
	h := fixtureHandlers(StatsResponse{})

	body := `{"sources":[{"lat":5.0,"lng":5.0}],"targets":[{"lat":1.3,"lng":103.8}]}`
	req := httptest.NewRequest("POST", "/api/v1/matrix", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleMatrix(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h := fixtureHandlers(StatsResponse{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()

	h.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want 'ok'", resp.Status)
	}
}

func TestHandleStats(t *testing.T) {
	stats := StatsResponse{NumNodes: 500000, NumEdges: 1000000}
	h := fixtureHandlers(stats)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	w := httptest.NewRecorder()

	h.HandleStats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	var resp StatsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.NumNodes != 500000 {
		t.Errorf("NumNodes = %d, want 500000", resp.NumNodes)
	}
}
