package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/azybler/map_locator/pkg/geo"
	"github.com/azybler/map_locator/pkg/graph"
	"github.com/azybler/map_locator/pkg/locindex"
)

// mockLocator implements Locator for testing.
type mockLocator struct {
	result  locindex.SnapResult
	err     error
	ready   bool
	stats   locindex.Stats
	edges   []uint32
	tiles   []geo.BBox
	lastMax float64
}

func (m *mockLocator) FindClosestWithin(lat, lon, maxDist float64, filter locindex.EdgeFilter) (locindex.SnapResult, error) {
	m.lastMax = maxDist
	if m.err != nil {
		return locindex.SnapResult{}, m.err
	}
	if filter != nil && m.result.Valid {
		if ok, _ := filter.Accept(m.result.EdgeID); !ok {
			return locindex.SnapResult{}, nil
		}
	}
	return m.result, nil
}

func (m *mockLocator) Query(bbox geo.BBox, v locindex.Visitor) error {
	if m.err != nil {
		return m.err
	}
	if tv, ok := v.(locindex.TileVisitor); ok {
		for _, b := range m.tiles {
			tv.OnTile(b, 1)
		}
	}
	for _, e := range m.edges {
		v.OnEdge(e)
	}
	return nil
}

func (m *mockLocator) IsReady() bool { return m.ready }

func (m *mockLocator) Stats() (locindex.Stats, error) {
	if !m.ready {
		return locindex.Stats{}, &locindex.StateError{Op: "Stats", State: locindex.StateLoading}
	}
	return m.stats, nil
}

// mockEdges implements EdgeSource: edge 0 is a car road, edge 1 a footway.
type mockEdges struct{}

func (mockEdges) EdgeAccess(e uint32) graph.Access {
	if e == 0 {
		return graph.AccessCar
	}
	return graph.AccessFoot
}

func (mockEdges) EdgeGeometry(e uint32, dst []geo.Point) []geo.Point {
	return append(dst, geo.Point{Lat: 1.3, Lon: 103.8}, geo.Point{Lat: 1.31, Lon: 103.81})
}

func validSnap(edge uint32) locindex.SnapResult {
	return locindex.SnapResult{
		Valid:      true,
		EdgeID:     edge,
		NodeID:     7,
		SnappedLat: 1.305,
		SnappedLon: 103.805,
		Distance:   12.5,
		WayIndex:   0,
		Position:   locindex.PositionEdge,
	}
}

func postJSON(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestHandleSnap_Success(t *testing.T) {
	mock := &mockLocator{result: validSnap(0), ready: true}
	h := NewHandlers(mock, mockEdges{}, HandlerConfig{MaxSnapDistance: 500})

	w := postJSON(h.HandleSnap, "/api/v1/snap", `{"point":{"lat":1.3,"lng":103.8},"geometry":true}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	var resp SnapResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.EdgeID != 0 || resp.NodeID != 7 {
		t.Errorf("edge/node = %d/%d, want 0/7", resp.EdgeID, resp.NodeID)
	}
	if resp.DistanceMeters != 12.5 {
		t.Errorf("DistanceMeters = %f, want 12.5", resp.DistanceMeters)
	}
	if resp.Position != "edge" || resp.Access != "car" {
		t.Errorf("position/access = %q/%q", resp.Position, resp.Access)
	}
	if len(resp.Geometry) != 2 {
		t.Errorf("Geometry length = %d, want 2", len(resp.Geometry))
	}
	if mock.lastMax != 500 {
		t.Errorf("radius = %f, want 500", mock.lastMax)
	}
}

func TestHandleSnap_NarrowerRadius(t *testing.T) {
	mock := &mockLocator{result: validSnap(0), ready: true}
	h := NewHandlers(mock, mockEdges{}, HandlerConfig{MaxSnapDistance: 500})

	postJSON(h.HandleSnap, "/api/v1/snap", `{"point":{"lat":1.3,"lng":103.8},"max_distance_meters":50}`)
	if mock.lastMax != 50 {
		t.Errorf("radius = %f, want 50", mock.lastMax)
	}
	postJSON(h.HandleSnap, "/api/v1/snap", `{"point":{"lat":1.3,"lng":103.8},"max_distance_meters":5000}`)
	if mock.lastMax != 500 {
		t.Errorf("radius = %f, want capped 500", mock.lastMax)
	}
}

func TestHandleSnap_ModeFilter(t *testing.T) {
	mock := &mockLocator{result: validSnap(1), ready: true}
	h := NewHandlers(mock, mockEdges{}, HandlerConfig{})

	w := postJSON(h.HandleSnap, "/api/v1/snap", `{"point":{"lat":1.3,"lng":103.8},"mode":"car"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}

	w = postJSON(h.HandleSnap, "/api/v1/snap", `{"point":{"lat":1.3,"lng":103.8},"mode":"foot"}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	w = postJSON(h.HandleSnap, "/api/v1/snap", `{"point":{"lat":1.3,"lng":103.8},"mode":"boat"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleSnap_InvalidJSON(t *testing.T) {
	h := NewHandlers(&mockLocator{ready: true}, mockEdges{}, HandlerConfig{})

	w := postJSON(h.HandleSnap, "/api/v1/snap", "not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleSnap_MissingContentType(t *testing.T) {
	h := NewHandlers(&mockLocator{ready: true}, mockEdges{}, HandlerConfig{})

	req := httptest.NewRequest("POST", "/api/v1/snap", strings.NewReader(`{"point":{"lat":1.3,"lng":103.8}}`))
	w := httptest.NewRecorder()
	h.HandleSnap(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleSnap_OutOfBounds(t *testing.T) {
	h := NewHandlers(&mockLocator{ready: true}, mockEdges{}, HandlerConfig{})

	// Latitude out of valid range (-90 to 90).
	w := postJSON(h.HandleSnap, "/api/v1/snap", `{"point":{"lat":91.0,"lng":103.8}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleSnap_PointTooFar(t *testing.T) {
	h := NewHandlers(&mockLocator{ready: true}, mockEdges{}, HandlerConfig{MaxSnapDistance: 300})

	w := postJSON(h.HandleSnap, "/api/v1/snap", `{"point":{"lat":1.3,"lng":103.8}}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != "point_too_far_from_road" || resp.DistanceMeters != 300 {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleSnap_NotReady(t *testing.T) {
	mock := &mockLocator{err: &locindex.StateError{Op: "FindClosest", State: locindex.StateClosed}}
	h := NewHandlers(mock, mockEdges{}, HandlerConfig{})

	w := postJSON(h.HandleSnap, "/api/v1/snap", `{"point":{"lat":1.3,"lng":103.8}}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHandleSnap_InternalError(t *testing.T) {
	h := NewHandlers(&mockLocator{err: errors.New("boom"), ready: true}, mockEdges{}, HandlerConfig{})

	w := postJSON(h.HandleSnap, "/api/v1/snap", `{"point":{"lat":1.3,"lng":103.8}}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestHandleSnapBatch(t *testing.T) {
	mock := &mockLocator{result: validSnap(1), ready: true}
	h := NewHandlers(mock, mockEdges{}, HandlerConfig{BatchWorkers: 1})

	body := `{"points":[{"id":"a","lat":1.3,"lng":103.8},{"id":"b","lat":1.31,"lng":103.81}],"mode":"foot"}`
	w := postJSON(h.HandleSnapBatch, "/api/v1/snap/batch", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	var resp BatchSnapResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("Results length = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].ID != "a" || resp.Results[1].ID != "b" {
		t.Errorf("ids = %q,%q", resp.Results[0].ID, resp.Results[1].ID)
	}
	if resp.Results[0].Snap == nil || resp.Results[0].Snap.EdgeID != 1 {
		t.Errorf("first result = %+v", resp.Results[0])
	}

	// Cars cannot use edge 1.
	w = postJSON(h.HandleSnapBatch, "/api/v1/snap/batch", strings.Replace(body, "foot", "car", 1))
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Results[0].Snap != nil || resp.Results[0].Error != "point_too_far_from_road" {
		t.Errorf("car result = %+v", resp.Results[0])
	}
}

func TestHandleSnapBatch_BadInput(t *testing.T) {
	h := NewHandlers(&mockLocator{ready: true}, mockEdges{}, HandlerConfig{})

	for name, body := range map[string]string{
		"empty":     `{"points":[]}`,
		"bad coord": `{"points":[{"lat":1,"lng":1},{"lat":100,"lng":1}]}`,
		"bad mode":  `{"points":[{"lat":1,"lng":1}],"mode":"rocket"}`,
	} {
		w := postJSON(h.HandleSnapBatch, "/api/v1/snap/batch", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestHandleEdges(t *testing.T) {
	mock := &mockLocator{ready: true, edges: []uint32{0, 1}, tiles: []geo.BBox{geo.NewBBox(1.3, 103.8, 1.4, 103.9)}}
	h := NewHandlers(mock, mockEdges{}, HandlerConfig{})

	req := httptest.NewRequest("GET", "/api/v1/edges?bbox=1.3,103.8,1.35,103.85&tiles=true&mode=car", nil)
	w := httptest.NewRecorder()
	h.HandleEdges(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("type = %q", fc.Type)
	}
	// One tile, and only the car edge.
	if len(fc.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(fc.Features))
	}
	if fc.Features[0].Geometry.Type != "Polygon" || fc.Features[0].Properties["kind"] != "tile" {
		t.Errorf("first feature = %+v", fc.Features[0])
	}
	if fc.Features[1].Geometry.Type != "LineString" || fc.Features[1].Properties["edge_id"] != float64(0) {
		t.Errorf("second feature = %+v", fc.Features[1])
	}
}

func TestHandleEdges_BadBBox(t *testing.T) {
	h := NewHandlers(&mockLocator{ready: true}, mockEdges{}, HandlerConfig{})

	for _, q := range []string{"", "bbox=1,2,3", "bbox=2,2,1,1", "bbox=0,0,10,10", "bbox=0,0,0.1,0.1&tiles=maybe"} {
		req := httptest.NewRequest("GET", "/api/v1/edges?"+q, nil)
		w := httptest.NewRecorder()
		h.HandleEdges(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", q, w.Code)
		}
	}
}

func TestHandleHealth(t *testing.T) {
	mock := &mockLocator{}
	h := NewHandlers(mock, mockEdges{}, HandlerConfig{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h.HandleHealth(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while loading", w.Code)
	}

	mock.ready = true
	w = httptest.NewRecorder()
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
	mock := &mockLocator{ready: true, stats: locindex.Stats{Tiles: 21, Leaves: 16, EdgeRefs: 900, Edges: 800, MaxDepth: 2, TileCapacity: 64}}
	h := NewHandlers(mock, mockEdges{}, HandlerConfig{NumNodes: 500000})

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	h.HandleStats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var resp StatsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.NumNodes != 500000 || resp.NumEdges != 800 || resp.Tiles != 21 {
		t.Errorf("stats = %+v", resp)
	}
}
