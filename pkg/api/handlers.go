package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"
	"strconv"

	"github.com/hauke96/sigolo/v2"

	"github.com/azybler/map_locator/pkg/geo"
	"github.com/azybler/map_locator/pkg/graph"
	"github.com/azybler/map_locator/pkg/locindex"
)

const (
	maxBatchPoints = 1000
	// maxRegionArea limits GET /edges to about 0.25 square degrees.
	maxRegionArea = 0.25
)

// Locator is the location index as seen by the HTTP layer. *locindex.Index
// implements it.
type Locator interface {
	RegionQuerier
	FindClosestWithin(lat, lon, maxDist float64, filter locindex.EdgeFilter) (locindex.SnapResult, error)
	IsReady() bool
	Stats() (locindex.Stats, error)
}

// EdgeSource provides edge attributes for responses. *graph.Graph
// implements it.
type EdgeSource interface {
	EdgeAccess(edge uint32) graph.Access
	EdgeGeometry(edge uint32, dst []geo.Point) []geo.Point
}

// HandlerConfig holds request limits.
type HandlerConfig struct {
	// MaxSnapDistance is the largest snap radius in meters.
	MaxSnapDistance float64
	// BatchWorkers bounds the concurrent queries of one batch request.
	BatchWorkers int
	// NumNodes is reported by the stats endpoint.
	NumNodes uint32
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	loc   Locator
	edges EdgeSource
	cfg   HandlerConfig
}

// NewHandlers creates handlers over the given index and graph.
func NewHandlers(loc Locator, edges EdgeSource, cfg HandlerConfig) *Handlers {
	if cfg.MaxSnapDistance <= 0 {
		cfg.MaxSnapDistance = 500
	}
	return &Handlers{loc: loc, edges: edges, cfg: cfg}
}

// HandleSnap handles POST /api/v1/snap.
func (h *Handlers) HandleSnap(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	var req SnapRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	if err := validateCoord(req.Point); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "point")
		return
	}
	filter, err := modeFilter(h.edges, req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", "mode")
		return
	}
	radius := h.radius(req.MaxDistanceMeters)

	res, err := h.loc.FindClosestWithin(req.Point.Lat, req.Point.Lng, radius, filter)
	if err != nil {
		h.writeLocatorError(w, err)
		return
	}
	if !res.Valid {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "point_too_far_from_road", DistanceMeters: radius})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.snapResponse(res, req.Geometry))
}

// HandleSnapBatch handles POST /api/v1/snap/batch.
func (h *Handlers) HandleSnapBatch(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	var req BatchSnapRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 128<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	if len(req.Points) == 0 || len(req.Points) > maxBatchPoints {
		writeError(w, http.StatusBadRequest, "invalid_batch_size", "points")
		return
	}
	points := make([]geo.Coord[string], len(req.Points))
	for i, p := range req.Points {
		if err := validateCoord(LatLngJSON{Lat: p.Lat, Lng: p.Lng}); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_coordinates", "points["+strconv.Itoa(i)+"]")
			return
		}
		points[i] = geo.NewCoord(p.Lat, p.Lng, p.ID)
	}
	filter, err := modeFilter(h.edges, req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", "mode")
		return
	}

	finder := locindex.WithinRadius(h.loc, h.radius(req.MaxDistanceMeters))
	matches, err := locindex.SnapAll(r.Context(), finder, points, filter, h.cfg.BatchWorkers)
	if err != nil {
		h.writeLocatorError(w, err)
		return
	}

	resp := BatchSnapResponse{Results: make([]BatchSnapResult, len(matches))}
	for i, m := range matches {
		resp.Results[i].ID = m.Point.Value
		if !m.Snap.Valid {
			resp.Results[i].Error = "point_too_far_from_road"
			continue
		}
		s := h.snapResponse(m.Snap, false)
		resp.Results[i].Snap = &s
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleEdges handles GET /api/v1/edges?bbox=minLat,minLon,maxLat,maxLon
// with optional tiles=true and mode=car|bike|foot, answering GeoJSON.
func (h *Handlers) HandleEdges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bbox, err := geo.ParseBBox(q.Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_bbox", "bbox")
		return
	}
	if (bbox.MaxLat-bbox.MinLat)*(bbox.MaxLon-bbox.MinLon) > maxRegionArea {
		writeError(w, http.StatusBadRequest, "bbox_too_large", "bbox")
		return
	}
	withTiles := false
	if s := q.Get("tiles"); s != "" {
		if withTiles, err = strconv.ParseBool(s); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "tiles")
			return
		}
	}
	filter, err := modeFilter(h.edges, q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", "mode")
		return
	}

	fc, err := RegionFeatures(h.loc, h.edges, bbox, withTiles, filter)
	if err != nil {
		h.writeLocatorError(w, err)
		return
	}
	body, err := fc.MarshalJSON()
	if err != nil {
		h.writeLocatorError(w, err)
		return
	}
	sigolo.Debugf("Region %s: %d features", bbox, len(fc.Features))

	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(body)
}

// HandleHealth handles GET /api/v1/health. It answers 503 until the index
// is ready.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !h.loc.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(HealthResponse{Status: "loading"})
		return
	}
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.loc.Stats()
	if err != nil {
		h.writeLocatorError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatsResponse{
		NumNodes:     h.cfg.NumNodes,
		NumEdges:     st.Edges,
		Tiles:        st.Tiles,
		Leaves:       st.Leaves,
		EdgeRefs:     st.EdgeRefs,
		MaxDepth:     st.MaxDepth,
		TileCapacity: st.TileCapacity,
		Bounds:       [4]float64{st.Bounds.MinLat, st.Bounds.MinLon, st.Bounds.MaxLat, st.Bounds.MaxLon},
		Mapped:       st.Mapped,
	})
}

func (h *Handlers) radius(requested float64) float64 {
	if requested > 0 && requested < h.cfg.MaxSnapDistance {
		return requested
	}
	return h.cfg.MaxSnapDistance
}

func (h *Handlers) snapResponse(res locindex.SnapResult, withGeometry bool) SnapResponse {
	resp := SnapResponse{
		EdgeID:         res.EdgeID,
		NodeID:         res.NodeID,
		Snapped:        LatLngJSON{Lat: res.SnappedLat, Lng: res.SnappedLon},
		DistanceMeters: res.Distance,
		WayIndex:       res.WayIndex,
		Position:       res.Position.String(),
		Access:         h.edges.EdgeAccess(res.EdgeID).String(),
	}
	if withGeometry {
		for _, p := range h.edges.EdgeGeometry(res.EdgeID, nil) {
			resp.Geometry = append(resp.Geometry, LatLngJSON{Lat: p.Lat, Lng: p.Lon})
		}
	}
	return resp
}

func (h *Handlers) writeLocatorError(w http.ResponseWriter, err error) {
	switch {
	case locindex.IsStateError(err):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "index_not_ready", "")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
	default:
		sigolo.Errorf("Location index request failed: %+v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

// modeFilter turns a travel mode name into an edge filter. An empty mode
// yields a nil filter, which accepts every edge.
func modeFilter(edges EdgeSource, mode string) (locindex.EdgeFilter, error) {
	if mode == "" {
		return nil, nil
	}
	access, err := graph.ParseAccess(mode)
	if err != nil {
		return nil, err
	}
	return locindex.AccessFilter(edges, access), nil
}

func isJSON(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/json"
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
