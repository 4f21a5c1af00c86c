package api

// LatLngJSON represents a lat/lng pair in JSON.
type LatLngJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SnapRequest is the JSON body for POST /api/v1/snap.
type SnapRequest struct {
	Point LatLngJSON `json:"point"`
	// Mode restricts the result to edges open to "car", "bike" or "foot".
	// Empty means any edge.
	Mode string `json:"mode,omitempty"`
	// MaxDistanceMeters narrows the server's snap radius. Zero keeps the default.
	MaxDistanceMeters float64 `json:"max_distance_meters,omitempty"`
	// Geometry asks for the polyline of the snapped edge.
	Geometry bool `json:"geometry,omitempty"`
}

// SnapResponse describes a point snapped onto an edge.
type SnapResponse struct {
	EdgeID         uint32       `json:"edge_id"`
	NodeID         uint32       `json:"node_id"`
	Snapped        LatLngJSON   `json:"snapped"`
	DistanceMeters float64      `json:"distance_meters"`
	WayIndex       int          `json:"way_index"`
	Position       string       `json:"position"`
	Access         string       `json:"access"`
	Geometry       []LatLngJSON `json:"geometry,omitempty"`
}

// BatchPoint is one input of a batch snap. ID is echoed back unchanged.
type BatchPoint struct {
	ID  string  `json:"id,omitempty"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BatchSnapRequest is the JSON body for POST /api/v1/snap/batch.
type BatchSnapRequest struct {
	Points            []BatchPoint `json:"points"`
	Mode              string       `json:"mode,omitempty"`
	MaxDistanceMeters float64      `json:"max_distance_meters,omitempty"`
}

// BatchSnapResult is the outcome for one BatchPoint. Snap is nil when no
// edge was found within the snap radius.
type BatchSnapResult struct {
	ID    string        `json:"id,omitempty"`
	Snap  *SnapResponse `json:"snap,omitempty"`
	Error string        `json:"error,omitempty"`
}

// BatchSnapResponse is the JSON response for POST /api/v1/snap/batch,
// in request order.
type BatchSnapResponse struct {
	Results []BatchSnapResult `json:"results"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error          string  `json:"error"`
	Field          string  `json:"field,omitempty"`
	DistanceMeters float64 `json:"distance_meters,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	NumNodes     uint32     `json:"num_nodes"`
	NumEdges     uint32     `json:"num_edges"`
	Tiles        int        `json:"tiles"`
	Leaves       int        `json:"leaves"`
	EdgeRefs     int        `json:"edge_refs"`
	MaxDepth     int        `json:"max_depth"`
	TileCapacity int        `json:"tile_capacity"`
	Bounds       [4]float64 `json:"bounds"` // minLat, minLon, maxLat, maxLon
	Mapped       bool       `json:"mapped"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
