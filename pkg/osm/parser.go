package osm

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/azybler/map_locator/pkg/geo"
)

// RawEdge represents a directed edge between two junction ("tower") nodes.
// Intermediate way nodes ("pillars") are kept as shape points.
type RawEdge struct {
	FromNodeID osm.NodeID
	ToNodeID   osm.NodeID
	Weight     uint32    // distance in millimeters
	Access     Access    // travel modes allowed in this direction
	ShapeLats  []float64 // intermediate shape node latitudes (excluding from/to)
	ShapeLons  []float64 // intermediate shape node longitudes (excluding from/to)
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Edges   []RawEdge
	NodeLat map[osm.NodeID]float64
	NodeLon map[osm.NodeID]float64
}

// wayInfo holds parsed way data collected during Pass 1.
type wayInfo struct {
	NodeIDs  []osm.NodeID
	Forward  Access
	Backward Access
}

// BBox filters parsed edges. If non-zero, only edges whose whole geometry
// lies inside the box are kept.
type BBox = geo.BBox

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox BBox // if non-zero, filter edges to this bounding box
}

// Parse reads an OSM PBF file and returns directed road edges for all
// supported travel modes.
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	// Pass 1: Scan ways to collect referenced node IDs and way info.
	refCount := make(map[osm.NodeID]uint8)
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		info, ok := wayFromTags(w)
		if !ok {
			continue
		}
		ways = append(ways, info)
		for i, id := range info.NodeIDs {
			inc := uint8(1)
			// Way ends always split, so they count as a second reference.
			if i == 0 || i == len(info.NodeIDs)-1 {
				inc = 2
			}
			if c := refCount[id]; c < math.MaxUint8-inc {
				refCount[id] = c + inc
			}
		}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	sigolo.Infof("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(refCount))

	// Pass 2: Scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodeLat := make(map[osm.NodeID]float64, len(refCount))
	nodeLon := make(map[osm.NodeID]float64, len(refCount))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := refCount[n.ID]; !needed {
			continue
		}
		nodeLat[n.ID] = n.Lat
		nodeLon[n.ID] = n.Lon
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	sigolo.Infof("Pass 2 complete: %d node coordinates collected", len(nodeLat))

	result := &ParseResult{NodeLat: nodeLat, NodeLon: nodeLon}
	stats := splitWays(result, ways, refCount, opt.BBox)

	if stats.missing > 0 {
		sigolo.Warnf("Skipped %d way sections due to missing node coordinates", stats.missing)
	}
	if stats.bboxFiltered > 0 {
		sigolo.Infof("Filtered %d edges outside bounding box", stats.bboxFiltered)
	}
	sigolo.Infof("Built %d directed edges", len(result.Edges))

	return result, nil
}

// wayFromTags decides whether a way is part of the road network and with
// which access in each direction.
func wayFromTags(w *osm.Way) (wayInfo, bool) {
	if len(w.Nodes) < 2 {
		return wayInfo{}, false
	}
	modes := accessModes(w.Tags)
	if modes == 0 {
		return wayInfo{}, false
	}

	fwd, bwd := directionFlags(w.Tags)
	info := wayInfo{
		Forward:  modes & AccessFoot,
		Backward: modes & AccessFoot,
	}
	vehicles := modes &^ AccessFoot
	if fwd {
		info.Forward |= vehicles
	}
	if bwd {
		info.Backward |= vehicles
	}
	if info.Forward == 0 && info.Backward == 0 {
		return wayInfo{}, false
	}

	info.NodeIDs = make([]osm.NodeID, len(w.Nodes))
	for i, wn := range w.Nodes {
		info.NodeIDs[i] = wn.ID
	}
	return info, true
}

type splitStats struct {
	missing      int
	bboxFiltered int
}

// splitWays cuts every way at its tower nodes (way ends and nodes shared by
// more than one way) and emits one RawEdge per direction per section.
func splitWays(result *ParseResult, ways []wayInfo, refCount map[osm.NodeID]uint8, bbox BBox) splitStats {
	var stats splitStats
	useBBox := !bbox.IsZero()

	for _, w := range ways {
		start := 0
		for i := 1; i < len(w.NodeIDs); i++ {
			if i < len(w.NodeIDs)-1 && refCount[w.NodeIDs[i]] < 2 {
				continue
			}
			section := w.NodeIDs[start : i+1]
			start = i

			pts, ok := sectionPoints(result, section)
			if !ok {
				stats.missing++
				continue
			}
			if useBBox && !allInside(bbox, pts) {
				stats.bboxFiltered++
				continue
			}

			weightMM := uint32(math.Round(geo.PolylineLength(pts) * 1000))
			if weightMM == 0 {
				weightMM = 1 // avoid zero-weight edges
			}

			from, to := section[0], section[len(section)-1]
			inner := pts[1 : len(pts)-1]
			if w.Forward != 0 {
				result.Edges = append(result.Edges, RawEdge{
					FromNodeID: from,
					ToNodeID:   to,
					Weight:     weightMM,
					Access:     w.Forward,
					ShapeLats:  lats(inner, false),
					ShapeLons:  lons(inner, false),
				})
			}
			if w.Backward != 0 {
				result.Edges = append(result.Edges, RawEdge{
					FromNodeID: to,
					ToNodeID:   from,
					Weight:     weightMM,
					Access:     w.Backward,
					ShapeLats:  lats(inner, true),
					ShapeLons:  lons(inner, true),
				})
			}
		}
	}
	return stats
}

func sectionPoints(result *ParseResult, ids []osm.NodeID) ([]geo.Point, bool) {
	pts := make([]geo.Point, len(ids))
	for i, id := range ids {
		lat, ok := result.NodeLat[id]
		if !ok {
			return nil, false
		}
		pts[i] = geo.Point{Lat: lat, Lon: result.NodeLon[id]}
	}
	return pts, true
}

func allInside(b BBox, pts []geo.Point) bool {
	for _, p := range pts {
		if !b.Contains(p.Lat, p.Lon) {
			return false
		}
	}
	return true
}

func lats(pts []geo.Point, reverse bool) []float64 {
	if len(pts) == 0 {
		return nil
	}
	out := make([]float64, len(pts))
	for i, p := range pts {
		if reverse {
			out[len(pts)-1-i] = p.Lat
		} else {
			out[i] = p.Lat
		}
	}
	return out
}

func lons(pts []geo.Point, reverse bool) []float64 {
	if len(pts) == 0 {
		return nil
	}
	out := make([]float64, len(pts))
	for i, p := range pts {
		if reverse {
			out[len(pts)-1-i] = p.Lon
		} else {
			out[i] = p.Lon
		}
	}
	return out
}
