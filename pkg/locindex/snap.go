package locindex

import (
	"fmt"

	"github.com/azybler/map_locator/pkg/geo"
)

// Position tells where on an edge a query point was snapped.
type Position uint8

const (
	// PositionEdge: strictly inside a segment of the polyline.
	PositionEdge Position = iota
	// PositionTower: onto one of the edge's end nodes.
	PositionTower
	// PositionPillar: onto an inner geometry point of the edge.
	PositionPillar
)

func (p Position) String() string {
	switch p {
	case PositionEdge:
		return "edge"
	case PositionTower:
		return "tower"
	case PositionPillar:
		return "pillar"
	default:
		return fmt.Sprintf("Position(%d)", uint8(p))
	}
}

// SnapResult is the outcome of a point query. When Valid is false no edge
// was accepted and the remaining fields carry no meaning.
type SnapResult struct {
	Valid bool

	EdgeID uint32
	NodeID uint32 // end node of EdgeID closest to the snapped point along the polyline

	SnappedLat float64
	SnappedLon float64
	Distance   float64 // meters from the query point to the snapped point

	WayIndex int // index of the polyline point the snap starts from
	Position Position
}

// Snapped returns the projected point on the edge.
func (r SnapResult) Snapped() geo.Point {
	return geo.Point{Lat: r.SnappedLat, Lon: r.SnappedLon}
}

func (r SnapResult) String() string {
	if !r.Valid {
		return "snap(invalid)"
	}
	return fmt.Sprintf("snap(edge=%d node=%d at %.7f,%.7f dist=%.2fm %s@%d)",
		r.EdgeID, r.NodeID, r.SnappedLat, r.SnappedLon, r.Distance, r.Position, r.WayIndex)
}

// polylineHit is the closest point of a polyline to a query point.
type polylineHit struct {
	dist    float64
	segment int     // index of the segment start point
	ratio   float64 // position within the segment, in [0,1]
}

// closestOnPolyline projects the point onto every segment of pts. The
// earliest segment wins on equal distance.
func closestOnPolyline(plane geo.Plane, lat, lon float64, pts []geo.Point) polylineHit {
	if len(pts) == 1 {
		return polylineHit{dist: plane.Dist(lat, lon, pts[0].Lat, pts[0].Lon)}
	}
	best := polylineHit{dist: -1}
	for i := 0; i+1 < len(pts); i++ {
		a, b := pts[i], pts[i+1]
		d, t := plane.SegmentDist(lat, lon, a.Lat, a.Lon, b.Lat, b.Lon)
		if best.dist < 0 || d < best.dist {
			best = polylineHit{dist: d, segment: i, ratio: t}
		}
	}
	return best
}

// newSnapResult turns the winning hit on edge e into a SnapResult.
func newSnapResult(store GraphStore, plane geo.Plane, e uint32, pts []geo.Point, hit polylineHit) SnapResult {
	r := SnapResult{
		Valid:    true,
		EdgeID:   e,
		Distance: hit.dist,
		WayIndex: hit.segment,
		Position: PositionEdge,
	}

	last := len(pts) - 1
	switch {
	case hit.ratio == 0:
		r.Position = positionOf(hit.segment, last)
	case hit.ratio == 1:
		r.WayIndex = hit.segment + 1
		r.Position = positionOf(r.WayIndex, last)
	}

	if r.Position == PositionEdge {
		a, b := pts[hit.segment], pts[hit.segment+1]
		r.SnappedLat = a.Lat + hit.ratio*(b.Lat-a.Lat)
		r.SnappedLon = a.Lon + hit.ratio*(b.Lon-a.Lon)
	} else {
		r.SnappedLat, r.SnappedLon = pts[r.WayIndex].Lat, pts[r.WayIndex].Lon
	}

	u, v := store.EdgeNodes(e)
	r.NodeID = closerEndNode(plane, pts, hit, u, v)
	return r
}

func positionOf(idx, last int) Position {
	if idx == 0 || idx == last {
		return PositionTower
	}
	return PositionPillar
}

// closerEndNode compares the distance along the polyline from the snapped
// point to both ends. The base node wins ties.
func closerEndNode(plane geo.Plane, pts []geo.Point, hit polylineHit, u, v uint32) uint32 {
	if len(pts) < 2 {
		return u
	}
	var before, total float64
	for i := 0; i+1 < len(pts); i++ {
		l := plane.Dist(pts[i].Lat, pts[i].Lon, pts[i+1].Lat, pts[i+1].Lon)
		if i < hit.segment {
			before += l
		} else if i == hit.segment {
			before += hit.ratio * l
		}
		total += l
	}
	if before <= total-before {
		return u
	}
	return v
}
