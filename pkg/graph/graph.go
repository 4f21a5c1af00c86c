package graph

import (
	"github.com/azybler/map_locator/pkg/geo"
	osmparser "github.com/azybler/map_locator/pkg/osm"
)

// Access is the per-edge travel mode bit set.
type Access = osmparser.Access

const (
	AccessCar  = osmparser.AccessCar
	AccessBike = osmparser.AccessBike
	AccessFoot = osmparser.AccessFoot
	AccessAll  = osmparser.AccessAll
)

// ParseAccess parses a travel mode name ("car", "bike", "foot").
func ParseAccess(s string) (Access, error) { return osmparser.ParseAccess(s) }

// Graph represents a directed road graph in CSR (Compressed Sparse Row) format.
// It is immutable once built or loaded and safe for concurrent readers.
type Graph struct {
	NumNodes uint32
	NumEdges uint32
	FirstOut []uint32  // len: NumNodes + 1; FirstOut[i]..FirstOut[i+1] are edges from node i
	Head     []uint32  // len: NumEdges; target node for each edge
	Tail     []uint32  // len: NumEdges; source node for each edge (derived from FirstOut)
	Weight   []uint32  // len: NumEdges; distance in millimeters
	Access   []Access  // len: NumEdges; travel modes allowed along the edge
	NodeLat  []float64 // len: NumNodes
	NodeLon  []float64 // len: NumNodes

	// Edge geometry: intermediate shape nodes ("pillars").
	// GeoFirstOut[i]..GeoFirstOut[i+1] indexes into GeoShapeLat/Lon for edge i.
	GeoFirstOut []uint32  // len: NumEdges + 1
	GeoShapeLat []float64 // flattened intermediate lat coords
	GeoShapeLon []float64 // flattened intermediate lon coords
}

// EdgesFrom returns the range of edge indices for edges originating from node u.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() uint32 { return g.NumEdges }

// EdgeNodes returns the source and target node of an edge.
func (g *Graph) EdgeNodes(e uint32) (u, v uint32) {
	return g.Tail[e], g.Head[e]
}

// EdgeAccess returns the travel modes allowed on an edge. Graphs without
// access data allow everything.
func (g *Graph) EdgeAccess(e uint32) Access {
	if g.Access == nil {
		return AccessAll
	}
	return g.Access[e]
}

// NodeCoord returns the coordinate of a node.
func (g *Graph) NodeCoord(n uint32) geo.Point {
	return geo.Point{Lat: g.NodeLat[n], Lon: g.NodeLon[n]}
}

// EdgeGeometry appends the full polyline of edge e (source node, pillars,
// target node) to dst and returns it.
func (g *Graph) EdgeGeometry(e uint32, dst []geo.Point) []geo.Point {
	u, v := g.EdgeNodes(e)
	dst = append(dst, g.NodeCoord(u))
	if g.GeoFirstOut != nil && e+1 < uint32(len(g.GeoFirstOut)) {
		for k := g.GeoFirstOut[e]; k < g.GeoFirstOut[e+1]; k++ {
			dst = append(dst, geo.Point{Lat: g.GeoShapeLat[k], Lon: g.GeoShapeLon[k]})
		}
	}
	return append(dst, g.NodeCoord(v))
}

// Bounds returns the bounding box of all node and shape coordinates.
// An empty graph yields geo.EmptyBBox().
func (g *Graph) Bounds() geo.BBox {
	b := geo.EmptyBBox()
	for i := range g.NodeLat {
		b = b.Extend(g.NodeLat[i], g.NodeLon[i])
	}
	for i := range g.GeoShapeLat {
		b = b.Extend(g.GeoShapeLat[i], g.GeoShapeLon[i])
	}
	return b
}

// buildTail derives the per-edge source node array from FirstOut.
func buildTail(firstOut []uint32, numNodes, numEdges uint32) []uint32 {
	tail := make([]uint32, numEdges)
	for u := uint32(0); u < numNodes; u++ {
		for e := firstOut[u]; e < firstOut[u+1]; e++ {
			tail[e] = u
		}
	}
	return tail
}
