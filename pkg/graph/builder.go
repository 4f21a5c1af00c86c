package graph

import (
	"sort"

	"github.com/paulmach/osm"

	osmparser "github.com/azybler/map_locator/pkg/osm"
)

// compactEdge is an edge with remapped node indices, used while assembling
// CSR arrays.
type compactEdge struct {
	from      uint32
	to        uint32
	weight    uint32
	access    Access
	shapeLats []float64
	shapeLons []float64
}

// Build creates a CSR Graph from parsed OSM edges.
func Build(result *osmparser.ParseResult) *Graph {
	edges := result.Edges
	if len(edges) == 0 {
		return &Graph{}
	}

	// Step 1: Collect all unique node IDs and build a compact mapping.
	nodeSet := make(map[osm.NodeID]uint32)
	var nodeIDs []osm.NodeID

	addNode := func(id osm.NodeID) uint32 {
		if idx, ok := nodeSet[id]; ok {
			return idx
		}
		idx := uint32(len(nodeIDs))
		nodeSet[id] = idx
		nodeIDs = append(nodeIDs, id)
		return idx
	}

	for i := range edges {
		addNode(edges[i].FromNodeID)
		addNode(edges[i].ToNodeID)
	}

	// Step 2: Build compact edge list with remapped indices.
	compact := make([]compactEdge, len(edges))
	for i, e := range edges {
		access := e.Access
		if access == 0 {
			access = AccessAll
		}
		compact[i] = compactEdge{
			from:      nodeSet[e.FromNodeID],
			to:        nodeSet[e.ToNodeID],
			weight:    e.Weight,
			access:    access,
			shapeLats: e.ShapeLats,
			shapeLons: e.ShapeLons,
		}
	}

	// Step 3: Node coordinates.
	numNodes := uint32(len(nodeIDs))
	nodeLat := make([]float64, numNodes)
	nodeLon := make([]float64, numNodes)
	for id, idx := range nodeSet {
		nodeLat[idx] = result.NodeLat[id]
		nodeLon[idx] = result.NodeLon[id]
	}

	return assemble(numNodes, compact, nodeLat, nodeLon)
}

// assemble sorts edges by source node and lays them out as CSR arrays.
// Edge IDs are positions in the sorted order, so they are deterministic for
// a given input.
func assemble(numNodes uint32, compact []compactEdge, nodeLat, nodeLon []float64) *Graph {
	sort.SliceStable(compact, func(i, j int) bool {
		if compact[i].from != compact[j].from {
			return compact[i].from < compact[j].from
		}
		return compact[i].to < compact[j].to
	})

	numEdges := uint32(len(compact))
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)
	tail := make([]uint32, numEdges)
	weight := make([]uint32, numEdges)
	access := make([]Access, numEdges)

	geoFirstOut := make([]uint32, numEdges+1)
	var geoShapeLat, geoShapeLon []float64

	for i, e := range compact {
		head[i] = e.to
		tail[i] = e.from
		weight[i] = e.weight
		access[i] = e.access
		geoFirstOut[i] = uint32(len(geoShapeLat))
		geoShapeLat = append(geoShapeLat, e.shapeLats...)
		geoShapeLon = append(geoShapeLon, e.shapeLons...)
		firstOut[e.from+1]++
	}
	geoFirstOut[numEdges] = uint32(len(geoShapeLat))

	// Prefix sum.
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	return &Graph{
		NumNodes:    numNodes,
		NumEdges:    numEdges,
		FirstOut:    firstOut,
		Head:        head,
		Tail:        tail,
		Weight:      weight,
		Access:      access,
		NodeLat:     nodeLat,
		NodeLon:     nodeLon,
		GeoFirstOut: geoFirstOut,
		GeoShapeLat: geoShapeLat,
		GeoShapeLon: geoShapeLon,
	}
}
