package locindex

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/azybler/map_locator/pkg/geo"
)

// testStore is an in-memory GraphStore. Edge i runs from edges[i][0] to
// edges[i][1] through shapes[i].
type testStore struct {
	nodes  []geo.Point
	edges  [][2]uint32
	shapes [][]geo.Point
}

func (s *testStore) EdgeCount() uint32 { return uint32(len(s.edges)) }

func (s *testStore) EdgeNodes(e uint32) (uint32, uint32) { return s.edges[e][0], s.edges[e][1] }

func (s *testStore) NodeCoord(n uint32) geo.Point { return s.nodes[n] }

func (s *testStore) EdgeGeometry(e uint32, dst []geo.Point) []geo.Point {
	dst = append(dst, s.nodes[s.edges[e][0]])
	if s.shapes != nil {
		dst = append(dst, s.shapes[e]...)
	}
	return append(dst, s.nodes[s.edges[e][1]])
}

func (s *testStore) Bounds() geo.BBox {
	b := geo.EmptyBBox()
	for _, p := range s.nodes {
		b = b.Extend(p.Lat, p.Lon)
	}
	for _, sh := range s.shapes {
		for _, p := range sh {
			b = b.Extend(p.Lat, p.Lon)
		}
	}
	return b
}

func (s *testStore) addNode(lat, lon float64) uint32 {
	s.nodes = append(s.nodes, geo.Point{Lat: lat, Lon: lon})
	return uint32(len(s.nodes) - 1)
}

func (s *testStore) addEdge(u, v uint32, shape ...geo.Point) uint32 {
	s.edges = append(s.edges, [2]uint32{u, v})
	s.shapes = append(s.shapes, shape)
	return uint32(len(s.edges) - 1)
}

// randomStore scatters nodes over a 0.1 degree square near Singapore and
// connects random pairs, some of them through pillar points.
func randomStore(seed uint64, numNodes, numEdges int) *testStore {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	s := &testStore{}
	for i := 0; i < numNodes; i++ {
		s.addNode(1.30+rng.Float64()*0.1, 103.80+rng.Float64()*0.1)
	}
	for i := 0; i < numEdges; i++ {
		u := uint32(rng.IntN(numNodes))
		v := uint32(rng.IntN(numNodes))
		var shape []geo.Point
		for k := rng.IntN(3); k > 0; k-- {
			a, b := s.nodes[u], s.nodes[v]
			f := rng.Float64()
			shape = append(shape, geo.Point{
				Lat: a.Lat + f*(b.Lat-a.Lat) + (rng.Float64()-0.5)*0.002,
				Lon: a.Lon + f*(b.Lon-a.Lon) + (rng.Float64()-0.5)*0.002,
			})
		}
		s.addEdge(u, v, shape...)
	}
	return s
}

// bruteForce is the linear-scan oracle for FindClosest.
func bruteForce(s *testStore, lat, lon float64, accept func(uint32) bool) (edge uint32, dist float64, ok bool) {
	plane := geo.NewPlane(lat)
	dist = math.Inf(1)
	var buf []geo.Point
	for e := uint32(0); e < s.EdgeCount(); e++ {
		if accept != nil && !accept(e) {
			continue
		}
		buf = s.EdgeGeometry(e, buf[:0])
		for i := 0; i+1 < len(buf); i++ {
			d, _ := plane.SegmentDist(lat, lon, buf[i].Lat, buf[i].Lon, buf[i+1].Lat, buf[i+1].Lon)
			if d < dist || (d == dist && e < edge) {
				edge, dist, ok = e, d, true
			}
		}
	}
	return edge, dist, ok
}

// buildIndex creates and builds an index over s in a temp dir.
func buildIndex(t *testing.T, s GraphStore, cfg Config) *Index {
	t.Helper()
	ix, err := New(s, filepath.Join(t.TempDir(), "test.locidx"), cfg)
	require.NoError(t, err)
	require.NoError(t, ix.Build())
	t.Cleanup(func() { ix.Close() })
	return ix
}

// rightAngle is three edges meeting at (0,0): north, east and south-west.
func rightAngle() *testStore {
	s := &testStore{}
	o := s.addNode(0, 0)
	n := s.addNode(1, 0)
	e := s.addNode(0, 1)
	sw := s.addNode(-1, -1)
	s.addEdge(o, n)
	s.addEdge(o, e)
	s.addEdge(o, sw)
	return s
}
