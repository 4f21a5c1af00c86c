package graph_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/osm"

	"github.com/azybler/map_locator/pkg/graph"
	osmparser "github.com/azybler/map_locator/pkg/osm"
)

func buildTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 10, ToNodeID: 20, Weight: 100, Access: osmparser.AccessCar,
				ShapeLats: []float64{1.05}, ShapeLons: []float64{103.05}},
			{FromNodeID: 20, ToNodeID: 10, Weight: 100, Access: osmparser.AccessCar,
				ShapeLats: []float64{1.05}, ShapeLons: []float64{103.05}},
			{FromNodeID: 20, ToNodeID: 30, Weight: 200, Access: osmparser.AccessFoot},
			{FromNodeID: 30, ToNodeID: 20, Weight: 200, Access: osmparser.AccessFoot},
			{FromNodeID: 10, ToNodeID: 40, Weight: 300},
			{FromNodeID: 40, ToNodeID: 10, Weight: 300},
		},
		NodeLat: map[osm.NodeID]float64{10: 1.0, 20: 1.1, 30: 1.2, 40: 1.3},
		NodeLon: map[osm.NodeID]float64{10: 103.0, 20: 103.1, 30: 103.2, 40: 103.3},
	}
	return graph.Build(result)
}

func TestBinaryRoundTrip(t *testing.T) {
	original := buildTestGraph(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.graph.bin")

	if err := graph.WriteBinary(path, original); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}

	loaded, err := graph.ReadBinary(path)
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}

	if loaded.NumNodes != original.NumNodes {
		t.Errorf("NumNodes: got %d, want %d", loaded.NumNodes, original.NumNodes)
	}
	if loaded.NumEdges != original.NumEdges {
		t.Fatalf("NumEdges: got %d, want %d", loaded.NumEdges, original.NumEdges)
	}

	for i := uint32(0); i < original.NumNodes; i++ {
		if loaded.NodeLat[i] != original.NodeLat[i] {
			t.Errorf("NodeLat[%d]: got %f, want %f", i, loaded.NodeLat[i], original.NodeLat[i])
		}
	}

	for e := uint32(0); e < original.NumEdges; e++ {
		lu, lv := loaded.EdgeNodes(e)
		ou, ov := original.EdgeNodes(e)
		if lu != ou || lv != ov {
			t.Errorf("EdgeNodes(%d): got (%d,%d), want (%d,%d)", e, lu, lv, ou, ov)
		}
		if loaded.Weight[e] != original.Weight[e] {
			t.Errorf("Weight[%d]: got %d, want %d", e, loaded.Weight[e], original.Weight[e])
		}
		if loaded.EdgeAccess(e) != original.EdgeAccess(e) {
			t.Errorf("EdgeAccess(%d): got %v, want %v", e, loaded.EdgeAccess(e), original.EdgeAccess(e))
		}
		lg := loaded.EdgeGeometry(e, nil)
		og := original.EdgeGeometry(e, nil)
		if len(lg) != len(og) {
			t.Errorf("EdgeGeometry(%d): got %d points, want %d", e, len(lg), len(og))
			continue
		}
		for i := range og {
			if lg[i] != og[i] {
				t.Errorf("EdgeGeometry(%d)[%d]: got %v, want %v", e, i, lg[i], og[i])
			}
		}
	}
}

func TestBinaryEmptyGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.graph.bin")
	if err := graph.WriteBinary(path, &graph.Graph{}); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}
	loaded, err := graph.ReadBinary(path)
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}
	if loaded.NumNodes != 0 || loaded.EdgeCount() != 0 {
		t.Errorf("expected empty graph, got %d nodes, %d edges", loaded.NumNodes, loaded.EdgeCount())
	}
}

func TestBinaryInvalidMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.graph.bin")
	os.WriteFile(path, []byte("NOT_MPLGRAPH_HEADER_BLAH_BLAH_BLAH_MORE_DATA"), 0644)

	_, err := graph.ReadBinary(path)
	if err == nil {
		t.Fatal("expected error for invalid magic bytes")
	}
}

func TestBinaryTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "truncated.graph.bin")
	os.WriteFile(path, []byte("MPLGRAPH"), 0644)

	_, err := graph.ReadBinary(path)
	if err == nil {
		t.Fatal("expected error for truncated file")
	}
}

func TestBinaryCorruptedPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.graph.bin")
	if err := graph.WriteBinary(path, buildTestGraph(t)); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a bit inside the node latitudes.
	data[24] ^= 0x01
	os.WriteFile(path, data, 0644)

	if _, err := graph.ReadBinary(path); err == nil {
		t.Fatal("expected CRC error for corrupted payload")
	}
}
