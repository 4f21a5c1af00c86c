package locindex

import (
	"fmt"

	"github.com/azybler/map_locator/pkg/geo"
)

// noTile marks "no child" in tile.Child. A tile whose first child is noTile
// is a leaf.
const noTile = ^uint32(0)

// tileEpsilon pads tile boxes during edge/tile intersection so that edges
// running exactly along a split line land on both sides despite rounding.
const tileEpsilon = 1e-9

// minExtent is the size a zero-width or zero-height graph extent is padded to.
const minExtent = 1e-6

const (
	// refsPerEdge and minArenaBudget cap the tiles and edge references of
	// one build. Going past them is a ConfigError.
	refsPerEdge    = 256
	minArenaBudget = 1 << 20
)

// tile is one node of the quadrant tree, addressed by its index in the
// arena. The field layout is also the on-disk record (24 bytes).
type tile struct {
	Child    [4]uint32 // quadrant children (see geo.BBox.Quadrant), noTile for leaves
	RefStart uint32    // leaf only: first index into grid.refs
	RefCount uint32    // leaf only: number of edge references
}

func (t *tile) isLeaf() bool { return t.Child[0] == noTile }

// grid is the immutable tile tree. Tile boxes are not stored; they follow
// from the root bounds and the quadrant path.
type grid struct {
	bounds geo.BBox
	tiles  []tile
	refs   []uint32
}

func (g *grid) leafRefs(t *tile) []uint32 {
	return g.refs[t.RefStart : t.RefStart+t.RefCount]
}

// leafAt returns the leaf containing the point, after clamping it into the
// grid bounds.
func (g *grid) leafAt(lat, lon float64) (idx uint32, box geo.BBox, depth int) {
	lat, lon = g.bounds.Clamp(lat, lon)
	box = g.bounds
	for !g.tiles[idx].isLeaf() {
		q := box.QuadrantOf(lat, lon)
		idx = g.tiles[idx].Child[q]
		box = box.Quadrant(q)
		depth++
	}
	return idx, box, depth
}

// walk visits tiles depth-first, descending only into tiles for which fn
// returns true.
func (g *grid) walk(fn func(idx uint32, t *tile, box geo.BBox, depth int) bool) {
	type frame struct {
		idx   uint32
		box   geo.BBox
		depth int
	}
	if len(g.tiles) == 0 {
		return
	}
	stack := []frame{{idx: 0, box: g.bounds}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t := &g.tiles[f.idx]
		if !fn(f.idx, t, f.box, f.depth) || t.isLeaf() {
			continue
		}
		// Push in reverse so quadrant 0 is visited first.
		for q := 3; q >= 0; q-- {
			stack = append(stack, frame{idx: t.Child[q], box: f.box.Quadrant(q), depth: f.depth + 1})
		}
	}
}

// gridBuilder assembles the tile tree from a graph in one pass.
type gridBuilder struct {
	cfg       Config
	store     GraphStore
	edgeBoxes []geo.BBox
	buf       []geo.Point
	tiles     []tile
	refs      []uint32

	tileLimit int
	refLimit  int
	err       error
}

// buildGrid partitions the graph extent until every leaf holds fewer than
// cfg.TileCapacity edge references or sits at cfg.MaxDepth. Each edge is
// referenced by every leaf its polyline touches.
func buildGrid(store GraphStore, cfg Config, tiles []tile, refs []uint32) (*grid, error) {
	numEdges := store.EdgeCount()
	if numEdges == 0 {
		return &grid{
			tiles: []tile{{Child: [4]uint32{noTile, noTile, noTile, noTile}}},
		}, nil
	}

	bounds := store.Bounds()
	if !bounds.IsValid() {
		return nil, &ConfigError{Field: "bounds", Reason: "graph bounding box is not finite or inverted: " + bounds.String()}
	}
	if bounds.MaxLat-bounds.MinLat < minExtent {
		bounds.MinLat -= minExtent / 2
		bounds.MaxLat += minExtent / 2
	}
	if bounds.MaxLon-bounds.MinLon < minExtent {
		bounds.MinLon -= minExtent / 2
		bounds.MaxLon += minExtent / 2
	}

	budget := max(int(numEdges)*refsPerEdge, minArenaBudget)
	b := &gridBuilder{
		cfg:       cfg,
		store:     store,
		edgeBoxes: make([]geo.BBox, numEdges),
		tiles:     tiles[:0],
		refs:      refs[:0],
		tileLimit: min(budget, maxTiles),
		refLimit:  int(min(uint64(budget), maxRefs)),
	}
	all := make([]uint32, numEdges)
	for e := uint32(0); e < numEdges; e++ {
		all[e] = e
		b.buf = store.EdgeGeometry(e, b.buf[:0])
		eb := geo.EmptyBBox()
		for _, p := range b.buf {
			eb = eb.Extend(p.Lat, p.Lon)
		}
		if !eb.IsValid() {
			return nil, &ConfigError{Field: "geometry", Reason: "edge has no finite coordinates"}
		}
		b.edgeBoxes[e] = eb
	}

	b.build(bounds, 0, all)
	if b.err != nil {
		return nil, b.err
	}
	return &grid{bounds: bounds, tiles: b.tiles, refs: b.refs}, nil
}

func (b *gridBuilder) build(box geo.BBox, depth int, edges []uint32) uint32 {
	if b.err != nil {
		return noTile
	}
	if len(b.tiles) >= b.tileLimit || len(b.refs)+len(edges) > b.refLimit {
		b.err = &ConfigError{
			Field:  "TileCapacity",
			Reason: fmt.Sprintf("%d with MaxDepth %d needs more than %d tiles or %d edge references for %d edges, raise TileCapacity or lower MaxDepth",
				b.cfg.TileCapacity, b.cfg.MaxDepth, b.tileLimit, b.refLimit, len(b.edgeBoxes)),
		}
		return noTile
	}

	idx := uint32(len(b.tiles))
	b.tiles = append(b.tiles, tile{})

	if len(edges) < b.cfg.TileCapacity || depth >= b.cfg.MaxDepth {
		b.tiles[idx] = tile{
			Child:    [4]uint32{noTile, noTile, noTile, noTile},
			RefStart: uint32(len(b.refs)),
			RefCount: uint32(len(edges)),
		}
		b.refs = append(b.refs, edges...)
		return idx
	}

	var children [4]uint32
	sub := make([]uint32, 0, len(edges))
	for q := 0; q < 4; q++ {
		qbox := box.Quadrant(q)
		sub = sub[:0]
		for _, e := range edges {
			if b.intersects(e, qbox) {
				sub = append(sub, e)
			}
		}
		// The recursion appends its own copy to refs, so sub can be reused.
		children[q] = b.build(qbox, depth+1, append([]uint32(nil), sub...))
	}
	b.tiles[idx].Child = children
	return idx
}

// intersects reports whether the polyline of edge e touches box.
func (b *gridBuilder) intersects(e uint32, box geo.BBox) bool {
	padded := box.Pad(tileEpsilon)
	eb := b.edgeBoxes[e]
	if !eb.Intersects(padded) {
		return false
	}
	if padded.Contains(eb.MinLat, eb.MinLon) && padded.Contains(eb.MaxLat, eb.MaxLon) {
		return true
	}
	b.buf = b.store.EdgeGeometry(e, b.buf[:0])
	if len(b.buf) == 1 {
		return padded.Contains(b.buf[0].Lat, b.buf[0].Lon)
	}
	for i := 1; i < len(b.buf); i++ {
		if padded.IntersectsSegment(b.buf[i-1].Lat, b.buf[i-1].Lon, b.buf[i].Lat, b.buf[i].Lon) {
			return true
		}
	}
	return false
}
