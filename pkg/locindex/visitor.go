package locindex

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/azybler/map_locator/pkg/geo"
)

// Visitor receives the edges found by Query.
type Visitor interface {
	// OnEdge is called exactly once per distinct edge referenced by a leaf
	// tile intersecting the query box.
	OnEdge(edge uint32)
}

// TileVisitor is a Visitor that also wants to see the leaf tiles. OnTile is
// called once per leaf tile intersecting the query box, before the edges of
// that tile, whether or not the tile holds any edge.
type TileVisitor interface {
	Visitor
	OnTile(box geo.BBox, depth int)
}

// Stopper is implemented by visitors that can end a Query early. Done is
// checked after every callback; once it reports true no further callbacks
// are made and the walk ends.
type Stopper interface {
	Done() bool
}

// EdgeFunc adapts a function to Visitor.
type EdgeFunc func(edge uint32)

func (f EdgeFunc) OnEdge(edge uint32) { f(edge) }

// TileEdgeFuncs adapts a pair of functions to TileVisitor. A nil Edge
// callback is allowed.
type TileEdgeFuncs struct {
	Tile func(box geo.BBox, depth int)
	Edge func(edge uint32)
}

func (f TileEdgeFuncs) OnTile(box geo.BBox, depth int) {
	if f.Tile != nil {
		f.Tile(box, depth)
	}
}

func (f TileEdgeFuncs) OnEdge(edge uint32) {
	if f.Edge != nil {
		f.Edge(edge)
	}
}

// Query reports every edge referenced by a leaf tile intersecting bbox.
// Culling is per tile, so an edge may lie partly or wholly outside bbox;
// callers needing exact results must check the geometry themselves.
func (ix *Index) Query(bbox geo.BBox, v Visitor) error {
	if err := ix.checkReady("Query"); err != nil {
		return err
	}
	if !bbox.IsValid() {
		return &ConfigError{Field: "bbox", Reason: "must be finite with min <= max: " + bbox.String()}
	}
	if v == nil {
		return &ConfigError{Field: "visitor", Reason: "must not be nil"}
	}

	g := ix.grid
	tv, wantTiles := v.(TileVisitor)
	st, canStop := v.(Stopper)
	stopped := false
	done := func() bool {
		stopped = stopped || (canStop && st.Done())
		return stopped
	}
	seen := roaring.New()

	if len(g.refs) == 0 {
		// Empty index: the single root leaf has no extent worth reporting.
		return nil
	}

	g.walk(func(_ uint32, t *tile, box geo.BBox, depth int) bool {
		if stopped || !box.Intersects(bbox) {
			return false
		}
		if !t.isLeaf() {
			return true
		}
		if wantTiles {
			tv.OnTile(box, depth)
			if done() {
				return false
			}
		}
		for _, e := range g.leafRefs(t) {
			if seen.CheckedAdd(e) {
				v.OnEdge(e)
				if done() {
					return false
				}
			}
		}
		return true
	})
	return nil
}
