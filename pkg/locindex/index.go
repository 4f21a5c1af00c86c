// Package locindex maps coordinates onto the nearest edge of a road graph and
// enumerates the edges inside a bounding box. The index is a quadrant tree of
// tiles over the graph extent that is built once, can be flushed to a flat
// file and memory-mapped back on later starts.
package locindex

import (
	"sync/atomic"
	"time"

	"github.com/hauke96/sigolo/v2"

	"github.com/azybler/map_locator/pkg/geo"
	"github.com/azybler/map_locator/pkg/graph"
)

// GraphStore is the read-only view of the road graph the index is built
// over. *graph.Graph implements it.
type GraphStore interface {
	EdgeCount() uint32
	EdgeNodes(edge uint32) (u, v uint32)
	// EdgeGeometry appends the full polyline of edge (both end nodes
	// included) to dst.
	EdgeGeometry(edge uint32, dst []geo.Point) []geo.Point
	NodeCoord(node uint32) geo.Point
	Bounds() geo.BBox
}

var _ GraphStore = (*graph.Graph)(nil)

// Index is the location index. Queries are safe for concurrent use once the
// index is ready. Build, Load, Flush and Close must not run concurrently
// with queries or with each other.
type Index struct {
	store GraphStore
	path  string
	cfg   Config

	state atomic.Int32
	fresh bool // built in this process, so Flush is allowed

	grid    *grid
	mapping *mapping

	// Preallocated by New, handed to the builder.
	tileBuf []tile
	refBuf  []uint32
}

// Stats describes a ready index.
type Stats struct {
	Tiles        int
	Leaves       int
	EdgeRefs     int
	Edges        uint32
	MaxDepth     int
	TileCapacity int
	Bounds       geo.BBox
	Mapped       bool
}

// New creates an index for store persisted at path. It validates cfg and
// reserves memory for a fresh build. The index starts uninitialized.
func New(store GraphStore, path string, cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, &ConfigError{Field: "store", Reason: "must not be nil"}
	}

	tiles, refs := estimateSize(store.EdgeCount(), cfg)
	sigolo.Debugf("Location index %s: capacity=%d depth=%d, reserving %d tiles and %d refs", path, cfg.TileCapacity, cfg.MaxDepth, tiles, refs)

	ix := &Index{
		store:   store,
		path:    path,
		cfg:     cfg,
		tileBuf: make([]tile, 0, tiles),
		refBuf:  make([]uint32, 0, refs),
	}
	ix.state.Store(int32(StateUninitialized))
	return ix, nil
}

// estimateSize guesses the arena sizes of a full build. Leaves hold about
// half the capacity on average and long edges get referenced a few times.
func estimateSize(numEdges uint32, cfg Config) (tiles, refs int) {
	refs = int(numEdges) + int(numEdges)/4
	leaves := refs/max(cfg.TileCapacity/2, 1) + 1
	tiles = leaves + leaves/3 + 1
	if limit := maxTilesForDepth(cfg.MaxDepth); tiles > limit {
		tiles = limit
	}
	return tiles, refs
}

func maxTilesForDepth(depth int) int {
	if depth > 12 {
		return 1 << 26
	}
	// 1 + 4 + ... + 4^depth
	return ((1 << (2 * (depth + 1))) - 1) / 3
}

// State returns the current lifecycle state.
func (ix *Index) State() State { return State(ix.state.Load()) }

// IsReady reports whether queries are allowed.
func (ix *Index) IsReady() bool { return ix.State() == StateReady }

// Config returns the grid parameters. After Load these are the persisted ones.
func (ix *Index) Config() Config { return ix.cfg }

// Path returns the backing file path.
func (ix *Index) Path() string { return ix.path }

func (ix *Index) checkReady(op string) error {
	if s := ix.State(); s != StateReady {
		return &StateError{Op: op, State: s}
	}
	return nil
}

// begin moves an uninitialized index into StateLoading.
func (ix *Index) begin(op string) error {
	if !ix.state.CompareAndSwap(int32(StateUninitialized), int32(StateLoading)) {
		return &StateError{Op: op, State: ix.State()}
	}
	return nil
}

// Build constructs the tile tree from the graph.
func (ix *Index) Build() error {
	if err := ix.begin("Build"); err != nil {
		return err
	}

	start := time.Now()
	g, err := buildGrid(ix.store, ix.cfg, ix.tileBuf, ix.refBuf)
	ix.tileBuf, ix.refBuf = nil, nil
	if err != nil {
		ix.state.Store(int32(StateClosed))
		return err
	}

	ix.grid = g
	ix.fresh = true
	ix.state.Store(int32(StateReady))

	st := ix.stats()
	sigolo.Infof("Built location index over %d edges: %d tiles (%d leaves), %d edge refs, depth %d in %s",
		st.Edges, st.Tiles, st.Leaves, st.EdgeRefs, st.MaxDepth, time.Since(start))
	return nil
}

// Load maps a previously flushed index. Any error leaves the index closed;
// use NeedsRebuild to decide whether to build from the graph instead.
func (ix *Index) Load() error {
	if err := ix.begin("Load"); err != nil {
		return err
	}
	ix.tileBuf, ix.refBuf = nil, nil

	start := time.Now()
	g, cfg, m, err := loadGrid(ix.path, ix.store.EdgeCount())
	if err != nil {
		ix.state.Store(int32(StateClosed))
		return err
	}

	ix.grid = g
	ix.cfg = cfg
	ix.mapping = m
	ix.fresh = false
	ix.state.Store(int32(StateReady))

	sigolo.Infof("Loaded location index %s: %d tiles, %d edge refs in %s", ix.path, len(g.tiles), len(g.refs), time.Since(start))
	return nil
}

// Flush writes a freshly built index to its path. It is not allowed after Load.
func (ix *Index) Flush() error {
	if err := ix.checkReady("Flush"); err != nil {
		return err
	}
	if !ix.fresh {
		return &StateError{Op: "Flush (index was loaded, not built)", State: ix.State()}
	}

	start := time.Now()
	if err := writeGrid(ix.path, ix.grid, ix.cfg, ix.store.EdgeCount()); err != nil {
		return err
	}
	sigolo.Infof("Flushed location index to %s in %s", ix.path, time.Since(start))
	return nil
}

// Close releases the index. Every later operation fails with a StateError.
// Closing twice is a no-op.
func (ix *Index) Close() error {
	prev := State(ix.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return nil
	}
	ix.grid = nil
	ix.tileBuf, ix.refBuf = nil, nil
	if ix.mapping != nil {
		m := ix.mapping
		ix.mapping = nil
		return m.close()
	}
	return nil
}

// Stats summarizes the tile tree.
func (ix *Index) Stats() (Stats, error) {
	if err := ix.checkReady("Stats"); err != nil {
		return Stats{}, err
	}
	return ix.stats(), nil
}

func (ix *Index) stats() Stats {
	st := Stats{
		Tiles:        len(ix.grid.tiles),
		EdgeRefs:     len(ix.grid.refs),
		Edges:        ix.store.EdgeCount(),
		TileCapacity: ix.cfg.TileCapacity,
		Bounds:       ix.grid.bounds,
		Mapped:       ix.mapping != nil,
	}
	ix.grid.walk(func(_ uint32, t *tile, _ geo.BBox, depth int) bool {
		if t.isLeaf() {
			st.Leaves++
		}
		st.MaxDepth = max(st.MaxDepth, depth)
		return true
	})
	return st
}
