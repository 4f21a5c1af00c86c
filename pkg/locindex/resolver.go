package locindex

import (
	"math"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"

	"github.com/azybler/map_locator/pkg/geo"
)

// FindClosest returns the edge nearest to (lat, lon) among those accepted by
// filter. A nil filter accepts every edge. If no edge is accepted the result
// is invalid and err is nil; err is only set for a failing filter or an
// index that is not ready.
//
// Points outside the indexed extent are answered as well.
func (ix *Index) FindClosest(lat, lon float64, filter EdgeFilter) (SnapResult, error) {
	return ix.FindClosestWithin(lat, lon, math.Inf(1), filter)
}

// FindClosestWithin is FindClosest limited to edges at most maxDist meters
// away.
func (ix *Index) FindClosestWithin(lat, lon, maxDist float64, filter EdgeFilter) (SnapResult, error) {
	if err := ix.checkReady("FindClosest"); err != nil {
		return SnapResult{}, err
	}
	if !finite(lat) || !finite(lon) {
		return SnapResult{}, errors.Errorf("invalid query point %v,%v", lat, lon)
	}
	if math.IsNaN(maxDist) || maxDist < 0 {
		return SnapResult{}, errors.Errorf("invalid search radius %v", maxDist)
	}

	g := ix.grid
	if len(g.refs) == 0 {
		return SnapResult{}, nil
	}

	s := &search{
		grid:   g,
		store:  ix.store,
		plane:  geo.NewPlane(lat),
		lat:    lat,
		lon:    lon,
		filter: newQueryFilter(filter),
		best:   maxDist,
	}

	// Ring 0: the leaf containing the (clamped) query point. A good first
	// candidate here prunes most of the tree.
	home, _, _ := g.leafAt(lat, lon)
	if err := s.scanLeaf(home); err != nil {
		return SnapResult{}, err
	}

	// Then every other tile in increasing order of box distance, until the
	// nearest unexplored box is farther than the best accepted edge.
	var h tileHeap
	h.Push(tileItem{tile: 0, box: g.bounds, dist: s.plane.BoxDist(lat, lon, g.bounds)})
	leaves := 1
	for h.Len() > 0 {
		it := h.Pop()
		if it.dist > s.best {
			break
		}
		t := &g.tiles[it.tile]
		if t.isLeaf() {
			if it.tile != home {
				leaves++
				if err := s.scanLeaf(it.tile); err != nil {
					return SnapResult{}, err
				}
			}
			continue
		}
		for q := 0; q < 4; q++ {
			box := it.box.Quadrant(q)
			if d := s.plane.BoxDist(lat, lon, box); d <= s.best {
				h.Push(tileItem{tile: t.Child[q], box: box, dist: d})
			}
		}
	}

	if sigolo.ShouldLogTrace() {
		sigolo.Tracef("FindClosest %f,%f: %d leaves, %d edges measured, %d filtered, found=%v", lat, lon, leaves, s.filter.seen.GetCardinality(), s.filter.asked, s.found)
	}

	if !s.found {
		return SnapResult{}, nil
	}
	s.buf = ix.store.EdgeGeometry(s.edge, s.buf[:0])
	return newSnapResult(ix.store, s.plane, s.edge, s.buf, s.hit), nil
}

// search is the state of one FindClosest call.
type search struct {
	grid   *grid
	store  GraphStore
	plane  geo.Plane
	lat    float64
	lon    float64
	filter *queryFilter

	found bool
	best  float64 // distance of the current best, or the search radius
	edge  uint32
	hit   polylineHit

	buf []geo.Point
}

func (s *search) scanLeaf(idx uint32) error {
	for _, e := range s.grid.leafRefs(&s.grid.tiles[idx]) {
		if !s.filter.firstVisit(e) {
			continue
		}
		s.buf = s.store.EdgeGeometry(e, s.buf[:0])
		hit := closestOnPolyline(s.plane, s.lat, s.lon, s.buf)
		// The best distance only shrinks, so an edge that does not improve
		// now never will and need not be filtered.
		if !s.improves(e, hit.dist) {
			continue
		}
		ok, err := s.filter.accept(e)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		s.found = true
		s.best = hit.dist
		s.edge = e
		s.hit = hit
	}
	return nil
}

// improves reports whether an edge at distance d beats the current best.
// Equal distances go to the lower edge id.
func (s *search) improves(e uint32, d float64) bool {
	switch {
	case d < s.best:
		return true
	case d > s.best:
		return false
	default:
		return !s.found || e < s.edge
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
