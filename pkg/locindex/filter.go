package locindex

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"

	"github.com/azybler/map_locator/pkg/graph"
)

// EdgeFilter decides whether an edge may be returned by FindClosest.
// Implementations shared between goroutines must be safe for concurrent use.
// A returned error aborts the running query only.
type EdgeFilter interface {
	Accept(edge uint32) (bool, error)
}

// FilterFunc adapts a plain predicate to EdgeFilter.
type FilterFunc func(edge uint32) bool

func (f FilterFunc) Accept(edge uint32) (bool, error) { return f(edge), nil }

// FallibleFilterFunc adapts a predicate that can fail to EdgeFilter.
type FallibleFilterFunc func(edge uint32) (bool, error)

func (f FallibleFilterFunc) Accept(edge uint32) (bool, error) { return f(edge) }

// AllEdges accepts every edge.
var AllEdges EdgeFilter = FilterFunc(func(uint32) bool { return true })

// AccessReader exposes per-edge travel modes. *graph.Graph implements it.
type AccessReader interface {
	EdgeAccess(edge uint32) graph.Access
}

// AccessFilter accepts edges that allow every mode in modes.
func AccessFilter(r AccessReader, modes graph.Access) EdgeFilter {
	return FilterFunc(func(edge uint32) bool {
		return r.EdgeAccess(edge).Allows(modes)
	})
}

// queryFilter is the per-query wrapper around the caller's filter. It makes
// sure every edge is looked at, and asked about, at most once per query.
type queryFilter struct {
	filter EdgeFilter
	seen   *roaring.Bitmap
	asked  int
}

func newQueryFilter(f EdgeFilter) *queryFilter {
	if f == nil {
		f = AllEdges
	}
	return &queryFilter{filter: f, seen: roaring.New()}
}

// firstVisit returns false if the edge was already evaluated in this query.
func (q *queryFilter) firstVisit(edge uint32) bool {
	return q.seen.CheckedAdd(edge)
}

func (q *queryFilter) accept(edge uint32) (bool, error) {
	q.asked++
	ok, err := q.filter.Accept(edge)
	if err != nil {
		return false, errors.Wrapf(err, "edge filter failed on edge %d", edge)
	}
	return ok, nil
}
