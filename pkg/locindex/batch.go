package locindex

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/azybler/map_locator/pkg/geo"
)

// Finder answers nearest-edge queries. *Index implements it.
type Finder interface {
	FindClosest(lat, lon float64, filter EdgeFilter) (SnapResult, error)
}

// RadiusFinder is the subset of *Index that WithinRadius needs.
type RadiusFinder interface {
	FindClosestWithin(lat, lon, maxDist float64, filter EdgeFilter) (SnapResult, error)
}

type radiusFinder struct {
	f       RadiusFinder
	maxDist float64
}

func (r radiusFinder) FindClosest(lat, lon float64, filter EdgeFilter) (SnapResult, error) {
	return r.f.FindClosestWithin(lat, lon, r.maxDist, filter)
}

// WithinRadius returns a Finder that ignores edges farther than maxDist meters.
func WithinRadius(f RadiusFinder, maxDist float64) Finder {
	return radiusFinder{f: f, maxDist: maxDist}
}

// Match pairs an input coordinate with its snap result.
type Match[T any] struct {
	Point geo.Coord[T]
	Snap  SnapResult
}

// SnapAll snaps every point with up to workers concurrent queries
// (GOMAXPROCS if workers <= 0). Results keep the input order. The first
// failing query or a cancelled ctx stops the batch.
func SnapAll[T any](ctx context.Context, f Finder, points []geo.Coord[T], filter EdgeFilter, workers int) ([]Match[T], error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]Match[T], len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range points {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := points[i]
			r, err := f.FindClosest(p.Lat, p.Lon, filter)
			if err != nil {
				return errors.Wrapf(err, "point %d (%s)", i, p)
			}
			out[i] = Match[T]{Point: p, Snap: r}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
