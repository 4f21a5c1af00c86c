package api

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"

	"github.com/azybler/map_locator/pkg/geo"
	"github.com/azybler/map_locator/pkg/locindex"
)

// RegionQuerier enumerates the edges of a bounding box.
type RegionQuerier interface {
	Query(bbox geo.BBox, v locindex.Visitor) error
}

// RegionFeatures collects the edges found in bbox as GeoJSON LineStrings.
// With withTiles the visited leaf tiles are added as Polygons. Edges the
// filter rejects are left out; a nil filter keeps all of them. A failing
// filter ends the query.
func RegionFeatures(q RegionQuerier, edges EdgeSource, bbox geo.BBox, withTiles bool, filter locindex.EdgeFilter) (*geojson.FeatureCollection, error) {
	c := &regionCollector{edges: edges, filter: filter, fc: geojson.NewFeatureCollection()}

	var v locindex.Visitor = c
	if withTiles {
		v = tileCollector{c}
	}
	if err := q.Query(bbox, v); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.fc, nil
}

// regionCollector turns region query callbacks into features.
type regionCollector struct {
	edges  EdgeSource
	filter locindex.EdgeFilter
	fc     *geojson.FeatureCollection
	buf    []geo.Point
	err    error
}

func (c *regionCollector) OnEdge(e uint32) {
	if c.err != nil {
		return
	}
	if c.filter != nil {
		ok, err := c.filter.Accept(e)
		if err != nil {
			c.err = errors.Wrapf(err, "edge filter failed on edge %d", e)
			return
		}
		if !ok {
			return
		}
	}
	c.buf = c.edges.EdgeGeometry(e, c.buf[:0])
	line := make(orb.LineString, len(c.buf))
	for i, p := range c.buf {
		line[i] = p.Orb()
	}
	f := geojson.NewFeature(line)
	f.Properties["kind"] = "edge"
	f.Properties["edge_id"] = e
	f.Properties["access"] = c.edges.EdgeAccess(e).String()
	c.fc.Append(f)
}

func (c *regionCollector) Done() bool { return c.err != nil }

// tileCollector also records the visited tiles.
type tileCollector struct {
	*regionCollector
}

func (c tileCollector) OnTile(box geo.BBox, depth int) {
	f := geojson.NewFeature(box.Bound().ToPolygon())
	f.Properties["kind"] = "tile"
	f.Properties["depth"] = depth
	c.fc.Append(f)
}
