package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// BBox is a closed axis-aligned box in latitude/longitude degrees.
type BBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// NewBBox builds a box from its corners, in the same order as the
// "minLat,minLon,maxLat,maxLon" strings accepted by ParseBBox.
func NewBBox(minLat, minLon, maxLat, maxLon float64) BBox {
	return BBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
}

// EmptyBBox returns an inverted box that any Extend call will replace.
func EmptyBBox() BBox {
	return BBox{
		MinLat: math.Inf(1), MaxLat: math.Inf(-1),
		MinLon: math.Inf(1), MaxLon: math.Inf(-1),
	}
}

// ParseBBox parses "minLat,minLon,maxLat,maxLon".
func ParseBBox(s string) (BBox, error) {
	var minLat, minLon, maxLat, maxLon float64
	if _, err := fmt.Sscanf(s, "%f,%f,%f,%f", &minLat, &minLon, &maxLat, &maxLon); err != nil {
		return BBox{}, fmt.Errorf("invalid bbox %q (expected minLat,minLon,maxLat,maxLon): %w", s, err)
	}
	b := NewBBox(minLat, minLon, maxLat, maxLon)
	if !b.IsValid() {
		return BBox{}, fmt.Errorf("invalid bbox %q: min must not exceed max", s)
	}
	return b, nil
}

// IsValid reports whether all bounds are finite and min <= max on both axes.
func (b BBox) IsValid() bool {
	for _, v := range [4]float64{b.MinLat, b.MaxLat, b.MinLon, b.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLon == 0 && b.MaxLon == 0
}

// Extend returns the smallest box containing b and the point.
func (b BBox) Extend(lat, lon float64) BBox {
	b.MinLat = math.Min(b.MinLat, lat)
	b.MaxLat = math.Max(b.MaxLat, lat)
	b.MinLon = math.Min(b.MinLon, lon)
	b.MaxLon = math.Max(b.MaxLon, lon)
	return b
}

// Pad grows the box by d degrees on every side.
func (b BBox) Pad(d float64) BBox {
	return BBox{MinLat: b.MinLat - d, MaxLat: b.MaxLat + d, MinLon: b.MinLon - d, MaxLon: b.MaxLon + d}
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Intersects reports whether two closed boxes share at least one point.
func (b BBox) Intersects(o BBox) bool {
	return b.MinLat <= o.MaxLat && o.MinLat <= b.MaxLat &&
		b.MinLon <= o.MaxLon && o.MinLon <= b.MaxLon
}

// Clamp moves a point onto the closest point of the box.
func (b BBox) Clamp(lat, lon float64) (float64, float64) {
	return math.Min(math.Max(lat, b.MinLat), b.MaxLat), math.Min(math.Max(lon, b.MinLon), b.MaxLon)
}

// Center returns the midpoint of the box.
func (b BBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Quadrant returns one quarter of the box. Bit 0 of q selects the eastern
// half, bit 1 the northern half: 0=SW, 1=SE, 2=NW, 3=NE.
func (b BBox) Quadrant(q int) BBox {
	midLat, midLon := b.Center()
	out := b
	if q&1 != 0 {
		out.MinLon = midLon
	} else {
		out.MaxLon = midLon
	}
	if q&2 != 0 {
		out.MinLat = midLat
	} else {
		out.MaxLat = midLat
	}
	return out
}

// QuadrantOf returns the quadrant index (see Quadrant) a point falls into.
// Points on the split lines belong to the northern/eastern side.
func (b BBox) QuadrantOf(lat, lon float64) int {
	midLat, midLon := b.Center()
	q := 0
	if lon >= midLon {
		q |= 1
	}
	if lat >= midLat {
		q |= 2
	}
	return q
}

// IntersectsSegment reports whether segment AB touches the closed box,
// using Liang-Barsky clipping in degree space.
func (b BBox) IntersectsSegment(aLat, aLon, bLat, bLon float64) bool {
	if b.Contains(aLat, aLon) || b.Contains(bLat, bLon) {
		return true
	}
	t0, t1 := 0.0, 1.0
	dLon := bLon - aLon
	dLat := bLat - aLat
	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return false
			}
			if r < t1 {
				t1 = r
			}
		}
		return true
	}
	return clip(-dLon, aLon-b.MinLon) &&
		clip(dLon, b.MaxLon-aLon) &&
		clip(-dLat, aLat-b.MinLat) &&
		clip(dLat, b.MaxLat-aLat) &&
		t0 <= t1
}

// Bound converts the box to an orb.Bound (X = lon, Y = lat).
func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// FromBound converts an orb.Bound to a BBox.
func FromBound(bound orb.Bound) BBox {
	return BBox{
		MinLat: bound.Min.Lat(), MaxLat: bound.Max.Lat(),
		MinLon: bound.Min.Lon(), MaxLon: bound.Max.Lon(),
	}
}

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}
