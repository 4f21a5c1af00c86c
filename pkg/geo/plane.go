package geo

import "math"

// Plane is a local equirectangular projection with a fixed reference latitude.
// Longitudes are scaled by cos(refLat) and latitudes are kept as-is, so
// axis-aligned boxes stay axis-aligned and straight segments stay straight.
// All distances measured in the same Plane are mutually comparable, which is
// what makes box distances a valid lower bound for segment distances.
type Plane struct {
	cosLat float64
}

// NewPlane returns a projection centred on refLat (degrees).
func NewPlane(refLat float64) Plane {
	return Plane{cosLat: math.Cos(refLat * math.Pi / 180)}
}

// Project returns the degree-scaled planar coordinates of a point.
func (p Plane) Project(lat, lon float64) (x, y float64) {
	return lon * p.cosLat, lat
}

// Dist returns the planar distance in meters between two points.
func (p Plane) Dist(lat1, lon1, lat2, lon2 float64) float64 {
	dx := (lon2 - lon1) * p.cosLat
	dy := lat2 - lat1
	return math.Sqrt(dx*dx+dy*dy) * degToMeters
}

// SegmentDist returns the distance in meters from P to the closest point of
// segment AB, together with the projection ratio along AB clamped to [0,1].
func (p Plane) SegmentDist(pLat, pLon, aLat, aLon, bLat, bLon float64) (dist float64, ratio float64) {
	ax, ay := p.Project(aLat, aLon)
	bx, by := p.Project(bLat, bLon)
	px, py := p.Project(pLat, pLon)

	// Check for degenerate segment in original coordinates (exact comparison)
	// before working in projected space where floating-point noise in
	// cosLat multiplication can make identical coordinates differ by ~1e-15.
	if aLat == bLat && aLon == bLon {
		ex := px - ax
		ey := py - ay
		return math.Sqrt(ex*ex+ey*ey) * degToMeters, 0
	}

	dx := bx - ax
	dy := by - ay
	lenSq := dx*dx + dy*dy

	var t float64
	if lenSq > 0 {
		// Project P onto line AB, clamp to [0,1].
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}

	ex := px - (ax + t*dx)
	ey := py - (ay + t*dy)
	return math.Sqrt(ex*ex+ey*ey) * degToMeters, t
}

// BoxDist returns the distance in meters from a point to the closest point of
// box b. It is zero when the point lies inside b.
func (p Plane) BoxDist(lat, lon float64, b BBox) float64 {
	var dLon, dLat float64
	if lon < b.MinLon {
		dLon = b.MinLon - lon
	} else if lon > b.MaxLon {
		dLon = lon - b.MaxLon
	}
	if lat < b.MinLat {
		dLat = b.MinLat - lat
	} else if lat > b.MaxLat {
		dLat = lat - b.MaxLat
	}
	dx := dLon * p.cosLat
	return math.Sqrt(dx*dx+dLat*dLat) * degToMeters
}
