package geo

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Orb converts the point to an orb.Point (X = lon, Y = lat).
func (p Point) Orb() orb.Point { return orb.Point{p.Lon, p.Lat} }

func (p Point) String() string { return fmt.Sprintf("%g,%g", p.Lat, p.Lon) }

// Coord is a coordinate carrying an arbitrary payload, e.g. a client-side
// identifier that has to survive a batch snap.
type Coord[T any] struct {
	Lat   float64
	Lon   float64
	Value T
}

// NewCoord returns a coordinate with the given payload.
func NewCoord[T any](lat, lon float64, value T) Coord[T] {
	return Coord[T]{Lat: lat, Lon: lon, Value: value}
}

// Point drops the payload.
func (c Coord[T]) Point() Point { return Point{Lat: c.Lat, Lon: c.Lon} }

func (c Coord[T]) String() string { return fmt.Sprintf("%g,%g", c.Lat, c.Lon) }
