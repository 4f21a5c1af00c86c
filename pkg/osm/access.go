package osm

import (
	"fmt"
	"strings"

	"github.com/paulmach/osm"
)

// Access is a bit set of travel modes allowed on an edge.
type Access uint8

const (
	AccessCar Access = 1 << iota
	AccessBike
	AccessFoot

	AccessAll = AccessCar | AccessBike | AccessFoot
)

// Allows reports whether every mode in m is allowed.
func (a Access) Allows(m Access) bool { return m != 0 && a&m == m }

func (a Access) String() string {
	if a == 0 {
		return "none"
	}
	var parts []string
	if a&AccessCar != 0 {
		parts = append(parts, "car")
	}
	if a&AccessBike != 0 {
		parts = append(parts, "bike")
	}
	if a&AccessFoot != 0 {
		parts = append(parts, "foot")
	}
	return strings.Join(parts, "|")
}

// ParseAccess parses a travel mode name ("car", "bike", "foot").
func ParseAccess(s string) (Access, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "car":
		return AccessCar, nil
	case "bike", "bicycle":
		return AccessBike, nil
	case "foot", "walk":
		return AccessFoot, nil
	}
	return 0, fmt.Errorf("unknown travel mode %q", s)
}

// carHighways lists highway tag values accessible by car.
var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// bikeHighways lists highway tag values usable by bicycle on top of the
// non-motorway car roads.
var bikeHighways = map[string]bool{
	"cycleway": true,
	"path":     true,
	"track":    true,
}

// footHighways lists highway tag values usable on foot on top of the
// non-motorway car roads.
var footHighways = map[string]bool{
	"footway":    true,
	"pedestrian": true,
	"path":       true,
	"steps":      true,
	"track":      true,
	"cycleway":   true,
}

var motorRoads = map[string]bool{
	"motorway":      true,
	"motorway_link": true,
	"trunk":         true,
	"trunk_link":    true,
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if !carHighways[hw] {
		return false
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}

	// Skip restricted access.
	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	if tags.Find("motor_vehicle") == "no" {
		return false
	}

	return true
}

func isBikeAccessible(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if motorRoads[hw] || (!carHighways[hw] && !bikeHighways[hw]) {
		return tags.Find("bicycle") == "yes" || tags.Find("bicycle") == "designated"
	}
	if tags.Find("area") == "yes" {
		return false
	}
	access := tags.Find("access")
	bicycle := tags.Find("bicycle")
	if bicycle == "no" || ((access == "no" || access == "private") && bicycle != "yes") {
		return false
	}
	return true
}

func isFootAccessible(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if motorRoads[hw] || (!carHighways[hw] && !footHighways[hw]) {
		return tags.Find("foot") == "yes" || tags.Find("foot") == "designated"
	}
	access := tags.Find("access")
	foot := tags.Find("foot")
	if foot == "no" || ((access == "no" || access == "private") && foot != "yes") {
		return false
	}
	return true
}

// accessModes returns every travel mode that may use the way at all.
func accessModes(tags osm.Tags) Access {
	var a Access
	if isCarAccessible(tags) {
		a |= AccessCar
	}
	if isBikeAccessible(tags) {
		a |= AccessBike
	}
	if isFootAccessible(tags) {
		a |= AccessFoot
	}
	return a
}

// directionFlags returns (forward, backward) for vehicles based on highway
// type and oneway tags. Pedestrians ignore them.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	// Default: bidirectional.
	forward = true
	backward = true

	hw := tags.Find("highway")

	// Implied oneway for motorways and roundabouts.
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	// Explicit oneway tag overrides.
	switch tags.Find("oneway") {
	case "yes", "true", "1":
		forward = true
		backward = false
	case "-1", "reverse":
		forward = false
		backward = true
	case "no":
		forward = true
		backward = true
	case "reversible":
		// Time-dependent, skip entirely.
		forward = false
		backward = false
	}

	return forward, backward
}
