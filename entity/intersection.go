package entity

import "github.com/tsinghua-fib-lab/moss-street-sim/geom"

// IntersectionClass decides which entity/trafficlight.Controller mode
// governs right-of-way at an intersection.
type IntersectionClass int

const (
	Border IntersectionClass = iota
	StopSign
	TrafficSignal
	Uncontrolled
)

func (c IntersectionClass) String() string {
	switch c {
	case Border:
		return "border"
	case StopSign:
		return "stop_sign"
	case TrafficSignal:
		return "traffic_signal"
	default:
		return "uncontrolled"
	}
}

// Intersection owns the set of incident roads (sorted by leaving angle)
// and the polygon the geometry engine computed for it. Polygon is the
// zero value until the geometry engine has run.
type Intersection struct {
	ID      IntersectionID
	Roads   []RoadID // sorted counter-clockwise by leaving angle
	Polygon geom.Polygon
	Class   IntersectionClass
}

// IsDeadEnd reports whether exactly one road terminates here.
func (i *Intersection) IsDeadEnd() bool {
	return len(i.Roads) == 1
}

// HasRoad reports whether r is incident to this intersection.
func (i *Intersection) HasRoad(r RoadID) bool {
	for _, x := range i.Roads {
		if x == r {
			return true
		}
	}
	return false
}
