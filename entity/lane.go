package entity

import "github.com/tsinghua-fib-lab/moss-street-sim/geom"

// Lane is a directional sub-strip of a Road. Its centerline is derived
// from the road's trimmed centerline shifted by the lane's offset from the
// road's own centerline; the manager that builds lanes from roads owns
// that derivation (mapgeom), Lane itself just stores the result.
type Lane struct {
	ID       LaneID
	Parent   RoadID
	Dir      Dir
	Index    int // position in the parent road's LaneIDs, left to right
	Center   geom.PolyLine
	Width    geom.Distance
	MaxSpeed geom.Speed

	// EndIntersection/StartIntersection are the lane's own directed
	// endpoints, derived from Parent's I1/I2 and Dir.
	StartIntersection, EndIntersection IntersectionID
}

// Length returns the lane's centerline length.
func (l *Lane) Length() geom.Distance {
	return l.Center.Length()
}

// NearestSide reports which side of the parent road this lane sits on, by
// right-hand-traffic convention: forward lanes (running I1->I2) sit on the
// road's right side, backward lanes on its left. The block tracer uses it
// to snap an arbitrary starting lane to a RoadSideID.
func (l *Lane) NearestSide() Side {
	if l.Dir == Fwd {
		return Right
	}
	return Left
}

// CommonEndpoint mirrors Road.CommonEndpoint at the lane level, used by
// the block builder to decide whether to keep a lane's own direction of
// travel or reverse it when stitching consecutive road edges together.
func (l *Lane) CommonEndpoint(o *Lane) (id IntersectionID, ok bool, bothShared bool) {
	sameStart := l.StartIntersection == o.StartIntersection || l.StartIntersection == o.EndIntersection
	sameEnd := l.EndIntersection == o.StartIntersection || l.EndIntersection == o.EndIntersection
	if sameStart && sameEnd && l.StartIntersection != l.EndIntersection {
		return l.StartIntersection, true, true
	}
	if l.StartIntersection == o.StartIntersection || l.StartIntersection == o.EndIntersection {
		return l.StartIntersection, true, false
	}
	if l.EndIntersection == o.StartIntersection || l.EndIntersection == o.EndIntersection {
		return l.EndIntersection, true, false
	}
	return 0, false, false
}

// NewLane derives a directed Lane from its parent road for the given
// direction, offset from the road's centerline by off (signed, positive
// to the right of Fwd travel), with the given width.
func NewLane(id LaneID, road *Road, dir Dir, index int, off, width geom.Distance) (*Lane, error) {
	center, err := road.Center.ShiftRight(off)
	if err != nil {
		return nil, err
	}
	start, end := road.I1, road.I2
	if dir == Back {
		center = center.Reversed()
		start, end = road.I2, road.I1
	}
	return &Lane{
		ID:                id,
		Parent:            road.ID,
		Dir:               dir,
		Index:             index,
		Center:            center,
		Width:             width,
		MaxSpeed:          road.MaxSpeed,
		StartIntersection: start,
		EndIntersection:   end,
	}, nil
}
