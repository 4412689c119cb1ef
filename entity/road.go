package entity

import "github.com/tsinghua-fib-lab/moss-street-sim/geom"

// Road is a single OSM-derived edge between two intersections. Center is
// the raw, untrimmed centerline directed I1 -> I2, exactly as ingested
// from map input; TrimStart/TrimEnd record how far the geometry engine has
// cut each end back so the road's sides don't cross its neighbors at the
// intersection. Roads never hold pointers to their Intersections or
// Lanes, only IDs, owned by the enclosing Map.
type Road struct {
	ID        RoadID
	I1, I2    IntersectionID
	Center    geom.PolyLine
	HalfWidth geom.Distance
	MaxSpeed  geom.Speed
	Tags      Tags

	// LaneIDs lists this road's lanes in left-to-right order across the
	// full roadbed (both directions).
	LaneIDs []LaneID

	// TrimStart/TrimEnd are distances, measured from the start/end of
	// Center, by which the trimmed centerline is shortened. They are set
	// once by the intersection polygon builder and are zero until then.
	TrimStart, TrimEnd geom.Distance
}

// TrimmedCenter returns the centerline after both ends have been cut back
// by the intersection polygon builder; each endpoint lies on the owning
// intersection's polygon boundary.
func (r *Road) TrimmedCenter() (geom.PolyLine, error) {
	total := r.Center.Length()
	from := r.TrimStart
	to := total - r.TrimEnd
	if from >= to {
		// Trimming consumed the whole road (degenerate stub); fall back to
		// the untrimmed centerline per the GeometryError recovery policy.
		return r.Center, nil
	}
	return r.Center.ExactSlice(from, to)
}

// OrientedTowards returns Center oriented so that it ends at
// intersection i (reversing it if i is I1).
func (r *Road) OrientedTowards(i IntersectionID) geom.PolyLine {
	if r.I2 == i {
		return r.Center
	}
	return r.Center.Reversed()
}

// OtherEnd returns the intersection at the opposite end from i.
func (r *Road) OtherEnd(i IntersectionID) IntersectionID {
	if r.I1 == i {
		return r.I2
	}
	return r.I1
}

// Length returns the full, untrimmed centerline length.
func (r *Road) Length() geom.Distance {
	return r.Center.Length()
}

// OutermostLane returns the lane at the outer edge of the given side of
// the roadbed: lanes are stored left-to-right across both directions, so
// the left edge is index 0 and the right edge is the last index.
func (r *Road) OutermostLane(side Side) LaneID {
	if side == Left {
		return r.LaneIDs[0]
	}
	return r.LaneIDs[len(r.LaneIDs)-1]
}

// CommonEndpoint reports the intersection(s) shared by r and o. bothShared
// is true only for a pair of roads connecting the very same two
// intersections, where winding-order detection has nothing to go on.
func (r *Road) CommonEndpoint(o *Road) (id IntersectionID, ok bool, bothShared bool) {
	sameI1 := r.I1 == o.I1 || r.I1 == o.I2
	sameI2 := r.I2 == o.I1 || r.I2 == o.I2
	if sameI1 && sameI2 && (r.I1 != r.I2) {
		return r.I1, true, true
	}
	if r.I1 == o.I1 || r.I1 == o.I2 {
		return r.I1, true, false
	}
	if r.I2 == o.I1 || r.I2 == o.I2 {
		return r.I2, true, false
	}
	return 0, false, false
}
