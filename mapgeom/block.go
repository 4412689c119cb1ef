package mapgeom

import (
	"fmt"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

// Block is a perimeter paired with the polygon it bounds.
type Block struct {
	Perimeter *Perimeter
	Polygon   geom.Polygon
}

// ToBlock builds a Block's polygon by walking consecutive road-sides of
// the perimeter, taking each road's outermost lane on that side as the
// block edge, and splicing in a slice of the intervening intersection's
// outer ring wherever the edges don't already meet.
func ToBlock(m *entity.Map, p *Perimeter) (*Block, error) {
	if len(p.Roads) < 2 {
		return nil, fmt.Errorf("mapgeom: perimeter has too few roads to form a block")
	}

	var pts []geom.Pt2D
	var firstIntersection entity.IntersectionID
	haveFirst := false

	for i := 0; i+1 < len(p.Roads); i++ {
		cur, next := p.Roads[i], p.Roads[i+1]

		lane1ID := m.Road(cur.Road).OutermostLane(cur.Side)
		lane2ID := m.Road(next.Road).OutermostLane(next.Side)
		lane1 := m.Lane(lane1ID)
		lane2 := m.Lane(lane2ID)
		road1 := m.Road(cur.Road)

		var pl geom.PolyLine
		var err error
		if cur.Side == entity.Right {
			pl, err = road1.Center.ShiftRight(road1.HalfWidth)
		} else {
			pl, err = road1.Center.ShiftLeft(road1.HalfWidth)
		}
		if err != nil {
			// Use the untrimmed centerline rather than fail the whole
			// block over one bad edge.
			pl = road1.Center
		}
		if lane1.Dir == entity.Back {
			pl = pl.Reversed()
		}

		keepOrientation := true
		if cur.Road != next.Road {
			commonI, ok, both := lane1.CommonEndpoint(lane2)
			switch {
			case !ok:
				return nil, fmt.Errorf("mapgeom: %v and %v don't share a common endpoint", lane1ID, lane2ID)
			case both:
				if len(pts) > 0 {
					last := pts[len(pts)-1]
					keepOrientation = last.Dist(pl.First()) < last.Dist(pl.Last())
				}
			default:
				keepOrientation = commonI == lane1.EndIntersection
			}
		}
		if !keepOrientation {
			pl = pl.Reversed()
		}

		prevI := lane1.StartIntersection
		if !keepOrientation {
			prevI = lane1.EndIntersection
		}
		if !haveFirst {
			firstIntersection = prevI
			haveFirst = true
		}

		if len(pts) > 0 {
			lastPt := pts[len(pts)-1]
			isec := m.Intersection(prevI)
			ring := isec.Polygon.Ring()
			if !ring.DoublesBack() {
				if slice, ok := ring.SliceBetween(lastPt, pl.First(), isec.IsDeadEnd()); ok {
					pts = append(pts, slice...)
				}
			}
		}

		pts = append(pts, pl.Points()...)
	}

	// Trace the boundary around the first intersection, which we didn't
	// know enough to do until we'd walked the whole loop.
	isec := m.Intersection(firstIntersection)
	ring := isec.Polygon.Ring()
	if !ring.DoublesBack() && len(pts) > 0 {
		if slice, ok := ring.SliceBetween(pts[len(pts)-1], pts[0], isec.IsDeadEnd()); ok {
			pts = append(pts, slice...)
		}
	}

	pts = append(pts, pts[0])
	pts = dedupPoints(pts)

	r, err := geom.NewRing(pts)
	if err != nil {
		return nil, &geom.GeometryError{Op: "to_block", Msg: err.Error()}
	}
	return &Block{Perimeter: p, Polygon: r.IntoPolygon()}, nil
}

func dedupPoints(pts []geom.Pt2D) []geom.Pt2D {
	if len(pts) == 0 {
		return pts
	}
	out := make([]geom.Pt2D, 0, len(pts))
	out = append(out, pts[0])
	for _, p := range pts[1:] {
		if !out[len(out)-1].EqualEpsilon(p) {
			out = append(out, p)
		}
	}
	return out
}
