package geom

import (
	"errors"
	"fmt"
	"math"
)

// GeometryError is returned by operations that can fail for benign,
// expected reasons (tight curves, degenerate input). Callers recover
// locally with a fallback and log a warning rather than treating these
// as fatal.
type GeometryError struct {
	Op  string
	Msg string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geom: %s: %s", e.Op, e.Msg)
}

func newGeomErr(op, msg string, args ...any) error {
	return &GeometryError{Op: op, Msg: fmt.Sprintf(msg, args...)}
}

var ErrTooFewPoints = errors.New("geom: polyline needs at least 2 distinct points")

// PolyLine is an ordered sequence of >=2 distinct points. Consecutive
// points are never equal (within EPSILON); callers that might produce
// duplicates should dedup before constructing one.
type PolyLine struct {
	pts []Pt2D
}

// NewPolyLine builds a PolyLine, deduplicating consecutive near-equal
// points and erroring if fewer than 2 distinct points remain.
func NewPolyLine(pts []Pt2D) (PolyLine, error) {
	deduped := make([]Pt2D, 0, len(pts))
	for _, p := range pts {
		if len(deduped) > 0 && deduped[len(deduped)-1].EqualEpsilon(p) {
			continue
		}
		deduped = append(deduped, p)
	}
	if len(deduped) < 2 {
		return PolyLine{}, ErrTooFewPoints
	}
	return PolyLine{pts: deduped}, nil
}

// MustNewPolyLine panics on invalid input; for use with known-good
// literal/test data.
func MustNewPolyLine(pts []Pt2D) PolyLine {
	pl, err := NewPolyLine(pts)
	if err != nil {
		panic(err)
	}
	return pl
}

func (pl PolyLine) Points() []Pt2D {
	out := make([]Pt2D, len(pl.pts))
	copy(out, pl.pts)
	return out
}

func (pl PolyLine) First() Pt2D { return pl.pts[0] }
func (pl PolyLine) Last() Pt2D  { return pl.pts[len(pl.pts)-1] }

func (pl PolyLine) FirstAngle() Angle { return pl.pts[0].AngleTo(pl.pts[1]) }
func (pl PolyLine) LastAngle() Angle {
	n := len(pl.pts)
	return pl.pts[n-2].AngleTo(pl.pts[n-1])
}

// Length returns the sum of segment lengths.
func (pl PolyLine) Length() Distance {
	var total Distance
	for i := 0; i+1 < len(pl.pts); i++ {
		total += pl.pts[i].Dist(pl.pts[i+1])
	}
	return total
}

// Reversed returns the polyline traversed in the opposite direction.
func (pl PolyLine) Reversed() PolyLine {
	out := make([]Pt2D, len(pl.pts))
	for i, p := range pl.pts {
		out[len(pl.pts)-1-i] = p
	}
	return PolyLine{pts: out}
}

// DistAlong walks distance d from the start and returns the point and the
// tangent angle there. d is clamped to [0, Length()].
func (pl PolyLine) DistAlong(d Distance) (Pt2D, Angle) {
	if d <= 0 {
		return pl.pts[0], pl.FirstAngle()
	}
	var walked Distance
	for i := 0; i+1 < len(pl.pts); i++ {
		segLen := pl.pts[i].Dist(pl.pts[i+1])
		if walked+segLen >= d {
			remaining := d - walked
			angle := pl.pts[i].AngleTo(pl.pts[i+1])
			frac := float64(remaining) / float64(segLen)
			pt := Pt2D{
				X: pl.pts[i].X + frac*(pl.pts[i+1].X-pl.pts[i].X),
				Y: pl.pts[i].Y + frac*(pl.pts[i+1].Y-pl.pts[i].Y),
			}
			return pt, angle
		}
		walked += segLen
	}
	return pl.pts[len(pl.pts)-1], pl.LastAngle()
}

// ExactSlice returns the sub-polyline between distances from and to along
// pl (0 <= from < to <= Length()).
func (pl PolyLine) ExactSlice(from, to Distance) (PolyLine, error) {
	if from < 0 || to > pl.Length()+EPSILON || from >= to {
		return PolyLine{}, newGeomErr("exact_slice", "invalid range [%v,%v] on polyline of length %v", from, to, pl.Length())
	}
	var pts []Pt2D
	var walked Distance
	startPt, _ := pl.DistAlong(from)
	pts = append(pts, startPt)
	for i := 0; i+1 < len(pl.pts); i++ {
		segLen := pl.pts[i].Dist(pl.pts[i+1])
		segStart := walked
		segEnd := walked + segLen
		if segEnd > from && segStart < to {
			if segStart > from && segStart < to {
				pts = append(pts, pl.pts[i])
			}
		}
		walked = segEnd
		if walked >= to {
			break
		}
	}
	endPt, _ := pl.DistAlong(to)
	pts = append(pts, endPt)
	return NewPolyLine(pts)
}

// ExtendToLength extends pl (by continuing in the direction of its last
// segment) until it reaches at least the target length.
func (pl PolyLine) ExtendToLength(target Distance) PolyLine {
	if pl.Length() >= target {
		return pl
	}
	extra := target - pl.Length()
	last := pl.Last()
	angle := pl.LastAngle()
	newPt := last.Project(extra, angle)
	pts := append(pl.Points(), newPt)
	return PolyLine{pts: pts}
}

// ShiftLeft offsets the polyline to the left by distance d (positive d
// moves left of the travel direction).
func (pl PolyLine) ShiftLeft(d Distance) (PolyLine, error) {
	return pl.shiftBy(-d, "shift_left")
}

// ShiftRight offsets the polyline to the right by distance d.
func (pl PolyLine) ShiftRight(d Distance) (PolyLine, error) {
	return pl.shiftBy(d, "shift_right")
}

// shiftBy offsets every point perpendicular to the local tangent by signed
// distance d (positive = right of travel). Consecutive segment offsets are
// joined at each interior vertex by intersecting the two offset infinite
// lines (a miter join); if a join can't be found (near-parallel reversal,
// the classic tight-curve failure) the plain perpendicular-offset point
// is used instead, failing the shift only when the result collapses.
func (pl PolyLine) shiftBy(d Distance, op string) (PolyLine, error) {
	n := len(pl.pts)
	if n < 2 {
		return PolyLine{}, ErrTooFewPoints
	}
	out := make([]Pt2D, n)
	// Precompute segment angles.
	segAngle := make([]Angle, n-1)
	for i := 0; i < n-1; i++ {
		segAngle[i] = pl.pts[i].AngleTo(pl.pts[i+1])
	}
	out[0] = pl.pts[0].OffsetPerpendicular(d, segAngle[0])
	out[n-1] = pl.pts[n-1].OffsetPerpendicular(d, segAngle[n-2])
	for i := 1; i < n-1; i++ {
		aIn := segAngle[i-1]
		aOut := segAngle[i]
		p1 := pl.pts[i].OffsetPerpendicular(d, aIn)
		p2 := pl.pts[i].OffsetPerpendicular(d, aOut)
		if math.Abs(float64(aIn)-float64(aOut)) < 1e-6 {
			out[i] = p1
			continue
		}
		l1 := LineFromPtAngle(p1, aIn)
		l2 := LineFromPtAngle(p2, aOut)
		if hit, ok := infiniteLineIntersection(l1, l2); ok {
			out[i] = hit
		} else {
			out[i] = Midpoint(p1, p2)
		}
	}
	shifted, err := NewPolyLine(out)
	if err != nil {
		return PolyLine{}, newGeomErr(op, "offset collapsed polyline to <2 points: %v", err)
	}
	return shifted, nil
}

func infiniteLineIntersection(l1, l2 InfiniteLine) (Pt2D, bool) {
	// Both lines are infinite in both directions: a miter join can sit
	// behind either anchor point, depending on which way the bend turns.
	far1 := l1.Pt.Project(10000, l1.Angle)
	back2 := l2.Pt.Project(-10000, l2.Angle)
	far2 := l2.Pt.Project(10000, l2.Angle)
	return lineSegIntersection(l1.Pt, far1, back2, far2, true)
}

// Intersection returns the first point (closest to the start of pl) where
// pl crosses other, scanning pl's segments in order.
func (pl PolyLine) Intersection(other PolyLine) (Pt2D, Distance, bool) {
	var walked Distance
	for i := 0; i+1 < len(pl.pts); i++ {
		a, b := pl.pts[i], pl.pts[i+1]
		best := Distance(math.Inf(1))
		var bestPt Pt2D
		found := false
		for j := 0; j+1 < len(other.pts); j++ {
			c, d := other.pts[j], other.pts[j+1]
			if hit, ok := lineSegIntersection(a, b, c, d, false); ok {
				dist := a.Dist(hit)
				if dist < best {
					best = dist
					bestPt = hit
					found = true
				}
			}
		}
		if found {
			return bestPt, walked + best, true
		}
		walked += a.Dist(b)
	}
	return Pt2D{}, 0, false
}
