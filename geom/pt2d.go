package geom

import "math"

// EPSILON is the tolerance used throughout the geometry engine for
// deduplicating points and comparing distances.
const EPSILON Distance = 0.1

// Pt2D is a point in meters, in projected map coordinates.
type Pt2D struct {
	X, Y float64
}

func NewPt2D(x, y float64) Pt2D {
	return Pt2D{X: x, Y: y}
}

// Dist returns the Euclidean distance between two points.
func (p Pt2D) Dist(o Pt2D) Distance {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return Distance(math.Hypot(dx, dy))
}

// EqualEpsilon reports whether two points are within EPSILON of each other.
func (p Pt2D) EqualEpsilon(o Pt2D) bool {
	return p.Dist(o) < EPSILON
}

// AngleTo returns the angle from p to o.
func (p Pt2D) AngleTo(o Pt2D) Angle {
	return AngleFromRadians(math.Atan2(o.Y-p.Y, o.X-p.X))
}

// Project moves p by distance d along angle a.
func (p Pt2D) Project(d Distance, a Angle) Pt2D {
	r := a.Radians()
	return Pt2D{X: p.X + float64(d)*math.Cos(r), Y: p.Y + float64(d)*math.Sin(r)}
}

// OffsetPerpendicular shifts p by distance d perpendicular to angle a,
// positive d being to the right of travel direction a (clockwise 90°).
func (p Pt2D) OffsetPerpendicular(d Distance, a Angle) Pt2D {
	return p.Project(d, a-90)
}

// Midpoint returns the midpoint between two points.
func Midpoint(a, b Pt2D) Pt2D {
	return Pt2D{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// Centroid returns the mean of a set of points.
func Centroid(pts []Pt2D) Pt2D {
	var sx, sy float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(pts))
	return Pt2D{X: sx / n, Y: sy / n}
}

// InfiniteLine represents a line (not a segment) through a point at a
// given angle, used for perpendicular-trim intersection math.
type InfiniteLine struct {
	Pt    Pt2D
	Angle Angle
}

func LineFromPtAngle(pt Pt2D, angle Angle) InfiniteLine {
	return InfiniteLine{Pt: pt, Angle: angle}
}

// IntersectionWithSegment finds where this infinite line crosses the
// segment (a, b), if any.
func (l InfiniteLine) IntersectionWithSegment(a, b Pt2D) (Pt2D, bool) {
	// Represent the infinite line as a second point far along its angle.
	far := l.Pt.Project(10000, l.Angle)
	return lineSegIntersection(l.Pt, far, a, b, true)
}

// lineSegIntersection computes the intersection of segment (p1,p2) with
// segment (p3,p4). If infiniteFirst is true, the first segment is treated
// as an infinite line (only the second segment's parametric bound is
// checked).
func lineSegIntersection(p1, p2, p3, p4 Pt2D, infiniteFirst bool) (Pt2D, bool) {
	d1x, d1y := p2.X-p1.X, p2.Y-p1.Y
	d2x, d2y := p4.X-p3.X, p4.Y-p3.Y
	denom := d1x*d2y - d1y*d2x
	if math.Abs(denom) < 1e-9 {
		return Pt2D{}, false
	}
	t := ((p3.X-p1.X)*d2y - (p3.Y-p1.Y)*d2x) / denom
	u := ((p3.X-p1.X)*d1y - (p3.Y-p1.Y)*d1x) / denom
	if !infiniteFirst && (t < -1e-9 || t > 1+1e-9) {
		return Pt2D{}, false
	}
	if u < -1e-9 || u > 1+1e-9 {
		return Pt2D{}, false
	}
	return Pt2D{X: p1.X + t*d1x, Y: p1.Y + t*d1y}, true
}
