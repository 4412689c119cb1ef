package geom

import "math"

// Ring is a closed polyline: first == last, and (by invariant, not
// enforced by construction) it does not self-cross.
type Ring struct {
	pts []Pt2D // pts[0] == pts[len-1]
}

// NewRing closes pts into a ring, appending the first point if the caller
// didn't already close it, and deduplicating near-equal consecutive
// points.
func NewRing(pts []Pt2D) (Ring, error) {
	if len(pts) < 3 {
		return Ring{}, newGeomErr("new_ring", "need >=3 points, got %d", len(pts))
	}
	closed := make([]Pt2D, 0, len(pts)+1)
	for _, p := range pts {
		if len(closed) > 0 && closed[len(closed)-1].EqualEpsilon(p) {
			continue
		}
		closed = append(closed, p)
	}
	if !closed[0].EqualEpsilon(closed[len(closed)-1]) {
		closed = append(closed, closed[0])
	} else {
		closed[len(closed)-1] = closed[0]
	}
	if len(closed) < 4 {
		return Ring{}, newGeomErr("new_ring", "collapsed to fewer than 3 distinct points")
	}
	return Ring{pts: closed}, nil
}

func (r Ring) Points() []Pt2D {
	out := make([]Pt2D, len(r.pts))
	copy(out, r.pts)
	return out
}

// SelfIntersects reports whether any two non-adjacent segments of the
// ring cross.
func (r Ring) SelfIntersects() bool {
	n := len(r.pts) - 1
	for i := 0; i < n; i++ {
		a1, a2 := r.pts[i], r.pts[i+1]
		for j := i + 1; j < n; j++ {
			if j == i || (i == 0 && j == n-1) {
				continue
			}
			if j == i+1 || j == i-1 {
				continue
			}
			b1, b2 := r.pts[j], r.pts[j+1]
			if _, ok := lineSegIntersection(a1, a2, b1, b2, false); ok {
				return true
			}
		}
	}
	return false
}

// IntoPolygon produces the simple polygon bounded by this ring.
func (r Ring) IntoPolygon() Polygon {
	return Polygon{ring: r}
}

// SortByAngleAroundCentroid reorders arbitrary points into a ring by
// sorting them by angle around their centroid, the fallback used when
// the naive adjacency-ordered ring self-intersects.
func SortByAngleAroundCentroid(pts []Pt2D) Ring {
	c := Centroid(pts)
	sorted := make([]Pt2D, len(pts))
	copy(sorted, pts)
	angleOf := func(p Pt2D) float64 {
		a := c.AngleTo(p).NormalizedDegrees()
		return a
	}
	// simple insertion sort; input sizes are tiny (intersection vertex counts)
	for i := 1; i < len(sorted); i++ {
		j := i
		for j > 0 && angleOf(sorted[j-1]) > angleOf(sorted[j]) {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
			j--
		}
	}
	ring, err := NewRing(sorted)
	if err != nil {
		// Degenerate (collinear) point set: return a minimal closed ring
		// rather than propagating an error from a pure reordering helper.
		ring = Ring{pts: append(append([]Pt2D{}, sorted...), sorted[0])}
	}
	return ring
}

// DoublesBack reports whether any two consecutive segments of the ring
// fold back on themselves (near-180-degree turn), which would make
// SliceBetween's notion of a "side" of the ring meaningless.
func (r Ring) DoublesBack() bool {
	n := len(r.pts) - 1
	for i := 0; i < n; i++ {
		prev := r.pts[(i-1+n)%n]
		cur := r.pts[i]
		next := r.pts[(i+1)%n]
		in := cur.AngleTo(prev)
		out := cur.AngleTo(next)
		diff := in.OppositeAngle().NormalizedDegrees() - out.NormalizedDegrees()
		for diff < 0 {
			diff += 360
		}
		for diff >= 360 {
			diff -= 360
		}
		if diff < 1 || diff > 359 {
			return true
		}
	}
	return false
}

// nearestIndex returns the index into r.pts (excluding the closing
// duplicate) of the ring vertex nearest to pt.
func (r Ring) nearestIndex(pt Pt2D) int {
	best, bestDist := 0, math.Inf(1)
	n := len(r.pts) - 1
	for i := 0; i < n; i++ {
		d := float64(r.pts[i].Dist(pt))
		if d < bestDist {
			bestDist, best = d, i
		}
	}
	return best
}

// SliceBetween returns the points walking around the ring from the
// vertex nearest from to the vertex nearest to, taking whichever of the
// two possible arcs is shorter (or longer, if longer is true). ok is
// false if from and to land on the same vertex.
func (r Ring) SliceBetween(from, to Pt2D, longer bool) ([]Pt2D, bool) {
	n := len(r.pts) - 1
	i, j := r.nearestIndex(from), r.nearestIndex(to)
	if i == j {
		return nil, false
	}
	forward := func(a, b int) []Pt2D {
		var out []Pt2D
		for k := a; k != b; k = (k + 1) % n {
			out = append(out, r.pts[k])
		}
		out = append(out, r.pts[b])
		return out
	}
	fwd := forward(i, j)
	bwd := forward(j, i)
	// bwd walks the opposite direction; reverse it so both are oriented
	// the same way as fwd, then pick by point count.
	rev := make([]Pt2D, len(bwd))
	for k, p := range bwd {
		rev[len(bwd)-1-k] = p
	}
	shortArc, longArc := fwd, rev
	if len(rev) < len(fwd) {
		shortArc, longArc = rev, fwd
	}
	if longer {
		return longArc, true
	}
	return shortArc, true
}

// Polygon is a simple (non-self-crossing) polygon described by its
// boundary ring.
type Polygon struct {
	ring Ring
}

func (p Polygon) Ring() Ring     { return p.ring }
func (p Polygon) Points() []Pt2D { return p.ring.Points() }
func (p Polygon) Center() Pt2D   { return Centroid(p.ring.Points()) }

// Contains reports whether pt is inside the polygon, via a standard
// ray-casting test.
func (p Polygon) Contains(pt Pt2D) bool {
	pts := p.ring.pts
	inside := false
	n := len(pts) - 1
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := pts[i], pts[j]
		if ((pi.Y > pt.Y) != (pj.Y > pt.Y)) &&
			(pt.X < (pj.X-pi.X)*(pt.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}

// DistToBoundary returns the minimum distance from pt to the polygon's
// boundary segments.
func (p Polygon) DistToBoundary(pt Pt2D) Distance {
	best := math.Inf(1)
	pts := p.ring.pts
	for i := 0; i+1 < len(pts); i++ {
		d := distPointToSegment(pt, pts[i], pts[i+1])
		if d < best {
			best = d
		}
	}
	return Distance(best)
}

func distPointToSegment(p, a, b Pt2D) float64 {
	abx, aby := b.X-a.X, b.Y-a.Y
	apx, apy := p.X-a.X, p.Y-a.Y
	lenSq := abx*abx + aby*aby
	if lenSq < 1e-12 {
		return float64(p.Dist(a))
	}
	t := (apx*abx + apy*aby) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	proj := Pt2D{X: a.X + t*abx, Y: a.Y + t*aby}
	return float64(p.Dist(proj))
}
