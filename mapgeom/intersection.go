package mapgeom

import (
	"fmt"
	"sort"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

// DegenerateIntersectionHalfLength is the minimum a road is always trimmed
// back by at its intersection end, when the road is long enough to afford
// it.
const DegenerateIntersectionHalfLength geom.Distance = 2.5

// minDeadEndLength is how far a too-short dead-end road is extended before
// its polygon is built, so a degenerate stub still produces a sane box.
const minDeadEndLength = DegenerateIntersectionHalfLength * 4

// roadLine bundles one incident road's orientation-towards-the-intersection
// geometry: its inward-pointing centerline and the two boundary lines
// offset by half-width, both also ending at (or near) the intersection.
type roadLine struct {
	id        entity.RoadID
	center    geom.PolyLine // oriented to end at the intersection
	left      geom.PolyLine // shift_left(half_width) of center
	right     geom.PolyLine // shift_right(half_width) of center
	halfWidth geom.Distance
	sortingPt geom.Pt2D
}

// IntersectionResult is what IntersectionPolygon computes for one
// intersection: its polygon, how far back each incident road's
// centerline must be trimmed (measured from the intersection end), and
// the boundary polylines the trim was computed from, kept for debug
// rendering in map-editing tools.
type IntersectionResult struct {
	Polygon     geom.Polygon
	TrimBack    map[entity.RoadID]geom.Distance
	DebugShapes []geom.PolyLine
}

// IntersectionPolygon trims every incident road's
// centerline back so its sides don't cross its neighbors, and computes a
// simple polygon for the intersection itself. pretrim optionally supplies
// already-known trim points for consolidated (merged) intersections,
// keyed by road id; when present for a road, that road's centerline is
// sliced to start there before the rest of the algorithm runs.
func IntersectionPolygon(m *entity.Map, id entity.IntersectionID, pretrim map[entity.RoadID]geom.Distance) (*IntersectionResult, error) {
	isec, err := m.IntersectionOrError(id)
	if err != nil {
		return nil, err
	}
	if len(isec.Roads) == 0 {
		return nil, fmt.Errorf("mapgeom: intersection %d has no roads", id)
	}

	lines := make([]*roadLine, 0, len(isec.Roads))
	var endpoints []geom.Pt2D
	for _, rid := range isec.Roads {
		r := m.Road(rid)
		center := r.OrientedTowards(id)
		if cut, ok := pretrim[rid]; ok && cut > 0 && cut < center.Length() {
			if sliced, err := center.ExactSlice(cut, center.Length()); err == nil {
				center = sliced
			}
		}
		left, err := center.ShiftLeft(r.HalfWidth)
		if err != nil {
			return nil, &geom.GeometryError{Op: "intersection_polygon", Msg: fmt.Sprintf("road %d shift_left failed: %v", rid, err)}
		}
		right, err := center.ShiftRight(r.HalfWidth)
		if err != nil {
			return nil, &geom.GeometryError{Op: "intersection_polygon", Msg: fmt.Sprintf("road %d shift_right failed: %v", rid, err)}
		}
		endpoints = append(endpoints, center.Last())
		lines = append(lines, &roadLine{id: rid, center: center, left: left, right: right, halfWidth: r.HalfWidth})
	}

	center := geom.Centroid(endpoints)

	// Sort by the point on each road's centerline at a distance equal to
	// the shortest road's length, to avoid mis-sorting on roads that bend
	// back near the intersection.
	shortest := lines[0].center.Length()
	for _, l := range lines[1:] {
		if l.center.Length() < shortest {
			shortest = l.center.Length()
		}
	}
	for _, l := range lines {
		walkFrom := l.center.Length() - shortest
		if walkFrom < 0 {
			walkFrom = 0
		}
		pt, _ := l.center.DistAlong(walkFrom)
		l.sortingPt = pt
	}
	// Descending angle is clockwise; generalizedTrimBack pairs each
	// road's left boundary with the next road's right boundary, which
	// only face each other in clockwise order.
	sort.SliceStable(lines, func(i, j int) bool {
		ai := int64(center.AngleTo(lines[i].sortingPt).NormalizedDegrees())
		aj := int64(center.AngleTo(lines[j].sortingPt).NormalizedDegrees())
		return ai > aj
	})

	var res *IntersectionResult
	if len(lines) == 1 {
		res, err = deadEnd(m, id, lines[0])
	} else {
		if len(lines) == 3 {
			if ramp, ok := onOffRamp(m, id, lines); ok {
				res = ramp
			}
		}
		if res == nil {
			res, err = generalizedTrimBack(center, lines)
		}
	}
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		res.DebugShapes = append(res.DebugShapes, l.left, l.right)
	}
	return res, nil
}

// deadEnd handles a single road terminating at a dead-end
// intersection: the polygon is a small box at its far end.
func deadEnd(m *entity.Map, id entity.IntersectionID, rl *roadLine) (*IntersectionResult, error) {
	r := m.Road(rl.id)
	trim := DegenerateIntersectionHalfLength
	if rl.center.Length() < minDeadEndLength {
		// Too short to trim sensibly; extend it first.
		extended := rl.center.ExtendToLength(minDeadEndLength)
		left, err := extended.ShiftLeft(r.HalfWidth)
		if err != nil {
			return nil, &geom.GeometryError{Op: "deadend", Msg: err.Error()}
		}
		right, err := extended.ShiftRight(r.HalfWidth)
		if err != nil {
			return nil, &geom.GeometryError{Op: "deadend", Msg: err.Error()}
		}
		rl.center, rl.left, rl.right = extended, left, right
	}
	trimmedLen := rl.center.Length() - trim
	if trimmedLen < 0 {
		trimmedLen = 0
	}
	nearLeft, _ := rl.left.DistAlong(trimmedLen)
	nearRight, _ := rl.right.DistAlong(trimmedLen)
	// The box extends past the road's end so a dead-end reads as a
	// roughly square pocket, not a sliver.
	farLen := trimmedLen + minDeadEndLength
	farLeft, _ := rl.left.ExtendToLength(farLen).DistAlong(farLen)
	farRight, _ := rl.right.ExtendToLength(farLen).DistAlong(farLen)
	ring, err := geom.NewRing([]geom.Pt2D{nearLeft, farLeft, farRight, nearRight})
	if err != nil {
		return nil, &geom.GeometryError{Op: "deadend", Msg: err.Error()}
	}
	return &IntersectionResult{
		Polygon:  ring.IntoPolygon(),
		TrimBack: map[entity.RoadID]geom.Distance{rl.id: trim},
	}, nil
}

// generalizedTrimBack is the normal multi-road case: for every pair of
// roads adjacent in clockwise order, intersect their facing boundary
// lines and trim each road back to the perpendicular at the nearest hit.
func generalizedTrimBack(center geom.Pt2D, lines []*roadLine) (*IntersectionResult, error) {
	n := len(lines)
	trimBack := make(map[entity.RoadID]geom.Distance, n)
	for _, l := range lines {
		trimBack[l.id] = minTrim(l)
	}

	type vertexPair struct {
		left, right geom.Pt2D
	}
	hits := make([]vertexPair, n)

	for i, l := range lines {
		next := lines[(i+1)%n]
		// The wedge between road i and the next road clockwise is bounded
		// by road i's left boundary and the next road's right boundary.
		hit, dist, ok := l.left.Reversed().Intersection(next.right.Reversed())
		if ok {
			if dist > trimBack[l.id] {
				trimBack[l.id] = dist
			}
			if dist > trimBack[next.id] {
				trimBack[next.id] = dist
			}
			hits[i] = vertexPair{left: hit, right: hit}
		} else {
			// No crossing (e.g. a wide gap between roads): fall back to
			// each road's own minimally-trimmed boundary endpoint.
			lp, _ := l.left.DistAlong(l.left.Length() - trimBack[l.id])
			rp, _ := next.right.DistAlong(next.right.Length() - trimBack[next.id])
			hits[i] = vertexPair{left: lp, right: rp}
		}
	}

	var verts []geom.Pt2D
	for i, l := range lines {
		cutBack := trimBack[l.id]
		trimmedLen := l.center.Length() - cutBack
		if trimmedLen < 0 {
			trimmedLen = 0
		}
		leftPt, _ := l.left.DistAlong(trimmedLen)
		rightPt, _ := l.right.DistAlong(trimmedLen)
		// Walking clockwise, a road's corner with the previous road is on
		// its right side and its corner with the next road on its left.
		prev := (i - 1 + len(lines)) % len(lines)
		verts = append(verts, hits[prev].right)
		verts = append(verts, rightPt)
		verts = append(verts, leftPt)
		verts = append(verts, hits[i].left)
	}

	ring, err := geom.NewRing(verts)
	if err != nil {
		return nil, &geom.GeometryError{Op: "generalized_trim_back", Msg: err.Error()}
	}
	if ring.SelfIntersects() {
		ring = geom.SortByAngleAroundCentroid(verts)
	}
	return &IntersectionResult{Polygon: ring.IntoPolygon(), TrimBack: trimBack}, nil
}

func minTrim(l *roadLine) geom.Distance {
	if l.center.Length() >= DegenerateIntersectionHalfLength {
		return DegenerateIntersectionHalfLength
	}
	return 0
}

// onOffRamp special-cases ramps: when exactly one of three
// incident roads is a thin highway-link class road, trim its center to
// meet the farther thick boundary and lengthen the opposite thick road by
// the delta, rather than running the general wedge-intersection
// algorithm. Returns ok=false if the special case doesn't apply or fails,
// in which case the caller reverts to generalizedTrimBack.
func onOffRamp(m *entity.Map, id entity.IntersectionID, lines []*roadLine) (*IntersectionResult, bool) {
	thinIdx := -1
	thinCount, thickCount := 0, 0
	for i, l := range lines {
		if m.Road(l.id).Tags.IsLinkClass() {
			thinIdx = i
			thinCount++
		} else {
			thickCount++
		}
	}
	if thinCount != 1 || thickCount != 2 {
		return nil, false
	}
	thin := lines[thinIdx]
	var thick []*roadLine
	for i, l := range lines {
		if i != thinIdx {
			thick = append(thick, l)
		}
	}
	if len(thick) != 2 {
		return nil, false
	}
	// The thin road should meet whichever thick road's boundary is
	// farther away, so it doesn't get swallowed by the nearer one.
	distA, okA, _ := nearestHitDistance(thin, thick[0])
	distB, okB, _ := nearestHitDistance(thin, thick[1])
	if !okA || !okB {
		return nil, false
	}
	far := thick[0]
	farDist := distA
	near := thick[1]
	nearDist := distB
	if distB > distA {
		far, near = thick[1], thick[0]
		farDist, nearDist = distB, distA
	}
	trimBack := map[entity.RoadID]geom.Distance{
		thin.id: farDist,
		far.id:  minTrim(far),
		near.id: minTrim(near) - (farDist - nearDist),
	}
	if trimBack[near.id] < 0 {
		trimBack[near.id] = minTrim(near)
	}

	var verts []geom.Pt2D
	for _, l := range lines {
		trimmedLen := l.center.Length() - trimBack[l.id]
		if trimmedLen < 0 {
			trimmedLen = 0
		}
		lp, _ := l.left.DistAlong(trimmedLen)
		rp, _ := l.right.DistAlong(trimmedLen)
		verts = append(verts, lp, rp)
	}
	ring, err := geom.NewRing(verts)
	if err != nil {
		return nil, false
	}
	if ring.SelfIntersects() {
		ring = geom.SortByAngleAroundCentroid(verts)
	}
	return &IntersectionResult{Polygon: ring.IntoPolygon(), TrimBack: trimBack}, true
}

func nearestHitDistance(a, b *roadLine) (geom.Distance, bool, error) {
	_, dist, ok := a.left.Reversed().Intersection(b.right.Reversed())
	if !ok {
		_, dist, ok = a.right.Reversed().Intersection(b.left.Reversed())
	}
	return dist, ok, nil
}
