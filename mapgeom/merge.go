package mapgeom

import (
	"fmt"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
)

func (p *Perimeter) undoInvariant() {
	p.Roads = p.Roads[:len(p.Roads)-1]
}

func (p *Perimeter) restoreInvariant() {
	p.Roads = append(p.Roads, p.Roads[0])
}

func rotateLeft(xs []entity.RoadSideID, n int) []entity.RoadSideID {
	n %= len(xs)
	out := make([]entity.RoadSideID, len(xs))
	copy(out, xs[n:])
	copy(out[len(xs)-n:], xs[:n])
	return out
}

// CollapseDeadends repeatedly removes a consecutive pair of entries for
// the same road (a stub that doubles back on itself), moving that road
// into Interior. Removing a pair can leave its neighbours as a new pair,
// so a dead-end longer than one segment collapses as well.
func (p *Perimeter) CollapseDeadends() {
	for {
		if len(p.Roads) == 3 && p.Roads[0].Road == p.Roads[1].Road {
			// A loop around a disconnected fragment of road; leave it.
			return
		}
		p.undoInvariant()
		for p.Roads[0].Road == p.Roads[len(p.Roads)-1].Road {
			p.Roads = rotateLeft(p.Roads, 1)
		}
		var kept []entity.RoadSideID
		changed := false
		for _, id := range p.Roads {
			if len(kept) > 0 && kept[len(kept)-1].Road == id.Road {
				kept = kept[:len(kept)-1]
				p.Interior[id.Road] = true
				changed = true
			} else {
				kept = append(kept, id)
			}
		}
		p.Roads = kept
		if len(p.Roads) == 0 {
			return
		}
		p.restoreInvariant()
		if !changed {
			return
		}
	}
}

func cloneInterior(in map[entity.RoadID]bool) map[entity.RoadID]bool {
	out := make(map[entity.RoadID]bool, len(in))
	for r := range in {
		out[r] = true
	}
	return out
}

func roadSet(ids []entity.RoadSideID) map[entity.RoadID]bool {
	out := make(map[entity.RoadID]bool, len(ids))
	for _, id := range ids {
		out[id.Road] = true
	}
	return out
}

// rotateUntilCommonAtTail rotates roads until the list starts with a road
// not in common and ends with one in common, failing if no rotation does.
// It does not check that the common roads are consecutive; TryMerge does
// that afterwards.
func rotateUntilCommonAtTail(roads []entity.RoadSideID, common map[entity.RoadID]bool) ([]entity.RoadSideID, error) {
	if len(roads) == len(common) {
		return roads, nil
	}
	for i := 0; i < len(roads); i++ {
		if !common[roads[0].Road] && common[roads[len(roads)-1].Road] {
			return roads, nil
		}
		roads = rotateLeft(roads, 1)
	}
	return nil, ErrMergeImpossible
}

// winding decides whether self and other wind the same way around their
// shared roads, so that one of them must be reversed before merging
// (TryMerge reverses self), by checking which endpoint of
// one common road each perimeter's following road shares. decidable is
// false for a common road connecting the same two intersections as its
// neighbor, where reversal is meaningless.
func winding(m *entity.Map, self, other *Perimeter) (shouldReverse, decidable bool) {
	commonExample := self.Roads[len(self.Roads)-1].Road
	r := m.Road(commonExample)
	afterSelf := wraparoundGet(self.Roads, len(self.Roads))
	lastCommonForSelf, ok, both := r.CommonEndpoint(m.Road(afterSelf.Road))
	if both || !ok {
		return false, false
	}

	otherIdx := -1
	for i, x := range other.Roads {
		if x.Road == commonExample {
			otherIdx = i
			break
		}
	}
	if otherIdx < 0 {
		return false, false
	}
	afterOther := wraparoundGet(other.Roads, otherIdx+1)
	lastCommonForOther, ok2, both2 := r.CommonEndpoint(m.Road(afterOther.Road))
	if both2 || !ok2 {
		return false, false
	}
	return lastCommonForSelf == lastCommonForOther, true
}

// TryMerge merges self and other into one perimeter if they share a
// consecutive run of common roads. It never mutates self or other: it
// operates on, and returns, a fresh Perimeter.
func (p *Perimeter) TryMerge(m *entity.Map, other *Perimeter) (*Perimeter, error) {
	selfRoads := append([]entity.RoadSideID{}, p.Roads...)
	for attempt := 0; attempt < 2; attempt++ {
		alreadyReversed := attempt == 1
		a := &Perimeter{Roads: append([]entity.RoadSideID{}, selfRoads...), Interior: cloneInterior(p.Interior)}
		b := other.Clone()
		a.undoInvariant()
		b.undoInvariant()

		common := roadSet(a.Roads)
		{
			onlyInB := roadSet(b.Roads)
			for r := range common {
				if !onlyInB[r] {
					delete(common, r)
				}
			}
		}
		if len(common) == 0 {
			return nil, ErrMergeImpossible
		}

		rotatedA, err := rotateUntilCommonAtTail(a.Roads, common)
		if err != nil {
			return nil, err
		}
		a.Roads = rotatedA
		rotatedB, err := rotateUntilCommonAtTail(b.Roads, common)
		if err != nil {
			return nil, err
		}
		b.Roads = rotatedB

		if !alreadyReversed {
			if shouldReverse, decidable := winding(m, a, b); decidable && shouldReverse {
				// Reverse self's road order and retry once, starting
				// again from the closed (first==last) form.
				reversed := append([]entity.RoadSideID{}, p.Roads...)
				for l, r := 0, len(reversed)-1; l < r; l, r = l+1, r-1 {
					reversed[l], reversed[r] = reversed[r], reversed[l]
				}
				selfRoads = reversed
				continue
			}
		}

		for _, id := range a.Roads[len(a.Roads)-len(common):] {
			if !common[id.Road] {
				return nil, fmt.Errorf("%w: first perimeter's common roads aren't consecutive, near %v", ErrMergeImpossible, id)
			}
		}
		for _, id := range b.Roads[len(b.Roads)-len(common):] {
			if !common[id.Road] {
				return nil, fmt.Errorf("%w: second perimeter's common roads aren't consecutive, near %v", ErrMergeImpossible, id)
			}
		}

		a.Roads = a.Roads[:len(a.Roads)-len(common)]
		b.Roads = b.Roads[:len(b.Roads)-len(common)]
		merged := append(a.Roads, b.Roads...)
		if len(merged) == 0 {
			return nil, fmt.Errorf("mapgeom: two perimeters had every road in common")
		}
		out := newPerimeter(merged)
		for r := range a.Interior {
			out.Interior[r] = true
		}
		for r := range b.Interior {
			out.Interior[r] = true
		}
		for r := range common {
			out.Interior[r] = true
		}
		out.restoreInvariant()
		out.CollapseDeadends()
		if err := out.checkContinuity(m); err != nil {
			return nil, err
		}
		return out, nil
	}
	panic("mapgeom: unreachable")
}

func (p *Perimeter) checkContinuity(m *entity.Map) error {
	for i := 0; i+1 < len(p.Roads); i++ {
		r1 := m.Road(p.Roads[i].Road)
		r2 := m.Road(p.Roads[i+1].Road)
		if _, ok, _ := r1.CommonEndpoint(r2); !ok {
			return fmt.Errorf("mapgeom: perimeter goes from %v to %v but they share no endpoint", p.Roads[i], p.Roads[i+1])
		}
	}
	return nil
}

// MergeAll repeatedly tries to merge every perimeter into the growing
// result set until a full pass performs no merges. Perimeters that never
// merge still appear in the output; no road is ever lost.
func MergeAll(m *entity.Map, input []*Perimeter, stepwiseDebug bool) []*Perimeter {
	for _, p := range input {
		p.CollapseDeadends()
	}
	for {
		var results []*Perimeter
		mergedAny := false
	perInput:
		for _, perimeter := range input {
			for i, other := range results {
				if merged, err := other.TryMerge(m, perimeter); err == nil {
					results[i] = merged
					mergedAny = true
					if stepwiseDebug {
						return append(append([]*Perimeter{}, results...), input[indexOf(input, perimeter)+1:]...)
					}
					continue perInput
				}
			}
			results = append(results, perimeter)
		}
		input = results
		if !mergedAny {
			return results
		}
	}
}

func indexOf(xs []*Perimeter, x *Perimeter) int {
	for i, y := range xs {
		if y == x {
			return i
		}
	}
	return -1
}

// PartitionByPredicate treats perimeters as graph nodes, connected when
// they share a road satisfying predicate, and returns the connected
// components.
func PartitionByPredicate(input []*Perimeter, predicate func(entity.RoadID) bool) [][]*Perimeter {
	roadToPerimeters := make(map[entity.RoadID][]int)
	for idx, p := range input {
		for _, r := range p.Roads {
			roadToPerimeters[r.Road] = append(roadToPerimeters[r.Road], idx)
		}
	}
	visited := make([]bool, len(input))
	var partitions [][]*Perimeter
	for start := range input {
		if visited[start] {
			continue
		}
		comp := map[int]bool{}
		queue := []int{start}
		for len(queue) > 0 {
			cur := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			if comp[cur] {
				continue
			}
			comp[cur] = true
			for _, r := range input[cur].Roads {
				if predicate(r.Road) {
					queue = append(queue, roadToPerimeters[r.Road]...)
				}
			}
		}
		var group []*Perimeter
		for idx := range comp {
			visited[idx] = true
			group = append(group, input[idx])
		}
		partitions = append(partitions, group)
	}
	return partitions
}

// CalculateColoring greedily assigns each perimeter a color in [0,
// numColors), in input order, such that no two perimeters sharing a road
// share a color. Returns ok=false if numColors is too few.
func CalculateColoring(input []*Perimeter, numColors int) ([]int, bool) {
	roadToPerimeters := make(map[entity.RoadID][]int)
	for idx, p := range input {
		for _, r := range p.Roads {
			roadToPerimeters[r.Road] = append(roadToPerimeters[r.Road], idx)
		}
	}
	colors := make([]int, len(input))
	for thisIdx, p := range input {
		available := make([]bool, numColors)
		for i := range available {
			available[i] = true
		}
		for _, r := range p.Roads {
			for _, otherIdx := range roadToPerimeters[r.Road] {
				if otherIdx < thisIdx {
					available[colors[otherIdx]] = false
				}
			}
		}
		found := -1
		for i, ok := range available {
			if ok {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		colors[thisIdx] = found
	}
	return colors, true
}

// FlipSideOfRoad returns a copy of p with every road-side flipped to the
// opposite side, i.e. the perimeter "expanded" outward by one road width.
func (p *Perimeter) FlipSideOfRoad() *Perimeter {
	out := p.Clone()
	for i, id := range out.Roads {
		out.Roads[i] = entity.RoadSideID{Road: id.Road, Side: id.Side.Opposite()}
	}
	return out
}

// Contains reports whether every road of o (by RoadID, ignoring side) is
// part of p's boundary or interior, meaning o sits entirely inside p.
func (p *Perimeter) Contains(o *Perimeter) bool {
	within := make(map[entity.RoadID]bool, len(p.Roads)+len(p.Interior))
	for _, id := range p.Roads {
		within[id.Road] = true
	}
	for r := range p.Interior {
		within[r] = true
	}
	for _, id := range o.Roads {
		if !within[id.Road] {
			return false
		}
	}
	return true
}

// MergeHoles repeatedly finds a perimeter whose road-flipped expansion is
// entirely contained within another, and merges the two, until a full pass
// changes nothing.
func MergeHoles(m *entity.Map, perims []*Perimeter) []*Perimeter {
	for {
		before := len(perims)
		holeIdx, surroundIdx := -1, -1
	search:
		for i, p := range perims {
			expanded := p.FlipSideOfRoad()
			for j, q := range perims {
				if i == j {
					continue
				}
				if q.Contains(expanded) {
					holeIdx, surroundIdx = i, j
					break search
				}
			}
		}
		if holeIdx < 0 {
			return perims
		}
		i1, i2 := holeIdx, surroundIdx
		if i2 < i1 {
			i1, i2 = i2, i1
		}
		p2 := perims[i2]
		p1 := perims[i1]
		rest := append(append([]*Perimeter{}, perims[:i1]...), perims[i1+1:i2]...)
		rest = append(rest, perims[i2+1:]...)
		perims = append(rest, MergeAll(m, []*Perimeter{p1, p2}, false)...)
		if len(perims) == before {
			return perims
		}
	}
}
