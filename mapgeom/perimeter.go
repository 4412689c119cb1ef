package mapgeom

import (
	"fmt"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
)

// Perimeter traces a cyclic list of road-sides bounding a block; roads
// wholly inside the loop (produced by merging, or a collapsed dead-end
// stub) live in Interior instead.
type Perimeter struct {
	Roads    []entity.RoadSideID // Roads[0] == Roads[last]
	Interior map[entity.RoadID]bool
}

func newPerimeter(roads []entity.RoadSideID) *Perimeter {
	return &Perimeter{Roads: roads, Interior: make(map[entity.RoadID]bool)}
}

// Clone deep-copies a Perimeter. TryMerge operates on, and returns,
// clones internally, so call sites never observe partial mutation from
// a failed merge.
func (p *Perimeter) Clone() *Perimeter {
	out := &Perimeter{
		Roads:    append([]entity.RoadSideID{}, p.Roads...),
		Interior: make(map[entity.RoadID]bool, len(p.Interior)),
	}
	for r := range p.Interior {
		out.Interior[r] = true
	}
	return out
}

func wraparoundGet[T any](xs []T, idx int) T {
	n := len(xs)
	idx %= n
	if idx < 0 {
		idx += n
	}
	return xs[idx]
}

// SingleBlock starts at the nearest road-side of lane `start` and walks
// around the block it borders, one road-side at a time.
func SingleBlock(m *entity.Map, start entity.LaneID, skip map[entity.RoadID]bool) (*Perimeter, error) {
	lane, err := m.LaneOrError(start)
	if err != nil {
		return nil, err
	}
	startSide := entity.RoadSideID{Road: lane.Parent, Side: lane.NearestSide()}
	if skip[startSide.Road] {
		return nil, fmt.Errorf("mapgeom: started on a road we shouldn't trace")
	}

	startRoad := m.Road(startSide.Road)
	if startRoad.I1 == startRoad.I2 {
		// Loop road: we may have started on the "inner" side.
		found := false
		for _, s := range m.RoadSidesAt(startRoad.I1) {
			if s == startSide {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("mapgeom: starting on inner piece of a loop road")
		}
	}

	var roads []entity.RoadSideID
	current := startSide
	currentIntersection := lane.EndIntersection
	// a perimeter can visit both sides of every road (dead-end spurs)
	maxIter := 2*len(m.RoadIDs()) + 2
	for iter := 0; ; iter++ {
		isec := m.Intersection(currentIntersection)
		if isec.Class == entity.Border {
			return nil, ErrTraceBlockedAtBoundary
		}
		sorted := m.RoadSidesAt(currentIntersection)
		var filtered []entity.RoadSideID
		for _, s := range sorted {
			if !skip[s.Road] {
				filtered = append(filtered, s)
			}
		}
		idx := -1
		for i, s := range filtered {
			if s == current {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("mapgeom: current road side %v missing from sorted sides at intersection %d", current, currentIntersection)
		}
		next := wraparoundGet(filtered, idx+1)
		if next.Road == current.Road {
			next = wraparoundGet(filtered, idx-1)
			if next.Road == current.Road && len(filtered) != 2 {
				return nil, fmt.Errorf("mapgeom: looped back on the same road, but not at a dead-end")
			}
		}
		roads = append(roads, current)
		current = next
		currentIntersection = m.Road(current.Road).OtherEnd(currentIntersection)

		if current == startSide {
			roads = append(roads, startSide)
			break
		}
		if iter > maxIter {
			return nil, ErrInfiniteLoop
		}
	}
	return newPerimeter(roads), nil
}

// FindAllSingleBlocks runs SingleBlock for every lane in the map,
// skipping lanes whose nearest side already appears in a found perimeter,
// and marking only the failing side as visited on failure so other
// starting points still get a chance.
func FindAllSingleBlocks(m *entity.Map, skip map[entity.RoadID]bool) []*Perimeter {
	seen := make(map[entity.RoadSideID]bool)
	var perimeters []*Perimeter
	for _, laneID := range m.LaneIDs() {
		lane := m.Lane(laneID)
		side := entity.RoadSideID{Road: lane.Parent, Side: lane.NearestSide()}
		if seen[side] {
			continue
		}
		p, err := SingleBlock(m, laneID, skip)
		if err != nil {
			seen[side] = true
			continue
		}
		for _, s := range p.Roads {
			seen[s] = true
		}
		perimeters = append(perimeters, p)
	}
	return perimeters
}
