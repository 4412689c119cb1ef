package trip

import (
	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

// findPath runs a breadth-first search over the lane/turn graph from
// the start lane to the goal lane, returning the alternating
// lane-turn-lane traversable sequence. BFS expands turns in the map's
// insertion order, so routes are deterministic for a given map.
func findPath(m *entity.Map, from, to entity.LaneID) ([]entity.TraversableID, bool) {
	if from == to {
		return []entity.TraversableID{entity.LaneTraversable(from)}, true
	}
	type hop struct {
		lane entity.LaneID
		via  entity.TurnID
		prev entity.LaneID
	}
	cameFrom := map[entity.LaneID]hop{from: {lane: from}}
	queue := []entity.LaneID{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			break
		}
		for _, tid := range m.TurnsFromLane(cur) {
			t := m.Turn(tid)
			if _, seen := cameFrom[t.To]; seen {
				continue
			}
			cameFrom[t.To] = hop{lane: t.To, via: tid, prev: cur}
			queue = append(queue, t.To)
		}
	}
	if _, ok := cameFrom[to]; !ok {
		return nil, false
	}
	// walk back from the goal
	var rev []entity.TraversableID
	cur := to
	for cur != from {
		h := cameFrom[cur]
		rev = append(rev, entity.LaneTraversable(cur), entity.TurnTraversable(h.via))
		cur = h.prev
	}
	rev = append(rev, entity.LaneTraversable(from))
	out := make([]entity.TraversableID, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out, true
}

// gateS returns where along its gate lane a building attaches: the
// point on the lane nearest the gate, so legs start and stop at the
// driveway.
func gateS(m *entity.Map, lane entity.LaneID, gate geom.Pt2D) geom.Distance {
	center := m.Lane(lane).Center
	best := geom.Distance(0)
	bestDist := geom.Distance(1 << 30)
	step := geom.Distance(1.0)
	length := center.Length()
	for s := geom.Distance(0); s <= length; s += step {
		pt, _ := center.DistAlong(s)
		if d := pt.Dist(gate); d < bestDist {
			bestDist = d
			best = s
		}
	}
	return best
}
