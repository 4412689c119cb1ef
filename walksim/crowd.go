package walksim

import (
	"sort"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

// DrawPed is a render/query snapshot of one lone pedestrian.
type DrawPed struct {
	ID          entity.PedID
	Trip        entity.TripID
	On          entity.TraversableID
	Dist        geom.Distance
	Pt          geom.Pt2D
	SteepUphill bool
	Waiting     bool
}

// DrawPedCrowd folds overlapping pedestrians on one traversable into a
// single drawable group.
type DrawPedCrowd struct {
	Low, High geom.Distance
	Members   []entity.PedID
	Location  entity.TraversableID
}

// GetDrawPeds snapshots the pedestrians on a traversable, folding those
// whose circles (radius = sidewalk width / 4) overlap into crowds.
// Every pedestrian on the traversable lands in exactly one loner or one
// crowd.
func (mg *Manager) GetDrawPeds(on entity.TraversableID) ([]DrawPed, []DrawPedCrowd) {
	now := mg.ctx.Now()
	radius := mg.crowdRadius(on)

	type entry struct {
		ped  *Ped
		dist geom.Distance
	}
	var entries []entry
	for node := mg.list(on).First(); node != nil; node = node.Next() {
		p := node.Value
		entries = append(entries, entry{ped: p, dist: p.DistAt(now)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].dist != entries[j].dist {
			return entries[i].dist < entries[j].dist
		}
		return entries[i].ped.ID < entries[j].ped.ID
	})

	var loners []DrawPed
	var crowds []DrawPedCrowd
	var members []entry
	var high geom.Distance

	flush := func() {
		if len(members) == 0 {
			return
		}
		if len(members) == 1 {
			p := members[0].ped
			pt, _ := mg.ctx.Map().TraversableCenter(on).DistAlong(members[0].dist)
			loners = append(loners, DrawPed{
				ID: p.ID, Trip: p.Agent.Trip, On: on, Dist: members[0].dist, Pt: pt,
				SteepUphill: p.State.Kind == Crossing && p.State.SteepUphill,
				Waiting:     p.State.Kind == WaitingToTurn || p.State.Kind == WaitingForBus,
			})
		} else {
			crowd := DrawPedCrowd{
				Low:      members[0].dist - radius,
				High:     high,
				Location: on,
			}
			for _, m := range members {
				crowd.Members = append(crowd.Members, m.ped.ID)
			}
			crowds = append(crowds, crowd)
		}
		members = nil
	}

	for _, e := range entries {
		if len(members) > 0 && e.dist-radius <= high {
			members = append(members, e)
			if e.dist+radius > high {
				high = e.dist + radius
			}
			continue
		}
		flush()
		members = append(members, e)
		high = e.dist + radius
	}
	flush()
	return loners, crowds
}

func (mg *Manager) crowdRadius(on entity.TraversableID) geom.Distance {
	m := mg.ctx.Map()
	if on.Kind == entity.OnLane {
		return m.Lane(on.Lane).Width / 4
	}
	return m.Lane(m.Turn(on.Turn).From).Width / 4
}
