package walksim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

func placePed(h *testHost, id entity.PedID, on entity.TraversableID, dist geom.Distance) *Ped {
	p := &Ped{
		ID:    id,
		Agent: entity.NewPedAgent(id, entity.TripID(id)),
		State: State{Kind: WaitingToTurn, Dist: dist},
	}
	h.mgr.peds[id] = p
	h.mgr.pedIDs = append(h.mgr.pedIDs, id)
	h.mgr.moveTo(p, on, dist)
	return p
}

// Two pedestrians whose circles overlap fold into one crowd.
func TestCrowdFolding(t *testing.T) {
	m, _ := walkCrossMap()
	h := newTestHost(m)
	sidewalk := entity.LaneTraversable(0) // width 4, so radius 1

	placePed(h, 1, sidewalk, 10)
	placePed(h, 2, sidewalk, 10.3)

	loners, crowds := h.mgr.GetDrawPeds(sidewalk)
	assert.Empty(t, loners)
	require.Len(t, crowds, 1)
	assert.ElementsMatch(t, []entity.PedID{1, 2}, crowds[0].Members)
	assert.InDelta(t, 9, float64(crowds[0].Low), 1e-9)
	assert.InDelta(t, 11.3, float64(crowds[0].High), 1e-9)
	assert.Equal(t, sidewalk, crowds[0].Location)
}

// Every ped on a traversable lands in exactly one loner or
// one crowd.
func TestCrowdFoldingIsExhaustive(t *testing.T) {
	m, _ := walkCrossMap()
	h := newTestHost(m)
	sidewalk := entity.LaneTraversable(0)

	dists := []geom.Distance{2, 10, 10.3, 11.9, 20, 40, 40.1}
	for i, d := range dists {
		placePed(h, entity.PedID(i), sidewalk, d)
	}

	loners, crowds := h.mgr.GetDrawPeds(sidewalk)
	seen := make(map[entity.PedID]int)
	for _, l := range loners {
		seen[l.ID]++
	}
	for _, c := range crowds {
		assert.GreaterOrEqual(t, len(c.Members), 2)
		for _, id := range c.Members {
			seen[id]++
		}
	}
	require.Len(t, seen, len(dists))
	for id, n := range seen {
		assert.Equal(t, 1, n, "ped %d appears %d times", id, n)
	}
}
