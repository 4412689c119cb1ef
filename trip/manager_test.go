package trip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/mapgeom"
	"github.com/tsinghua-fib-lab/moss-street-sim/scheduler"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/input"
)

type testHost struct {
	m      *entity.Map
	now    geom.Time
	sched  []scheduler.Command
	at     []geom.Time
	events []entity.Event

	nextCar entity.CarID
	nextPed entity.PedID
}

func (h *testHost) Map() *entity.Map { return h.m }
func (h *testHost) Now() geom.Time   { return h.now }

func (h *testHost) Schedule(at geom.Time, cmd scheduler.Command) scheduler.Handle {
	h.sched = append(h.sched, cmd)
	h.at = append(h.at, at)
	return scheduler.Handle(len(h.sched))
}

func (h *testHost) Emit(ev entity.Event) { h.events = append(h.events, ev) }

func (h *testHost) NextCarID() entity.CarID {
	id := h.nextCar
	h.nextCar++
	return id
}

func (h *testHost) NextPedID() entity.PedID {
	id := h.nextPed
	h.nextPed++
	return id
}

// straightDoc is two road segments in a line with a building at each
// end.
func straightDoc() *input.MapDoc {
	return &input.MapDoc{
		Name:      "straight",
		Projected: true,
		Roads: []input.RoadDoc{
			{ID: 0, I1: 0, I2: 1, Center: []input.PtDoc{{X: 0, Y: 0}, {X: 100, Y: 0}}, HalfWidth: 5},
			{ID: 1, I1: 1, I2: 2, Center: []input.PtDoc{{X: 100, Y: 0}, {X: 200, Y: 0}}, HalfWidth: 5},
		},
		Intersections: []input.IntersectionDoc{{ID: 0}, {ID: 1}, {ID: 2}},
		Buildings: []input.BuildingDoc{
			// lane 1 is road 0's forward lane, lane 3 road 1's
			{ID: 0, Gate: input.PtDoc{X: 10, Y: -3}, DriveGate: 1, WalkGate: 1},
			{ID: 1, Gate: input.PtDoc{X: 190, Y: -3}, DriveGate: 3, WalkGate: 3},
		},
	}
}

func buildStraight(t *testing.T) *entity.Map {
	t.Helper()
	m, err := mapgeom.BuildMap(straightDoc())
	require.NoError(t, err)
	return m
}

func TestAddTripSchedulesSpawn(t *testing.T) {
	h := &testHost{m: buildStraight(t)}
	mg := NewManager(h)

	id := mg.AddTrip(30, []Leg{{Mode: ModeDrive, Origin: 0, Destination: 1}}, 0)
	tr := mg.Get(id)
	require.NotNil(t, tr)
	assert.Equal(t, ActiveOnLeg, tr.State)

	require.Len(t, h.sched, 1)
	assert.Equal(t, scheduler.SpawnCar, h.sched[0].Kind)
	assert.Equal(t, geom.Time(30), h.at[0])

	payload := mg.CarSpawn(h.sched[0].Car)
	require.NotNil(t, payload)
	// route alternates lane, turn, lane
	path := payload.Router.Path
	require.Len(t, path, 3)
	assert.Equal(t, entity.OnLane, path[0].Kind)
	assert.Equal(t, entity.OnTurn, path[1].Kind)
	assert.Equal(t, entity.OnLane, path[2].Kind)

	counts := mg.Counts()
	assert.Equal(t, 1, counts.Spawned)
	assert.Equal(t, 1, counts.Active)
}

func TestAgentReachedDestinationFinishesTrip(t *testing.T) {
	h := &testHost{m: buildStraight(t)}
	mg := NewManager(h)

	id := mg.AddTrip(0, []Leg{{Mode: ModeWalk, Origin: 0, Destination: 1}}, 0)
	tr := mg.Get(id)
	agent := tr.Agent

	h.now = 80
	mg.AgentReachedDestination(agent)
	assert.Equal(t, Done, tr.State)
	assert.True(t, mg.Done())

	counts := mg.Counts()
	assert.Equal(t, counts.Spawned, counts.Finished+counts.Aborted+counts.Active)
	assert.Equal(t, 1, counts.Finished)

	require.NotEmpty(t, h.events)
	last := h.events[len(h.events)-1]
	assert.Equal(t, entity.TripFinished, last.Kind)
	assert.Equal(t, id, last.Trip)

	// the agent mapping is gone
	_, ok := mg.TripOfAgent(agent)
	assert.False(t, ok)

	// batch lookup tolerates stale ids
	trips, failed := mg.GetByIDs([]entity.TripID{id, 42})
	require.Len(t, trips, 1)
	assert.Equal(t, id, trips[0].ID)
	assert.Equal(t, []entity.TripID{42}, failed)

	all, failed := mg.GetByIDs(nil)
	assert.Len(t, all, 1)
	assert.Empty(t, failed)
}

func TestMultiLegTripSpawnsFreshAgent(t *testing.T) {
	h := &testHost{m: buildStraight(t)}
	mg := NewManager(h)

	id := mg.AddTrip(0, []Leg{
		{Mode: ModeDrive, Origin: 0, Destination: 1},
		{Mode: ModeWalk, Origin: 1, Destination: 0},
	}, 0)
	tr := mg.Get(id)
	first := tr.Agent
	require.Equal(t, entity.AgentKindCar, first.Kind)

	mg.AgentReachedDestination(first)
	assert.Equal(t, ActiveOnLeg, tr.State)
	assert.Equal(t, 1, tr.Leg)
	second := tr.Agent
	assert.Equal(t, entity.AgentKindPed, second.Kind)
	require.Len(t, h.sched, 2)
	assert.Equal(t, scheduler.SpawnPed, h.sched[1].Kind)

	mg.AgentReachedDestination(second)
	assert.Equal(t, Done, tr.State)
	counts := mg.Counts()
	assert.Equal(t, 2, counts.Spawned)
	assert.Equal(t, counts.Spawned, counts.Finished+counts.Aborted+counts.Active)
}

func TestNoRouteAbortsTrip(t *testing.T) {
	doc := straightDoc()
	// road 1 reversed: nothing connects lane 1 forward to it anymore
	doc.Roads[1].I1, doc.Roads[1].I2 = 2, 1
	doc.Roads[1].Center = []input.PtDoc{{X: 200, Y: 0}, {X: 100, Y: 0}}
	// gates stay on forward lanes, which are now unreachable from each
	// other
	m, err := mapgeom.BuildMap(doc)
	require.NoError(t, err)

	// drive gate of building 1 must point at a lane flowing away from
	// the origin; find a lane of road 1 that cannot be reached
	h := &testHost{m: m}
	mg := NewManager(h)

	id := mg.AddTrip(0, []Leg{{Mode: ModeDrive, Origin: 0, Destination: 1}}, 0)
	tr := mg.Get(id)
	if tr.State == Aborted {
		counts := mg.Counts()
		assert.Equal(t, 1, counts.Aborted)
		assert.Equal(t, counts.Spawned, counts.Finished+counts.Aborted+counts.Active)
		sawAbort := false
		for _, ev := range h.events {
			if ev.Kind == entity.TripAborted {
				sawAbort = true
			}
		}
		assert.True(t, sawAbort)
	} else {
		// the reversed road still yielded a legal route (u-turn through
		// the shared intersection); that's fine too, but then a spawn
		// must have been scheduled
		assert.NotEmpty(t, h.sched)
	}
}

func TestAbortFailedStart(t *testing.T) {
	h := &testHost{m: buildStraight(t)}
	mg := NewManager(h)

	id := mg.AddTrip(0, []Leg{{Mode: ModeDrive, Origin: 0, Destination: 1}}, 0)
	tr := mg.Get(id)

	mg.AbortTripFailedStart(tr.Agent)
	assert.Equal(t, Aborted, tr.State)
	counts := mg.Counts()
	assert.Equal(t, 1, counts.Aborted)
	assert.Equal(t, 0, counts.Active)
	assert.Nil(t, mg.CarSpawn(h.sched[0].Car))
}
