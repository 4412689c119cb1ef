package walksim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity/trafficlight"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/scheduler"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/config"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/randengine"
)

// testHost is a miniature single-component host: a real scheduler and
// controller manager, driven by hand.
type testHost struct {
	m      *entity.Map
	sched  *scheduler.Scheduler
	ctrl   *trafficlight.Manager
	cfg    *config.RuntimeConfig
	gen    *randengine.Engine
	now    geom.Time
	events []entity.Event

	mgr     *Manager
	reached []entity.Agent
}

func newTestHost(m *entity.Map) *testHost {
	h := &testHost{
		m:     m,
		sched: scheduler.New(),
		ctrl:  trafficlight.NewManager(m, nil, false),
		cfg:   config.NewRuntimeConfig(config.Config{}),
		gen:   randengine.New(42),
	}
	h.mgr = NewManager(h)
	return h
}

func (h *testHost) Map() *entity.Map                     { return h.m }
func (h *testHost) Now() geom.Time                       { return h.now }
func (h *testHost) Controllers() *trafficlight.Manager   { return h.ctrl }
func (h *testHost) Emit(ev entity.Event)                 { h.events = append(h.events, ev) }
func (h *testHost) RuntimeConfig() *config.RuntimeConfig { return h.cfg }
func (h *testHost) Rand() *randengine.Engine             { return h.gen }
func (h *testHost) PedReachedDestination(agent entity.Agent) {
	h.reached = append(h.reached, agent)
}

func (h *testHost) Schedule(at geom.Time, cmd scheduler.Command) scheduler.Handle {
	return h.sched.Push(at, cmd)
}

func (h *testHost) CancelCommand(handle scheduler.Handle) {
	h.sched.Cancel(handle)
}

func (h *testHost) Waker() trafficlight.Waker { return hostWaker{h} }

type hostWaker struct{ h *testHost }

func (w hostWaker) WakeAgent(agent entity.Agent) {
	if agent.Kind == entity.AgentKindPed {
		w.h.mgr.Wake(agent.Ped)
	}
}

// run drains the scheduler until the limit.
func (h *testHost) run(limit geom.Time) {
	for {
		cmd, at, ok := h.sched.GetNext(limit)
		if !ok {
			return
		}
		h.now = at
		if cmd.Kind == scheduler.UpdatePed {
			h.mgr.Update(cmd.Ped)
		}
	}
}

// walkCrossMap is a 50 m sidewalk, then a 10 m
// crosswalk over an uncontrolled intersection.
func walkCrossMap() (*entity.Map, *Route) {
	m := entity.NewMap()
	sidewalk := &entity.Lane{
		ID: 0, Parent: 0, Dir: entity.Fwd, Width: 4,
		Center:            geom.MustNewPolyLine([]geom.Pt2D{{X: 0, Y: 0}, {X: 50, Y: 0}}),
		StartIntersection: 0, EndIntersection: 1,
	}
	far := &entity.Lane{
		ID: 1, Parent: 1, Dir: entity.Fwd, Width: 4,
		Center:            geom.MustNewPolyLine([]geom.Pt2D{{X: 60, Y: 0}, {X: 100, Y: 0}}),
		StartIntersection: 1, EndIntersection: 2,
	}
	m.AddRoad(&entity.Road{ID: 0, I1: 0, I2: 1, Center: sidewalk.Center, HalfWidth: 2, LaneIDs: []entity.LaneID{0}})
	m.AddRoad(&entity.Road{ID: 1, I1: 1, I2: 2, Center: far.Center, HalfWidth: 2, LaneIDs: []entity.LaneID{1}})
	for i := 0; i < 3; i++ {
		m.AddIntersection(&entity.Intersection{ID: entity.IntersectionID(i), Class: entity.Uncontrolled})
	}
	m.AddLane(sidewalk)
	m.AddLane(far)
	m.AddTurn(&entity.Turn{
		ID: 0, Intersection: 1, From: 0, To: 1,
		Center: geom.MustNewPolyLine([]geom.Pt2D{{X: 50, Y: 0}, {X: 60, Y: 0}}),
	})
	route := NewRoute([]Step{
		{On: entity.LaneTraversable(0)},
		{On: entity.TurnTraversable(0)},
	}, 10)
	return m, route
}

// One pedestrian walks the sidewalk, then the crosswalk; the
// crosswalk entry and the arrival land at length/speed boundaries.
func TestWalkAndCross(t *testing.T) {
	m, route := walkCrossMap()
	h := newTestHost(m)

	agent := entity.NewPedAgent(0, 7)
	h.mgr.Spawn(0, agent, route, 0, 0, false)

	p := h.mgr.Get(0)
	require.NotNil(t, p)
	require.Equal(t, Crossing, p.State.Kind)
	span := float64(p.State.TimeEnd - p.State.TimeStart)
	v := 50 / span
	// base speed is 1.34 +/- 0.25 of noise
	assert.InDelta(t, 1.34, v, 0.26)

	h.run(200)
	require.Len(t, h.reached, 1)

	var enterSidewalk, enterCrosswalk, arrival geom.Time
	arrival = -1
	for _, ev := range h.events {
		switch {
		case ev.Kind == entity.AgentEntersTraversable && ev.On == entity.LaneTraversable(0):
			enterSidewalk = ev.Time
		case ev.Kind == entity.AgentEntersTraversable && ev.On == entity.TurnTraversable(0):
			enterCrosswalk = ev.Time
		case ev.Kind == entity.PedReachedParkingSpot:
			arrival = ev.Time
		}
	}
	assert.Equal(t, geom.Time(0), enterSidewalk)
	assert.InDelta(t, 50/v, float64(enterCrosswalk), 1e-6)
	assert.InDelta(t, 60/v, float64(arrival), 1e-6)
	// around the nominal 38.5 s / 46.2 s at 1.3 m/s
	assert.InDelta(t, 38.5, float64(enterCrosswalk), 10)
	assert.InDelta(t, 46.2, float64(arrival), 12)
}

func TestDeletePedCancelsEverything(t *testing.T) {
	m, route := walkCrossMap()
	h := newTestHost(m)

	h.mgr.Spawn(0, entity.NewPedAgent(0, 7), route, 0, 0, false)
	require.NotNil(t, h.mgr.Get(0))

	h.mgr.Delete(0)
	assert.Nil(t, h.mgr.Get(0))
	assert.Equal(t, 0, h.mgr.Count())

	// the canceled update must not resurrect the ped
	h.run(200)
	assert.Empty(t, h.reached)
	loners, crowds := h.mgr.GetDrawPeds(entity.LaneTraversable(0))
	assert.Empty(t, loners)
	assert.Empty(t, crowds)
}
