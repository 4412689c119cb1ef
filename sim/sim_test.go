package sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/mapgeom"
	"github.com/tsinghua-fib-lab/moss-street-sim/sim"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/config"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/input"
)

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
			{ID: 0, Gate: input.PtDoc{X: 10, Y: -3}, DriveGate: 1, WalkGate: 1},
			{ID: 1, Gate: input.PtDoc{X: 190, Y: -3}, DriveGate: 3, WalkGate: 3},
		},
	}
}

func scenario() *input.ScenarioDoc {
	return &input.ScenarioDoc{
		Name: "commute",
		Trips: []input.TripDoc{
			{StartTime: 0, Origin: 0, Destination: 1, Mode: "drive"},
			{StartTime: 5, Origin: 0, Destination: 1, Mode: "walk"},
		},
	}
}

type memorySaver struct {
	writes []sim.SavestateKey
}

func (s *memorySaver) Write(key sim.SavestateKey, data []byte) (string, error) {
	s.writes = append(s.writes, key)
	return "memory", nil
}

func newSim(t *testing.T, seed uint64, saver sim.SavestateWriter) *sim.Sim {
	t.Helper()
	m, err := mapgeom.BuildMap(straightDoc())
	require.NoError(t, err)
	cfg := config.NewRuntimeConfig(config.Config{
		Control: config.Control{
			Step:       config.ControlStep{Start: 0, Total: 600, Interval: 1},
			RandomSeed: seed,
		},
	})
	s := sim.New(m, cfg, sim.Options{
		MapName: "straight", EditsName: "none", RunName: "test", Saver: saver,
	})
	s.LoadScenario(scenario())
	return s
}

func TestTripsRunToCompletion(t *testing.T) {
	s := newSim(t, 1, &memorySaver{})
	events := s.RunUntilDone(600)

	counts := s.TripCounts()
	assert.Equal(t, 2, counts.Spawned)
	assert.Equal(t, 2, counts.Finished)
	assert.Equal(t, 0, counts.Aborted)
	assert.Equal(t, 0, counts.Active)

	finished := 0
	for _, ev := range events {
		if ev.Kind == entity.TripFinished {
			finished++
		}
	}
	assert.Equal(t, 2, finished)
}

// spawned = finished + aborted + active after every step.
func TestAgentCountConservation(t *testing.T) {
	s := newSim(t, 1, &memorySaver{})
	for i := 0; i < 400; i++ {
		s.Step(1)
		c := s.TripCounts()
		require.Equal(t, c.Spawned, c.Finished+c.Aborted+c.Active,
			"conservation violated at step %d: %+v", i, c)
	}
}

// The same map, scenario and seed produce an identical
// event sequence.
func TestDeterminism(t *testing.T) {
	run := func() []entity.Event {
		s := newSim(t, 7, &memorySaver{})
		var all []entity.Event
		for i := 0; i < 300; i++ {
			all = append(all, s.Step(1)...)
		}
		return all
	}
	first := run()
	second := run()
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestRunUntilExpectationsMet(t *testing.T) {
	s := newSim(t, 1, &memorySaver{})
	_, ok := s.RunUntilExpectationsMet([]entity.Event{
		{Kind: entity.TripFinished, Trip: 0},
		{Kind: entity.TripFinished, Trip: 1},
	}, 600)
	assert.True(t, ok)
}

func TestPeriodicSavestate(t *testing.T) {
	m, err := mapgeom.BuildMap(straightDoc())
	require.NoError(t, err)
	saver := &memorySaver{}
	cfg := config.NewRuntimeConfig(config.Config{
		Control: config.Control{
			Step:          config.ControlStep{Start: 0, Total: 100, Interval: 1},
			SavestateFreq: 10,
		},
	})
	s := sim.New(m, cfg, sim.Options{MapName: "straight", EditsName: "none", RunName: "test", Saver: saver})
	s.Step(35)
	require.Len(t, saver.writes, 3)
	assert.Equal(t, geom.Time(10), saver.writes[0].Time)
	assert.Equal(t, geom.Time(20), saver.writes[1].Time)
	assert.Equal(t, geom.Time(30), saver.writes[2].Time)
	assert.Equal(t, "memory", s.LastSavestate())
}

func TestQueriesDuringRun(t *testing.T) {
	s := newSim(t, 1, &memorySaver{})
	s.Step(8) // both trips spawned, car driving, ped leaving building

	car := entity.NewCarAgent(0, 0)
	props, ok := s.AgentProperties(car)
	require.True(t, ok)
	assert.Equal(t, entity.TripID(0), props.Trip)

	routeLeft, ok := s.TraceRoute(car)
	require.True(t, ok)
	assert.NotEmpty(t, routeLeft)

	pt, ok := s.CanonicalPt(car)
	require.True(t, ok)
	assert.Greater(t, pt.X, 0.0)

	cars := s.GetDrawCars(props.On)
	require.NotEmpty(t, cars)
	assert.Equal(t, entity.CarID(0), cars[0].ID)
}

func TestDeleteAgentAbortsTrip(t *testing.T) {
	s := newSim(t, 1, &memorySaver{})
	s.Step(8)

	car := entity.NewCarAgent(0, 0)
	_, ok := s.AgentProperties(car)
	require.True(t, ok)

	s.DeleteAgent(car)
	_, ok = s.AgentProperties(car)
	assert.False(t, ok)

	s.Step(100)
	c := s.TripCounts()
	assert.Equal(t, 1, c.Aborted)
	assert.Equal(t, c.Spawned, c.Finished+c.Aborted+c.Active)
}
