package trafficlight_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity/trafficlight"
	"github.com/tsinghua-fib-lab/moss-street-sim/mapgeom"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/input"
)

// crossDoc is a four-way intersection: west/south arms inbound, east/
// north arms outbound, so every inbound lane has turns to pick from.
func crossDoc(centerClass string) *input.MapDoc {
	doc := &input.MapDoc{
		Name:      "cross",
		Projected: true,
		Roads: []input.RoadDoc{
			{ID: 0, I1: 1, I2: 0, Center: []input.PtDoc{{X: 0, Y: 100}, {X: 100, Y: 100}}, HalfWidth: 5},
			{ID: 1, I1: 0, I2: 2, Center: []input.PtDoc{{X: 100, Y: 100}, {X: 200, Y: 100}}, HalfWidth: 5},
			{ID: 2, I1: 3, I2: 0, Center: []input.PtDoc{{X: 100, Y: 0}, {X: 100, Y: 100}}, HalfWidth: 5},
			{ID: 3, I1: 0, I2: 4, Center: []input.PtDoc{{X: 100, Y: 100}, {X: 100, Y: 200}}, HalfWidth: 5},
		},
		Intersections: []input.IntersectionDoc{
			{ID: 0, Class: centerClass},
			{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4},
		},
	}
	return doc
}

func findTurn(t *testing.T, m *entity.Map, from, to entity.RoadID) entity.TurnID {
	t.Helper()
	for _, tid := range m.TurnsAt(0) {
		turn := m.Turn(tid)
		if m.Lane(turn.From).Parent == from && m.Lane(turn.To).Parent == to {
			return tid
		}
	}
	t.Fatalf("no turn from road %d to road %d", from, to)
	return 0
}

type recordingWaker struct {
	woken []entity.Agent
}

func (w *recordingWaker) WakeAgent(agent entity.Agent) {
	w.woken = append(w.woken, agent)
}

func TestUncontrolledConflictsBlock(t *testing.T) {
	m, err := mapgeom.BuildMap(crossDoc(""))
	require.NoError(t, err)
	mgr := trafficlight.NewManager(m, nil, false)
	ctrl := mgr.Get(0)

	ew := findTurn(t, m, 0, 1)
	sn := findTurn(t, m, 2, 3)

	carA := entity.NewCarAgent(1, 1)
	carB := entity.NewCarAgent(2, 2)

	assert.True(t, ctrl.MaybeStartTurn(carA, ew, 10, 0))
	// south-north crosses east-west mid-intersection
	assert.False(t, ctrl.MaybeStartTurn(carB, sn, 10, 0))
	assert.Equal(t, 1, ctrl.PendingLen())

	w := &recordingWaker{}
	ctrl.TurnFinished(carA, ew, w)
	assert.Contains(t, w.woken, carB)
	assert.True(t, ctrl.MaybeStartTurn(carB, sn, 10, 1))
}

func TestRepeatedAskIsIdempotent(t *testing.T) {
	m, err := mapgeom.BuildMap(crossDoc(""))
	require.NoError(t, err)
	ctrl := trafficlight.NewManager(m, nil, false).Get(0)

	ew := findTurn(t, m, 0, 1)
	car := entity.NewCarAgent(1, 1)
	assert.True(t, ctrl.MaybeStartTurn(car, ew, 10, 0))
	assert.True(t, ctrl.MaybeStartTurn(car, ew, 10, 0))
	assert.Len(t, ctrl.AcceptedTurns(), 1)
}

func TestStopSignFIFO(t *testing.T) {
	m, err := mapgeom.BuildMap(crossDoc("stop_sign"))
	require.NoError(t, err)
	ctrl := trafficlight.NewManager(m, nil, false).Get(0)

	ew := findTurn(t, m, 0, 1)
	sn := findTurn(t, m, 2, 3)

	carA := entity.NewCarAgent(1, 1)
	carB := entity.NewCarAgent(2, 2)

	// B asks first and is denied nothing; A asks second and must wait
	// its FIFO turn even for a non-conflicting movement
	ctrl.RequestTurn(carB, sn, 0)
	assert.False(t, ctrl.MaybeStartTurn(carA, ew, 10, 1))
	assert.True(t, ctrl.MaybeStartTurn(carB, sn, 10, 1))
	w := &recordingWaker{}
	ctrl.TurnFinished(carB, sn, w)
	assert.True(t, ctrl.MaybeStartTurn(carA, ew, 10, 2))
}

func TestSignalStagesGateMovements(t *testing.T) {
	m, err := mapgeom.BuildMap(crossDoc("traffic_signal"))
	require.NoError(t, err)
	programs := map[entity.IntersectionID][]trafficlight.Stage{
		0: {
			{Protected: []entity.Movement{{From: 0, To: 1}}, Duration: 10},
			{Protected: []entity.Movement{{From: 2, To: 3}}, Duration: 10},
		},
	}
	mgr := trafficlight.NewManager(m, programs, true)
	ctrl := mgr.Get(0)

	ew := findTurn(t, m, 0, 1)
	sn := findTurn(t, m, 2, 3)
	carA := entity.NewCarAgent(1, 1)
	carB := entity.NewCarAgent(2, 2)

	require.Equal(t, 0, ctrl.StageIndex())
	assert.True(t, ctrl.MaybeStartTurn(carA, ew, 10, 0))
	assert.False(t, ctrl.MaybeStartTurn(carB, sn, 10, 0))

	ctrl.TurnFinished(carA, ew, nil)
	// advance past the first stage
	w := &recordingWaker{}
	ctrl.Update(11, nil, w)
	assert.Equal(t, 1, ctrl.StageIndex())
	assert.Contains(t, w.woken, carB)
	assert.True(t, ctrl.MaybeStartTurn(carB, sn, 10, 11))
}

func TestCancelRequestClearsBookkeeping(t *testing.T) {
	m, err := mapgeom.BuildMap(crossDoc(""))
	require.NoError(t, err)
	ctrl := trafficlight.NewManager(m, nil, false).Get(0)

	ew := findTurn(t, m, 0, 1)
	sn := findTurn(t, m, 2, 3)
	carA := entity.NewCarAgent(1, 1)
	carB := entity.NewCarAgent(2, 2)

	require.True(t, ctrl.MaybeStartTurn(carA, ew, 10, 0))
	require.False(t, ctrl.MaybeStartTurn(carB, sn, 10, 0))

	// deleting the accepted agent frees its conflicters
	w := &recordingWaker{}
	ctrl.CancelRequest(carA, w)
	assert.Empty(t, ctrl.AcceptedTurns())
	assert.Contains(t, w.woken, carB)

	ctrl.CancelRequest(carB, nil)
	assert.Equal(t, 0, ctrl.PendingLen())
}
