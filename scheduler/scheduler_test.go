package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

func TestSchedulerOrdersByTimeThenSequence(t *testing.T) {
	s := New()
	s.Push(5, Command{Kind: UpdateCar, Car: 1})
	s.Push(1, Command{Kind: UpdatePed, Ped: 2})
	s.Push(1, Command{Kind: UpdatePed, Ped: 3})

	cmd, at, ok := s.GetNext(10)
	require.True(t, ok)
	assert.Equal(t, geom.Time(1), at)
	assert.Equal(t, entity.PedID(2), cmd.Ped)

	cmd, at, ok = s.GetNext(10)
	require.True(t, ok)
	assert.Equal(t, geom.Time(1), at)
	assert.Equal(t, entity.PedID(3), cmd.Ped)

	cmd, at, ok = s.GetNext(10)
	require.True(t, ok)
	assert.Equal(t, geom.Time(5), at)
	assert.Equal(t, entity.CarID(1), cmd.Car)
}

func TestSchedulerRespectsTargetTime(t *testing.T) {
	s := New()
	s.Push(100, Command{Kind: Savestate})
	_, _, ok := s.GetNext(10)
	assert.False(t, ok)
	_, _, ok = s.GetNext(100)
	assert.True(t, ok)
}

func TestSchedulerCancelSkipsEntry(t *testing.T) {
	s := New()
	h := s.Push(1, Command{Kind: UpdateCar, Car: 1})
	s.Push(2, Command{Kind: UpdateCar, Car: 2})
	s.Cancel(h)

	cmd, _, ok := s.GetNext(10)
	require.True(t, ok)
	assert.Equal(t, entity.CarID(2), cmd.Car)

	_, _, ok = s.GetNext(10)
	assert.False(t, ok)
}
