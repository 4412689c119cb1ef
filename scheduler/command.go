// Package scheduler implements the single-threaded, deterministic event
// scheduler that drives the simulation: a priority queue keyed on
// (time, sequence), dispatching Command values in time order with
// same-time ties broken by insertion order.
//
// It implements container/heap.Interface directly rather than reusing
// utils/container's queue: that one orders by a single float priority
// and can't express the (time, sequence) tuple.
package scheduler

import "github.com/tsinghua-fib-lab/moss-street-sim/entity"

// CommandKind tags the Command union.
type CommandKind int

const (
	SpawnCar CommandKind = iota
	SpawnPed
	UpdateCar
	UpdateLaggyHead
	UpdatePed
	UpdateIntersection
	Savestate
)

func (k CommandKind) String() string {
	switch k {
	case SpawnCar:
		return "spawn_car"
	case SpawnPed:
		return "spawn_ped"
	case UpdateCar:
		return "update_car"
	case UpdateLaggyHead:
		return "update_laggy_head"
	case UpdatePed:
		return "update_ped"
	case UpdateIntersection:
		return "update_intersection"
	default:
		return "savestate"
	}
}

// Command is the tagged-union payload dispatched by Sim.Step: a flat
// struct with an explicit tag rather than an interface, so commands
// stay comparable and allocation-free. Only the fields relevant to
// Kind are populated; the rest are zero.
type Command struct {
	Kind CommandKind

	Car          entity.CarID
	Ped          entity.PedID
	Intersection entity.IntersectionID
	Trip         entity.TripID

	// SavestateGen is a caller-defined generation/frequency tag, carried
	// through so Savestate handlers can tell which periodic bucket fired.
	SavestateGen int64
}
