package entity

import "github.com/tsinghua-fib-lab/moss-street-sim/geom"

// EventKind enumerates what the simulator reports to analytics.
type EventKind int

const (
	AgentEntersTraversable EventKind = iota
	TripFinished
	TripAborted
	CarReachedParkingSpot
	PedReachedParkingSpot
	BusArrivedAtStop
	IntersectionDelayMeasured
	Gridlock
)

func (k EventKind) String() string {
	switch k {
	case AgentEntersTraversable:
		return "agent_enters_traversable"
	case TripFinished:
		return "trip_finished"
	case TripAborted:
		return "trip_aborted"
	case CarReachedParkingSpot:
		return "car_reached_parking_spot"
	case PedReachedParkingSpot:
		return "ped_reached_parking_spot"
	case BusArrivedAtStop:
		return "bus_arrived_at_stop"
	case IntersectionDelayMeasured:
		return "intersection_delay_measured"
	default:
		return "gridlock"
	}
}

// Event is one emitted record; only the fields relevant to Kind are
// populated. Collected per step and returned to the caller in emission
// order.
type Event struct {
	Kind         EventKind
	Time         geom.Time
	Agent        Agent
	Trip         TripID
	On           TraversableID
	Intersection IntersectionID
	Delay        geom.Duration
	Stop         TransitStopID
}
