// Package trip owns trip lifecycles: the multi-leg state machine, the
// agent-to-trip mapping, and the spawn payloads the top-level sim hands
// to drivesim/walksim when spawn commands fire.
package trip

import (
	"github.com/sirupsen/logrus"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

var log = logrus.WithField("module", "trip")

// Mode selects how one leg is traversed.
type Mode int

const (
	ModeWalk Mode = iota
	ModeDrive
)

func (m Mode) String() string {
	if m == ModeWalk {
		return "walk"
	}
	return "drive"
}

// Leg is one stage of a trip between two building gates.
type Leg struct {
	Mode        Mode
	Origin      entity.BuildingID
	Destination entity.BuildingID
}

// StateKind is the trip state machine of the data model: Pending ->
// ActiveOnLeg(n) -> Done | Aborted.
type StateKind int

const (
	Pending StateKind = iota
	ActiveOnLeg
	Done
	Aborted
)

func (k StateKind) String() string {
	switch k {
	case Pending:
		return "pending"
	case ActiveOnLeg:
		return "active"
	case Done:
		return "done"
	default:
		return "aborted"
	}
}

// Trip is one scheduled journey.
type Trip struct {
	ID        entity.TripID
	Legs      []Leg
	State     StateKind
	Leg       int // current leg index, valid in ActiveOnLeg
	StartTime geom.Time
	Seed      uint64

	// agent currently carrying the trip, valid in ActiveOnLeg
	Agent entity.Agent
}
