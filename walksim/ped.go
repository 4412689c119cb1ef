// Package walksim is the pedestrian half of the simulator core: a state
// machine per pedestrian whose every state has a single end time, one
// scheduled UpdatePed command per transition, and crowd folding for
// draw queries.
package walksim

import (
	"github.com/sirupsen/logrus"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/scheduler"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/container"
)

var log = logrus.WithField("module", "walksim")

const (
	// steepUphillGrade marks a crossing as steep for rendering.
	steepUphillGrade = 0.08
	// Sampled walking speeds are defaultWalkSpeed +/- maxSpeedNoise/2;
	// minWalkSpeed floors the speed after incline attenuation.
	defaultWalkSpeed = 1.34
	minWalkSpeed     = 0.5
	maxSpeedNoise    = 0.5
	// gateAnimationTime paces building/parking-lot entry and exit
	// animations.
	gateAnimationTime geom.Duration = 5.0
	// waitPollInterval paces blind re-polls in WaitingToTurn.
	waitPollInterval geom.Duration = 1.0
)

// StateKind enumerates the pedestrian state machine.
type StateKind int

const (
	Crossing StateKind = iota
	WaitingToTurn
	LeavingBuilding
	EnteringBuilding
	LeavingParkingLot
	EnteringParkingLot
	StartingToBike
	FinishingBiking
	WaitingForBus
)

func (k StateKind) String() string {
	switch k {
	case Crossing:
		return "crossing"
	case WaitingToTurn:
		return "waiting_to_turn"
	case LeavingBuilding:
		return "leaving_building"
	case EnteringBuilding:
		return "entering_building"
	case LeavingParkingLot:
		return "leaving_parking_lot"
	case EnteringParkingLot:
		return "entering_parking_lot"
	case StartingToBike:
		return "starting_to_bike"
	case FinishingBiking:
		return "finishing_biking"
	default:
		return "waiting_for_bus"
	}
}

// State is the tagged union of pedestrian states. Every state except
// WaitingToTurn and WaitingForBus has a known end time; those two end
// when an external grant arrives.
type State struct {
	Kind StateKind

	// Crossing
	DistStart, DistEnd geom.Distance
	TimeStart, TimeEnd geom.Time
	SteepUphill        bool

	// WaitingToTurn / WaitingForBus
	Dist  geom.Distance
	Since geom.Time
	Stop  entity.TransitStopID

	// gate animations
	Building entity.BuildingID
	Lot      entity.ParkingLotID
}

// Step is one leg-internal element of a walking route: a traversable
// plus its grade.
type Step struct {
	On      entity.TraversableID
	Incline float64 // rise over run; positive is uphill in walk direction
}

// Route is a pedestrian's path: steps plus the stop position on the
// final one.
type Route struct {
	Steps []Step
	EndS  geom.Distance
	idx   int
}

func NewRoute(steps []Step, endS geom.Distance) *Route {
	return &Route{Steps: steps, EndS: endS}
}

func (r *Route) Current() Step {
	return r.Steps[r.idx]
}

func (r *Route) Peek() (Step, bool) {
	if r.idx+1 >= len(r.Steps) {
		return Step{}, false
	}
	return r.Steps[r.idx+1], true
}

func (r *Route) Advance() Step {
	if r.idx+1 >= len(r.Steps) {
		log.Panicf("walking route advanced past its end")
	}
	r.idx++
	return r.Steps[r.idx]
}

func (r *Route) AtLast() bool {
	return r.idx == len(r.Steps)-1
}

func (r *Route) Remaining() []entity.TraversableID {
	out := make([]entity.TraversableID, 0, len(r.Steps)-r.idx)
	for _, s := range r.Steps[r.idx:] {
		out = append(out, s.On)
	}
	return out
}

type pedNode = container.ListNode[*Ped, struct{}]

// Ped is one live pedestrian.
type Ped struct {
	ID    entity.PedID
	Agent entity.Agent

	baseSpeed float64
	Route     *Route
	State     State
	On        entity.TraversableID

	node       *pedNode
	nextHandle scheduler.Handle
	hasNext    bool

	// destination gate to animate into when the route ends
	destBuilding entity.BuildingID
	hasDest      bool
}

// V implements container.IHasVAndLength; pedestrians report their
// effective crossing speed, zero while waiting.
func (p *Ped) V() float64 {
	if p.State.Kind != Crossing {
		return 0
	}
	span := float64(p.State.TimeEnd - p.State.TimeStart)
	if span <= 0 {
		return 0
	}
	return float64(p.State.DistEnd-p.State.DistStart) / span
}

// Length implements container.IHasVAndLength; pedestrians take no queue
// slot.
func (p *Ped) Length() float64 {
	return 0
}

// DistAt interpolates the pedestrian's position at time t.
func (p *Ped) DistAt(t geom.Time) geom.Distance {
	switch p.State.Kind {
	case Crossing:
		if t <= p.State.TimeStart {
			return p.State.DistStart
		}
		if t >= p.State.TimeEnd {
			return p.State.DistEnd
		}
		frac := float64(t-p.State.TimeStart) / float64(p.State.TimeEnd-p.State.TimeStart)
		return p.State.DistStart + geom.Distance(frac)*(p.State.DistEnd-p.State.DistStart)
	case WaitingToTurn:
		return p.State.Dist
	default:
		return p.State.Dist
	}
}

// effectiveSpeed attenuates the base speed by a step's incline; steep
// grades slow a walker roughly in proportion to the grade.
func (p *Ped) effectiveSpeed(incline float64) float64 {
	v := p.baseSpeed
	if incline > 0 {
		v *= 1 - 4*incline
	}
	if v < minWalkSpeed {
		v = minWalkSpeed
	}
	return v
}
