package drivesim

import (
	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/scheduler"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/container"
)

// carNode is a car's entry in a traversable's queue, keyed by S.
type carNode = container.ListNode[*Car, struct{}]

// Car is one live vehicle. Cross-component code refers to it by CarID /
// Agent; the struct itself never leaves drivesim. The embedded
// incremental-item base tracks the car's slot in the manager's arena
// array.
type Car struct {
	container.IncrementalItemBase

	ID    entity.CarID
	Agent entity.Agent

	// sampled attributes
	length      float64
	maxV        float64
	maxA        float64
	usualBrakeA float64
	maxBrakeA   float64
	minGap      float64
	headway     float64

	Router *Router

	// position state
	On  entity.TraversableID
	S   geom.Distance
	Vel geom.Speed

	node *carNode
	// laggyNode is the tail's occupancy left on the previous
	// traversable until the body fully exits it.
	laggyNode   *carNode
	laggyOn     entity.TraversableID
	laggyHandle scheduler.Handle

	// turn bookkeeping
	turnAccepted bool
	waiting      bool
	waitingSince geom.Time

	lastUpdate  geom.Time
	lastAdvance geom.Time
	nextHandle  scheduler.Handle
	hasNext     bool
}

// V implements container.IHasVAndLength for queue scans.
func (c *Car) V() float64 {
	return float64(c.Vel)
}

// Length implements container.IHasVAndLength.
func (c *Car) Length() float64 {
	return c.length
}

func newCarNode(s geom.Distance, c *Car) *carNode {
	return &carNode{S: float64(s), Value: c}
}
