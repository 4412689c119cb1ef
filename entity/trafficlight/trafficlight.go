// Package trafficlight arbitrates right-of-way per intersection: which
// turns are currently accepted, which requests wait in FIFO order, and,
// for signalized intersections, which stage of the signal program is
// active. Stage advance runs either a fixed program or max-pressure
// selection.
package trafficlight

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/container"
)

var log = logrus.WithField("module", "trafficlight")

var (
	// ErrTurnConflict reports a transient denial: the requester waits
	// and re-polls.
	ErrTurnConflict = errors.New("trafficlight: turn conflicts with an accepted movement")
	// ErrDisabledSignal reports an attempt to set a program on an
	// intersection that isn't signalized.
	ErrDisabledSignal = errors.New("trafficlight: signal control is disabled for the intersection")
)

const (
	// defaultStageTime paces max-pressure stages.
	defaultStageTime = 15.0
	// maxStageRepeat bounds how long max pressure may hold one stage.
	maxStageRepeat = 6
)

// Stage is one element of a signal program: the movements protected
// (conflicting traffic held) or allowed-with-yield while it is active.
type Stage struct {
	Protected []entity.Movement
	Yield     []entity.Movement
	Duration  geom.Duration
}

func (s Stage) allows(mv entity.Movement) (protected, yield bool) {
	for _, p := range s.Protected {
		if p == mv {
			return true, false
		}
	}
	for _, y := range s.Yield {
		if y == mv {
			return false, true
		}
	}
	return false, false
}

// PressureSource reports how much demand waits on a movement; the
// driving simulator implements it with per-lane queue lengths. Max
// pressure reads it when choosing the next stage.
type PressureSource interface {
	MovementPressure(i entity.IntersectionID, mv entity.Movement) float64
}

// Waker re-schedules an agent whose pending turn request may now be
// grantable. The top-level sim implements it by pushing an UpdateCar/
// UpdatePed command at the current time.
type Waker interface {
	WakeAgent(agent entity.Agent)
}

// request is one pending turn request, FIFO by arrival. Same-time
// arrivals are already ordered by the scheduler's sequence numbers; the
// agent id tiebreak happens at insertion (see agentLess).
type request struct {
	agent entity.Agent
	turn  entity.TurnID
	since geom.Time
}

// Controller arbitrates one intersection.
type Controller struct {
	m     *entity.Map
	id    entity.IntersectionID
	class entity.IntersectionClass

	// accepted maps agent -> the turn it is currently making.
	accepted map[entity.Agent]entity.TurnID
	pending  []request

	// signal state
	stages    []Stage
	fixed     bool // run stages in order; false selects by max pressure
	stageIdx  int
	remaining geom.Duration
	repeats   int
}

func newController(m *entity.Map, id entity.IntersectionID, stages []Stage, preferFixed bool) *Controller {
	c := &Controller{
		m:        m,
		id:       id,
		class:    m.Intersection(id).Class,
		accepted: make(map[entity.Agent]entity.TurnID),
		stages:   stages,
	}
	if len(stages) > 0 {
		c.fixed = preferFixed
		c.remaining = stages[0].Duration
	}
	return c
}

func (c *Controller) movementOf(turn entity.TurnID) entity.Movement {
	t := c.m.Turn(turn)
	return entity.Movement{
		From: c.m.Lane(t.From).Parent,
		To:   c.m.Lane(t.To).Parent,
	}
}

// RequestTurn records a pending request if the agent doesn't already
// have one. Idempotent: re-polling does not lose FIFO position.
func (c *Controller) RequestTurn(agent entity.Agent, turn entity.TurnID, now geom.Time) {
	for _, r := range c.pending {
		if r.agent == agent {
			return
		}
	}
	// FIFO by arrival; same-time arrivals tiebreak by agent id so
	// acceptance order is independent of scheduler internals.
	idx := len(c.pending)
	for idx > 0 && c.pending[idx-1].since == now && agentLess(agent, c.pending[idx-1].agent) {
		idx--
	}
	c.pending = append(c.pending, request{})
	copy(c.pending[idx+1:], c.pending[idx:])
	c.pending[idx] = request{agent: agent, turn: turn, since: now}
}

func agentLess(a, b entity.Agent) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Kind == entity.AgentKindCar {
		return a.Car < b.Car
	}
	return a.Ped < b.Ped
}

// MaybeStartTurn returns true and records acceptance iff the turn can
// begin now: no conflicting accepted turn, the signal stage allows its
// movement, and (stop signs) the request is at the head of the FIFO.
// The caller must have registered the request via RequestTurn first;
// calling without one registers and evaluates immediately.
func (c *Controller) MaybeStartTurn(agent entity.Agent, turn entity.TurnID, speed geom.Speed, now geom.Time) bool {
	if prev, ok := c.accepted[agent]; ok {
		if prev != turn {
			log.Panicf("agent %v asked for turn %d while already accepted on %d at t=%v", agent, turn, prev, now)
		}
		return true
	}
	c.RequestTurn(agent, turn, now)
	if !c.grantable(agent, turn) {
		return false
	}
	c.accepted[agent] = turn
	c.removePending(agent)
	return true
}

func (c *Controller) grantable(agent entity.Agent, turn entity.TurnID) bool {
	t := c.m.Turn(turn)
	for _, acceptedTurn := range c.accepted {
		if t.ConflictsWith(c.m.Turn(acceptedTurn)) {
			return false
		}
	}
	switch c.class {
	case entity.Border:
		return true
	case entity.TrafficSignal:
		if len(c.stages) == 0 {
			return true // signal data missing: behave as uncontrolled
		}
		protected, yield := c.stages[c.stageIdx].allows(c.movementOf(turn))
		return protected || yield
	case entity.StopSign:
		// strict FIFO: only the head request may proceed
		return len(c.pending) == 0 || c.pending[0].agent == agent
	default:
		return true
	}
}

func (c *Controller) removePending(agent entity.Agent) {
	for i, r := range c.pending {
		if r.agent == agent {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// TurnFinished removes the agent's accepted turn and wakes any waiter
// that may now be grantable.
func (c *Controller) TurnFinished(agent entity.Agent, turn entity.TurnID, waker Waker) {
	prev, ok := c.accepted[agent]
	if !ok || prev != turn {
		log.Panicf("agent %v finished turn %d it never started (accepted=%v)", agent, turn, prev)
	}
	delete(c.accepted, agent)
	c.pollWaiters(waker)
}

// CancelRequest clears an agent's pending request and any accepted
// occupancy; used on agent deletion.
func (c *Controller) CancelRequest(agent entity.Agent, waker Waker) {
	c.removePending(agent)
	if _, ok := c.accepted[agent]; ok {
		delete(c.accepted, agent)
		c.pollWaiters(waker)
	}
}

// pollWaiters wakes every pending agent whose turn is now grantable.
// The woken agents re-request on their own update; acceptance itself
// stays inside MaybeStartTurn so there's exactly one grant path.
func (c *Controller) pollWaiters(waker Waker) {
	if waker == nil {
		return
	}
	for _, r := range c.pending {
		if c.grantable(r.agent, r.turn) {
			waker.WakeAgent(r.agent)
		}
	}
}

// Update advances the signal stage per the timing plan (fixed) or by
// max-pressure selection, then re-polls waiters. No-op for unsignalized
// intersections beyond the waiter poll.
func (c *Controller) Update(dt geom.Duration, pressure PressureSource, waker Waker) {
	if c.class == entity.TrafficSignal && len(c.stages) >= 2 {
		c.remaining -= dt
		if c.remaining <= 0 {
			if c.fixed {
				c.stageIdx = (c.stageIdx + 1) % len(c.stages)
				c.remaining += c.stages[c.stageIdx].Duration
			} else {
				c.advanceMaxPressure(pressure)
			}
		}
	}
	c.pollWaiters(waker)
}

// advanceMaxPressure picks the stage with the highest waiting pressure,
// holding the current stage at most maxStageRepeat times before forcing
// the runner-up.
func (c *Controller) advanceMaxPressure(pressure PressureSource) {
	stageTime := geom.Duration(defaultStageTime)
	if pressure == nil {
		c.stageIdx = (c.stageIdx + 1) % len(c.stages)
		c.remaining += stageTime
		return
	}
	heap := container.NewPriorityQueue[int]()
	for i, stage := range c.stages {
		total := 0.
		for _, mv := range stage.Protected {
			total += pressure.MovementPressure(c.id, mv)
		}
		heap.Push(i, -total) // min-heap: highest pressure pops first
	}
	heap.Heapify()
	maxIdx, _ := heap.HeapPop()
	if maxIdx == c.stageIdx {
		if c.repeats >= maxStageRepeat {
			maxIdx, _ = heap.HeapPop()
		} else {
			c.repeats++
		}
	}
	if maxIdx != c.stageIdx {
		c.stageIdx = maxIdx
		c.repeats = 1
	}
	c.remaining += stageTime
}

// AcceptedTurns returns the currently accepted agent->turn pairs; used
// by savestate dumps and tests.
func (c *Controller) AcceptedTurns() map[entity.Agent]entity.TurnID {
	out := make(map[entity.Agent]entity.TurnID, len(c.accepted))
	for a, t := range c.accepted {
		out[a] = t
	}
	return out
}

// PendingLen reports the number of waiting requests.
func (c *Controller) PendingLen() int {
	return len(c.pending)
}

// StageIndex reports the active stage, -1 when unsignalized.
func (c *Controller) StageIndex() int {
	if c.class != entity.TrafficSignal || len(c.stages) == 0 {
		return -1
	}
	return c.stageIdx
}
