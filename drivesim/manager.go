package drivesim

import (
	"errors"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity/trafficlight"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/scheduler"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/container"
)

const (
	// updateInterval is the default re-schedule period for a moving car.
	updateInterval geom.Duration = 0.5
	// waitPollInterval paces blind re-polls while a turn request is
	// pending; the controller's waker usually fires sooner.
	waitPollInterval geom.Duration = 1.0
	// turnRequestDistance is how close to the lane end a car starts
	// asking for its turn.
	turnRequestDistance = 30.0
	// endBuffer keeps the nose just short of the traversable end while
	// waiting for a turn.
	endBuffer = 0.25
	// maxSpawnAttempts bounds blind spawn retries before the trip is
	// aborted.
	maxSpawnAttempts = 3

	defaultUsualBrakeA = -4.5
	defaultMaxBrakeA   = -9.8
	defaultMinGap      = 1.0
	defaultHeadway     = 1.5

	// aggressiveShare of drivers run the shorter headway.
	aggressiveShare   = 0.2
	aggressiveHeadway = 1.0
)

// Vehicle classes sampled at spawn: sedan, compact, truck.
var (
	vehicleClassWeights = []float64{0.62, 0.25, 0.13}
	vehicleClassLength  = []float64{4.8, 4.2, 8.5}
	vehicleClassMaxA    = []float64{3.0, 3.5, 2.2}
)

var (
	// ErrSpawnNoRoom reports a vehicle that couldn't be placed; retried
	// after the blind-retry interval, then the trip aborts.
	ErrSpawnNoRoom = errors.New("drivesim: no room to spawn")
	// ErrGridlockDetected is non-fatal: savestate and continue (or
	// panic, at the operator's option).
	ErrGridlockDetected = errors.New("drivesim: gridlock detected")
)

// Manager owns all live cars and their per-traversable queues. cars is
// the authoritative lookup; all is the buffered arena used for
// whole-fleet sweeps, with adds and removes applied at step boundaries
// via Prepare so a sweep never sees a half-applied mutation.
type Manager struct {
	ctx Context

	cars   map[entity.CarID]*Car
	all    *container.IncrementalArray[*Car]
	queues map[entity.TraversableID]*container.List[*Car, struct{}]

	nextID entity.CarID

	spawnAttempts map[entity.CarID]int

	gridlocked bool
}

func NewManager(ctx Context) *Manager {
	return &Manager{
		ctx:           ctx,
		cars:          make(map[entity.CarID]*Car),
		all:           container.NewIncrementalArray[*Car](),
		queues:        make(map[entity.TraversableID]*container.List[*Car, struct{}]),
		spawnAttempts: make(map[entity.CarID]int),
	}
}

// Prepare applies the buffered arena adds/removes; the sim calls it at
// the start of every step.
func (mg *Manager) Prepare() {
	mg.all.Prepare()
}

func (mg *Manager) queue(on entity.TraversableID) *container.List[*Car, struct{}] {
	q, ok := mg.queues[on]
	if !ok {
		q = &container.List[*Car, struct{}]{}
		mg.queues[on] = q
	}
	return q
}

// NextID reserves a CarID for a spawn command; the trip manager needs
// the id before the car exists to key the command.
func (mg *Manager) NextID() entity.CarID {
	id := mg.nextID
	mg.nextID++
	return id
}

// Get returns a live car, nil if already gone (commands may outlive the
// agent they reference).
func (mg *Manager) Get(id entity.CarID) *Car {
	return mg.cars[id]
}

// Spawn handles a SpawnCar command: places the car at the start of its
// route's first lane if there's room, otherwise retries after the blind
// retry interval, aborting the trip once the attempts run out.
func (mg *Manager) Spawn(id entity.CarID, agent entity.Agent, router *Router) {
	now := mg.ctx.Now()
	first := router.Current()
	if first.Kind != entity.OnLane {
		log.Panicf("car %d route starts on a turn", id)
	}
	gen := mg.ctx.Rand()
	class := gen.DiscreteDistribution(vehicleClassWeights)
	length := vehicleClassLength[class] + gen.Float64() - 0.5
	headway := defaultHeadway
	if gen.PTrue(aggressiveShare) {
		headway = aggressiveHeadway
	}
	noseS := geom.Distance(length)
	if !mg.roomAt(first, noseS, length) {
		attempts := mg.spawnAttempts[id] + 1
		mg.spawnAttempts[id] = attempts
		if attempts >= maxSpawnAttempts {
			delete(mg.spawnAttempts, id)
			log.Warnf("car %d: %v after %d attempts at t=%v, aborting trip", id, ErrSpawnNoRoom, attempts, now)
			mg.ctx.CarFailedStart(agent)
			return
		}
		retry := geom.Duration(mg.ctx.RuntimeConfig().BlindRetry)
		mg.ctx.Schedule(now+geom.Time(retry), scheduler.Command{Kind: scheduler.SpawnCar, Car: id})
		return
	}
	delete(mg.spawnAttempts, id)

	lane := mg.ctx.Map().Lane(first.Lane)
	c := &Car{
		ID:          id,
		Agent:       agent,
		length:      length,
		maxV:        float64(lane.MaxSpeed),
		maxA:        vehicleClassMaxA[class],
		usualBrakeA: defaultUsualBrakeA,
		maxBrakeA:   defaultMaxBrakeA,
		minGap:      defaultMinGap,
		headway:     headway,
		Router:      router,
		On:          first,
		S:           noseS,
		lastUpdate:  now,
		lastAdvance: now,
	}
	c.node = newCarNode(c.S, c)
	mg.insertSorted(mg.queue(first), c.node)
	mg.cars[id] = c
	mg.all.Add(c)
	mg.ctx.Emit(entity.Event{Kind: entity.AgentEntersTraversable, Time: now, Agent: agent, Trip: agent.Trip, On: first})
	mg.scheduleNext(c, now+geom.Time(updateInterval))
}

// roomAt reports whether a car of the given length fits with its nose at
// noseS without overlapping the tail of the rearmost occupant.
func (mg *Manager) roomAt(on entity.TraversableID, noseS geom.Distance, length float64) bool {
	for node := mg.queue(on).First(); node != nil; node = node.Next() {
		if node.S-node.L() < float64(noseS)+defaultMinGap {
			return false
		}
		break // only the rearmost node can block the entry region
	}
	return true
}

func (mg *Manager) insertSorted(q *container.List[*Car, struct{}], node *carNode) {
	for cur := q.First(); cur != nil; cur = cur.Next() {
		if cur.S >= node.S {
			cur.InsertBefore(node)
			return
		}
	}
	q.PushBack(node)
}

func (mg *Manager) scheduleNext(c *Car, at geom.Time) {
	if c.hasNext {
		mg.ctx.CancelCommand(c.nextHandle)
	}
	c.nextHandle = mg.ctx.Schedule(at, scheduler.Command{Kind: scheduler.UpdateCar, Car: c.ID})
	c.hasNext = true
}

// Wake re-schedules a waiting car for an immediate update; called by the
// intersection controller's waker when its turn may have become
// grantable.
func (mg *Manager) Wake(id entity.CarID) {
	c := mg.cars[id]
	if c == nil {
		return
	}
	mg.scheduleNext(c, mg.ctx.Now())
}

// Update handles one UpdateCar command: integrate the kinematic model
// over the elapsed time, cross traversable boundaries, and schedule the
// next suspension point.
func (mg *Manager) Update(id entity.CarID) {
	c := mg.cars[id]
	if c == nil {
		return // deleted after this command was scheduled
	}
	now := mg.ctx.Now()
	c.hasNext = false
	dt := float64(now - c.lastUpdate)
	c.lastUpdate = now
	if dt < 0 {
		log.Panicf("car %d updated backwards in time at t=%v", id, now)
	}

	curLen := mg.ctx.Map().TraversableLength(c.On)

	// acceleration: leader following plus the stop-at-end constraint
	a := mg.followLeader(c, curLen)
	if stopA, ok := mg.stopConstraint(c, curLen, now); ok {
		a = math.Min(a, stopA)
	}
	// bounded random perturbation, sign-preserving
	noise := maxNoiseA * lo.Clamp(0.5*mg.ctx.Rand().NormFloat64(), -1, 1)
	if math.Abs(a) >= zeroAThreshold && math.Signbit(a) == math.Signbit(a+noise) {
		a += noise
	}

	v, ds := computeVAndDistance(float64(c.Vel), a, dt)
	c.Vel = geom.Speed(v)
	if ds > 1e-9 {
		c.lastAdvance = now
		c.waiting = false
	}
	s := c.S + geom.Distance(ds)

	// cross traversable boundaries
	for s >= curLen {
		if c.Router.AtLast() {
			break
		}
		next, _ := c.Router.Peek()
		if next.Kind == entity.OnTurn && !c.turnAccepted {
			// hold at the line; the stop constraint should have kept us
			// short, but integration can overshoot slightly
			s = curLen - endBuffer
			c.Vel = 0
			break
		}
		s -= curLen
		mg.enterNext(c, now)
		curLen = mg.ctx.Map().TraversableLength(c.On)
	}
	c.S = s
	mg.repositionNode(c)

	// destination check on the final lane
	if c.Router.AtLast() && c.S >= c.Router.EndS {
		agent := c.Agent
		mg.remove(c)
		mg.ctx.Emit(entity.Event{Kind: entity.CarReachedParkingSpot, Time: now, Agent: agent, Trip: agent.Trip, On: c.On})
		mg.ctx.CarReachedDestination(agent)
		return
	}

	if c.waiting {
		mg.scheduleNext(c, now+geom.Time(waitPollInterval))
	} else {
		mg.scheduleNext(c, now+geom.Time(updateInterval))
	}
}

// followLeader computes the IDM acceleration against the car ahead in
// the same queue, or free-road acceleration when there is none.
func (mg *Manager) followLeader(c *Car, curLen geom.Distance) float64 {
	targetV := math.Min(c.maxV, mg.limitOf(c.On))
	ahead := c.node.Next()
	if ahead == nil {
		// peek into the next traversable's queue so a car doesn't slam
		// into a tailback just across the boundary
		if next, ok := c.Router.Peek(); ok && (next.Kind == entity.OnLane || c.turnAccepted) {
			if first := mg.queue(next).First(); first != nil {
				dist := float64(curLen-c.S) + first.S - first.L()
				return followImpl(float64(c.Vel), targetV, first.V(), dist, c.minGap, c.headway, c.maxA, c.usualBrakeA, c.maxBrakeA)
			}
		}
		return followImpl(float64(c.Vel), targetV, 0, math.Inf(1), c.minGap, c.headway, c.maxA, c.usualBrakeA, c.maxBrakeA)
	}
	dist := ahead.S - ahead.L() - float64(c.S)
	return followImpl(float64(c.Vel), targetV, ahead.V(), dist, c.minGap, c.headway, c.maxA, c.usualBrakeA, c.maxBrakeA)
}

func (mg *Manager) limitOf(on entity.TraversableID) float64 {
	m := mg.ctx.Map()
	if on.Kind == entity.OnLane {
		return float64(m.Lane(on.Lane).MaxSpeed)
	}
	// turns inherit the incoming lane's limit
	return float64(m.Lane(m.Turn(on.Turn).From).MaxSpeed)
}

// stopConstraint asks the intersection controller for the next turn when
// close to the lane end, and returns the braking acceleration needed to
// hold at the line while the request is pending.
func (mg *Manager) stopConstraint(c *Car, curLen geom.Distance, now geom.Time) (float64, bool) {
	next, ok := c.Router.Peek()
	if !ok || next.Kind != entity.OnTurn || c.turnAccepted {
		return 0, false
	}
	distToEnd := float64(curLen - c.S)
	if distToEnd > turnRequestDistance {
		return 0, false
	}
	turn := mg.ctx.Map().Turn(next.Turn)
	ctrl := mg.ctx.Controllers().Get(turn.Intersection)
	if !c.waiting {
		c.waitingSince = now
	}
	if ctrl.MaybeStartTurn(c.Agent, next.Turn, c.Vel, now) {
		c.turnAccepted = true
		if c.waiting {
			mg.ctx.Emit(entity.Event{
				Kind: entity.IntersectionDelayMeasured, Time: now, Agent: c.Agent,
				Trip: c.Agent.Trip, Intersection: turn.Intersection, Delay: geom.Duration(now - c.waitingSince),
			})
		}
		c.waiting = false
		return 0, false
	}
	c.waiting = true
	// stop with the nose at the line
	stopDist := distToEnd - endBuffer
	stopA := followImpl(float64(c.Vel), mg.limitOf(c.On), 0, stopDist, c.minGap, 0.1, c.maxA, c.usualBrakeA, c.maxBrakeA)
	return stopA, true
}

// enterNext moves the car's nose onto the next traversable, leaving a
// laggy-head occupancy on the one it is exiting until the tail clears.
func (mg *Manager) enterNext(c *Car, now geom.Time) {
	prev := c.On
	prevLen := mg.ctx.Map().TraversableLength(prev)

	// the previous transition's tail, if still around, snaps forward
	mg.clearLaggy(c)

	c.node.Parent().Remove(c.node)
	next := c.Router.Advance()
	if next.Kind == entity.OnTurn {
		c.turnAccepted = false // consumed the acceptance
	}
	c.On = next
	c.S = 0

	// tail still occupies the previous traversable
	c.laggyNode = newCarNode(prevLen, c)
	c.laggyOn = prev
	mg.queue(prev).PushBack(c.laggyNode)
	clearIn := geom.Duration(c.length / math.Max(float64(c.Vel), 0.5))
	c.laggyHandle = mg.ctx.Schedule(now+geom.Time(clearIn), scheduler.Command{Kind: scheduler.UpdateLaggyHead, Car: c.ID})

	c.node = newCarNode(c.S, c)
	mg.insertSorted(mg.queue(next), c.node)
	mg.ctx.Emit(entity.Event{Kind: entity.AgentEntersTraversable, Time: now, Agent: c.Agent, Trip: c.Agent.Trip, On: next})
}

// UpdateLaggyHead clears the tail occupancy once the body has fully
// entered the new traversable, re-scheduling if it hasn't yet.
func (mg *Manager) UpdateLaggyHead(id entity.CarID) {
	c := mg.cars[id]
	if c == nil || c.laggyNode == nil {
		return
	}
	now := mg.ctx.Now()
	if float64(c.S) < c.length {
		clearIn := geom.Duration((c.length - float64(c.S)) / math.Max(float64(c.Vel), 0.5))
		c.laggyHandle = mg.ctx.Schedule(now+geom.Time(clearIn), scheduler.Command{Kind: scheduler.UpdateLaggyHead, Car: c.ID})
		return
	}
	mg.clearLaggy(c)
}

// clearLaggy removes the tail occupancy and, when it was sitting on a
// turn, tells the controller the turn is finished.
func (mg *Manager) clearLaggy(c *Car) {
	if c.laggyNode == nil {
		return
	}
	if c.laggyNode.Parent() != nil {
		c.laggyNode.Parent().Remove(c.laggyNode)
	}
	if c.laggyOn.Kind == entity.OnTurn {
		turn := mg.ctx.Map().Turn(c.laggyOn.Turn)
		mg.ctx.Controllers().Get(turn.Intersection).TurnFinished(c.Agent, c.laggyOn.Turn, mg.ctx.Waker())
	}
	mg.ctx.CancelCommand(c.laggyHandle)
	c.laggyNode = nil
}

func (mg *Manager) repositionNode(c *Car) {
	q := c.node.Parent()
	node := c.node
	if float64(c.S) == node.S {
		return
	}
	// queues are short; remove and re-insert keeps them sorted
	q.Remove(node)
	node.S = float64(c.S)
	mg.insertSorted(q, node)
}

// Delete removes a car mid-trip (explicit deletion): queue nodes, laggy
// occupancy, scheduled updates and controller bookkeeping all go.
func (mg *Manager) Delete(id entity.CarID) {
	c := mg.cars[id]
	if c == nil {
		return
	}
	mg.ctx.Controllers().CancelAgent(c.Agent, mg.ctx.Waker())
	mg.remove(c)
}

func (mg *Manager) remove(c *Car) {
	if c.laggyNode != nil {
		// remove() must not double-finish the turn: unlike clearLaggy,
		// it finishes the turn only when it is still accepted, since
		// CancelAgent (deletion path) has already cleared it
		if c.laggyNode.Parent() != nil {
			c.laggyNode.Parent().Remove(c.laggyNode)
		}
		if c.laggyOn.Kind == entity.OnTurn {
			turn := mg.ctx.Map().Turn(c.laggyOn.Turn)
			ctrl := mg.ctx.Controllers().Get(turn.Intersection)
			if _, ok := ctrl.AcceptedTurns()[c.Agent]; ok {
				ctrl.TurnFinished(c.Agent, c.laggyOn.Turn, mg.ctx.Waker())
			}
		}
		mg.ctx.CancelCommand(c.laggyHandle)
		c.laggyNode = nil
	}
	if c.On.Kind == entity.OnTurn {
		ctrl := mg.ctx.Controllers().Get(mg.ctx.Map().Turn(c.On.Turn).Intersection)
		if _, ok := ctrl.AcceptedTurns()[c.Agent]; ok {
			ctrl.TurnFinished(c.Agent, c.On.Turn, mg.ctx.Waker())
		}
	}
	if c.node != nil && c.node.Parent() != nil {
		c.node.Parent().Remove(c.node)
	}
	if c.hasNext {
		mg.ctx.CancelCommand(c.nextHandle)
		c.hasNext = false
	}
	delete(mg.cars, c.ID)
	mg.all.Remove(c)
}

// MovementPressure implements trafficlight.PressureSource: demand is the
// number of cars queued on lanes feeding the movement.
func (mg *Manager) MovementPressure(i entity.IntersectionID, mv entity.Movement) float64 {
	m := mg.ctx.Map()
	pressure := 0.0
	for _, lid := range m.Road(mv.From).LaneIDs {
		l := m.Lane(lid)
		if l.EndIntersection != i {
			continue
		}
		pressure += float64(mg.queue(entity.LaneTraversable(lid)).Len())
	}
	return pressure
}

// CheckGridlock reports (and emits, once per episode) gridlock: cars
// exist, every one of them is waiting on a turn, and none has advanced
// for the configured number of ticks. The sweep runs over the arena as
// of the last Prepare: cars spawned or removed mid-step are skipped
// until the next step boundary.
func (mg *Manager) CheckGridlock(now geom.Time) bool {
	horizon := geom.Duration(float64(mg.ctx.RuntimeConfig().GridlockTicks) * float64(updateInterval))
	live := 0
	var newest geom.Time
	for _, c := range mg.all.Data() {
		if mg.cars[c.ID] != c {
			continue // removed since the last Prepare
		}
		live++
		if !c.waiting {
			mg.gridlocked = false
			return false
		}
		if c.lastAdvance > newest {
			newest = c.lastAdvance
		}
	}
	if live == 0 {
		mg.gridlocked = false
		return false
	}
	if now-newest < geom.Time(horizon) {
		return false
	}
	if !mg.gridlocked {
		mg.gridlocked = true
		log.Warnf("%v at t=%v: %d cars waiting, none advanced for %v", ErrGridlockDetected, now, len(mg.cars), horizon)
		mg.ctx.Emit(entity.Event{Kind: entity.Gridlock, Time: now})
		return true
	}
	return false
}

// DrawCar is a render/query snapshot of one car.
type DrawCar struct {
	ID    entity.CarID
	Trip  entity.TripID
	On    entity.TraversableID
	S     geom.Distance
	V     geom.Speed
	Pt    geom.Pt2D
	Angle geom.Angle
}

// GetDrawCars snapshots the cars on a traversable, sorted by position.
func (mg *Manager) GetDrawCars(on entity.TraversableID) []DrawCar {
	var out []DrawCar
	for node := mg.queue(on).First(); node != nil; node = node.Next() {
		c := node.Value
		if c.On != on {
			continue // skip laggy tails
		}
		pt, angle := mg.ctx.Map().TraversableCenter(on).DistAlong(c.S)
		out = append(out, DrawCar{ID: c.ID, Trip: c.Agent.Trip, On: on, S: c.S, V: c.Vel, Pt: pt, Angle: angle})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].S < out[j].S })
	return out
}

// CanonicalPt returns the car's position on the map.
func (mg *Manager) CanonicalPt(id entity.CarID) (geom.Pt2D, bool) {
	c := mg.cars[id]
	if c == nil {
		return geom.Pt2D{}, false
	}
	pt, _ := mg.ctx.Map().TraversableCenter(c.On).DistAlong(c.S)
	return pt, true
}

// Count returns the number of live cars.
func (mg *Manager) Count() int {
	return len(mg.cars)
}

var _ trafficlight.PressureSource = (*Manager)(nil)
