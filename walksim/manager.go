package walksim

import (
	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity/trafficlight"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/scheduler"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/config"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/container"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/randengine"
)

// Context is what the walking simulator needs from its host; the same
// dependency inversion as drivesim.Context.
type Context interface {
	Map() *entity.Map
	Now() geom.Time
	Schedule(at geom.Time, cmd scheduler.Command) scheduler.Handle
	CancelCommand(h scheduler.Handle)
	Controllers() *trafficlight.Manager
	Waker() trafficlight.Waker
	Emit(ev entity.Event)
	RuntimeConfig() *config.RuntimeConfig
	Rand() *randengine.Engine

	// Trip hooks.
	PedReachedDestination(agent entity.Agent)
}

// Manager owns all live pedestrians and their per-traversable presence
// lists.
type Manager struct {
	ctx Context

	peds   map[entity.PedID]*Ped
	pedIDs []entity.PedID
	lists  map[entity.TraversableID]*container.List[*Ped, struct{}]

	nextID entity.PedID
}

func NewManager(ctx Context) *Manager {
	return &Manager{
		ctx:   ctx,
		peds:  make(map[entity.PedID]*Ped),
		lists: make(map[entity.TraversableID]*container.List[*Ped, struct{}]),
	}
}

func (mg *Manager) list(on entity.TraversableID) *container.List[*Ped, struct{}] {
	l, ok := mg.lists[on]
	if !ok {
		l = &container.List[*Ped, struct{}]{}
		mg.lists[on] = l
	}
	return l
}

// NextID reserves a PedID for a spawn command.
func (mg *Manager) NextID() entity.PedID {
	id := mg.nextID
	mg.nextID++
	return id
}

// Get returns a live pedestrian, nil if already gone.
func (mg *Manager) Get(id entity.PedID) *Ped {
	return mg.peds[id]
}

// Spawn handles a SpawnPed command: the pedestrian appears in a
// leaving-building animation at its origin gate, then starts walking
// its route. origin may be zero-valued for legs that begin on the
// street (e.g. stepping out of a parked car).
func (mg *Manager) Spawn(id entity.PedID, agent entity.Agent, route *Route, origin entity.BuildingID, dest entity.BuildingID, fromGate bool) {
	now := mg.ctx.Now()
	p := &Ped{
		ID:        id,
		Agent:     agent,
		baseSpeed: defaultWalkSpeed + maxSpeedNoise*(mg.ctx.Rand().Float64()-0.5),
		Route:     route,
	}
	p.destBuilding = dest
	p.hasDest = fromGate
	mg.peds[id] = p
	mg.pedIDs = append(mg.pedIDs, id)

	if fromGate {
		p.State = State{
			Kind:      LeavingBuilding,
			Building:  origin,
			TimeStart: now,
			TimeEnd:   now + geom.Time(gateAnimationTime),
		}
		mg.scheduleAt(p, p.State.TimeEnd)
		return
	}
	mg.beginCrossing(p, now, 0)
}

// beginCrossing starts the Crossing state on the route's current step
// from distance startDist, emitting the traversable-entry event.
func (mg *Manager) beginCrossing(p *Ped, now geom.Time, startDist geom.Distance) {
	step := p.Route.Current()
	length := mg.ctx.Map().TraversableLength(step.On)
	end := length
	if p.Route.AtLast() && p.Route.EndS < length {
		end = p.Route.EndS
	}
	v := p.effectiveSpeed(step.Incline)
	span := float64(end-startDist) / v
	if span < 0 {
		span = 0
	}
	p.State = State{
		Kind:        Crossing,
		DistStart:   startDist,
		DistEnd:     end,
		TimeStart:   now,
		TimeEnd:     now + geom.Time(span),
		SteepUphill: step.Incline >= steepUphillGrade,
	}
	if p.On != step.On || p.node == nil {
		mg.moveTo(p, step.On, startDist)
		mg.ctx.Emit(entity.Event{Kind: entity.AgentEntersTraversable, Time: now, Agent: p.Agent, Trip: p.Agent.Trip, On: step.On})
	}
	mg.scheduleAt(p, p.State.TimeEnd)
}

func (mg *Manager) moveTo(p *Ped, on entity.TraversableID, dist geom.Distance) {
	if p.node != nil && p.node.Parent() != nil {
		p.node.Parent().Remove(p.node)
	}
	p.On = on
	p.node = &pedNode{S: float64(dist), Value: p}
	mg.list(on).PushBack(p.node)
}

func (mg *Manager) scheduleAt(p *Ped, at geom.Time) {
	if p.hasNext {
		mg.ctx.CancelCommand(p.nextHandle)
	}
	p.nextHandle = mg.ctx.Schedule(at, scheduler.Command{Kind: scheduler.UpdatePed, Ped: p.ID})
	p.hasNext = true
}

// Wake re-schedules a waiting pedestrian immediately; the controller's
// waker calls it when a pending turn may have become grantable.
func (mg *Manager) Wake(id entity.PedID) {
	p := mg.peds[id]
	if p == nil {
		return
	}
	mg.scheduleAt(p, mg.ctx.Now())
}

// Update handles one UpdatePed command: the current state has reached
// its end (or a waiting state got woken); transition to the next one.
func (mg *Manager) Update(id entity.PedID) {
	p := mg.peds[id]
	if p == nil {
		return
	}
	now := mg.ctx.Now()
	p.hasNext = false

	switch p.State.Kind {
	case LeavingBuilding, LeavingParkingLot, StartingToBike:
		mg.beginCrossing(p, now, 0)

	case Crossing:
		if now < p.State.TimeEnd {
			// woken early (spurious wake); re-arm the state's end
			mg.scheduleAt(p, p.State.TimeEnd)
			return
		}
		mg.endOfStep(p, now)

	case WaitingToTurn:
		next, _ := p.Route.Peek()
		turn := mg.ctx.Map().Turn(next.On.Turn)
		ctrl := mg.ctx.Controllers().Get(turn.Intersection)
		if ctrl.MaybeStartTurn(p.Agent, next.On.Turn, geom.Speed(p.baseSpeed), now) {
			mg.ctx.Emit(entity.Event{
				Kind: entity.IntersectionDelayMeasured, Time: now, Agent: p.Agent,
				Trip: p.Agent.Trip, Intersection: turn.Intersection, Delay: geom.Duration(now - p.State.Since),
			})
			p.Route.Advance()
			mg.beginCrossing(p, now, 0)
			return
		}
		mg.scheduleAt(p, now+geom.Time(waitPollInterval))

	case EnteringBuilding, EnteringParkingLot, FinishingBiking:
		agent := p.Agent
		mg.remove(p)
		mg.ctx.PedReachedDestination(agent)

	case WaitingForBus:
		// boarded externally via BusArrived; a stray update is a no-op
	}
}

// endOfStep advances past a finished crossing: hand off to the next
// step (requesting the turn when it crosses an intersection), or finish
// the route.
func (mg *Manager) endOfStep(p *Ped, now geom.Time) {
	if p.Route.AtLast() {
		mg.finishRoute(p, now)
		return
	}
	next, _ := p.Route.Peek()
	if next.On.Kind == entity.OnTurn {
		turn := mg.ctx.Map().Turn(next.On.Turn)
		ctrl := mg.ctx.Controllers().Get(turn.Intersection)
		if !ctrl.MaybeStartTurn(p.Agent, next.On.Turn, geom.Speed(p.baseSpeed), now) {
			p.State = State{
				Kind:  WaitingToTurn,
				Dist:  p.State.DistEnd,
				Since: now,
			}
			mg.scheduleAt(p, now+geom.Time(waitPollInterval))
			return
		}
		// granted on the spot: the turn finishes when the crosswalk
		// crossing completes (see turn release in endOfStep's caller
		// path via beginCrossing -> next endOfStep)
	}
	prev := p.Route.Current().On
	p.Route.Advance()
	mg.beginCrossing(p, now, 0)
	if prev.Kind == entity.OnTurn {
		turn := mg.ctx.Map().Turn(prev.Turn)
		mg.ctx.Controllers().Get(turn.Intersection).TurnFinished(p.Agent, prev.Turn, mg.ctx.Waker())
	}
}

func (mg *Manager) finishRoute(p *Ped, now geom.Time) {
	cur := p.Route.Current().On
	if cur.Kind == entity.OnTurn {
		turn := mg.ctx.Map().Turn(cur.Turn)
		mg.ctx.Controllers().Get(turn.Intersection).TurnFinished(p.Agent, cur.Turn, mg.ctx.Waker())
	}
	if p.hasDest {
		p.State = State{
			Kind:      EnteringBuilding,
			Building:  p.destBuilding,
			Dist:      p.State.DistEnd,
			TimeStart: now,
			TimeEnd:   now + geom.Time(gateAnimationTime),
		}
		mg.scheduleAt(p, p.State.TimeEnd)
		return
	}
	agent := p.Agent
	on := p.On
	mg.remove(p)
	mg.ctx.Emit(entity.Event{Kind: entity.PedReachedParkingSpot, Time: now, Agent: agent, Trip: agent.Trip, On: on})
	mg.ctx.PedReachedDestination(agent)
}

// WaitForBus parks the pedestrian at a transit stop until BusArrived
// boards it.
func (mg *Manager) WaitForBus(id entity.PedID, stop entity.TransitStopID) {
	p := mg.peds[id]
	if p == nil {
		return
	}
	p.State = State{
		Kind:  WaitingForBus,
		Stop:  stop,
		Dist:  p.DistAt(mg.ctx.Now()),
		Since: mg.ctx.Now(),
	}
	if p.hasNext {
		mg.ctx.CancelCommand(p.nextHandle)
		p.hasNext = false
	}
}

// BusArrived boards every pedestrian waiting at the stop; their trips
// advance to the next leg.
func (mg *Manager) BusArrived(stop entity.TransitStopID) {
	now := mg.ctx.Now()
	mg.ctx.Emit(entity.Event{Kind: entity.BusArrivedAtStop, Time: now, Stop: stop})
	for _, id := range append([]entity.PedID{}, mg.pedIDs...) {
		p := mg.peds[id]
		if p == nil || p.State.Kind != WaitingForBus || p.State.Stop != stop {
			continue
		}
		agent := p.Agent
		mg.remove(p)
		mg.ctx.PedReachedDestination(agent)
	}
}

// Delete removes a pedestrian mid-trip: scheduled update canceled,
// intersection request/occupancy cleared, presence list entry removed.
func (mg *Manager) Delete(id entity.PedID) {
	p := mg.peds[id]
	if p == nil {
		return
	}
	mg.ctx.Controllers().CancelAgent(p.Agent, mg.ctx.Waker())
	mg.remove(p)
}

func (mg *Manager) remove(p *Ped) {
	if p.node != nil && p.node.Parent() != nil {
		p.node.Parent().Remove(p.node)
	}
	if p.hasNext {
		mg.ctx.CancelCommand(p.nextHandle)
		p.hasNext = false
	}
	delete(mg.peds, p.ID)
	for i, id := range mg.pedIDs {
		if id == p.ID {
			mg.pedIDs = append(mg.pedIDs[:i], mg.pedIDs[i+1:]...)
			break
		}
	}
}

// CanonicalPt returns the pedestrian's position on the map.
func (mg *Manager) CanonicalPt(id entity.PedID) (geom.Pt2D, bool) {
	p := mg.peds[id]
	if p == nil {
		return geom.Pt2D{}, false
	}
	pt, _ := mg.ctx.Map().TraversableCenter(p.On).DistAlong(p.DistAt(mg.ctx.Now()))
	return pt, true
}

// Count returns the number of live pedestrians.
func (mg *Manager) Count() int {
	return len(mg.peds)
}

// All returns the live pedestrians in spawn order, for savestate dumps.
func (mg *Manager) All() []*Ped {
	out := make([]*Ped, 0, len(mg.pedIDs))
	for _, id := range mg.pedIDs {
		out = append(out, mg.peds[id])
	}
	return out
}
