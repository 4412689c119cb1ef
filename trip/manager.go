package trip

import (
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/moss-street-sim/drivesim"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/scheduler"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/input"
	"github.com/tsinghua-fib-lab/moss-street-sim/walksim"
)

// Context is what the trip manager needs from its host.
type Context interface {
	Map() *entity.Map
	Now() geom.Time
	Schedule(at geom.Time, cmd scheduler.Command) scheduler.Handle
	Emit(ev entity.Event)

	// id reservation, so spawn commands can be keyed before the agent
	// exists
	NextCarID() entity.CarID
	NextPedID() entity.PedID
}

// CarSpawn and PedSpawn are the payloads the sim hands to drivesim /
// walksim when the matching spawn command fires.
type CarSpawn struct {
	Agent  entity.Agent
	Router *drivesim.Router
}

type PedSpawn struct {
	Agent    entity.Agent
	Route    *walksim.Route
	Origin   entity.BuildingID
	Dest     entity.BuildingID
	FromGate bool
}

// Counts tracks agent conservation: spawned = finished + aborted +
// active at all times.
type Counts struct {
	Spawned  int
	Finished int
	Aborted  int
	Active   int
}

// Manager owns all trips and the agent->trip mapping.
type Manager struct {
	ctx Context

	trips   map[entity.TripID]*Trip
	tripIDs []entity.TripID
	byAgent map[entity.Agent]entity.TripID

	carSpawns map[entity.CarID]*CarSpawn
	pedSpawns map[entity.PedID]*PedSpawn

	nextTrip entity.TripID
	counts   Counts
}

func NewManager(ctx Context) *Manager {
	return &Manager{
		ctx:       ctx,
		trips:     make(map[entity.TripID]*Trip),
		byAgent:   make(map[entity.Agent]entity.TripID),
		carSpawns: make(map[entity.CarID]*CarSpawn),
		pedSpawns: make(map[entity.PedID]*PedSpawn),
	}
}

// Init creates trips from a scenario and schedules their first-leg
// spawns.
func (mg *Manager) Init(scenario *input.ScenarioDoc) {
	for _, doc := range scenario.Trips {
		mode := ModeWalk
		if doc.Mode == "drive" {
			mode = ModeDrive
		}
		mg.AddTrip(geom.Time(doc.StartTime), []Leg{{
			Mode:        mode,
			Origin:      entity.BuildingID(doc.Origin),
			Destination: entity.BuildingID(doc.Destination),
		}}, doc.Seed)
	}
	log.Infof("scheduled %d trips", len(mg.trips))
}

// AddTrip registers a trip and schedules its first leg; exposed
// separately from Init so tests and interactive callers can inject
// trips mid-run.
func (mg *Manager) AddTrip(start geom.Time, legs []Leg, seed uint64) entity.TripID {
	id := mg.nextTrip
	mg.nextTrip++
	t := &Trip{
		ID:        id,
		Legs:      legs,
		State:     Pending,
		StartTime: start,
		Seed:      seed,
	}
	mg.trips[id] = t
	mg.tripIDs = append(mg.tripIDs, id)
	mg.scheduleLeg(t, 0, start)
	return id
}

// Get returns a trip, nil when unknown.
func (mg *Manager) Get(id entity.TripID) *Trip {
	return mg.trips[id]
}

// TripOfAgent resolves the agent->trip mapping.
func (mg *Manager) TripOfAgent(agent entity.Agent) (entity.TripID, bool) {
	id, ok := mg.byAgent[agent]
	return id, ok
}

// GetByIDs resolves many trips at once; unknown ids come back in
// failedIDs instead of failing the whole query. Empty ids means all
// trips, in creation order.
func (mg *Manager) GetByIDs(ids []entity.TripID) (trips []*Trip, failedIDs []entity.TripID) {
	all := make([]*Trip, 0, len(mg.tripIDs))
	for _, id := range mg.tripIDs {
		all = append(all, mg.trips[id])
	}
	return utils.Find(mg.trips, all, ids)
}

// Counts returns the conservation counters.
func (mg *Manager) Counts() Counts {
	return mg.counts
}

// scheduleLeg prepares leg n's spawn payload and pushes the spawn
// command.
func (mg *Manager) scheduleLeg(t *Trip, n int, at geom.Time) {
	leg := t.Legs[n]
	m := mg.ctx.Map()
	origin := m.Building(leg.Origin)
	dest := m.Building(leg.Destination)
	if origin == nil || dest == nil {
		log.Warnf("trip %d leg %d references a missing building, aborting", t.ID, n)
		mg.abort(t)
		return
	}

	switch leg.Mode {
	case ModeDrive:
		path, ok := findPath(m, origin.DriveGate, dest.DriveGate)
		if !ok {
			log.Warnf("trip %d leg %d: no drivable route, aborting", t.ID, n)
			mg.abort(t)
			return
		}
		id := mg.ctx.NextCarID()
		agent := entity.NewCarAgent(id, t.ID)
		endS := gateS(m, dest.DriveGate, dest.Gate)
		mg.carSpawns[id] = &CarSpawn{
			Agent:  agent,
			Router: drivesim.NewRouter(path, endS),
		}
		mg.bindLeg(t, n, agent)
		mg.ctx.Schedule(at, scheduler.Command{Kind: scheduler.SpawnCar, Car: id, Trip: t.ID})

	case ModeWalk:
		path, ok := findPath(m, origin.WalkGate, dest.WalkGate)
		if !ok {
			log.Warnf("trip %d leg %d: no walkable route, aborting", t.ID, n)
			mg.abort(t)
			return
		}
		id := mg.ctx.NextPedID()
		agent := entity.NewPedAgent(id, t.ID)
		endS := gateS(m, dest.WalkGate, dest.Gate)
		steps := lo.Map(path, func(on entity.TraversableID, _ int) walksim.Step {
			return walksim.Step{On: on}
		})
		mg.pedSpawns[id] = &PedSpawn{
			Agent:    agent,
			Route:    walksim.NewRoute(steps, endS),
			Origin:   leg.Origin,
			Dest:     leg.Destination,
			FromGate: true,
		}
		mg.bindLeg(t, n, agent)
		mg.ctx.Schedule(at, scheduler.Command{Kind: scheduler.SpawnPed, Ped: id, Trip: t.ID})
	}
}

// abort terminates a trip that never got an agent for its next leg (no
// route, missing building). The failed attempt still counts as a
// spawned-and-aborted agent so the conservation law holds.
func (mg *Manager) abort(t *Trip) {
	t.State = Aborted
	mg.counts.Spawned++
	mg.counts.Aborted++
	mg.ctx.Emit(entity.Event{Kind: entity.TripAborted, Time: mg.ctx.Now(), Trip: t.ID})
}

func (mg *Manager) bindLeg(t *Trip, n int, agent entity.Agent) {
	t.State = ActiveOnLeg
	t.Leg = n
	t.Agent = agent
	mg.byAgent[agent] = t.ID
	mg.counts.Spawned++
	mg.counts.Active++
}

// CarSpawn hands the spawn payload for a SpawnCar command to the sim's
// dispatcher; nil when the trip was aborted or deleted meanwhile.
func (mg *Manager) CarSpawn(id entity.CarID) *CarSpawn {
	return mg.carSpawns[id]
}

// PedSpawn is the pedestrian counterpart of CarSpawn.
func (mg *Manager) PedSpawn(id entity.PedID) *PedSpawn {
	return mg.pedSpawns[id]
}

// AgentReachedDestination advances the trip past the leg the agent just
// completed: the next leg spawns a fresh agent, or the trip finishes.
func (mg *Manager) AgentReachedDestination(agent entity.Agent) {
	id, ok := mg.byAgent[agent]
	if !ok {
		log.Panicf("agent %v finished a leg but carries no trip", agent)
	}
	t := mg.trips[id]
	mg.releaseAgent(t, agent)
	mg.counts.Active--
	// the agent itself is done even when the trip continues on a fresh
	// one; the conservation law counts agents, not trips
	mg.counts.Finished++
	if t.Leg+1 < len(t.Legs) {
		mg.scheduleLeg(t, t.Leg+1, mg.ctx.Now())
		return
	}
	t.State = Done
	mg.ctx.Emit(entity.Event{Kind: entity.TripFinished, Time: mg.ctx.Now(), Agent: agent, Trip: t.ID})
}

// AbortTripFailedStart marks the trip aborted because its agent could
// not be placed (no room to spawn).
func (mg *Manager) AbortTripFailedStart(agent entity.Agent) {
	id, ok := mg.byAgent[agent]
	if !ok {
		return
	}
	t := mg.trips[id]
	mg.releaseAgent(t, agent)
	mg.counts.Active--
	t.State = Aborted
	mg.counts.Aborted++
	mg.ctx.Emit(entity.Event{Kind: entity.TripAborted, Time: mg.ctx.Now(), Agent: agent, Trip: t.ID})
}

// AbortActive aborts a trip whose agent is being explicitly deleted;
// the caller removes the agent from its simulator.
func (mg *Manager) AbortActive(agent entity.Agent) {
	id, ok := mg.byAgent[agent]
	if !ok {
		return
	}
	t := mg.trips[id]
	mg.releaseAgent(t, agent)
	mg.counts.Active--
	t.State = Aborted
	mg.counts.Aborted++
	mg.ctx.Emit(entity.Event{Kind: entity.TripAborted, Time: mg.ctx.Now(), Agent: agent, Trip: t.ID})
}

func (mg *Manager) releaseAgent(t *Trip, agent entity.Agent) {
	delete(mg.byAgent, agent)
	if agent.Kind == entity.AgentKindCar {
		delete(mg.carSpawns, agent.Car)
	} else {
		delete(mg.pedSpawns, agent.Ped)
	}
}

// Done reports whether every trip has reached a terminal state.
func (mg *Manager) Done() bool {
	for _, id := range mg.tripIDs {
		if s := mg.trips[id].State; s != Done && s != Aborted {
			return false
		}
	}
	return true
}
