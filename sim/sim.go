// Package sim is the top-level simulation: it owns the event scheduler
// and all live agents, drives the scheduler loop, dispatches commands to
// the driving/walking/intersection/trip components, and collects the
// events each step emits. It is the single aggregate the caller holds;
// there is no module-level mutable state.
package sim

import (
	"github.com/sirupsen/logrus"

	"github.com/tsinghua-fib-lab/moss-street-sim/drivesim"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity/trafficlight"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/scheduler"
	"github.com/tsinghua-fib-lab/moss-street-sim/trip"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/config"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/input"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/randengine"
	"github.com/tsinghua-fib-lab/moss-street-sim/walksim"
)

var log = logrus.WithField("module", "sim")

// SavestateKey identifies one persisted snapshot.
type SavestateKey struct {
	MapName   string
	EditsName string
	RunName   string
	Time      geom.Time
}

// Sim owns the scheduler and every live agent. The Map is immutable for
// the lifetime of the Sim; map edits build a new Map and a new Sim.
type Sim struct {
	m   *entity.Map
	cfg *config.RuntimeConfig

	sched       *scheduler.Scheduler
	controllers *trafficlight.Manager
	cars        *drivesim.Manager
	peds        *walksim.Manager
	trips       *trip.Manager
	gen         *randengine.Engine

	now    geom.Time
	events []entity.Event

	mapName, editsName, runName string
	saver                       SavestateWriter
	lastSavestate               string
}

// Options configures a Sim beyond the map and config.
type Options struct {
	MapName   string
	EditsName string
	RunName   string
	// Programs carries each signalized intersection's fixed stage list.
	Programs map[entity.IntersectionID][]trafficlight.Stage
	// Saver persists savestates; nil uses the file writer under
	// "savestates/".
	Saver SavestateWriter
}

// New builds a Sim over an already-built map and schedules the standing
// commands: intersection ticks and, when configured, periodic
// savestates.
func New(m *entity.Map, cfg *config.RuntimeConfig, opts Options) *Sim {
	s := &Sim{
		m:         m,
		cfg:       cfg,
		sched:     scheduler.New(),
		gen:       randengine.New(cfg.C.RandomSeed),
		mapName:   opts.MapName,
		editsName: opts.EditsName,
		runName:   opts.RunName,
		saver:     opts.Saver,
	}
	if s.saver == nil {
		s.saver = &FileSavestateWriter{Dir: "savestates"}
	}
	s.controllers = trafficlight.NewManager(m, opts.Programs, cfg.C.PreferFixedLight)
	s.cars = drivesim.NewManager(s)
	s.peds = walksim.NewManager(s)
	s.trips = trip.NewManager(s)

	for _, id := range s.controllers.IDs() {
		s.Schedule(s.now+geom.Time(trafficlight.UpdateInterval), scheduler.Command{Kind: scheduler.UpdateIntersection, Intersection: id})
	}
	if freq := cfg.C.SavestateFreq; freq > 0 {
		s.Schedule(s.now+geom.Time(freq), scheduler.Command{Kind: scheduler.Savestate, SavestateGen: int64(freq)})
	}
	return s
}

// LoadScenario schedules every trip of a scenario.
func (s *Sim) LoadScenario(sc *input.ScenarioDoc) {
	s.trips.Init(sc)
}

// Trips exposes the trip manager for direct trip injection (tests,
// interactive tooling).
func (s *Sim) Trips() *trip.Manager {
	return s.trips
}

// --- component context implementation ---

// Map returns the immutable road network.
func (s *Sim) Map() *entity.Map {
	return s.m
}

// Now returns the current simulation time; it only advances inside
// step.
func (s *Sim) Now() geom.Time {
	return s.now
}

// Schedule pushes a command; scheduling into the past is an invariant
// violation and panics with the sim time and the last savestate path
// for the postmortem.
func (s *Sim) Schedule(at geom.Time, cmd scheduler.Command) scheduler.Handle {
	if at < s.now {
		log.Panicf("command %v scheduled at %v, before sim time %v (last savestate: %q)", cmd.Kind, at, s.now, s.lastSavestate)
	}
	return s.sched.Push(at, cmd)
}

// CancelCommand marks a pending command dead.
func (s *Sim) CancelCommand(h scheduler.Handle) {
	s.sched.Cancel(h)
}

func (s *Sim) Controllers() *trafficlight.Manager {
	return s.controllers
}

// Waker fans a wake-up out to the manager owning the agent.
func (s *Sim) Waker() trafficlight.Waker {
	return simWaker{s}
}

type simWaker struct{ s *Sim }

func (w simWaker) WakeAgent(agent entity.Agent) {
	if agent.Kind == entity.AgentKindCar {
		w.s.cars.Wake(agent.Car)
	} else {
		w.s.peds.Wake(agent.Ped)
	}
}

// Emit appends to the step's event buffer, in emission order.
func (s *Sim) Emit(ev entity.Event) {
	s.events = append(s.events, ev)
}

func (s *Sim) RuntimeConfig() *config.RuntimeConfig {
	return s.cfg
}

func (s *Sim) Rand() *randengine.Engine {
	return s.gen
}

func (s *Sim) NextCarID() entity.CarID {
	return s.cars.NextID()
}

func (s *Sim) NextPedID() entity.PedID {
	return s.peds.NextID()
}

func (s *Sim) CarReachedDestination(agent entity.Agent) {
	s.trips.AgentReachedDestination(agent)
}

func (s *Sim) CarFailedStart(agent entity.Agent) {
	s.trips.AbortTripFailedStart(agent)
}

func (s *Sim) PedReachedDestination(agent entity.Agent) {
	s.trips.AgentReachedDestination(agent)
}

var (
	_ drivesim.Context = (*Sim)(nil)
	_ walksim.Context  = (*Sim)(nil)
	_ trip.Context     = (*Sim)(nil)
)
