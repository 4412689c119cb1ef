package sim

import (
	"time"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity/trafficlight"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/scheduler"
	"github.com/tsinghua-fib-lab/moss-street-sim/trip"
)

// Step advances simulation time by dt: every live command due inside
// the window executes in (time, sequence) order, handlers run to
// completion, and time lands exactly on the target. Returns the events
// emitted since the last step, in emission order.
func (s *Sim) Step(dt geom.Duration) []entity.Event {
	if dt < 0 {
		log.Panicf("negative step duration %v at t=%v (last savestate: %q)", dt, s.now, s.lastSavestate)
	}
	// step boundary: apply the car arena's buffered adds/removes so
	// whole-fleet sweeps inside this step see a consistent roster
	s.cars.Prepare()
	target := s.now + geom.Time(dt)
	for {
		cmd, at, ok := s.sched.GetNext(target)
		if !ok {
			break
		}
		s.now = at
		s.dispatch(cmd)
	}
	s.now = target
	return s.GetEventsSinceLastStep()
}

// dispatch routes one command to its component.
func (s *Sim) dispatch(cmd scheduler.Command) {
	switch cmd.Kind {
	case scheduler.SpawnCar:
		if payload := s.trips.CarSpawn(cmd.Car); payload != nil {
			s.cars.Spawn(cmd.Car, payload.Agent, payload.Router)
		}
	case scheduler.SpawnPed:
		if payload := s.trips.PedSpawn(cmd.Ped); payload != nil {
			s.peds.Spawn(cmd.Ped, payload.Agent, payload.Route, payload.Origin, payload.Dest, payload.FromGate)
		}
	case scheduler.UpdateCar:
		s.cars.Update(cmd.Car)
	case scheduler.UpdateLaggyHead:
		s.cars.UpdateLaggyHead(cmd.Car)
	case scheduler.UpdatePed:
		s.peds.Update(cmd.Ped)
	case scheduler.UpdateIntersection:
		s.updateIntersection(cmd.Intersection)
	case scheduler.Savestate:
		s.handleSavestate(cmd)
	}
}

func (s *Sim) updateIntersection(id entity.IntersectionID) {
	s.controllers.Get(id).Update(trafficlight.UpdateInterval, s.cars, s.Waker())
	s.Schedule(s.now+geom.Time(trafficlight.UpdateInterval), scheduler.Command{Kind: scheduler.UpdateIntersection, Intersection: id})
	if s.cars.CheckGridlock(s.now) {
		s.doSavestate()
		if s.cfg.C.GridlockPanic {
			log.Panicf("gridlock at t=%v (savestate: %q)", s.now, s.lastSavestate)
		}
	}
}

// handleSavestate persists at the end of its time bucket and re-arms
// the next one.
func (s *Sim) handleSavestate(cmd scheduler.Command) {
	s.doSavestate()
	freq := geom.Time(cmd.SavestateGen)
	if freq > 0 {
		s.Schedule(s.now+freq, scheduler.Command{Kind: scheduler.Savestate, SavestateGen: cmd.SavestateGen})
	}
}

// TimedStep is Step with a wall-clock duration heartbeat log.
func (s *Sim) TimedStep(dt geom.Duration) []entity.Event {
	start := time.Now()
	events := s.Step(dt)
	log.Infof("STEP t=%v (+%v) took %v, %d cars, %d peds, %d events",
		s.now, dt, time.Since(start), s.cars.Count(), s.peds.Count(), len(events))
	return events
}

// RunUntilDone steps until every trip reaches a terminal state or the
// time limit passes, returning all events.
func (s *Sim) RunUntilDone(limit geom.Time) []entity.Event {
	var all []entity.Event
	for s.now < limit && !s.trips.Done() {
		all = append(all, s.Step(1)...)
	}
	return all
}

// RunUntilExpectationsMet steps until every expected event has been
// observed (matched by kind and trip) or the limit passes; ok reports
// whether all expectations were met.
func (s *Sim) RunUntilExpectationsMet(expected []entity.Event, limit geom.Time) (all []entity.Event, ok bool) {
	remaining := append([]entity.Event{}, expected...)
	match := func(ev entity.Event) {
		for i, want := range remaining {
			if want.Kind == ev.Kind && want.Trip == ev.Trip {
				remaining = append(remaining[:i], remaining[i+1:]...)
				return
			}
		}
	}
	for s.now < limit && len(remaining) > 0 {
		for _, ev := range s.Step(1) {
			all = append(all, ev)
			match(ev)
		}
	}
	return all, len(remaining) == 0
}

// GetEventsSinceLastStep drains the event buffer.
func (s *Sim) GetEventsSinceLastStep() []entity.Event {
	out := s.events
	s.events = nil
	return out
}

// DeleteAgent removes an agent mid-trip: its scheduled updates are
// canceled, its intersection bookkeeping cleared, and its trip aborted.
func (s *Sim) DeleteAgent(agent entity.Agent) {
	if agent.Kind == entity.AgentKindCar {
		s.cars.Delete(agent.Car)
	} else {
		s.peds.Delete(agent.Ped)
	}
	s.trips.AbortActive(agent)
}

// TripCounts exposes the conservation counters.
func (s *Sim) TripCounts() trip.Counts {
	return s.trips.Counts()
}

// BusArrived boards every pedestrian waiting at the stop; the bus fleet
// itself is simulated externally and injects arrivals through this hook.
func (s *Sim) BusArrived(stop entity.TransitStopID) {
	s.peds.BusArrived(stop)
}

// PedWaitForBus parks a pedestrian at a stop until a bus boards it.
func (s *Sim) PedWaitForBus(id entity.PedID, stop entity.TransitStopID) {
	s.peds.WaitForBus(id, stop)
}
