package sim

import (
	"github.com/tsinghua-fib-lab/moss-street-sim/drivesim"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/trip"
	"github.com/tsinghua-fib-lab/moss-street-sim/walksim"
)

// GetDrawCars snapshots the cars on a traversable, sorted by position.
func (s *Sim) GetDrawCars(on entity.TraversableID) []drivesim.DrawCar {
	return s.cars.GetDrawCars(on)
}

// GetDrawPeds snapshots the pedestrians on a traversable, folded into
// loners and crowds.
func (s *Sim) GetDrawPeds(on entity.TraversableID) ([]walksim.DrawPed, []walksim.DrawPedCrowd) {
	return s.peds.GetDrawPeds(on)
}

// AgentProperties is the per-agent query result.
type AgentProperties struct {
	Agent entity.Agent
	Trip  entity.TripID
	On    entity.TraversableID
	S     geom.Distance
	V     geom.Speed
	State string
}

// AgentProperties looks up a live agent, ok=false when it no longer
// exists.
func (s *Sim) AgentProperties(agent entity.Agent) (AgentProperties, bool) {
	if agent.Kind == entity.AgentKindCar {
		c := s.cars.Get(agent.Car)
		if c == nil {
			return AgentProperties{}, false
		}
		state := "driving"
		return AgentProperties{Agent: agent, Trip: c.Agent.Trip, On: c.On, S: c.S, V: c.Vel, State: state}, true
	}
	p := s.peds.Get(agent.Ped)
	if p == nil {
		return AgentProperties{}, false
	}
	return AgentProperties{
		Agent: agent, Trip: p.Agent.Trip, On: p.On,
		S: p.DistAt(s.now), State: p.State.Kind.String(),
	}, true
}

// TraceRoute returns the not-yet-completed part of an agent's path.
func (s *Sim) TraceRoute(agent entity.Agent) ([]entity.TraversableID, bool) {
	if agent.Kind == entity.AgentKindCar {
		c := s.cars.Get(agent.Car)
		if c == nil {
			return nil, false
		}
		return c.Router.Remaining(), true
	}
	p := s.peds.Get(agent.Ped)
	if p == nil {
		return nil, false
	}
	return p.Route.Remaining(), true
}

// CanonicalPt returns an agent's map position.
func (s *Sim) CanonicalPt(agent entity.Agent) (geom.Pt2D, bool) {
	if agent.Kind == entity.AgentKindCar {
		return s.cars.CanonicalPt(agent.Car)
	}
	return s.peds.CanonicalPt(agent.Ped)
}

// GetTrips resolves many trips at once for analytics; unknown ids come
// back separately instead of failing the query.
func (s *Sim) GetTrips(ids []entity.TripID) ([]*trip.Trip, []entity.TripID) {
	return s.trips.GetByIDs(ids)
}
