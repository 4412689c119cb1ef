package trafficlight

import (
	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

// Manager owns one Controller per intersection.
type Manager struct {
	data map[entity.IntersectionID]*Controller
	ids  []entity.IntersectionID
}

// NewManager builds controllers for every intersection. programs maps a
// signalized intersection to its stage list; with preferFixed the stages
// run in order, otherwise max pressure selects among them. Intersections
// absent from it have no stages: a signalized one then grants turns like
// an uncontrolled one, the others follow their class policy.
func NewManager(m *entity.Map, programs map[entity.IntersectionID][]Stage, preferFixed bool) *Manager {
	mgr := &Manager{data: make(map[entity.IntersectionID]*Controller)}
	for _, id := range m.IntersectionIDs() {
		stages := programs[id]
		fixed := preferFixed && len(stages) > 0
		mgr.data[id] = newController(m, id, stages, fixed)
		mgr.ids = append(mgr.ids, id)
	}
	return mgr
}

// Get returns the controller for an intersection, panicking if absent: a
// dangling id is an invariant violation.
func (mgr *Manager) Get(id entity.IntersectionID) *Controller {
	c, ok := mgr.data[id]
	if !ok {
		log.Panicf("no controller for intersection %d", id)
	}
	return c
}

// IDs returns the stable intersection id list, for deterministic
// update scheduling.
func (mgr *Manager) IDs() []entity.IntersectionID {
	return append([]entity.IntersectionID{}, mgr.ids...)
}

// CancelAgent clears the agent's bookkeeping everywhere; deletion
// doesn't know which intersection the agent was waiting at.
func (mgr *Manager) CancelAgent(agent entity.Agent, waker Waker) {
	for _, id := range mgr.ids {
		mgr.data[id].CancelRequest(agent, waker)
	}
}

// UpdateInterval is how often intersection tick commands re-fire.
const UpdateInterval geom.Duration = 1.0
