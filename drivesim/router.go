package drivesim

import (
	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

// Router is a car's precomputed path: an alternating sequence of lanes
// and turns, plus the stop position on the final lane. The trip manager
// computes it; the car only advances through it.
type Router struct {
	Path []entity.TraversableID
	EndS geom.Distance // park position along the last lane
	idx  int
}

func NewRouter(path []entity.TraversableID, endS geom.Distance) *Router {
	return &Router{Path: path, EndS: endS}
}

// Current returns the traversable the car is on.
func (r *Router) Current() entity.TraversableID {
	return r.Path[r.idx]
}

// Peek returns the next traversable without advancing, ok=false at the
// end of the path.
func (r *Router) Peek() (entity.TraversableID, bool) {
	if r.idx+1 >= len(r.Path) {
		return entity.TraversableID{}, false
	}
	return r.Path[r.idx+1], true
}

// Advance moves onto the next traversable.
func (r *Router) Advance() entity.TraversableID {
	if r.idx+1 >= len(r.Path) {
		log.Panicf("router advanced past the end of its path")
	}
	r.idx++
	return r.Path[r.idx]
}

// AtLast reports whether the car is on its final traversable.
func (r *Router) AtLast() bool {
	return r.idx == len(r.Path)-1
}

// Remaining returns the path from the current traversable (included)
// to the end, for trace-route queries.
func (r *Router) Remaining() []entity.TraversableID {
	return append([]entity.TraversableID{}, r.Path[r.idx:]...)
}
