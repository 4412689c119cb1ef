// Package drivesim is the driving half of the simulator core: cars live
// in per-lane queues, follow their leader with an IDM-style kinematic
// model, request turns from the intersection controllers, and suspend
// themselves by scheduling their next update command.
package drivesim

import (
	"github.com/sirupsen/logrus"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity/trafficlight"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/scheduler"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/config"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/randengine"
)

var log = logrus.WithField("module", "drivesim")

// Context is what the driving simulator needs from its host, inverted
// so drivesim never imports the top-level sim.
type Context interface {
	Map() *entity.Map
	Now() geom.Time
	Schedule(at geom.Time, cmd scheduler.Command) scheduler.Handle
	CancelCommand(h scheduler.Handle)
	Controllers() *trafficlight.Manager
	// Waker wakes any kind of agent whose pending turn request may have
	// become grantable; the host fans out to the right manager.
	Waker() trafficlight.Waker
	Emit(ev entity.Event)
	RuntimeConfig() *config.RuntimeConfig
	Rand() *randengine.Engine

	// Trip hooks.
	CarReachedDestination(agent entity.Agent)
	CarFailedStart(agent entity.Agent)
}
