// Package clock tracks simulation wall-time independently of the event
// scheduler so that logging and savestate cadence can be computed without
// consulting the scheduler's internal sequence counter.
package clock

import (
	"fmt"

	"github.com/tsinghua-fib-lab/moss-street-sim/utils/config"
)

// Clock advances simulation time in fixed steps, optionally subdivided into
// sub-loops for finer internal precision while preserving externally
// visible step boundaries.
type Clock struct {
	DT         float64
	SUBLOOP    int32
	START_STEP int32
	END_STEP   int32

	T            float64
	InternalStep int32
}

func New(stepConfig config.ControlStep) *Clock {
	subloop := int32(1)
	dt := stepConfig.Interval / float64(subloop)
	startStep := stepConfig.Start * subloop
	endStep := (stepConfig.Start + stepConfig.Total) * subloop

	c := &Clock{
		DT:         dt,
		SUBLOOP:    subloop,
		START_STEP: startStep,
		END_STEP:   endStep,
	}
	c.Init()
	return c
}

func (c *Clock) Init() {
	c.InternalStep = c.START_STEP
	c.T = float64(c.InternalStep) * c.DT
}

func (c *Clock) ExternalStep() int32 {
	return c.InternalStep / c.SUBLOOP
}

func (c *Clock) ExternalStartStep() int32 {
	return c.START_STEP / c.SUBLOOP
}

func (c *Clock) NoInSubloop() bool {
	return c.InternalStep%c.SUBLOOP == 0
}

func (c *Clock) String() string {
	t := c.T
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
