package drivesim

import (
	"math"

	"github.com/samber/lo"
)

// IDM follow-model parameters.
const (
	idmTheta = 4
	// maxNoiseA bounds the random acceleration perturbation.
	maxNoiseA = 0.5
	// zeroAThreshold: accelerations below this are left unperturbed so
	// noise can't flip a stopped car into motion.
	zeroAThreshold = 0.1
)

// followImpl is the IDM car-following core: desired gap
// s* = minGap + max(0, v*headway + v*(v-vAhead)/(2*sqrt(a*b))), then
// a = maxA * (1 - (v/targetV)^theta - (s*/distance)^2).
func followImpl(selfV, targetV, aheadV, distance, minGap, headway, maxA, usualBrakeA, maxBrakeA float64) float64 {
	var acc float64
	if distance <= 0 {
		// already overlapping: emergency brake
		acc = math.Inf(-1)
	} else {
		sStar := minGap + math.Max(
			0,
			selfV*headway+selfV*(selfV-aheadV)/2/math.Sqrt(-usualBrakeA*maxA),
		)
		acc = maxA * (1 - math.Pow(selfV/targetV, idmTheta) - math.Pow(sStar/distance, 2))
	}
	return lo.Clamp(acc, maxBrakeA, maxA)
}

// computeVAndDistance integrates one step: v(t)=v+a*dt,
// ds=v*dt+a*dt*dt/2, clamping at a full stop instead of reversing.
func computeVAndDistance(v, a, dt float64) (float64, float64) {
	dv := a * dt
	if v+dv < 0 {
		// braking to a stop inside the step
		return 0, v * v / 2 / -a
	}
	return v + dv, (v + dv/2) * dt
}
