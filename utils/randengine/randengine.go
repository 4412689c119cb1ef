// Package randengine wraps golang.org/x/exp/rand with the distribution
// helpers the simulator needs: vehicle-class sampling, probability
// gates, and the kinematic noise draws all come from an Engine seeded
// from the scenario's RandomSeed so runs are reproducible.
package randengine

import (
	"flag"
	"log"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset")
)

// Engine is a seeded random source with a few simulation-shaped helpers
// layered on top. The simulation core is single-threaded, so Engine
// carries no locking; callers that need concurrency must wrap it.
type Engine struct {
	*rand.Rand
}

// New builds an Engine from seed, offset by the global -rand.seed_offset
// flag so a batch of runs can be perturbed without touching scenario files.
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// DiscreteDistribution draws an index in [0, len(weight)) with
// probability proportional to weight[i].
func (e *Engine) DiscreteDistribution(weight []float64) int32 {
	random := .0
	for _, w := range weight {
		random += w
	}
	random *= e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return int32(i)
		}
	}
	log.Panicf("randengine: DiscreteDistribution: sum: %f random: %f", sum, random)
	return -1
}

// PTrue reports true with probability p.
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}
