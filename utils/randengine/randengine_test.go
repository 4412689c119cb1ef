package randengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/moss-street-sim/utils/randengine"
)

func TestSameSeedSameSequence(t *testing.T) {
	a := randengine.New(7)
	b := randengine.New(7)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
}

func TestDiscreteDistributionStaysInRangeAndSkipsZeroWeights(t *testing.T) {
	e := randengine.New(1)
	weight := []float64{0.5, 0, 0.5}
	counts := make([]int, len(weight))
	for i := 0; i < 1000; i++ {
		idx := e.DiscreteDistribution(weight)
		require.GreaterOrEqual(t, idx, int32(0))
		require.Less(t, idx, int32(len(weight)))
		counts[idx]++
	}
	assert.Zero(t, counts[1], "zero-weight bucket was drawn")
	assert.Greater(t, counts[0], 0)
	assert.Greater(t, counts[2], 0)
}

func TestDiscreteDistributionSingleBucket(t *testing.T) {
	e := randengine.New(1)
	for i := 0; i < 10; i++ {
		assert.Equal(t, int32(0), e.DiscreteDistribution([]float64{3}))
	}
}

func TestPTrueExtremes(t *testing.T) {
	e := randengine.New(1)
	for i := 0; i < 100; i++ {
		assert.False(t, e.PTrue(0))
		assert.True(t, e.PTrue(1))
	}
}
