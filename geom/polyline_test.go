package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolyLineDedupsAndRejectsDegenerate(t *testing.T) {
	pl, err := NewPolyLine([]Pt2D{{0, 0}, {0, 0.01}, {10, 0}})
	require.NoError(t, err)
	assert.Len(t, pl.Points(), 2)

	_, err = NewPolyLine([]Pt2D{{0, 0}, {0.05, 0}})
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestPolyLineLengthAndDistAlong(t *testing.T) {
	pl := MustNewPolyLine([]Pt2D{{0, 0}, {10, 0}, {10, 10}})
	assert.InDelta(t, 20, float64(pl.Length()), 1e-9)

	pt, angle := pl.DistAlong(5)
	assert.InDelta(t, 5, pt.X, 1e-9)
	assert.InDelta(t, 0, pt.Y, 1e-9)
	assert.InDelta(t, 0, angle.NormalizedDegrees(), 1e-9)

	pt, angle = pl.DistAlong(15)
	assert.InDelta(t, 10, pt.X, 1e-9)
	assert.InDelta(t, 5, pt.Y, 1e-9)
	assert.InDelta(t, 90, angle.NormalizedDegrees(), 1e-9)
}

func TestPolyLineReversed(t *testing.T) {
	pl := MustNewPolyLine([]Pt2D{{0, 0}, {10, 0}, {10, 10}})
	rev := pl.Reversed()
	assert.Equal(t, pl.First(), rev.Last())
	assert.Equal(t, pl.Last(), rev.First())
	assert.InDelta(t, float64(pl.Length()), float64(rev.Length()), 1e-9)
}

func TestExactSlice(t *testing.T) {
	pl := MustNewPolyLine([]Pt2D{{0, 0}, {10, 0}, {10, 10}})
	sl, err := pl.ExactSlice(5, 15)
	require.NoError(t, err)
	assert.InDelta(t, 10, float64(sl.Length()), 1e-9)
	assert.InDelta(t, 5, sl.First().X, 1e-9)
	assert.InDelta(t, 5, sl.Last().Y, 1e-9)

	_, err = pl.ExactSlice(15, 5)
	assert.Error(t, err)
}

func TestShiftKeepsParallelDistance(t *testing.T) {
	pl := MustNewPolyLine([]Pt2D{{0, 0}, {100, 0}})
	left, err := pl.ShiftLeft(5)
	require.NoError(t, err)
	right, err := pl.ShiftRight(5)
	require.NoError(t, err)
	assert.InDelta(t, 5, left.First().Y, 1e-9)
	assert.InDelta(t, -5, right.First().Y, 1e-9)
	assert.InDelta(t, float64(pl.Length()), float64(left.Length()), 1e-6)

	// a right-angle bend keeps the miter joined at offset distance
	bend := MustNewPolyLine([]Pt2D{{0, 0}, {50, 0}, {50, 50}})
	l2, err := bend.ShiftLeft(3)
	require.NoError(t, err)
	mid := l2.Points()[1]
	assert.InDelta(t, 47, mid.X, 1e-6)
	assert.InDelta(t, 3, mid.Y, 1e-6)
}

func TestIntersectionReturnsFirstHit(t *testing.T) {
	pl := MustNewPolyLine([]Pt2D{{0, 0}, {100, 0}})
	crosser := MustNewPolyLine([]Pt2D{{30, -10}, {30, 10}, {60, 10}, {60, -10}})
	pt, dist, ok := pl.Intersection(crosser)
	require.True(t, ok)
	assert.InDelta(t, 30, pt.X, 1e-9)
	assert.InDelta(t, 30, float64(dist), 1e-9)
}

func TestExtendToLength(t *testing.T) {
	pl := MustNewPolyLine([]Pt2D{{0, 0}, {10, 0}})
	ext := pl.ExtendToLength(25)
	assert.InDelta(t, 25, float64(ext.Length()), 1e-9)
	assert.InDelta(t, 25, ext.Last().X, 1e-9)

	same := pl.ExtendToLength(5)
	assert.InDelta(t, 10, float64(same.Length()), 1e-9)
}
