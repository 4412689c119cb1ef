package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square() Ring {
	r, err := NewRing([]Pt2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}})
	if err != nil {
		panic(err)
	}
	return r
}

func TestNewRingCloses(t *testing.T) {
	r := square()
	pts := r.Points()
	assert.Equal(t, pts[0], pts[len(pts)-1])
	assert.Len(t, pts, 5)
}

func TestSelfIntersects(t *testing.T) {
	assert.False(t, square().SelfIntersects())

	bowtie, err := NewRing([]Pt2D{{0, 0}, {10, 10}, {10, 0}, {0, 10}})
	require.NoError(t, err)
	assert.True(t, bowtie.SelfIntersects())
}

func TestSortByAngleAroundCentroidUntangles(t *testing.T) {
	// the bowtie's own vertex set, reordered, is a simple quad
	r := SortByAngleAroundCentroid([]Pt2D{{0, 0}, {10, 10}, {10, 0}, {0, 10}})
	assert.False(t, r.SelfIntersects())
}

func TestPolygonContains(t *testing.T) {
	p := square().IntoPolygon()
	assert.True(t, p.Contains(Pt2D{5, 5}))
	assert.False(t, p.Contains(Pt2D{15, 5}))
}

func TestDistToBoundary(t *testing.T) {
	p := square().IntoPolygon()
	assert.InDelta(t, 0, float64(p.DistToBoundary(Pt2D{10, 5})), 1e-9)
	assert.InDelta(t, 2, float64(p.DistToBoundary(Pt2D{8, 5})), 1e-9)
}

func TestSliceBetweenPicksArcs(t *testing.T) {
	r := square()
	short, ok := r.SliceBetween(Pt2D{0, 0}, Pt2D{10, 0}, false)
	require.True(t, ok)
	long, ok := r.SliceBetween(Pt2D{0, 0}, Pt2D{10, 0}, true)
	require.True(t, ok)
	assert.Less(t, len(short), len(long))
}
