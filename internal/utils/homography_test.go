package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHomographyIdentity(t *testing.T) {
	unit := [4]Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	h, ok := ComputeHomography(unit, unit)
	require.True(t, ok)
	for _, p := range []Point{{0, 0}, {0.5, 0.5}, {1, 1}, {0.25, 0.75}} {
		x, y := ApplyHomography(h, p.X, p.Y)
		assert.InDelta(t, p.X, x, 1e-9)
		assert.InDelta(t, p.Y, y, 1e-9)
	}
}

func TestComputeHomographyMapsCorners(t *testing.T) {
	src := [4]Point{{0, 0}, {100, 0}, {100, 50}, {0, 50}}
	dst := [4]Point{{10, 5}, {95, 12}, {88, 70}, {4, 60}}
	h, ok := ComputeHomography(src, dst)
	require.True(t, ok)
	for i := range 4 {
		x, y := ApplyHomography(h, src[i].X, src[i].Y)
		assert.InDelta(t, dst[i].X, x, 1e-6)
		assert.InDelta(t, dst[i].Y, y, 1e-6)
	}
}

func TestInvertHomographyRoundTrip(t *testing.T) {
	src := [4]Point{{0, 0}, {200, 0}, {200, 100}, {0, 100}}
	dst := [4]Point{{13, 7}, {180, 20}, {190, 130}, {5, 110}}
	h, ok := ComputeHomography(src, dst)
	require.True(t, ok)
	inv, ok := InvertHomography(h)
	require.True(t, ok)

	for _, p := range []Point{{0, 0}, {100, 50}, {200, 100}, {37, 91}} {
		fx, fy := ApplyHomography(h, p.X, p.Y)
		bx, by := ApplyHomography(inv, fx, fy)
		assert.InDelta(t, p.X, bx, 1e-6)
		assert.InDelta(t, p.Y, by, 1e-6)
	}
}

func TestComputeHomographyDegenerate(t *testing.T) {
	// All four source points collinear.
	src := [4]Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	dst := [4]Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	_, ok := ComputeHomography(src, dst)
	assert.False(t, ok)
}
