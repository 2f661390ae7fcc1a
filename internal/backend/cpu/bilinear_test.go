package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 3x4 plane with value 10*y + x.
var samplerPlane = []float32{
	0, 1, 2, 3,
	10, 11, 12, 13,
	20, 21, 22, 23,
}

func TestBilinearIntegerCoordinate(t *testing.T) {
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, samplerPlane[y*4+x], bilinear(samplerPlane, 3, 4, float32(y), float32(x)))
		}
	}
}

func TestBilinearInterior(t *testing.T) {
	// The plane is linear, so interpolation is exact.
	assert.InDelta(t, 15.5, bilinear(samplerPlane, 3, 4, 1.5, 0.5), 1e-5)
	assert.InDelta(t, 14.75, bilinear(samplerPlane, 3, 4, 1.25, 2.25), 1e-5)
}

func TestBilinearWeightsSumToOne(t *testing.T) {
	for _, pt := range [][2]float32{{0.3, 0.7}, {1.5, 2.25}, {1.99, 0.01}, {0, 0}} {
		_, w := locate(3, 4, pt[0], pt[1]).neighbours()
		assert.InDelta(t, 1, w[0]+w[1]+w[2]+w[3], 1e-6, "point %v", pt)
	}
}

func TestBilinearOutsideWindow(t *testing.T) {
	for _, pt := range [][2]float32{{-1, 0}, {-1.5, 1}, {3, 1}, {1, 4}, {1, -1}, {10, 10}} {
		assert.Zero(t, bilinear(samplerPlane, 3, 4, pt[0], pt[1]), "point %v", pt)
		dy, dx := bilinearCoordGrad(samplerPlane, 3, 4, pt[0], pt[1])
		assert.Zero(t, dy)
		assert.Zero(t, dx)
	}
}

func TestBilinearEdgeReadsZeroOffPlane(t *testing.T) {
	// Half way between row -1 (zero) and row 0.
	assert.InDelta(t, 0.5*samplerPlane[2], bilinear(samplerPlane, 3, 4, -0.5, 2), 1e-6)
	// Half way between the last column and column 4 (zero).
	assert.InDelta(t, 0.5*samplerPlane[4+3], bilinear(samplerPlane, 3, 4, 1, 3.5), 1e-6)
}

func TestBilinearBackwardMatchesWeights(t *testing.T) {
	grad := make([]float32, len(samplerPlane))
	bilinearBackward(3, 4, 0.25, 1.5, 2, func(i int, v float32) { grad[i] += v })

	// Forward is linear in the plane: sample(plane) == dot(grad/2, plane).
	want := bilinear(samplerPlane, 3, 4, 0.25, 1.5)
	assert.InDelta(t, float64(want), dot(grad, samplerPlane)/2, 1e-5)

	var total float32
	for _, v := range grad {
		total += v
	}
	assert.InDelta(t, 2, total, 1e-6)
}

func TestBilinearCoordGrad(t *testing.T) {
	dy, dx := bilinearCoordGrad(samplerPlane, 3, 4, 0.4, 1.3)
	assert.InDelta(t, 10, dy, 1e-5)
	assert.InDelta(t, 1, dx, 1e-5)

	// Finite differences near the bottom edge, where the high row reads zero.
	const eps = 1e-3
	y, x := float32(2.3), float32(1.6)
	dy, dx = bilinearCoordGrad(samplerPlane, 3, 4, y, x)
	numY := (bilinear(samplerPlane, 3, 4, y+eps, x) - bilinear(samplerPlane, 3, 4, y-eps, x)) / (2 * eps)
	numX := (bilinear(samplerPlane, 3, 4, y, x+eps) - bilinear(samplerPlane, 3, 4, y, x-eps)) / (2 * eps)
	assert.InDelta(t, numY, dy, 1e-2)
	assert.InDelta(t, numX, dx, 1e-2)
}
