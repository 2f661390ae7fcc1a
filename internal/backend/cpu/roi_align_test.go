package cpu

import (
	"testing"

	"github.com/born-ml/vision/internal/envconfig"
	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearImage returns a [1, channels, h, w] image where channel c holds
// 100*c + w*y + x, a field bilinear sampling reproduces exactly.
func linearImage(t *testing.T, channels, h, w int) *tensor.RawTensor {
	t.Helper()
	data := make([]float32, channels*h*w)
	for c := 0; c < channels; c++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[(c*h+y)*w+x] = float32(100*c + w*y + x)
			}
		}
	}
	return fromData(t, tensor.Shape{1, channels, h, w}, data)
}

func TestROIAlign_SingleBinIsBoxCenter(t *testing.T) {
	backend := newTestBackend()
	input := linearImage(t, 2, 5, 5)
	rois := fromData(t, tensor.Shape{2, 5}, []float32{
		0, 1, 1, 3, 3,
		0, 0.5, 1, 3.5, 2,
	})

	for _, ratio := range []int{1, 2, 0} {
		cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 1, PooledW: 1, SamplingRatio: ratio}
		out, err := backend.ROIAlign(input, rois, cfg)
		require.NoError(t, err)
		require.Equal(t, tensor.Shape{2, 2, 1, 1}, out.Shape())

		// Centers (2, 2) and (2, 1.5).
		got := out.AsFloat32()
		assert.InDelta(t, 12, got[0], 1e-4, "ratio %d", ratio)
		assert.InDelta(t, 112, got[1], 1e-4, "ratio %d", ratio)
		assert.InDelta(t, 9.5, got[2], 1e-4, "ratio %d", ratio)
		assert.InDelta(t, 109.5, got[3], 1e-4, "ratio %d", ratio)
	}
}

func TestROIAlign_Bins(t *testing.T) {
	backend := newTestBackend()
	input := linearImage(t, 1, 5, 5)
	rois := fromData(t, tensor.Shape{1, 5}, []float32{0, 0, 0, 4, 4})
	cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 2, PooledW: 2, SamplingRatio: 2}

	out, err := backend.ROIAlign(input, rois, cfg)
	require.NoError(t, err)

	// Bin centers at (1, 1), (1, 3), (3, 1), (3, 3).
	assert.InDeltaSlice(t, []float32{6, 8, 16, 18}, out.AsFloat32(), 1e-4)
}

func TestROIAlign_SpatialScale(t *testing.T) {
	backend := newTestBackend()
	input := linearImage(t, 1, 5, 5)
	rois := fromData(t, tensor.Shape{1, 5}, []float32{0, 2, 2, 6, 6})
	cfg := vision.PoolConfig{ScaleH: 0.5, ScaleW: 0.5, PooledH: 1, PooledW: 1, SamplingRatio: 2}

	out, err := backend.ROIAlign(input, rois, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 12, out.AsFloat32()[0], 1e-4)
}

func TestROIAlign_BatchIndex(t *testing.T) {
	backend := newTestBackend()
	data := make([]float32, 2*4*4)
	for i := 16; i < 32; i++ {
		data[i] = 1
	}
	input := fromData(t, tensor.Shape{2, 1, 4, 4}, data)
	rois := fromData(t, tensor.Shape{2, 5}, []float32{
		0, 1, 1, 2, 2,
		1, 1, 1, 2, 2,
	})
	cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 1, PooledW: 1, SamplingRatio: 2}

	out, err := backend.ROIAlign(input, rois, cfg)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 1}, out.AsFloat32(), 1e-6)
}

func TestROIAlign_OutOfBoundsBox(t *testing.T) {
	backend := newTestBackend()
	input := linearImage(t, 1, 4, 4)
	rois := fromData(t, tensor.Shape{1, 5}, []float32{0, 10, 10, 20, 20})
	cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 2, PooledW: 2, SamplingRatio: 0}

	out, err := backend.ROIAlign(input, rois, cfg)
	require.NoError(t, err)
	for _, v := range out.AsFloat32() {
		assert.Zero(t, v)
	}
}

// TestROIAlign_BackwardAdjoint checks <grad, forward(x)> == <backward(grad), x>,
// which holds because pooling is linear in its input.
func TestROIAlign_BackwardAdjoint(t *testing.T) {
	backend := newTestBackend()
	rng := newRNG()
	input := randomTensor(t, rng, tensor.Shape{2, 3, 7, 6})
	rois := fromData(t, tensor.Shape{3, 5}, []float32{
		0, 0.3, 1.2, 4.7, 5.1,
		1, -1.5, -0.5, 3.2, 2.8,
		1, 2.2, 2.9, 2.4, 3.0, // collapses to a one-pixel box
	})

	for _, ratio := range []int{2, 0} {
		cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 3, PooledW: 2, SamplingRatio: ratio}
		out, err := backend.ROIAlign(input, rois, cfg)
		require.NoError(t, err)

		grad := randomTensor(t, rng, out.Shape())
		gradInput, err := backend.ROIAlignBackward(grad, rois, cfg, 2, 3, 7, 6)
		require.NoError(t, err)
		require.Equal(t, input.Shape(), gradInput.Shape())

		lhs := dot(grad.AsFloat32(), out.AsFloat32())
		rhs := dot(gradInput.AsFloat32(), input.AsFloat32())
		assert.True(t, relClose(lhs, rhs, 1e-4), "ratio %d: %v vs %v", ratio, lhs, rhs)
	}
}

func TestROIAlign_BackwardAccumulatesOverlappingBins(t *testing.T) {
	backend := newTestBackend()
	rois := fromData(t, tensor.Shape{2, 5}, []float32{
		0, 1, 1, 2, 2,
		0, 1, 1, 2, 2,
	})
	cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 1, PooledW: 1, SamplingRatio: 1}
	grad := fromData(t, tensor.Shape{2, 1, 1, 1}, []float32{1, 2})

	gradInput, err := backend.ROIAlignBackward(grad, rois, cfg, 1, 1, 4, 4)
	require.NoError(t, err)

	// Both boxes sample (1.5, 1.5): each of the 4 neighbours receives (1+2)/4.
	g := gradInput.AsFloat32()
	for _, i := range []int{5, 6, 9, 10} {
		assert.InDelta(t, 0.75, g[i], 1e-6)
	}
	var total float32
	for _, v := range g {
		total += v
	}
	assert.InDelta(t, 3, total, 1e-5)
}

func TestROIAlign_AccumulatorParity(t *testing.T) {
	rng := newRNG()
	rois := fromData(t, tensor.Shape{4, 5}, []float32{
		0, 0, 0, 7, 7,
		0, 1, 1, 5, 6,
		0, 2.5, 0.5, 6.5, 4.5,
		0, 0, 0, 7, 7,
	})
	cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 4, PooledW: 4, SamplingRatio: 0}
	grad := randomTensor(t, rng, tensor.Shape{4, 2, 4, 4})

	atomic, err := newTestBackend(WithAccumulate(envconfig.AccumulateAtomic)).ROIAlignBackward(grad, rois, cfg, 1, 2, 8, 8)
	require.NoError(t, err)
	striped, err := newTestBackend(WithAccumulate(envconfig.AccumulateStriped)).ROIAlignBackward(grad, rois, cfg, 1, 2, 8, 8)
	require.NoError(t, err)
	serial, err := New(WithParallel(parallel.Sequential())).ROIAlignBackward(grad, rois, cfg, 1, 2, 8, 8)
	require.NoError(t, err)

	assert.InDeltaSlice(t, serial.AsFloat32(), atomic.AsFloat32(), 1e-5)
	assert.InDeltaSlice(t, serial.AsFloat32(), striped.AsFloat32(), 1e-5)
}

func TestPSROIAlign_ChannelSelection(t *testing.T) {
	backend := newTestBackend()
	const outChannels, pooled = 2, 2
	channels := outChannels * pooled * pooled

	// Channel k is constant k+1.
	data := make([]float32, channels*6*6)
	for k := 0; k < channels; k++ {
		for i := 0; i < 36; i++ {
			data[k*36+i] = float32(k + 1)
		}
	}
	input := fromData(t, tensor.Shape{1, channels, 6, 6}, data)
	rois := fromData(t, tensor.Shape{1, 5}, []float32{0, 1, 1, 4, 4})
	cfg := vision.PoolConfig{
		ScaleH: 1, ScaleW: 1, PooledH: pooled, PooledW: pooled, SamplingRatio: 2, OutChannels: outChannels,
	}

	out, err := backend.PSROIAlign(input, rois, cfg)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{1, outChannels, pooled, pooled}, out.Shape())

	// Bin (c, ph, pw) reads channel (c*2 + ph)*2 + pw.
	assert.InDeltaSlice(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, out.AsFloat32(), 1e-5)
}

func TestPSROIAlign_BackwardTouchesOnlyItsChannel(t *testing.T) {
	backend := newTestBackend()
	rois := fromData(t, tensor.Shape{1, 5}, []float32{0, 1, 1, 4, 4})
	cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 2, PooledW: 2, SamplingRatio: 2, OutChannels: 2}

	// Gradient only on output channel 1, bin (1, 0): input channel 6.
	gradData := make([]float32, 8)
	gradData[1*4+1*2+0] = 1
	grad := fromData(t, tensor.Shape{1, 2, 2, 2}, gradData)

	gradInput, err := backend.PSROIAlignBackward(grad, rois, cfg, 1, 8, 6, 6)
	require.NoError(t, err)

	g := gradInput.AsFloat32()
	for k := 0; k < 8; k++ {
		var total float32
		for _, v := range g[k*36 : (k+1)*36] {
			total += v
		}
		if k == 6 {
			assert.InDelta(t, 1, total, 1e-5)
		} else {
			assert.Zero(t, total, "channel %d", k)
		}
	}
}

func TestPSROIAlign_BackwardAdjoint(t *testing.T) {
	backend := newTestBackend()
	rng := newRNG()
	input := randomTensor(t, rng, tensor.Shape{2, 12, 5, 7})
	rois := fromData(t, tensor.Shape{2, 5}, []float32{
		1, 0.5, 0.2, 6.1, 4.3,
		0, -2, 1, 3, 6,
	})
	cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 2, PooledW: 3, SamplingRatio: 0, OutChannels: 2}

	out, err := backend.PSROIAlign(input, rois, cfg)
	require.NoError(t, err)
	grad := randomTensor(t, rng, out.Shape())
	gradInput, err := backend.PSROIAlignBackward(grad, rois, cfg, 2, 12, 5, 7)
	require.NoError(t, err)

	lhs := dot(grad.AsFloat32(), out.AsFloat32())
	rhs := dot(gradInput.AsFloat32(), input.AsFloat32())
	assert.True(t, relClose(lhs, rhs, 1e-4), "%v vs %v", lhs, rhs)
}
