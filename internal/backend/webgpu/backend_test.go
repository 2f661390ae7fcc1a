//go:build windows

package webgpu

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/vision/internal/backend/cpu"
	"github.com/born-ml/vision/internal/logutil"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available on this system")
	}
	backend, err := New()
	require.NoError(t, err)
	t.Cleanup(backend.Release)
	return backend
}

func onGPU(t *testing.T, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(data, shape, tensor.WebGPU)
	require.NoError(t, err)
	return r
}

func randomData(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = rng.Float32()*2 - 1
	}
	return out
}

func TestListAdapters(t *testing.T) {
	adapters, err := ListAdapters()
	if err != nil {
		t.Skip("WebGPU not available on this system")
	}
	for i, info := range adapters {
		t.Logf("Adapter %d: %s %s (%v)", i, info.Vendor, info.Device, info.BackendType)
	}
}

func TestBackendIdentity(t *testing.T) {
	backend := newTestBackend(t)
	assert.Equal(t, tensor.WebGPU, backend.Device())
	assert.Contains(t, backend.Name(), "WebGPU")
}

func TestROIAlignMatchesCPU(t *testing.T) {
	backend := newTestBackend(t)
	host := cpu.New()
	rng := rand.New(rand.NewPCG(1, 2))

	data := randomData(rng, 2*6*9*11)
	roiData := []float32{
		0, 0.5, 1.5, 7.2, 6.1,
		1, -2, -1, 4, 3,
		1, 3, 3, 3.2, 3.1,
	}
	cfgs := []vision.PoolConfig{
		{ScaleH: 1, ScaleW: 1, PooledH: 3, PooledW: 2, SamplingRatio: 2},
		{ScaleH: 0.5, ScaleW: 0.75, PooledH: 2, PooledW: 2, SamplingRatio: 0},
	}
	for _, cfg := range cfgs {
		want, err := host.ROIAlign(
			mustHost(t, tensor.Shape{2, 6, 9, 11}, data), mustHost(t, tensor.Shape{3, 5}, roiData), cfg)
		require.NoError(t, err)
		got, err := backend.ROIAlign(
			onGPU(t, tensor.Shape{2, 6, 9, 11}, data), onGPU(t, tensor.Shape{3, 5}, roiData), cfg)
		require.NoError(t, err)

		assert.Equal(t, tensor.WebGPU, got.Device())
		assert.InDeltaSlice(t, want.AsFloat32(), got.AsFloat32(), 1e-4)
	}
}

func TestPSROIAlignMatchesCPU(t *testing.T) {
	backend := newTestBackend(t)
	host := cpu.New()
	rng := rand.New(rand.NewPCG(3, 4))

	data := randomData(rng, 1*8*6*6)
	roiData := []float32{0, 1, 1, 4.5, 5}
	cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 2, PooledW: 2, SamplingRatio: 0, OutChannels: 2}

	want, err := host.PSROIAlign(mustHost(t, tensor.Shape{1, 8, 6, 6}, data), mustHost(t, tensor.Shape{1, 5}, roiData), cfg)
	require.NoError(t, err)
	got, err := backend.PSROIAlign(onGPU(t, tensor.Shape{1, 8, 6, 6}, data), onGPU(t, tensor.Shape{1, 5}, roiData), cfg)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.AsFloat32(), got.AsFloat32(), 1e-4)
}

func TestPairwiseIoU(t *testing.T) {
	backend := newTestBackend(t)
	boxes1 := onGPU(t, tensor.Shape{1, 4}, []float32{0, 0, 2, 2})
	boxes2 := onGPU(t, tensor.Shape{2, 4}, []float32{1, 1, 3, 3, 5, 5, 6, 6})

	ious, err := backend.PairwiseIoU(boxes1, boxes2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{1.0 / 7, 0}, ious.AsFloat32(), 1e-6)
}

func TestNMSMatchesGreedy(t *testing.T) {
	backend := newTestBackend(t)
	rng := rand.New(rand.NewPCG(5, 6))

	const n = 150
	data := make([]float32, 0, n*5)
	ref := make([]vision.Box, n)
	scores := make([]float32, n)
	for i := 0; i < n; i++ {
		x, y := rng.Float32()*80, rng.Float32()*80
		w, h := 2+rng.Float32()*20, 2+rng.Float32()*20
		scores[i] = rng.Float32()
		ref[i] = vision.Box{X1: x, Y1: y, X2: x + w, Y2: y + h}
		data = append(data, x, y, x+w, y+h, scores[i])
	}
	boxes := onGPU(t, tensor.Shape{n, 5}, data)

	for _, threshold := range []float32{0.3, 0.5, 0.7} {
		keep, err := backend.NMS(boxes, threshold)
		require.NoError(t, err)
		assert.Equal(t, vision.GreedyNMS(ref, scores, threshold), keep, "threshold %v", threshold)
	}
}

func TestBackwardRunsOnHost(t *testing.T) {
	backend := newTestBackend(t)
	rois := onGPU(t, tensor.Shape{1, 5}, []float32{0, 1, 1, 2, 2})
	grad := onGPU(t, tensor.Shape{1, 1, 1, 1}, []float32{1})
	cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 1, PooledW: 1, SamplingRatio: 1}

	gradInput, err := backend.ROIAlignBackward(grad, rois, cfg, 1, 1, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, tensor.WebGPU, gradInput.Device())

	var total float32
	for _, v := range gradInput.AsFloat32() {
		total += v
	}
	assert.InDelta(t, 1, total, 1e-6)
}

func TestDeviceMismatch(t *testing.T) {
	backend := newTestBackend(t)
	boxes := mustHost(t, tensor.Shape{1, 5}, []float32{0, 0, 1, 1, 1})
	_, err := backend.NMS(boxes, 0.5)
	assert.ErrorIs(t, err, vision.ErrDeviceMismatch)
}

func TestBackwardMixedDevices(t *testing.T) {
	backend := newTestBackend(t)
	rois := onGPU(t, tensor.Shape{1, 5}, []float32{0, 1, 1, 2, 2})
	grad := mustHost(t, tensor.Shape{1, 1, 1, 1}, []float32{1})
	cfg := vision.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: 1, PooledW: 1, SamplingRatio: 1}

	_, err := backend.ROIAlignBackward(grad, rois, cfg, 1, 1, 4, 4)
	require.ErrorIs(t, err, vision.ErrDeviceMismatch)
	assert.Contains(t, err.Error(), "operands on CPU and WebGPU")
}

func TestBufferPoolReuse(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available on this system")
	}
	var buf bytes.Buffer
	backend, err := New(WithLogger(logutil.NewLogger(&buf, logutil.LevelTrace)))
	require.NoError(t, err)
	t.Cleanup(backend.Release)

	boxes := onGPU(t, tensor.Shape{2, 4}, []float32{0, 0, 2, 2, 1, 1, 3, 3})
	for i := 0; i < 2; i++ {
		_, err := backend.PairwiseIoU(boxes, boxes)
		require.NoError(t, err)
	}

	hits, misses := backend.bufferPool.Stats()
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, uint64(1), hits)
	assert.Contains(t, buf.String(), "pool_hits=1")
}

func TestWorkgroupGrid(t *testing.T) {
	x, y := workgroupGrid(10)
	assert.Equal(t, uint32(1), x)
	assert.Equal(t, uint32(1), y)

	x, y = workgroupGrid(workgroupSize*maxWorkgroupsPerDim + 1)
	assert.Equal(t, uint32(maxWorkgroupsPerDim), x)
	assert.Equal(t, uint32(2), y)
}

func mustHost(t *testing.T, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(data, shape, tensor.CPU)
	require.NoError(t, err)
	return r
}
