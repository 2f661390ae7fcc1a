package cpu

import (
	"math/rand/v2"
	"testing"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/stretchr/testify/require"
)

// newTestBackend returns a backend that always fans out, so tests exercise the
// concurrent accumulation paths even for tiny launches.
func newTestBackend(opts ...Option) *CPUBackend {
	par := parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}
	return New(append([]Option{WithParallel(par)}, opts...)...)
}

func fromData(t *testing.T, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(data, shape, tensor.CPU)
	require.NoError(t, err)
	return r
}

func randomTensor(t *testing.T, rng *rand.Rand, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	return fromData(t, shape, data)
}

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

// dot returns sum(a*b) in float64.
func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// relClose reports whether got matches want to within rel relative error,
// measured against max(1, |want|).
func relClose(want, got, rel float64) bool {
	scale := max(1, abs(want))
	return abs(want-got) <= rel*scale
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
