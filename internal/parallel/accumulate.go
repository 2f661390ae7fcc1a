package parallel

import (
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/vision/internal/envconfig"
)

// Accumulator adds values into a shared float32 buffer from concurrent units.
// Every backward kernel routes its scatter through one of these.
type Accumulator interface {
	Add(i int, v float32)
	Data() []float32
}

// NewAccumulator wraps buf using the strategy named by mode
// (envconfig.AccumulateAtomic or envconfig.AccumulateStriped).
func NewAccumulator(buf []float32, mode string) Accumulator {
	if mode == envconfig.AccumulateStriped {
		return &stripedAccumulator{data: buf}
	}
	return atomicAccumulator(buf)
}

// AddFloat32 atomically adds delta to *addr with a compare-and-swap loop.
func AddFloat32(addr *float32, delta float32) {
	//nolint:gosec // float32 and uint32 share size and alignment
	p := (*uint32)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint32(p)
		updated := math.Float32bits(math.Float32frombits(old) + delta)
		if atomic.CompareAndSwapUint32(p, old, updated) {
			return
		}
	}
}

type atomicAccumulator []float32

func (a atomicAccumulator) Add(i int, v float32) {
	if v == 0 {
		return
	}
	AddFloat32(&a[i], v)
}

func (a atomicAccumulator) Data() []float32 { return a }

const (
	stripeCount = 64
	stripeWidth = 16 // neighbouring elements share a lock
)

type stripedAccumulator struct {
	data  []float32
	locks [stripeCount]sync.Mutex
}

func (s *stripedAccumulator) Add(i int, v float32) {
	if v == 0 {
		return
	}
	mu := &s.locks[(i/stripeWidth)%stripeCount]
	mu.Lock()
	s.data[i] += v
	mu.Unlock()
}

func (s *stripedAccumulator) Data() []float32 { return s.data }
