//go:build windows

package webgpu

import (
	"math/bits"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// maxPooledPerClass caps how many idle buffers one size class keeps.
const maxPooledPerClass = 16

type poolKey struct {
	class uint8 // buffer size is 1 << class bytes
	usage wgpu.BufferUsage
}

// BufferPool reuses output buffers between dispatches. Sizes are rounded up to a
// power of two so ROI batches of varying length share buffers.
type BufferPool struct {
	device *wgpu.Device
	mu     sync.Mutex
	idle   map[poolKey][]*wgpu.Buffer

	hits, misses uint64
}

// NewBufferPool creates a new buffer pool for the given device.
func NewBufferPool(device *wgpu.Device) *BufferPool {
	return &BufferPool{
		device: device,
		idle:   make(map[poolKey][]*wgpu.Buffer),
	}
}

func sizeClass(size uint64) uint8 {
	if size <= 16 {
		return 4
	}
	//nolint:gosec // G115: bit length of a uint64 fits in uint8
	return uint8(bits.Len64(size - 1))
}

// Acquire returns a buffer of at least size bytes with the given usage, and the
// capacity actually allocated.
func (p *BufferPool) Acquire(size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, uint64) {
	key := poolKey{class: sizeClass(size), usage: usage}
	capacity := uint64(1) << key.class

	p.mu.Lock()
	defer p.mu.Unlock()

	if free := p.idle[key]; len(free) > 0 {
		buf := free[len(free)-1]
		p.idle[key] = free[:len(free)-1]
		p.hits++
		return buf, capacity
	}
	p.misses++
	return p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: usage,
		Size:  capacity,
	}), capacity
}

// Release returns a buffer obtained from Acquire to the pool.
func (p *BufferPool) Release(buffer *wgpu.Buffer, capacity uint64, usage wgpu.BufferUsage) {
	key := poolKey{class: sizeClass(capacity), usage: usage}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle[key]) >= maxPooledPerClass {
		buffer.Release()
		return
	}
	p.idle[key] = append(p.idle[key], buffer)
}

// Clear releases all pooled buffers.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, free := range p.idle {
		for _, buf := range free {
			buf.Release()
		}
		delete(p.idle, key)
	}
}

// Stats returns pool hit and miss counts.
func (p *BufferPool) Stats() (hits, misses uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses
}
