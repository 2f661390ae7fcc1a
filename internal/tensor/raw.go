package tensor

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/born-ml/vision/internal/envconfig"
)

// ErrAllocation reports that an output or scratch buffer could not be obtained.
var ErrAllocation = errors.New("allocation failure")

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// RawTensor is a dense row-major view over a flat buffer.
//
// Operators borrow RawTensors for the duration of one call. A RawTensor built with
// FromFloat32 aliases the caller's slice; one built with NewRaw owns a fresh buffer
// that the caller takes over.
type RawTensor struct {
	data   []byte
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is zero-initialized. Sizes that overflow or exceed BORN_MAX_ALLOC
// fail with ErrAllocation.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	byteSize, ok := shape.byteSize(dtype.Size())
	if !ok {
		return nil, fmt.Errorf("%w: shape %v overflows", ErrAllocation, shape)
	}
	//nolint:gosec // G115: byteSize is non-negative
	if limit := envconfig.MaxAlloc; limit > 0 && uint64(byteSize) > limit {
		return nil, fmt.Errorf("%w: %d bytes for shape %v exceeds limit of %d", ErrAllocation, byteSize, shape, limit)
	}

	return &RawTensor{
		data:   make([]byte, byteSize),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// FromFloat32 wraps data as a float32 tensor without copying.
// len(data) must equal shape.NumElements().
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}

	buf := []byte{}
	if len(data) > 0 {
		//nolint:gosec // unsafe.Slice reinterprets the caller's float32 slice as bytes
		buf = unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
	}
	return &RawTensor{
		data:   buf,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  Float32,
		device: device,
	}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	if len(r.data) == 0 {
		return []float32{}
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Zero clears the buffer in place.
func (r *RawTensor) Zero() {
	clear(r.data)
}

// WithDevice returns a view of the same buffer tagged with another device.
func (r *RawTensor) WithDevice(device Device) *RawTensor {
	return &RawTensor{
		data:   r.data,
		shape:  r.shape,
		stride: r.stride,
		dtype:  r.dtype,
		device: device,
	}
}
