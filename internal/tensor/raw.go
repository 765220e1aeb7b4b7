package tensor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Common errors.
var (
	ErrShape      = errors.New("invalid shape")
	ErrAllocation = errors.New("tensor allocation failed")
	ErrDataType   = errors.New("data type mismatch")
)

// Device represents the compute device holding a tensor.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	Grid
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case Grid:
		return "Grid"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// tensorBuffer is a reference-counted shared buffer.
// Views (reshape, batch slices) share one buffer.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
}

func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.data = nil
	}
}

func (tb *tensorBuffer) isUnique() bool {
	return tb.refCount.Load() == 1
}

// RawTensor is the dtype-tagged 4-D array used by all backends.
//
// Strides are counted in elements, so non-contiguous views are expressed
// by strides and an element offset into a shared buffer.
type RawTensor struct {
	buffer *tensorBuffer
	dims   Dim4
	stride Dim4
	dtype  DataType
	device Device
	offset int
}

// NewRaw allocates a contiguous tensor. The memory is zeroed, but callers
// must not rely on it: kernels write every output element themselves.
func NewRaw(dims Dim4, dtype DataType, device Device) (*RawTensor, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	byteSize, err := byteSizeOf(dims, dtype)
	if err != nil {
		return nil, err
	}

	return &RawTensor{
		buffer: newTensorBuffer(byteSize),
		dims:   dims,
		stride: dims.Strides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// byteSizeOf returns the allocation size, rejecting sizes that overflow int.
func byteSizeOf(dims Dim4, dtype DataType) (int, error) {
	n := 1
	for _, d := range dims {
		if n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: element count of %v overflows", ErrAllocation, dims)
		}
		n *= d
	}
	if n > math.MaxInt/dtype.Size() {
		return 0, fmt.Errorf("%w: %d elements of %s overflow", ErrAllocation, n, dtype)
	}
	return n * dtype.Size(), nil
}

// FromSlice creates a contiguous tensor holding a copy of data.
func FromSlice[T Element](data []T, dims Dim4, device Device) (*RawTensor, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if dims.Elements() != len(data) {
		return nil, fmt.Errorf("%w: dims %v require %d elements, but got %d", ErrShape, dims, dims.Elements(), len(data))
	}

	raw, err := NewRaw(dims, DataTypeOf[T](), device)
	if err != nil {
		return nil, err
	}
	copy(Values[T](raw), data)
	return raw, nil
}

// Dims returns the extent of every axis.
func (r *RawTensor) Dims() Dim4 {
	return r.dims
}

// Strides returns the element stride of every axis.
func (r *RawTensor) Strides() Dim4 {
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

// Offset returns the element offset of the view into its buffer.
func (r *RawTensor) Offset() int {
	return r.offset
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.dims.Elements()
}

// ByteSize returns the logical size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// IsLinear reports whether the view is laid out contiguously.
func (r *RawTensor) IsLinear() bool {
	want := r.dims.Strides()
	for i := range want {
		if r.dims[i] != 1 && r.stride[i] != want[i] {
			return false
		}
	}
	return true
}

// span returns how many elements past the offset the view can touch.
func (r *RawTensor) span() int {
	n := 1
	for i := range r.dims {
		n += (r.dims[i] - 1) * r.stride[i]
	}
	return n
}

// Data returns the raw bytes of the view, starting at its offset.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	size := r.dtype.Size()
	return r.buffer.data[r.offset*size : (r.offset+r.span())*size]
}

// Values interprets the view as []T. Element (i0,i1,i2,i3) lives at
// index i0*s0 + i1*s1 + i2*s2 + i3*s3 of the returned slice.
// Panics if T does not match the tensor's dtype.
func Values[T Element](r *RawTensor) []T {
	if want := DataTypeOf[T](); r.dtype != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, want))
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by span()
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), r.span())
}

// At returns the element at the given coordinates.
func At[T Element](r *RawTensor, i0, i1, i2, i3 int) T {
	s := r.stride
	return Values[T](r)[i0*s[0]+i1*s[1]+i2*s[2]+i3*s[3]]
}

// View returns a tensor sharing r's buffer with new geometry.
// offset is relative to r's own offset.
func (r *RawTensor) View(dims, strides Dim4, offset int) (*RawTensor, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	v := &RawTensor{
		buffer: r.buffer,
		dims:   dims,
		stride: strides,
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset + offset,
	}
	if v.offset < 0 || (v.offset+v.span())*r.dtype.Size() > len(r.buffer.data) {
		return nil, fmt.Errorf("%w: view %v with strides %v at offset %d exceeds buffer", ErrShape, dims, strides, v.offset)
	}
	r.buffer.addRef()
	return v, nil
}

// Clone creates a shallow copy of the RawTensor that shares its buffer.
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	c := *r
	return &c
}

// Release decrements the reference count and frees the buffer when it reaches 0.
func (r *RawTensor) Release() {
	r.buffer.release()
}

// IsUnique returns true if this tensor is the only reference to the buffer.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.isUnique()
}

// String returns a short description of the tensor.
func (r *RawTensor) String() string {
	return fmt.Sprintf("Tensor[%s]%v on %s", r.dtype, r.dims, r.device)
}
