// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/volconv/internal/tensor"
)

// Dim4 is the extent of each of the four axes, axis 0 first.
type Dim4 = tensor.Dim4

// DataType identifies the element type of a tensor.
type DataType = tensor.DataType

// Element is the constraint satisfied by every supported element type.
type Element = tensor.Element

// Device identifies where a tensor's buffer lives.
type Device = tensor.Device

// RawTensor is an untyped tensor: dims, strides, dtype and a shared buffer.
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Dim4{4, 4, 4, 1}, tensor.Float32, tensor.CPU)
//	defer raw.Release()
//	data := tensor.Values[float32](raw)
type RawTensor = tensor.RawTensor

// Tensor is a typed handle over a RawTensor.
type Tensor[T Element] = tensor.Tensor[T]

// Data types.
const (
	Float32    = tensor.Float32
	Float64    = tensor.Float64
	Float16    = tensor.Float16
	Complex64  = tensor.Complex64
	Complex128 = tensor.Complex128
	Int8       = tensor.Int8
	Int16      = tensor.Int16
	Int32      = tensor.Int32
	Int64      = tensor.Int64
	Uint8      = tensor.Uint8
	Uint16     = tensor.Uint16
	Uint32     = tensor.Uint32
	Uint64     = tensor.Uint64
)

// Devices.
const (
	CPU    = tensor.CPU
	Grid   = tensor.Grid
	WebGPU = tensor.WebGPU
)

// Errors.
var (
	ErrShape      = tensor.ErrShape
	ErrAllocation = tensor.ErrAllocation
	ErrDataType   = tensor.ErrDataType
)

// NewRaw allocates a zeroed contiguous tensor.
func NewRaw(dims Dim4, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(dims, dtype, device)
}

// FromSlice copies data (axis 0 fastest) into a new contiguous tensor.
func FromSlice[T Element](data []T, dims Dim4, device Device) (*RawTensor, error) {
	return tensor.FromSlice(data, dims, device)
}

// FromValues creates a typed CPU tensor from data.
func FromValues[T Element](data []T, dims Dim4) (*Tensor[T], error) {
	return tensor.FromValues(data, dims)
}

// Wrap creates a typed handle over raw, checking its dtype.
func Wrap[T Element](raw *RawTensor) (*Tensor[T], error) {
	return tensor.Wrap[T](raw)
}

// Values exposes the storage of raw as a []T. The slice covers the whole
// span of a view, so strided views must be indexed through their strides.
func Values[T Element](raw *RawTensor) []T {
	return tensor.Values[T](raw)
}

// At reads one element.
func At[T Element](raw *RawTensor, i0, i1, i2, i3 int) T {
	return tensor.At[T](raw, i0, i1, i2, i3)
}

// Flatten copies the elements of raw into a new slice in logical order.
func Flatten[T Element](raw *RawTensor) []T {
	return tensor.Flatten[T](raw)
}

// ParseDataType maps a name such as "float32" to its DataType.
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}
