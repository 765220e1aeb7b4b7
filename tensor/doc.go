// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the 4-D arrays consumed and produced by volconv.
//
// # Layout
//
// Every tensor has exactly four axes. Axis 0 varies fastest in memory, so a
// contiguous tensor of dims (d0, d1, d2, d3) has element strides
// (1, d0, d0*d1, d0*d1*d2). Shapes with fewer axes are padded with ones:
// a 64x64 image is Dim4{64, 64, 1, 1}.
//
// # Basic Usage
//
//	import "github.com/born-ml/volconv/tensor"
//
//	func main() {
//	    vol, _ := tensor.FromValues(make([]float32, 8*8*8), tensor.Dim4{8, 8, 8, 1})
//	    defer vol.Raw().Release()
//
//	    x := vol.At(1, 2, 3, 0)
//	}
//
// # Supported Data Types
//
//   - float16 (github.com/x448/float16), float32, float64
//   - complex64, complex128
//   - int8, int16, int32, int64
//   - uint8, uint16, uint32, uint64
//
// Buffers are reference counted. Views created by reshaping share the
// buffer of their source; call Release when a tensor is no longer needed.
package tensor
