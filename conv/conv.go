// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package conv computes 3-D convolutions by unwrapping the signal into
// windows and multiplying by the flipped filters.
//
// Example:
//
//	import (
//	    "github.com/born-ml/volconv/backend/cpu"
//	    "github.com/born-ml/volconv/conv"
//	)
//
//	func main() {
//	    b := cpu.New()
//	    defer b.Close()
//
//	    out, err := conv.Convolve3(ctx, b, signal, filter, conv.DefaultParams())
//	}
package conv

import (
	"context"

	"github.com/born-ml/volconv/internal/conv"
	"github.com/born-ml/volconv/internal/unwrap"
	"github.com/born-ml/volconv/tensor"
)

// Backend is what a convolution needs from a compute backend. Both
// backend/cpu and backend/grid implement it.
type Backend = conv.Backend

// Params holds the per-axis stride, padding and dilation.
type Params = conv.Params

// Window describes one sliding window.
type Window = unwrap.Window

// Errors.
var (
	ErrShapeMismatch   = conv.ErrShapeMismatch
	ErrUnsupportedType = conv.ErrUnsupportedType
	ErrInvalidWindow   = unwrap.ErrInvalidWindow
)

// DefaultParams is unit stride and dilation without padding.
func DefaultParams() Params {
	return conv.DefaultParams()
}

// OutputDims returns the shape Convolve3 produces for a signal of shape sd
// and filters of shape fd.
func OutputDims(sd, fd tensor.Dim4, p Params) (tensor.Dim4, error) {
	return conv.OutputDims(sd, fd, p)
}

// Convolve3 convolves every volume of signal [W, H, D, N] with every
// filter of filter [KW, KH, KD, C]. The result is [oW, oH, oD, N*C].
func Convolve3(ctx context.Context, b Backend, signal, filter *tensor.RawTensor, p Params) (*tensor.RawTensor, error) {
	return conv.Convolve3(ctx, b, signal, filter, p)
}

// Unwrap extracts every window of in into a matrix. With column set, each
// window becomes one column: [window volume, windows, N, 1].
func Unwrap(ctx context.Context, b Backend, in *tensor.RawTensor, w Window, column bool) (*tensor.RawTensor, error) {
	return b.Unwrap3D(ctx, in, w, column)
}
