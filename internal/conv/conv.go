// Package conv implements 3-D convolution as an unwrap followed by a
// matrix multiply.
package conv

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/volconv/internal/tensor"
	"github.com/born-ml/volconv/internal/unwrap"
)

// Common errors.
var (
	ErrShapeMismatch   = errors.New("conv: shape mismatch")
	ErrUnsupportedType = errors.New("conv: unsupported data type")
)

// Backend is what the convolution needs from a compute backend.
type Backend interface {
	Unwrap3D(ctx context.Context, in *tensor.RawTensor, w unwrap.Window, column bool) (*tensor.RawTensor, error)
	MatMul(ctx context.Context, a, b *tensor.RawTensor, transA, transB bool) (*tensor.RawTensor, error)
	Reorder(ctx context.Context, t *tensor.RawTensor, perm [4]int) (*tensor.RawTensor, error)
	Reshape(ctx context.Context, t *tensor.RawTensor, dims tensor.Dim4) (*tensor.RawTensor, error)
	Flip(ctx context.Context, t *tensor.RawTensor, mask [4]bool) (*tensor.RawTensor, error)
}

// Params holds the per-axis stride, padding and dilation (x, y, z).
type Params struct {
	Stride   [3]int
	Padding  [3]int
	Dilation [3]int
}

// DefaultParams is unit stride and dilation without padding.
func DefaultParams() Params {
	return Params{Stride: [3]int{1, 1, 1}, Dilation: [3]int{1, 1, 1}}
}

// Window returns the unwrap window for a filter of shape fd.
func (p Params) Window(fd tensor.Dim4) unwrap.Window {
	return unwrap.Window{
		WX: fd[0], WY: fd[1], WZ: fd[2],
		SX: p.Stride[0], SY: p.Stride[1], SZ: p.Stride[2],
		PX: p.Padding[0], PY: p.Padding[1], PZ: p.Padding[2],
		DX: p.Dilation[0], DY: p.Dilation[1], DZ: p.Dilation[2],
	}
}

// OutputDims returns the shape Convolve3 produces:
// [oW, oH, oD, N*C] for a signal [W, H, D, N] and a filter [KW, KH, KD, C].
func OutputDims(sd, fd tensor.Dim4, p Params) (tensor.Dim4, error) {
	n, err := p.Window(fd).Counts(sd)
	if err != nil {
		return tensor.Dim4{}, err
	}
	return tensor.Dim4{n[0], n[1], n[2], sd[3] * fd[3]}, nil
}

// Supported reports whether Convolve3 accepts dtype.
func Supported(dtype tensor.DataType) bool {
	return dtype.IsFloat()
}

// Convolve3 convolves every volume of signal [W, H, D, N] with every
// filter of filter [KW, KH, KD, C]. Filters are flipped on their three
// spatial axes, so this is a true convolution, not a correlation.
//
// Output element (x, y, z, n + N*c) is volume n convolved with filter c.
func Convolve3(ctx context.Context, b Backend, signal, filter *tensor.RawTensor, p Params) (*tensor.RawTensor, error) {
	sd, fd := signal.Dims(), filter.Dims()
	if signal.DType() != filter.DType() {
		return nil, fmt.Errorf("%w: signal is %s, filter is %s", ErrShapeMismatch, signal.DType(), filter.DType())
	}
	if !Supported(signal.DType()) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, signal.DType())
	}
	od, err := OutputDims(sd, fd, p)
	if err != nil {
		return nil, err
	}

	w := p.Window(fd)
	wv, nw := w.Volume(), od[0]*od[1]*od[2]

	// [nw, wv, N, 1] -> [wv, nw, N, 1] -> [wv, nw*N]
	rows, err := b.Unwrap3D(ctx, signal, w, false)
	if err != nil {
		return nil, fmt.Errorf("convolve3: %w", err)
	}
	defer rows.Release()
	cols, err := b.Reorder(ctx, rows, [4]int{1, 0, 2, 3})
	if err != nil {
		return nil, fmt.Errorf("convolve3: %w", err)
	}
	defer cols.Release()
	unwrapped, err := b.Reshape(ctx, cols, tensor.Dim4{wv, nw * sd[3], 1, 1})
	if err != nil {
		return nil, fmt.Errorf("convolve3: %w", err)
	}
	defer unwrapped.Release()

	// [KW, KH, KD, C] -> [wv, C]
	flipped, err := b.Flip(ctx, filter, [4]bool{true, true, true, false})
	if err != nil {
		return nil, fmt.Errorf("convolve3: %w", err)
	}
	defer flipped.Release()
	weights, err := b.Reshape(ctx, flipped, tensor.Dim4{wv, fd[3], 1, 1})
	if err != nil {
		return nil, fmt.Errorf("convolve3: %w", err)
	}
	defer weights.Release()

	// [wv, nw*N]ᵀ × [wv, C] = [nw*N, C]
	prod, err := b.MatMul(ctx, unwrapped, weights, true, false)
	if err != nil {
		return nil, fmt.Errorf("convolve3: %w", err)
	}
	defer prod.Release()

	out, err := b.Reshape(ctx, prod, od)
	if err != nil {
		return nil, fmt.Errorf("convolve3: %w", err)
	}
	return out, nil
}
