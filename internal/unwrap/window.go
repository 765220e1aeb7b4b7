// Package unwrap extracts sliding 3-D windows of a volume into the columns
// (or rows) of a matrix, the im2col step of matmul-based convolution.
//
// Windows are numbered with x fastest. Inside a window, offsets are also
// numbered with x fastest, so column c of a column-layout result holds
// window c flattened as a (wx, wy, wz) block.
package unwrap

import (
	"errors"
	"fmt"

	"github.com/born-ml/volconv/internal/tensor"
)

// ErrInvalidWindow reports a window, stride, padding or dilation that
// yields no output.
var ErrInvalidWindow = errors.New("unwrap: invalid window")

// Window describes the sliding window along x, y and z.
type Window struct {
	WX, WY, WZ int // Extent.
	SX, SY, SZ int // Stride.
	PX, PY, PZ int // Padding on each side.
	DX, DY, DZ int // Dilation.
}

// Cube returns a window with the same settings on every axis.
func Cube(size, stride, pad, dilation int) Window {
	return Window{
		WX: size, WY: size, WZ: size,
		SX: stride, SY: stride, SZ: stride,
		PX: pad, PY: pad, PZ: pad,
		DX: dilation, DY: dilation, DZ: dilation,
	}
}

// Volume returns wx*wy*wz.
func (w Window) Volume() int {
	return w.WX * w.WY * w.WZ
}

// Validate checks the window on its own, without an input shape.
func (w Window) Validate() error {
	for _, a := range w.axes() {
		switch {
		case a.k < 1:
			return fmt.Errorf("%w: %s extent is %d", ErrInvalidWindow, a.name, a.k)
		case a.s < 1:
			return fmt.Errorf("%w: %s stride is %d", ErrInvalidWindow, a.name, a.s)
		case a.d < 1:
			return fmt.Errorf("%w: %s dilation is %d", ErrInvalidWindow, a.name, a.d)
		case a.p < 0:
			return fmt.Errorf("%w: %s padding is %d", ErrInvalidWindow, a.name, a.p)
		}
	}
	return nil
}

type axis struct {
	name       string
	k, s, p, d int
}

func (w Window) axes() [3]axis {
	return [3]axis{
		{"x", w.WX, w.SX, w.PX, w.DX},
		{"y", w.WY, w.SY, w.PY, w.DY},
		{"z", w.WZ, w.SZ, w.PZ, w.DZ},
	}
}

// Extent returns how many windows fit along one axis:
// 1 + (in + 2*pad - ((k-1)*dilation + 1)) / stride.
func Extent(in, k, stride, pad, dilation int) (int, error) {
	if k < 1 || stride < 1 || dilation < 1 || pad < 0 {
		return 0, fmt.Errorf("%w: k=%d stride=%d pad=%d dilation=%d", ErrInvalidWindow, k, stride, pad, dilation)
	}
	span := (k-1)*dilation + 1
	if in+2*pad < span {
		return 0, fmt.Errorf("%w: window span %d exceeds padded input %d", ErrInvalidWindow, span, in+2*pad)
	}
	return 1 + (in+2*pad-span)/stride, nil
}

// Counts returns the number of windows along x, y and z.
func (w Window) Counts(in tensor.Dim4) ([3]int, error) {
	if err := w.Validate(); err != nil {
		return [3]int{}, err
	}
	var n [3]int
	for i, a := range w.axes() {
		e, err := Extent(in[i], a.k, a.s, a.p, a.d)
		if err != nil {
			return [3]int{}, fmt.Errorf("axis %s: %w", a.name, err)
		}
		n[i] = e
	}
	return n, nil
}

// OutputDims returns the shape produced by unwrapping a volume of shape in.
// Axis 3 of the input is a batch of independent volumes and becomes axis 2
// of the output.
func OutputDims(in tensor.Dim4, w Window, column bool) (tensor.Dim4, error) {
	if err := in.Validate(); err != nil {
		return tensor.Dim4{}, err
	}
	n, err := w.Counts(in)
	if err != nil {
		return tensor.Dim4{}, err
	}
	wv, nw := w.Volume(), n[0]*n[1]*n[2]
	if column {
		return tensor.Dim4{wv, nw, in[3], 1}, nil
	}
	return tensor.Dim4{nw, wv, in[3], 1}, nil
}
