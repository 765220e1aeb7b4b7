package unwrap

import (
	"fmt"

	"github.com/born-ml/volconv/internal/tensor"
	"github.com/x448/float16"
)

// Runner is a Kernel with its element type erased.
type Runner interface {
	Run()
	Window(n, col int)
	Element(i0, i1, i2, i3 int)
	Windows() int
	Batches() int
}

// New returns the kernel instantiation matching in's dtype. out must have
// the same dtype and the shape OutputDims returns.
func New(out, in *tensor.RawTensor, w Window, column bool) (Runner, error) {
	if out.DType() != in.DType() {
		return nil, fmt.Errorf("%w: output is %s, input is %s", tensor.ErrDataType, out.DType(), in.DType())
	}
	want, err := OutputDims(in.Dims(), w, column)
	if err != nil {
		return nil, err
	}
	if out.Dims() != want {
		return nil, fmt.Errorf("%w: output is %v, unwrap produces %v", tensor.ErrShape, out.Dims(), want)
	}

	switch in.DType() {
	case tensor.Float32:
		return NewKernel[float32](out, in, w, column), nil
	case tensor.Float64:
		return NewKernel[float64](out, in, w, column), nil
	case tensor.Float16:
		return NewKernel[float16.Float16](out, in, w, column), nil
	case tensor.Complex64:
		return NewKernel[complex64](out, in, w, column), nil
	case tensor.Complex128:
		return NewKernel[complex128](out, in, w, column), nil
	case tensor.Int8:
		return NewKernel[int8](out, in, w, column), nil
	case tensor.Int16:
		return NewKernel[int16](out, in, w, column), nil
	case tensor.Int32:
		return NewKernel[int32](out, in, w, column), nil
	case tensor.Int64:
		return NewKernel[int64](out, in, w, column), nil
	case tensor.Uint8:
		return NewKernel[uint8](out, in, w, column), nil
	case tensor.Uint16:
		return NewKernel[uint16](out, in, w, column), nil
	case tensor.Uint32:
		return NewKernel[uint32](out, in, w, column), nil
	case tensor.Uint64:
		return NewKernel[uint64](out, in, w, column), nil
	default:
		return nil, fmt.Errorf("%w: unwrap of %s", tensor.ErrDataType, in.DType())
	}
}
