package main

import (
	"github.com/x448/float16"

	"github.com/born-ml/volconv/internal/tensor"
)

// fill writes f(i) to element i of a contiguous float tensor.
func fill(r *tensor.RawTensor, f func(i int) float64) error {
	switch r.DType() {
	case tensor.Float64:
		v := tensor.Values[float64](r)
		for i := range v {
			v[i] = f(i)
		}
	case tensor.Float32:
		v := tensor.Values[float32](r)
		for i := range v {
			v[i] = float32(f(i))
		}
	case tensor.Float16:
		v := tensor.Values[float16.Float16](r)
		for i := range v {
			v[i] = float16.Fromfloat32(float32(f(i)))
		}
	default:
		return unsupported(r.DType())
	}
	return nil
}

// floats reads a float tensor in logical order.
func floats(r *tensor.RawTensor) ([]float64, error) {
	switch r.DType() {
	case tensor.Float64:
		return tensor.Flatten[float64](r), nil
	case tensor.Float32:
		src := tensor.Flatten[float32](r)
		out := make([]float64, len(src))
		for i, x := range src {
			out[i] = float64(x)
		}
		return out, nil
	case tensor.Float16:
		src := tensor.Flatten[float16.Float16](r)
		out := make([]float64, len(src))
		for i, x := range src {
			out[i] = float64(x.Float32())
		}
		return out, nil
	default:
		return nil, unsupported(r.DType())
	}
}
