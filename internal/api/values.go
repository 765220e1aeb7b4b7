package api

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/born-ml/volconv/internal/tensor"
)

// dims4 pads a shape of one to four axes with trailing ones.
func dims4(field string, d []int) (tensor.Dim4, error) {
	if len(d) < 1 || len(d) > 4 {
		return tensor.Dim4{}, newInvalidRequest(fmt.Sprintf("%s: need 1 to 4 axes, got %d", field, len(d)))
	}
	out := tensor.Dim4{1, 1, 1, 1}
	copy(out[:], d)
	if err := out.Validate(); err != nil {
		return tensor.Dim4{}, newInvalidRequest(fmt.Sprintf("%s: %v", field, err))
	}
	return out, nil
}

// triple reads a per-axis parameter; an empty list means def on every axis.
func triple(field string, v []int, def int) ([3]int, error) {
	switch len(v) {
	case 0:
		return [3]int{def, def, def}, nil
	case 1:
		return [3]int{v[0], v[0], v[0]}, nil
	case 3:
		return [3]int{v[0], v[1], v[2]}, nil
	default:
		return [3]int{}, newInvalidRequest(fmt.Sprintf("%s: need 1 or 3 values, got %d", field, len(v)))
	}
}

func parseDataType(s string) (tensor.DataType, error) {
	if s == "" {
		return tensor.Float32, nil
	}
	dt, err := tensor.ParseDataType(s)
	if err != nil {
		return 0, newInvalidRequest(err.Error())
	}
	return dt, nil
}

func volumeTensor(field string, v Volume, dtype tensor.DataType) (*tensor.RawTensor, error) {
	dims, err := dims4(field+".dims", v.Dims)
	if err != nil {
		return nil, err
	}
	if len(v.Data) != dims.Elements() {
		return nil, newInvalidRequest(fmt.Sprintf("%s: dims %v need %d values, got %d",
			field, dims, dims.Elements(), len(v.Data)))
	}

	switch dtype {
	case tensor.Float64:
		return tensor.FromSlice(v.Data, dims, tensor.CPU)
	case tensor.Float32:
		data := make([]float32, len(v.Data))
		for i, x := range v.Data {
			data[i] = float32(x)
		}
		return tensor.FromSlice(data, dims, tensor.CPU)
	case tensor.Float16:
		data := make([]float16.Float16, len(v.Data))
		for i, x := range v.Data {
			data[i] = float16.Fromfloat32(float32(x))
		}
		return tensor.FromSlice(data, dims, tensor.CPU)
	default:
		return nil, newInvalidRequest(fmt.Sprintf("dtype %s is not supported, use float16, float32 or float64", dtype))
	}
}

func tensorValues(r *tensor.RawTensor) []float64 {
	switch r.DType() {
	case tensor.Float64:
		return tensor.Flatten[float64](r)
	case tensor.Float32:
		src := tensor.Flatten[float32](r)
		out := make([]float64, len(src))
		for i, x := range src {
			out[i] = float64(x)
		}
		return out
	case tensor.Float16:
		src := tensor.Flatten[float16.Float16](r)
		out := make([]float64, len(src))
		for i, x := range src {
			out[i] = float64(x.Float32())
		}
		return out
	default:
		panic(fmt.Sprintf("api: unexpected result type %s", r.DType()))
	}
}
