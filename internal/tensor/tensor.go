package tensor

import "fmt"

// Tensor is a typed handle over a RawTensor.
//
// Example:
//
//	t, _ := tensor.FromValues([]float32{1, 2, 3, 4}, tensor.Dim4{2, 2, 1, 1})
//	v := t.At(1, 0, 0, 0) // 2
type Tensor[T Element] struct {
	raw *RawTensor
}

// Wrap creates a typed handle, checking that the dtype matches T.
func Wrap[T Element](raw *RawTensor) (*Tensor[T], error) {
	if want := DataTypeOf[T](); raw.DType() != want {
		return nil, fmt.Errorf("%w: tensor is %s, not %s", ErrDataType, raw.DType(), want)
	}
	return &Tensor[T]{raw: raw}, nil
}

// FromValues creates a CPU tensor from a slice laid out with axis 0 fastest.
func FromValues[T Element](data []T, dims Dim4) (*Tensor[T], error) {
	raw, err := FromSlice(data, dims, CPU)
	if err != nil {
		return nil, err
	}
	return &Tensor[T]{raw: raw}, nil
}

// Raw returns the underlying RawTensor.
func (t *Tensor[T]) Raw() *RawTensor {
	return t.raw
}

// Dims returns the tensor's dims.
func (t *Tensor[T]) Dims() Dim4 {
	return t.raw.Dims()
}

// At returns the element at the given coordinates.
// Panics if a coordinate is out of bounds.
func (t *Tensor[T]) At(i0, i1, i2, i3 int) T {
	d := t.raw.Dims()
	for axis, idx := range [4]int{i0, i1, i2, i3} {
		if idx < 0 || idx >= d[axis] {
			panic(fmt.Sprintf("index %d out of bounds for axis %d (size %d)", idx, axis, d[axis]))
		}
	}
	return At[T](t.raw, i0, i1, i2, i3)
}

// ToSlice copies the elements into a new slice in logical order
// (axis 0 fastest), independent of the view's strides.
func (t *Tensor[T]) ToSlice() []T {
	return Flatten[T](t.raw)
}

// Flatten copies the elements of r into a new slice in logical order.
func Flatten[T Element](r *RawTensor) []T {
	d, s := r.Dims(), r.Strides()
	src := Values[T](r)
	out := make([]T, 0, d.Elements())
	for i3 := 0; i3 < d[3]; i3++ {
		for i2 := 0; i2 < d[2]; i2++ {
			for i1 := 0; i1 < d[1]; i1++ {
				base := i1*s[1] + i2*s[2] + i3*s[3]
				for i0 := 0; i0 < d[0]; i0++ {
					out = append(out, src[base+i0*s[0]])
				}
			}
		}
	}
	return out
}

// String returns a human-readable representation of the tensor.
func (t *Tensor[T]) String() string {
	return t.raw.String()
}
