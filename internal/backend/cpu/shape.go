package cpu

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/born-ml/volconv/internal/parallel"
	"github.com/born-ml/volconv/internal/tensor"
)

// Reorder permutes the axes of t: result axis i is t's axis perm[i].
// The result is contiguous.
func (cpu *CPUBackend) Reorder(ctx context.Context, t *tensor.RawTensor, perm [4]int) (*tensor.RawTensor, error) {
	if err := tensor.ValidatePermutation(perm); err != nil {
		return nil, fmt.Errorf("reorder: %w", err)
	}
	s := t.Strides()
	src := layout{dims: t.Dims().Permute(perm), strides: s.Permute(perm)}
	return cpu.produce(ctx, "reorder", src.dims, t.DType(), func(out *tensor.RawTensor) error {
		return cpu.gather(out, t, src)
	}, t)
}

// Reshape returns t with new dims and the same elements in the same
// logical order. Contiguous tensors are reshaped without copying.
func (cpu *CPUBackend) Reshape(ctx context.Context, t *tensor.RawTensor, dims tensor.Dim4) (*tensor.RawTensor, error) {
	if err := dims.Validate(); err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	if dims.Elements() != t.NumElements() {
		return nil, fmt.Errorf("reshape: %w: cannot reshape %v (%d elements) to %v (%d elements)",
			tensor.ErrShape, t.Dims(), t.NumElements(), dims, dims.Elements())
	}
	if t.IsLinear() {
		return t.View(dims, dims.Strides(), 0)
	}

	dense, err := cpu.Contiguous(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	defer dense.Release()
	return dense.View(dims, dims.Strides(), 0)
}

// Contiguous copies t into a new tensor with default strides.
func (cpu *CPUBackend) Contiguous(ctx context.Context, t *tensor.RawTensor) (*tensor.RawTensor, error) {
	src := layout{dims: t.Dims(), strides: t.Strides()}
	return cpu.produce(ctx, "contiguous", src.dims, t.DType(), func(out *tensor.RawTensor) error {
		return cpu.gather(out, t, src)
	}, t)
}

// Flip reverses the element order along every axis whose mask entry is set.
func (cpu *CPUBackend) Flip(ctx context.Context, t *tensor.RawTensor, mask [4]bool) (*tensor.RawTensor, error) {
	d := t.Dims()
	src := layout{dims: d, strides: t.Strides()}
	for a, flip := range mask {
		if flip {
			src.base += (d[a] - 1) * src.strides[a]
			src.strides[a] = -src.strides[a]
		}
	}
	return cpu.produce(ctx, "flip", d, t.DType(), func(out *tensor.RawTensor) error {
		return cpu.gather(out, t, src)
	}, t)
}

// layout addresses the source of a gather: element (i0,i1,i2,i3) is read
// from base + sum(i*strides). Strides may be negative.
type layout struct {
	dims    tensor.Dim4
	strides tensor.Dim4
	base    int
}

// gather fills the contiguous dst from src. Only the element size matters,
// so every dtype moves through one of five word widths.
func (cpu *CPUBackend) gather(dst, src *tensor.RawTensor, l layout) error {
	if dst.DType() != src.DType() {
		return fmt.Errorf("%w: %s into %s", tensor.ErrDataType, src.DType(), dst.DType())
	}
	if dst.Dims() != l.dims || !dst.IsLinear() {
		return fmt.Errorf("%w: gather into %v, want contiguous %v", tensor.ErrShape, dst.Dims(), l.dims)
	}

	switch size := dst.DType().Size(); size {
	case 1:
		return gatherWords[uint8](dst, src, l, cpu.par)
	case 2:
		return gatherWords[uint16](dst, src, l, cpu.par)
	case 4:
		return gatherWords[uint32](dst, src, l, cpu.par)
	case 8:
		return gatherWords[uint64](dst, src, l, cpu.par)
	case 16:
		return gatherWords[[2]uint64](dst, src, l, cpu.par)
	default:
		return fmt.Errorf("%w: element size %d", tensor.ErrDataType, size)
	}
}

func words[E any](r *tensor.RawTensor) []E {
	data := r.Data()
	var zero E
	//nolint:gosec // element width matches the dtype size checked by the caller
	return unsafe.Slice((*E)(unsafe.Pointer(&data[0])), len(data)/int(unsafe.Sizeof(zero)))
}

func gatherWords[E any](dst, src *tensor.RawTensor, l layout, cfg parallel.Config) error {
	out, in := words[E](dst), words[E](src)
	d, s := l.dims, l.strides
	rows := d[1] * d[2] * d[3]

	return parallel.For(rows, func(r int) {
		i1 := r % d[1]
		i2 := (r / d[1]) % d[2]
		i3 := r / (d[1] * d[2])
		from := l.base + i1*s[1] + i2*s[2] + i3*s[3]
		row := out[r*d[0] : (r+1)*d[0]]
		for i0 := range row {
			row[i0] = in[from+i0*s[0]]
		}
	}, cfg)
}
