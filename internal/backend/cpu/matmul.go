package cpu

import (
	"context"
	"fmt"

	"github.com/born-ml/volconv/internal/tensor"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
)

// MatMul computes op(a) × op(b) for 2-D tensors, where op transposes its
// operand when the matching flag is set.
//
// Shapes: op(a) is [M, K], op(b) is [K, N], the result is [M, N].
// float32 and float64 go through BLAS; float16 is accumulated in float32.
func (cpu *CPUBackend) MatMul(ctx context.Context, a, b *tensor.RawTensor, transA, transB bool) (*tensor.RawTensor, error) {
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("matmul: %w: %s × %s", tensor.ErrDataType, a.DType(), b.DType())
	}
	ad, bd := a.Dims(), b.Dims()
	if ad[2] != 1 || ad[3] != 1 || bd[2] != 1 || bd[3] != 1 {
		return nil, fmt.Errorf("matmul: %w: only 2-D operands are supported, got %v and %v", tensor.ErrShape, ad, bd)
	}

	m, k := ad[0], ad[1]
	if transA {
		m, k = k, m
	}
	kb, n := bd[0], bd[1]
	if transB {
		kb, n = n, kb
	}
	if k != kb {
		return nil, fmt.Errorf("matmul: %w: inner dimensions differ (%d vs %d) for %v × %v",
			tensor.ErrShape, k, kb, ad, bd)
	}

	a, err := cpu.dense(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("matmul: %w", err)
	}
	defer a.Release()
	b, err = cpu.dense(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("matmul: %w", err)
	}
	defer b.Release()

	g := gemm{m: m, n: n, k: k, transA: transA, transB: transB}
	return cpu.produce(ctx, "matmul", tensor.Dim4{m, n, 1, 1}, a.DType(), func(out *tensor.RawTensor) error {
		switch a.DType() {
		case tensor.Float32:
			gemmFloat32(g, out, a, b)
		case tensor.Float64:
			gemmFloat64(g, out, a, b)
		case tensor.Float16:
			gemmFloat16(g, out, a, b)
		case tensor.Complex64:
			gemmNaive[complex64](g, out, a, b)
		case tensor.Complex128:
			gemmNaive[complex128](g, out, a, b)
		case tensor.Int8:
			gemmNaive[int8](g, out, a, b)
		case tensor.Int16:
			gemmNaive[int16](g, out, a, b)
		case tensor.Int32:
			gemmNaive[int32](g, out, a, b)
		case tensor.Int64:
			gemmNaive[int64](g, out, a, b)
		case tensor.Uint8:
			gemmNaive[uint8](g, out, a, b)
		case tensor.Uint16:
			gemmNaive[uint16](g, out, a, b)
		case tensor.Uint32:
			gemmNaive[uint32](g, out, a, b)
		case tensor.Uint64:
			gemmNaive[uint64](g, out, a, b)
		default:
			return fmt.Errorf("%w: matmul of %s", tensor.ErrDataType, a.DType())
		}
		return nil
	}, a, b)
}

// dense returns t itself (with an extra reference) when it is contiguous,
// otherwise a contiguous copy.
func (cpu *CPUBackend) dense(ctx context.Context, t *tensor.RawTensor) (*tensor.RawTensor, error) {
	if t.IsLinear() {
		return t.Clone(), nil
	}
	return cpu.Contiguous(ctx, t)
}

type gemm struct {
	m, n, k        int
	transA, transB bool
}

// Tensors are column-major, BLAS General is row-major: a column-major
// [r, c] buffer is the row-major [c, r] transpose. C = op(A)·op(B) is
// therefore computed as Cᵀ = op(B)ᵀ·op(A)ᵀ on the row-major views.
func (g gemm) flags() (blas.Transpose, blas.Transpose) {
	tb, ta := blas.NoTrans, blas.NoTrans
	if g.transB {
		tb = blas.Trans
	}
	if g.transA {
		ta = blas.Trans
	}
	return tb, ta
}

// rowMajor returns the row count and column count of the row-major view
// of a column-major [d0, d1] buffer.
func rowMajor(d tensor.Dim4) (rows, cols int) {
	return d[1], d[0]
}

func gemmFloat32(g gemm, out, a, b *tensor.RawTensor) {
	tb, ta := g.flags()
	gemm32(tb, ta, a.Dims(), b.Dims(), g,
		tensor.Values[float32](a), tensor.Values[float32](b), tensor.Values[float32](out))
}

func gemm32(tb, ta blas.Transpose, ad, bd tensor.Dim4, g gemm, av, bv, cv []float32) {
	ar, ac := rowMajor(ad)
	br, bc := rowMajor(bd)
	blas32.Gemm(tb, ta, 1,
		blas32.General{Rows: br, Cols: bc, Stride: bc, Data: bv},
		blas32.General{Rows: ar, Cols: ac, Stride: ac, Data: av},
		0,
		blas32.General{Rows: g.n, Cols: g.m, Stride: g.m, Data: cv})
}

func gemmFloat64(g gemm, out, a, b *tensor.RawTensor) {
	tb, ta := g.flags()
	ar, ac := rowMajor(a.Dims())
	br, bc := rowMajor(b.Dims())
	blas64.Gemm(tb, ta, 1,
		blas64.General{Rows: br, Cols: bc, Stride: bc, Data: tensor.Values[float64](b)},
		blas64.General{Rows: ar, Cols: ac, Stride: ac, Data: tensor.Values[float64](a)},
		0,
		blas64.General{Rows: g.n, Cols: g.m, Stride: g.m, Data: tensor.Values[float64](out)})
}

func gemmFloat16(g gemm, out, a, b *tensor.RawTensor) {
	widen := func(h []float16.Float16) []float32 {
		f := make([]float32, len(h))
		for i, v := range h {
			f[i] = v.Float32()
		}
		return f
	}
	av := widen(tensor.Values[float16.Float16](a))
	bv := widen(tensor.Values[float16.Float16](b))
	cv := make([]float32, g.m*g.n)

	tb, ta := g.flags()
	gemm32(tb, ta, a.Dims(), b.Dims(), g, av, bv, cv)

	dst := tensor.Values[float16.Float16](out)
	for i, v := range cv {
		dst[i] = float16.Fromfloat32(v)
	}
}

type number interface {
	~complex64 | ~complex128 |
		~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64
}

// gemmNaive is the reference triple loop for types BLAS does not cover.
// Integer products wrap on overflow.
func gemmNaive[T number](g gemm, out, a, b *tensor.RawTensor) {
	av, bv, cv := tensor.Values[T](a), tensor.Values[T](b), tensor.Values[T](out)
	lda, ldb := a.Dims()[0], b.Dims()[0]

	opA := func(i, p int) T {
		if g.transA {
			return av[p+i*lda]
		}
		return av[i+p*lda]
	}
	opB := func(p, j int) T {
		if g.transB {
			return bv[j+p*ldb]
		}
		return bv[p+j*ldb]
	}

	for j := 0; j < g.n; j++ {
		for i := 0; i < g.m; i++ {
			var sum T
			for p := 0; p < g.k; p++ {
				sum += opA(i, p) * opB(p, j)
			}
			cv[i+j*g.m] = sum
		}
	}
}
