package unwrap

import (
	"github.com/born-ml/volconv/internal/tensor"
)

// Kernel holds the precomputed state of one unwrap. It reads from in and
// writes into out, which must have the shape OutputDims returns. Distinct
// windows touch disjoint output elements, so Window and Element may run
// concurrently for different indices.
type Kernel[T tensor.Element] struct {
	in, out []T
	idims   tensor.Dim4
	is, os  tensor.Dim4
	w       Window
	nx, ny  int
	nw      int
	column  bool
}

// NewKernel prepares an unwrap of in into out. The window must already have
// been checked against in with OutputDims.
func NewKernel[T tensor.Element](out, in *tensor.RawTensor, w Window, column bool) *Kernel[T] {
	n, err := w.Counts(in.Dims())
	if err != nil {
		panic("unwrap: kernel built for unchecked window: " + err.Error())
	}
	return &Kernel[T]{
		in:     tensor.Values[T](in),
		out:    tensor.Values[T](out),
		idims:  in.Dims(),
		is:     in.Strides(),
		os:     out.Strides(),
		w:      w,
		nx:     n[0],
		ny:     n[1],
		nw:     n[0] * n[1] * n[2],
		column: column,
	}
}

// Windows returns the number of windows per batch.
func (k *Kernel[T]) Windows() int {
	return k.nw
}

// Batches returns the number of volumes.
func (k *Kernel[T]) Batches() int {
	return k.idims[3]
}

// Run unwraps every window of every batch on the calling goroutine.
func (k *Kernel[T]) Run() {
	for n := 0; n < k.idims[3]; n++ {
		for col := 0; col < k.nw; col++ {
			k.Window(n, col)
		}
	}
}

// origin returns the input coordinate of offset (0,0,0) of window col.
func (k *Kernel[T]) origin(col int) (int, int, int) {
	winx := col % k.nx
	winy := (col / k.nx) % k.ny
	winz := col / (k.nx * k.ny)
	return winx*k.w.SX - k.w.PX, winy*k.w.SY - k.w.PY, winz*k.w.SZ - k.w.PZ
}

// Window writes all wx*wy*wz elements of window col of batch n.
func (k *Kernel[T]) Window(n, col int) {
	w := k.w
	sx, sy, sz := k.origin(col)
	in := k.in[n*k.is[3]:]

	// windows entirely inside the volume skip the per-element test
	interior := sx >= 0 && sx+(w.WX-1)*w.DX < k.idims[0] &&
		sy >= 0 && sy+(w.WY-1)*w.DY < k.idims[1] &&
		sz >= 0 && sz+(w.WZ-1)*w.DZ < k.idims[2]

	// step between consecutive window offsets in the output
	step, base := k.os[0], col*k.os[1]+n*k.os[2]
	if !k.column {
		step, base = k.os[1], col*k.os[0]+n*k.os[2]
	}

	oloc := 0
	for z := 0; z < w.WZ; z++ {
		iz := sz + z*w.DZ
		for y := 0; y < w.WY; y++ {
			iy := sy + y*w.DY
			for x := 0; x < w.WX; x++ {
				ix := sx + x*w.DX
				var v T
				if interior || (ix >= 0 && ix < k.idims[0] &&
					iy >= 0 && iy < k.idims[1] &&
					iz >= 0 && iz < k.idims[2]) {
					v = in[ix*k.is[0]+iy*k.is[1]+iz*k.is[2]]
				}
				k.out[base+oloc*step] = v
				oloc++
			}
		}
	}
}

// Element writes the single output element at (i0, i1, i2). i3 is always
// zero for an unwrap result and is ignored.
func (k *Kernel[T]) Element(i0, i1, i2, _ int) {
	w := k.w
	oloc, col := i0, i1
	if !k.column {
		oloc, col = i1, i0
	}

	sx, sy, sz := k.origin(col)
	ix := sx + (oloc%w.WX)*w.DX
	iy := sy + ((oloc/w.WX)%w.WY)*w.DY
	iz := sz + (oloc/(w.WX*w.WY))*w.DZ

	var v T
	if ix >= 0 && ix < k.idims[0] &&
		iy >= 0 && iy < k.idims[1] &&
		iz >= 0 && iz < k.idims[2] {
		v = k.in[ix*k.is[0]+iy*k.is[1]+iz*k.is[2]+i2*k.is[3]]
	}
	k.out[i0*k.os[0]+i1*k.os[1]+i2*k.os[2]] = v
}
