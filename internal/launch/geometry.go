package launch

import (
	"errors"
	"fmt"

	"github.com/born-ml/volconv/internal/parallel"
	"github.com/born-ml/volconv/internal/tensor"
)

// ErrGeometry is returned when a geometry cannot cover the shape it is
// dispatched over.
var ErrGeometry = errors.New("launch: geometry does not cover shape")

// Strategy records why an axis ended up with its block count.
type Strategy int

// Axis strategies.
const (
	Full       Strategy = iota // Grid covers the axis in one pass.
	CacheSplit                 // Working set exceeds L2; grid shrunk by the divider.
	Saturation                 // Grid capped at the resident-thread budget.
	GridClamp                  // Block count limited by the device grid.
	Batch                      // Axis 3, iterated inside every block.
)

func (s Strategy) String() string {
	switch s {
	case Full:
		return "full"
	case CacheSplit:
		return "cache-split"
	case Saturation:
		return "saturation"
	case GridClamp:
		return "grid-clamp"
	case Batch:
		return "batch"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// MarshalText encodes the strategy by name.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a strategy name.
func (s *Strategy) UnmarshalText(text []byte) error {
	for v := Full; v <= Batch; v++ {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("launch: unknown strategy %q", text)
}

// Geometry is a complete launch plan.
type Geometry struct {
	Threads  Dim3        `json:"threads"`
	Blocks   Dim3        `json:"blocks"`
	Loop     Loops       `json:"loop"`
	Strategy [4]Strategy `json:"strategy"`
}

func (g *Geometry) mark(axis int, s Strategy) {
	g.Loop[axis] = true
	g.Strategy[axis] = s
}

// Passes returns how many grid-stride passes the kernel makes per axis.
// Axes without a loop flag take a single pass; axis 3 is walked in full.
func (g Geometry) Passes(dims tensor.Dim4) [4]int {
	cover := [3]int{
		g.Threads.X * g.Blocks.X,
		g.Threads.Y * g.Blocks.Y,
		g.Threads.Z * g.Blocks.Z,
	}
	passes := [4]int{1, 1, 1, dims[3]}
	for a := 0; a < 3; a++ {
		if g.Loop[a] {
			passes[a] = divup(dims[a], cover[a])
		}
	}
	return passes
}

// Covers reports whether dispatching g over dims reaches every element.
func (g Geometry) Covers(dims tensor.Dim4) bool {
	cover := [3]int{
		g.Threads.X * g.Blocks.X,
		g.Threads.Y * g.Blocks.Y,
		g.Threads.Z * g.Blocks.Z,
	}
	for a := 0; a < 3; a++ {
		if cover[a] < 1 {
			return false
		}
		if !g.Loop[a] && cover[a] < dims[a] {
			return false
		}
	}
	return true
}

func (g Geometry) String() string {
	return fmt.Sprintf("threads=%v blocks=%v loop=%v", g.Threads, g.Blocks, g.Loop)
}

// Kernel is invoked once per output element.
type Kernel func(i0, i1, i2, i3 int)

// Dispatch executes kernel over dims the way a device would run the
// geometry: blocks are spread round-robin over workers, every block walks
// its passes and its threads, and indices outside dims are skipped.
// Each in-range index is visited exactly once.
func Dispatch(g Geometry, dims tensor.Dim4, workers int, kernel Kernel) error {
	if !g.Covers(dims) {
		return fmt.Errorf("%w: %v over %v", ErrGeometry, g, dims)
	}

	total := g.Blocks.Volume()
	workers = max(1, min(workers, total))
	passes := g.Passes(dims)
	t, b := g.Threads, g.Blocks

	return parallel.Workers(workers, func(w int) error {
		for id := w; id < total; id += workers {
			bx := id % b.X
			by := (id / b.X) % b.Y
			bz := id / (b.X * b.Y)

			for i3 := 0; i3 < passes[3]; i3++ {
				for p2 := 0; p2 < passes[2]; p2++ {
					for p1 := 0; p1 < passes[1]; p1++ {
						for p0 := 0; p0 < passes[0]; p0++ {
							runBlock(t, dims, kernel,
								(p0*b.X+bx)*t.X,
								(p1*b.Y+by)*t.Y,
								(p2*b.Z+bz)*t.Z,
								i3)
						}
					}
				}
			}
		}
		return nil
	})
}

func runBlock(t Dim3, dims tensor.Dim4, kernel Kernel, o0, o1, o2, i3 int) {
	for tz := 0; tz < t.Z; tz++ {
		i2 := o2 + tz
		if i2 >= dims[2] {
			return
		}
		for ty := 0; ty < t.Y; ty++ {
			i1 := o1 + ty
			if i1 >= dims[1] {
				break
			}
			for tx := 0; tx < t.X; tx++ {
				i0 := o0 + tx
				if i0 >= dims[0] {
					break
				}
				kernel(i0, i1, i2, i3)
			}
		}
	}
}
