// Package launch plans thread and block geometry for element-wise device
// kernels.
//
// The planner picks a small thread block, then decides per axis whether the
// grid should cover the whole extent in one pass or stay smaller and loop.
// Looping is preferred when the working set overflows the L2 cache or when
// more threads would be launched than the device can keep resident.
package launch

import (
	"fmt"

	"github.com/born-ml/volconv/internal/device"
	"github.com/born-ml/volconv/internal/tensor"
)

const (
	warpSize      = 32  // Threads scheduled together.
	vectorThreads = 128 // Block width for purely 1-D work.
	maxThreadsX   = 128 // Widest block along axis 0.

	// occupancy is how many blocks per axis must fit before a block shape
	// is considered worth using.
	occupancy = 2

	// integratedBusWidth marks devices that share memory with the host.
	integratedBusWidth = 64
)

// Limits on IO accepted by the planner.
const (
	MaxBuffers     = 64 // Inputs or outputs of one kernel.
	MaxElementSize = 16 // complex128.
)

// Dim3 is a thread-block or grid shape.
type Dim3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Volume returns X*Y*Z.
func (d Dim3) Volume() int {
	return d.X * d.Y * d.Z
}

func (d Dim3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", d.X, d.Y, d.Z)
}

// Loops holds one flag per axis; a set flag means the kernel iterates over
// that axis instead of relying on the grid alone.
type Loops [4]bool

// IO describes the memory traffic of the kernel being planned.
type IO struct {
	Inputs      int `json:"inputs"`       // Number of input buffers.
	Outputs     int `json:"outputs"`      // Number of output buffers.
	TotalSize   int `json:"total_size"`   // Bytes touched by all inputs and outputs.
	ElementSize int `json:"element_size"` // Size in bytes of one output element.
}

// Validate checks that the description is usable by the planner.
func (io IO) Validate() error {
	switch {
	case io.Inputs < 0 || io.Inputs > MaxBuffers:
		return fmt.Errorf("launch: inputs must be in [0, %d], got %d", MaxBuffers, io.Inputs)
	case io.Outputs < 1 || io.Outputs > MaxBuffers:
		return fmt.Errorf("launch: outputs must be in [1, %d], got %d", MaxBuffers, io.Outputs)
	case io.ElementSize < 1 || io.ElementSize > MaxElementSize:
		return fmt.Errorf("launch: element size must be in [1, %d], got %d", MaxElementSize, io.ElementSize)
	case io.TotalSize < 0:
		return fmt.Errorf("launch: total size must be non-negative, got %d", io.TotalSize)
	}
	return nil
}

// Partitioner plans launches for one output shape on one device.
// It holds no mutable state and may be shared between goroutines.
type Partitioner struct {
	dims  tensor.Dim4
	ndims int
	cap   device.Capability
}

// New returns a partitioner for an output of shape dims with ndims active
// axes. An ndims smaller than the shape's rank is raised to the rank.
func New(dims tensor.Dim4, ndims int, c device.Capability) (*Partitioner, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if ndims < 1 || ndims > 4 {
		return nil, fmt.Errorf("launch: active dimensions must be in [1, 4], got %d", ndims)
	}
	return &Partitioner{dims: dims, ndims: max(ndims, dims.NDims()), cap: c}, nil
}

// Dims returns the planned output shape.
func (p *Partitioner) Dims() tensor.Dim4 {
	return p.dims
}

// Threads returns the block shape. It never exceeds 128 threads.
func (p *Partitioner) Threads() Dim3 {
	d0, d1, d2 := p.dims[0], p.dims[1], p.dims[2]
	if d1 == 1 && d2 == 1 {
		return Dim3{vectorThreads, 1, 1}
	}

	par := parallelThreads(d0*d1*d2, p.cap.MaxParallelThreads)
	tx := threadsAxis0(d0)
	ty := threadsAxis1(d1, tx, par)
	if d2 == 1 || tx*ty*occupancy > par {
		return Dim3{tx, ty, 1}
	}
	return Dim3{tx, ty, threadsAxis2(d2, tx*ty, par)}
}

// BlocksFull returns the grid that covers axes 0 to 2 in one pass. Axis 3
// is walked inside every block, as with Plan.
func (p *Partitioner) BlocksFull(threads Dim3) Dim3 {
	return Dim3{
		X: divup(p.dims[0], threads.X),
		Y: divup(p.dims[1], threads.Y),
		Z: divup(p.dims[2], threads.Z),
	}
}

// Blocks returns the grid shape and loop flags for the given block shape.
func (p *Partitioner) Blocks(threads Dim3, io IO) (Dim3, Loops) {
	g := p.plan(threads, io)
	return g.Blocks, g.Loop
}

// Plan runs the whole heuristic: threads first, then blocks.
func (p *Partitioner) Plan(io IO) (Geometry, error) {
	if err := io.Validate(); err != nil {
		return Geometry{}, err
	}
	return p.plan(p.Threads(), io), nil
}

func (p *Partitioner) plan(threads Dim3, io IO) Geometry {
	c := p.cap
	d0, d1, d2, d3 := p.dims[0], p.dims[1], p.dims[2], p.dims[3]
	maxThreads := c.MaxParallelThreads * occupancyBoost(io)

	g := Geometry{Threads: threads, Blocks: Dim3{1, 1, 1}}

	if p.ndims == 1 {
		if d0 > maxThreads {
			if cacheBound(io.TotalSize, c.L2CacheSize) {
				div := largeVolumeDivider(c.MemoryBusWidth, io.ElementSize, io.Inputs, io.Outputs, 1, false)
				if div > 1 {
					g.Blocks.X = max(1, d0/(div*threads.X))
					g.mark(0, CacheSplit)
				}
			} else {
				g.Blocks.X = saturationBlocks(maxThreads, threads.X)
				g.mark(0, Saturation)
			}
		}
		if !g.Loop[0] {
			g.Blocks.X = divup(d0, threads.X)
		}
	} else {
		if d3 != 1 {
			g.mark(3, Batch)
		}
		g.Blocks.X = divup(d0, threads.X)
		g.Blocks.Z = divup(d2, threads.Z)
		mult := d3
		if g.Blocks.Z > c.MaxGridSize[2] {
			mult = mult * g.Blocks.Z / c.MaxGridSize[2]
			g.Blocks.Z = c.MaxGridSize[2]
			g.mark(2, GridClamp)
		}

		placed := threads.X * g.Blocks.X * threads.Z * g.Blocks.Z
		if d1 > threads.Y && placed*d1 > maxThreads {
			if d0*io.ElementSize*8 > c.MemoryBusWidth*c.MultiProcessorCount && cacheBound(io.TotalSize, c.L2CacheSize) {
				div := largeVolumeDivider(c.MemoryBusWidth, io.ElementSize, io.Inputs, io.Outputs, mult, true)
				if div > 1 {
					g.Blocks.Y = max(1, d1/(div*threads.Y))
					g.mark(1, CacheSplit)
				}
			} else {
				g.Blocks.Y = saturationBlocks(maxThreads, placed*threads.Y)
				g.mark(1, Saturation)
			}
		}
		if !g.Loop[1] {
			g.Blocks.Y = divup(d1, threads.Y)
		}
		if by, clamped := clampGrid(g.Blocks.Y, c.MaxGridSize[1]); clamped {
			g.Blocks.Y = by
			g.mark(1, GridClamp)
		}
	}

	if bx, clamped := clampGrid(g.Blocks.X, c.MaxGridSize[0]); clamped {
		g.Blocks.X = bx
		g.mark(0, GridClamp)
	}

	p.mustFit(g)
	return g
}

// mustFit panics when a planned launch would be rejected by the device.
// Reaching it means the heuristic itself is broken.
func (p *Partitioner) mustFit(g Geometry) {
	if v := g.Threads.Volume(); v > p.cap.MaxThreadsPerBlock {
		panic(fmt.Sprintf("launch: block %v has %d threads, device %q allows %d",
			g.Threads, v, p.cap.Name, p.cap.MaxThreadsPerBlock))
	}
	blocks := [3]int{g.Blocks.X, g.Blocks.Y, g.Blocks.Z}
	for i, b := range blocks {
		if b < 1 || b > p.cap.MaxGridSize[i] {
			panic(fmt.Sprintf("launch: grid %v exceeds device %q limits %v for dims %v",
				g.Blocks, p.cap.Name, p.cap.MaxGridSize, p.dims))
		}
	}
}

// parallelThreads is the per-block thread budget: one warp while the
// device can hold all work at once, up to four warps beyond that.
func parallelThreads(relevant, maxParallel int) int {
	if relevant <= maxParallel {
		return warpSize
	}
	return min(4, relevant/maxParallel) * warpSize
}

func threadsAxis0(d0 int) int {
	switch {
	case d0 == 1:
		return 1
	case d0 <= warpSize:
		return warpSize
	default:
		return min(maxThreadsX, divup(d0, warpSize)*warpSize)
	}
}

// threadsAxis1 picks the largest power of two that fits the budget and
// either divides d1 or leaves at least two blocks along the axis.
func threadsAxis1(d1, tx, par int) int {
	for v := 64; v > 1; v /= 2 {
		if tx*v <= par && (d1%v == 0 || d1 > occupancy*v) {
			return v
		}
	}
	return 1
}

func threadsAxis2(d2, txy, par int) int {
	for v := 8; v > 1; v /= 2 {
		if txy*v <= par && d2%v == 0 {
			return v
		}
	}
	return 1
}

// occupancyBoost doubles the resident-thread budget for kernels with a
// small per-element footprint.
func occupancyBoost(io IO) int {
	if io.ElementSize*io.Inputs*io.Inputs > 8 {
		return 1
	}
	return 2
}

// cacheBound reports whether the working set exceeds 1.5x the L2 cache.
func cacheBound(totalSize, l2 int) bool {
	return totalSize > l2+l2/2
}

// largeVolumeDivider returns by how much the grid is shrunk along the
// looping axis once the working set no longer fits in cache. Each extra
// input shrinks it by a further quarter.
func largeVolumeDivider(busWidth, elemSize, inputs, outputs, mult int, wordSplit bool) int {
	var div int
	if busWidth == integratedBusWidth {
		switch elemSize {
		case 1:
			div = 4
		case 2:
			div = 2
		default:
			div = 1
		}
	} else {
		switch {
		case elemSize == 1:
			div = 32
		case elemSize == 2:
			div = 8
		case elemSize == 4 && wordSplit:
			div = 2
		default:
			div = 1
		}
		div = div / mult / max(1, outputs)
	}
	for i := 1; i < inputs && div > 1; i++ {
		div = div * 3 / 4
	}
	return div
}

// saturationBlocks returns the blocks needed to place maxThreads threads
// when each block contributes placed of them.
func saturationBlocks(maxThreads, placed int) int {
	return max(1, maxThreads/placed)
}

func clampGrid(blocks, limit int) (int, bool) {
	if blocks > limit {
		return limit, true
	}
	return blocks, false
}

func divup(a, b int) int {
	return (a + b - 1) / b
}

// Plan builds a partitioner and plans a launch in one call.
func Plan(dims tensor.Dim4, ndims int, c device.Capability, io IO) (Geometry, error) {
	p, err := New(dims, ndims, c)
	if err != nil {
		return Geometry{}, err
	}
	return p.Plan(io)
}
