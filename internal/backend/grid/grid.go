// Package grid implements a device-parallel backend. Element-wise kernels
// are partitioned with the launch planner and run block by block on a pool
// of workers, the way an accelerator would run them. Dense primitives are
// shared with the host backend.
package grid

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/born-ml/volconv/internal/backend/cpu"
	"github.com/born-ml/volconv/internal/device"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/internal/logger"
	"github.com/born-ml/volconv/internal/tensor"
	"github.com/born-ml/volconv/internal/unwrap"
)

// GridBackend runs unwrap through launch geometry.
type GridBackend struct {
	*cpu.CPUBackend

	cap     device.Capability
	workers int
	log     logger.Logger
}

type options struct {
	log     logger.Logger
	workers int
}

// Option configures a GridBackend.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithWorkers sets how many goroutines execute blocks. The default is
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// New creates a backend for a device with capability c.
func New(c device.Capability, opts ...Option) (*GridBackend, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	o := options{log: logger.Discard(), workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		return nil, fmt.Errorf("grid: workers must be positive, got %d", o.workers)
	}

	return &GridBackend{
		CPUBackend: cpu.New(cpu.WithDevice(tensor.Grid), cpu.WithLogger(o.log)),
		cap:        c,
		workers:    o.workers,
		log:        o.log.With("backend", "grid", "device", c.Name),
	}, nil
}

// Name returns the backend name.
func (g *GridBackend) Name() string {
	return "Grid"
}

// Capability returns the device profile the backend plans against.
func (g *GridBackend) Capability() device.Capability {
	return g.cap
}

// PlanUnwrap returns the launch geometry Unwrap3D would use.
func (g *GridBackend) PlanUnwrap(in tensor.Dim4, dtype tensor.DataType, w unwrap.Window, column bool) (launch.Geometry, tensor.Dim4, error) {
	return PlanUnwrap(g.cap, in, dtype, w, column)
}

// PlanUnwrap plans an unwrap of an in-shaped volume on a device with
// capability c: one thread per output element, one input and one output.
func PlanUnwrap(c device.Capability, in tensor.Dim4, dtype tensor.DataType, w unwrap.Window, column bool) (launch.Geometry, tensor.Dim4, error) {
	dims, err := unwrap.OutputDims(in, w, column)
	if err != nil {
		return launch.Geometry{}, tensor.Dim4{}, err
	}
	io := launch.IO{
		Inputs:      1,
		Outputs:     1,
		TotalSize:   (in.Elements() + dims.Elements()) * dtype.Size(),
		ElementSize: dtype.Size(),
	}
	geom, err := launch.Plan(dims, dims.NDims(), c, io)
	if err != nil {
		return launch.Geometry{}, tensor.Dim4{}, err
	}
	return geom, dims, nil
}

// Unwrap3D extracts windows like the host backend, one output element per
// simulated device thread. The result is identical to the host result.
func (g *GridBackend) Unwrap3D(ctx context.Context, in *tensor.RawTensor, w unwrap.Window, column bool) (*tensor.RawTensor, error) {
	geom, dims, err := g.PlanUnwrap(in.Dims(), in.DType(), w, column)
	if err != nil {
		return nil, fmt.Errorf("unwrap3d: %w", err)
	}

	out, err := tensor.NewRaw(dims, in.DType(), tensor.Grid)
	if err != nil {
		return nil, fmt.Errorf("unwrap3d: failed to create result tensor: %w", err)
	}

	err = g.Run(ctx, "unwrap3d", func() error {
		start := time.Now()
		k, err := unwrap.New(out, in, w, column)
		if err != nil {
			return err
		}
		if err := launch.Dispatch(geom, dims, g.workers, k.Element); err != nil {
			return err
		}
		g.log.Debug("unwrap3d",
			"out", dims,
			"threads", geom.Threads,
			"blocks", geom.Blocks,
			"loop", geom.Loop,
			"passes", geom.Passes(dims),
			"elapsed", time.Since(start))
		return nil
	}, in, out)
	if err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}
