// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package launch plans how an element-wise kernel is spread over a device
// grid of thread blocks.
//
// Example:
//
//	import (
//	    "github.com/born-ml/volconv/launch"
//	    "github.com/born-ml/volconv/tensor"
//	)
//
//	func main() {
//	    dims := tensor.Dim4{1024, 1024, 1, 1}
//	    geom, err := launch.Plan(dims, 2, launch.Discrete(), launch.IO{
//	        Inputs: 1, Outputs: 1, TotalSize: 2 * 4 * dims.Elements(), ElementSize: 4,
//	    })
//	    if err != nil {
//	        panic(err)
//	    }
//	    fmt.Println(geom, geom.Passes(dims))
//	}
package launch

import (
	"github.com/born-ml/volconv/internal/device"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/tensor"
)

// Capability is the hardware profile a plan is made for.
type Capability = device.Capability

// Partitioner plans launches for one output shape on one device.
type Partitioner = launch.Partitioner

// Dim3 is a block or grid shape.
type Dim3 = launch.Dim3

// Loops marks the axes a kernel iterates over.
type Loops = launch.Loops

// IO describes the memory traffic of a kernel.
type IO = launch.IO

// Geometry is a complete launch plan.
type Geometry = launch.Geometry

// Strategy names the decision behind an axis' block count.
type Strategy = launch.Strategy

// Kernel is invoked once per output element by Dispatch.
type Kernel = launch.Kernel

// Strategies.
const (
	Full       = launch.Full
	CacheSplit = launch.CacheSplit
	Saturation = launch.Saturation
	GridClamp  = launch.GridClamp
	Batch      = launch.Batch
)

// Errors.
var (
	ErrGeometry          = launch.ErrGeometry
	ErrInvalidCapability = device.ErrInvalidCapability
)

// New returns a partitioner for an output of shape dims with ndims active axes.
func New(dims tensor.Dim4, ndims int, c Capability) (*Partitioner, error) {
	return launch.New(dims, ndims, c)
}

// Plan picks threads and blocks for dims on device c.
func Plan(dims tensor.Dim4, ndims int, c Capability, io IO) (Geometry, error) {
	return launch.Plan(dims, ndims, c, io)
}

// Dispatch runs kernel over every index of dims following g, using
// workers goroutines.
func Dispatch(g Geometry, dims tensor.Dim4, workers int, kernel Kernel) error {
	return launch.Dispatch(g, dims, workers, kernel)
}

// Host is the profile of this machine's CPU.
func Host() Capability { return device.Host() }

// Discrete is a mid-range dedicated GPU profile.
func Discrete() Capability { return device.Discrete() }

// IntegratedGPU is a small shared-memory GPU profile.
func IntegratedGPU() Capability { return device.IntegratedGPU() }

// WebGPUDefaults is the profile guaranteed by every WebGPU implementation.
func WebGPUDefaults() Capability { return device.WebGPUDefaults() }
