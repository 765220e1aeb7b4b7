// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package launch_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/volconv/launch"
	"github.com/born-ml/volconv/tensor"
)

func TestPlanAndDispatch(t *testing.T) {
	dims := tensor.Dim4{1024, 1024, 1, 1}
	geom, err := launch.Plan(dims, 2, launch.Discrete(), launch.IO{
		Inputs: 1, Outputs: 1, TotalSize: 2 * 4 * dims.Elements(), ElementSize: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, launch.CacheSplit, geom.Strategy[1])
	assert.Equal(t, [4]int{1, 2, 1, 1}, geom.Passes(dims))

	var visited atomic.Int64
	require.NoError(t, launch.Dispatch(geom, dims, 4, func(_, _, _, _ int) {
		visited.Add(1)
	}))
	assert.Equal(t, int64(dims.Elements()), visited.Load())
}

func TestPartitioner(t *testing.T) {
	p, err := launch.New(tensor.Dim4{64, 64, 1, 1}, 2, launch.IntegratedGPU())
	require.NoError(t, err)
	threads := p.Threads()
	assert.LessOrEqual(t, threads.Volume(), launch.IntegratedGPU().MaxThreadsPerBlock)

	blocks := p.BlocksFull(threads)
	assert.GreaterOrEqual(t, blocks.X*threads.X, 64)
	assert.GreaterOrEqual(t, blocks.Y*threads.Y, 64)

	bad := launch.WebGPUDefaults()
	bad.MultiProcessorCount = 0
	_, err = launch.New(tensor.Dim4{8, 1, 1, 1}, 1, bad)
	assert.ErrorIs(t, err, launch.ErrInvalidCapability)

	err = launch.Dispatch(launch.Geometry{Threads: launch.Dim3{X: 2, Y: 1, Z: 1}, Blocks: launch.Dim3{X: 1, Y: 1, Z: 1}},
		tensor.Dim4{8, 1, 1, 1}, 1, func(_, _, _, _ int) {})
	assert.ErrorIs(t, err, launch.ErrGeometry)
}
