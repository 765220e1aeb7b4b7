// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/volconv/backend/cpu"
	"github.com/born-ml/volconv/tensor"
)

func TestBackend(t *testing.T) {
	b := cpu.New(cpu.WithQueueDepth(2))
	defer func() { _ = b.Close() }()
	assert.Equal(t, "CPU", b.Name())
	assert.Equal(t, tensor.CPU, b.Device())

	ctx := context.Background()
	a, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Dim4{2, 3, 1, 1}, tensor.CPU)
	require.NoError(t, err)
	x, err := tensor.FromSlice([]float32{1, 1, 1}, tensor.Dim4{3, 1, 1, 1}, tensor.CPU)
	require.NoError(t, err)

	// Column-major [2,3] times a column of ones sums each row.
	out, err := b.MatMul(ctx, a, x, false, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Dim4{2, 1, 1, 1}, out.Dims())
	assert.Equal(t, []float32{9, 12}, tensor.Flatten[float32](out))

	flipped, err := b.Flip(ctx, x, [4]bool{true})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1}, tensor.Flatten[float32](flipped))
	assert.NoError(t, b.Sync(ctx))
}
