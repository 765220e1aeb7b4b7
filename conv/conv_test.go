// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/volconv/backend/cpu"
	"github.com/born-ml/volconv/backend/grid"
	"github.com/born-ml/volconv/conv"
	"github.com/born-ml/volconv/launch"
	"github.com/born-ml/volconv/tensor"
)

func TestPublicAPI(t *testing.T) {
	host := cpu.New()
	defer func() { _ = host.Close() }()
	dev, err := grid.New(launch.IntegratedGPU(), grid.WithWorkers(3))
	require.NoError(t, err)
	defer func() { _ = dev.Close() }()

	data := make([]float32, 4*4*4)
	for i := range data {
		data[i] = float32(i % 5)
	}
	signal, err := tensor.FromSlice(data, tensor.Dim4{4, 4, 4, 1}, tensor.CPU)
	require.NoError(t, err)
	filter, err := tensor.FromSlice([]float32{1, -1, 2, 0, 1, 1, -2, 3}, tensor.Dim4{2, 2, 2, 1}, tensor.CPU)
	require.NoError(t, err)

	p := conv.DefaultParams()
	p.Padding = [3]int{1, 0, 1}
	want, err := conv.OutputDims(signal.Dims(), filter.Dims(), p)
	require.NoError(t, err)
	assert.Equal(t, tensor.Dim4{5, 3, 5, 1}, want)

	a, err := conv.Convolve3(context.Background(), host, signal, filter, p)
	require.NoError(t, err)
	b, err := conv.Convolve3(context.Background(), dev, signal, filter, p)
	require.NoError(t, err)
	assert.Equal(t, want, a.Dims())
	assert.Equal(t, tensor.Flatten[float32](a), tensor.Flatten[float32](b))
}

func TestUnwrap(t *testing.T) {
	host := cpu.New()
	defer func() { _ = host.Close() }()

	in, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5}, tensor.Dim4{5, 1, 1, 1}, tensor.CPU)
	require.NoError(t, err)

	w := conv.Window{WX: 3, WY: 1, WZ: 1, SX: 2, SY: 1, SZ: 1, DX: 1, DY: 1, DZ: 1}
	out, err := conv.Unwrap(context.Background(), host, in, w, true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Dim4{3, 2, 1, 1}, out.Dims())
	assert.Equal(t, []float64{1, 2, 3, 3, 4, 5}, tensor.Flatten[float64](out))

	w.SX = 0
	_, err = conv.Unwrap(context.Background(), host, in, w, true)
	assert.ErrorIs(t, err, conv.ErrInvalidWindow)
}
