// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/volconv/tensor"
)

func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Dim4{2, 3, 1, 1}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	defer raw.Release()

	assert.Equal(t, tensor.Dim4{2, 3, 1, 1}, raw.Dims())
	assert.Equal(t, tensor.Dim4{1, 2, 6, 6}, raw.Strides())
	assert.Equal(t, tensor.Float32, raw.DType())
	assert.Equal(t, tensor.CPU, raw.Device())
	assert.Equal(t, 6, raw.NumElements())
	assert.Equal(t, 24, raw.ByteSize())

	tensor.Values[float32](raw)[3] = 7
	assert.Equal(t, float32(7), tensor.At[float32](raw, 1, 1, 0, 0))

	clone := raw.Clone()
	defer clone.Release()
	assert.False(t, raw.IsUnique())
}

func TestTypedTensor(t *testing.T) {
	vol, err := tensor.FromValues([]int32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Dim4{2, 2, 2, 1})
	require.NoError(t, err)

	assert.Equal(t, int32(7), vol.At(0, 1, 1, 0))
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6, 7, 8}, vol.ToSlice())

	_, err = tensor.Wrap[float64](vol.Raw())
	assert.ErrorIs(t, err, tensor.ErrDataType)
}

func TestFromSliceRejectsShape(t *testing.T) {
	_, err := tensor.FromSlice([]float64{1, 2, 3}, tensor.Dim4{2, 2, 1, 1}, tensor.CPU)
	assert.ErrorIs(t, err, tensor.ErrShape)

	dt, err := tensor.ParseDataType("float16")
	require.NoError(t, err)
	assert.Equal(t, tensor.Float16, dt)
}
