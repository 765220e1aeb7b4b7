//go:build windows

package webgpu

import (
	"context"
	"testing"

	"github.com/born-ml/volconv/internal/backend/cpu"
	"github.com/born-ml/volconv/internal/conv"
	"github.com/born-ml/volconv/internal/tensor"
	"github.com/born-ml/volconv/internal/unwrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *WebGPUBackend {
	t.Helper()
	b, err := New()
	if err != nil {
		t.Logf("WebGPU not available: %v", err)
		t.Skip("WebGPU not available on this system")
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func sequence(t *testing.T, dims tensor.Dim4) *tensor.RawTensor {
	t.Helper()
	data := make([]float32, dims.Elements())
	for i := range data {
		data[i] = float32(i + 1)
	}
	r, err := tensor.FromSlice(data, dims, tensor.CPU)
	require.NoError(t, err)
	return r
}

func TestNew(t *testing.T) {
	b := newBackend(t)
	assert.NotEmpty(t, b.Name())
	assert.Equal(t, tensor.WebGPU, b.Device())
	require.NoError(t, b.Capability().Validate())
	assert.Equal(t, b.Limits().Capability(), b.Capability())
}

func TestUnwrap3DMatchesHost(t *testing.T) {
	b := newBackend(t)
	host := cpu.New()
	defer func() { _ = host.Close() }()
	ctx := context.Background()

	tests := []struct {
		name   string
		in     tensor.Dim4
		w      unwrap.Window
		column bool
	}{
		{"column", tensor.Dim4{5, 4, 3, 2}, unwrap.Cube(2, 1, 0, 1), true},
		{"row padded", tensor.Dim4{6, 6, 6, 1}, unwrap.Cube(3, 2, 1, 1), false},
		{"dilated", tensor.Dim4{9, 9, 9, 1}, unwrap.Cube(3, 1, 2, 2), true},
		{"many windows", tensor.Dim4{48, 48, 48, 1}, unwrap.Cube(3, 1, 1, 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sequence(t, tt.in)
			defer in.Release()

			want, err := host.Unwrap3D(ctx, in, tt.w, tt.column)
			require.NoError(t, err)
			defer want.Release()
			got, err := b.Unwrap3D(ctx, in, tt.w, tt.column)
			require.NoError(t, err)
			defer got.Release()

			assert.Equal(t, want.Dims(), got.Dims())
			assert.Equal(t, tensor.WebGPU, got.Device())
			assert.Equal(t, tensor.Values[float32](want), tensor.Values[float32](got))
		})
	}
}

func TestUnwrap3DRejectsFloat64(t *testing.T) {
	b := newBackend(t)
	in, err := tensor.NewRaw(tensor.Dim4{4, 4, 4, 1}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	defer in.Release()

	_, err = b.Unwrap3D(context.Background(), in, unwrap.Cube(2, 1, 0, 1), true)
	require.ErrorIs(t, err, conv.ErrUnsupportedType)
	assert.Contains(t, err.Error(), "only float32")
}
