package cpu

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/born-ml/volconv/internal/logger"
	"github.com/born-ml/volconv/internal/queue"
	"github.com/born-ml/volconv/internal/tensor"
	"github.com/born-ml/volconv/internal/unwrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

// Helper to create test backend.
func newTestBackend(t *testing.T) *CPUBackend {
	t.Helper()
	b := New()
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func fromSlice[T tensor.Element](t *testing.T, data []T, dims tensor.Dim4) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromSlice(data, dims, tensor.CPU)
	require.NoError(t, err)
	return r
}

func TestCPUBackend_New(t *testing.T) {
	b := newTestBackend(t)
	assert.Equal(t, "CPU", b.Name())
	assert.Equal(t, tensor.CPU, b.Device())
	assert.NoError(t, b.Sync(context.Background()))

	grid := New(WithDevice(tensor.Grid))
	defer grid.Close()
	assert.Equal(t, tensor.Grid, grid.Device())
}

func TestCPUBackend_Unwrap3D(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	in := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Dim4{4, 1, 1, 1})
	w := unwrap.Window{WX: 2, WY: 1, WZ: 1, SX: 1, SY: 1, SZ: 1, PX: 1, DX: 1, DY: 1, DZ: 1}

	out, err := b.Unwrap3D(ctx, in, w, true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Dim4{2, 5, 1, 1}, out.Dims())
	assert.Equal(t, tensor.CPU, out.Device())
	assert.Equal(t, []float32{0, 1, 1, 2, 2, 3, 3, 4, 4, 0}, tensor.Flatten[float32](out))

	t.Run("InvalidWindow", func(t *testing.T) {
		_, err := b.Unwrap3D(ctx, in, unwrap.Cube(5, 1, 0, 1), true)
		assert.ErrorIs(t, err, unwrap.ErrInvalidWindow)

		bad := w
		bad.SX = 0
		_, err = b.Unwrap3D(ctx, in, bad, true)
		assert.ErrorIs(t, err, unwrap.ErrInvalidWindow)
	})

	t.Run("Batch", func(t *testing.T) {
		batched := fromSlice(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Dim4{4, 1, 1, 2})
		out, err := b.Unwrap3D(ctx, batched, w, false)
		require.NoError(t, err)
		assert.Equal(t, tensor.Dim4{5, 2, 2, 1}, out.Dims())
		assert.Equal(t, float32(6), tensor.At[float32](out, 1, 1, 1, 0))
		assert.Equal(t, float32(0), tensor.At[float32](out, 4, 1, 1, 0))
	})
}

func TestCPUBackend_CancelledWait(t *testing.T) {
	var logs bytes.Buffer
	b := New(WithLogger(logger.Text(&logs, slog.LevelDebug)))

	gate := make(chan struct{})
	_, err := b.queue.Enqueue("hold", func(context.Context) error {
		<-gate
		return nil
	})
	require.NoError(t, err)

	vol := make([]float32, 14*14*14)
	for i := range vol {
		vol[i] = float32(i)
	}
	in := fromSlice(t, vol, tensor.Dim4{14, 14, 14, 1})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = b.Unwrap3D(ctx, in, unwrap.Cube(3, 1, 1, 1), true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	in.Release()

	a := fromSlice(t, []float64{1, 2, 3, 4}, tensor.Dim4{2, 2, 1, 1})
	done, stop := context.WithCancel(context.Background())
	stop()
	_, err = b.MatMul(done, a, a, true, false)
	assert.ErrorIs(t, err, context.Canceled)
	a.Release()

	// The abandoned tasks still run, against buffers they kept alive.
	close(gate)
	require.NoError(t, b.Close())
	assert.Contains(t, logs.String(), "unwrap3d")
	assert.NotContains(t, logs.String(), "task panicked")
	assert.NotContains(t, logs.String(), "task failed")
}

func TestCPUBackend_ClosedQueue(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())

	in := fromSlice(t, []float32{1, 2}, tensor.Dim4{2, 1, 1, 1})
	_, err := b.Unwrap3D(context.Background(), in, unwrap.Cube(1, 1, 0, 1), true)
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestCPUBackend_MatMul(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	// A = [[1 2 3] [4 5 6]], B = [[7 8] [9 10] [11 12]], stored column-major
	a := []float64{1, 4, 2, 5, 3, 6}
	aT := []float64{1, 2, 3, 4, 5, 6}
	bm := []float64{7, 9, 11, 8, 10, 12}
	bT := []float64{7, 8, 9, 10, 11, 12}
	want := []float64{58, 139, 64, 154}

	tests := []struct {
		name           string
		a, b           []float64
		ad, bd         tensor.Dim4
		transA, transB bool
	}{
		{"NN", a, bm, tensor.Dim4{2, 3, 1, 1}, tensor.Dim4{3, 2, 1, 1}, false, false},
		{"TN", aT, bm, tensor.Dim4{3, 2, 1, 1}, tensor.Dim4{3, 2, 1, 1}, true, false},
		{"NT", a, bT, tensor.Dim4{2, 3, 1, 1}, tensor.Dim4{2, 3, 1, 1}, false, true},
		{"TT", aT, bT, tensor.Dim4{3, 2, 1, 1}, tensor.Dim4{2, 3, 1, 1}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/float64", func(t *testing.T) {
			c, err := b.MatMul(ctx, fromSlice(t, tt.a, tt.ad), fromSlice(t, tt.b, tt.bd), tt.transA, tt.transB)
			require.NoError(t, err)
			assert.Equal(t, tensor.Dim4{2, 2, 1, 1}, c.Dims())
			assert.Equal(t, want, tensor.Flatten[float64](c))
		})

		t.Run(tt.name+"/float32", func(t *testing.T) {
			c, err := b.MatMul(ctx, fromSlice(t, convert[float32](tt.a), tt.ad), fromSlice(t, convert[float32](tt.b), tt.bd), tt.transA, tt.transB)
			require.NoError(t, err)
			assert.Equal(t, convert[float32](want), tensor.Flatten[float32](c))
		})

		t.Run(tt.name+"/int32", func(t *testing.T) {
			c, err := b.MatMul(ctx, fromSlice(t, convert[int32](tt.a), tt.ad), fromSlice(t, convert[int32](tt.b), tt.bd), tt.transA, tt.transB)
			require.NoError(t, err)
			assert.Equal(t, convert[int32](want), tensor.Flatten[int32](c))
		})
	}

	t.Run("float16", func(t *testing.T) {
		half := func(v []float64) []float16.Float16 {
			h := make([]float16.Float16, len(v))
			for i, x := range v {
				h[i] = float16.Fromfloat32(float32(x))
			}
			return h
		}
		c, err := b.MatMul(ctx, fromSlice(t, half(a), tensor.Dim4{2, 3, 1, 1}), fromSlice(t, half(bm), tensor.Dim4{3, 2, 1, 1}), false, false)
		require.NoError(t, err)
		assert.Equal(t, half(want), tensor.Flatten[float16.Float16](c))
	})

	t.Run("complex128", func(t *testing.T) {
		x := fromSlice(t, []complex128{1i, 2}, tensor.Dim4{1, 2, 1, 1})
		y := fromSlice(t, []complex128{1i, 3}, tensor.Dim4{2, 1, 1, 1})
		c, err := b.MatMul(ctx, x, y, false, false)
		require.NoError(t, err)
		assert.Equal(t, []complex128{-1 + 6}, tensor.Flatten[complex128](c))
	})

	t.Run("StridedOperand", func(t *testing.T) {
		base := fromSlice(t, aT, tensor.Dim4{3, 2, 1, 1})
		// transposed view of aT is A itself
		view, err := base.View(tensor.Dim4{2, 3, 1, 1}, tensor.Dim4{3, 1, 6, 6}, 0)
		require.NoError(t, err)
		c, err := b.MatMul(ctx, view, fromSlice(t, bm, tensor.Dim4{3, 2, 1, 1}), false, false)
		require.NoError(t, err)
		assert.Equal(t, want, tensor.Flatten[float64](c))
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := b.MatMul(ctx, fromSlice(t, a, tensor.Dim4{2, 3, 1, 1}), fromSlice(t, bm, tensor.Dim4{2, 3, 1, 1}), false, false)
		assert.ErrorIs(t, err, tensor.ErrShape)

		_, err = b.MatMul(ctx, fromSlice(t, a, tensor.Dim4{2, 3, 1, 1}), fromSlice(t, convert[float32](bm), tensor.Dim4{3, 2, 1, 1}), false, false)
		assert.ErrorIs(t, err, tensor.ErrDataType)

		_, err = b.MatMul(ctx, fromSlice(t, a, tensor.Dim4{1, 3, 2, 1}), fromSlice(t, bm, tensor.Dim4{3, 2, 1, 1}), false, false)
		assert.ErrorIs(t, err, tensor.ErrShape)
	})
}

func convert[T int32 | float32](v []float64) []T {
	out := make([]T, len(v))
	for i, x := range v {
		out[i] = T(x)
	}
	return out
}

func TestCPUBackend_Reorder(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	m := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Dim4{2, 3, 1, 1})
	out, err := b.Reorder(ctx, m, [4]int{1, 0, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, tensor.Dim4{3, 2, 1, 1}, out.Dims())
	assert.Equal(t, []float32{1, 3, 5, 2, 4, 6}, tensor.Flatten[float32](out))

	dims := tensor.Dim4{2, 3, 4, 5}
	data := make([]int64, dims.Elements())
	for i := range data {
		data[i] = int64(i)
	}
	vol := fromSlice(t, data, dims)
	out, err = b.Reorder(ctx, vol, [4]int{1, 2, 0, 3})
	require.NoError(t, err)
	require.Equal(t, tensor.Dim4{3, 4, 2, 5}, out.Dims())
	assert.True(t, out.IsLinear())
	for _, c := range [][4]int{{0, 0, 0, 0}, {1, 2, 3, 4}, {1, 0, 2, 3}} {
		assert.Equal(t, tensor.At[int64](vol, c[0], c[1], c[2], c[3]), tensor.At[int64](out, c[1], c[2], c[0], c[3]))
	}

	_, err = b.Reorder(ctx, m, [4]int{0, 0, 2, 3})
	assert.ErrorIs(t, err, tensor.ErrShape)
}

func TestCPUBackend_Reshape(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	m := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Dim4{2, 3, 1, 1})
	flat, err := b.Reshape(ctx, m, tensor.Dim4{6, 1, 1, 1})
	require.NoError(t, err)
	assert.False(t, m.IsUnique(), "contiguous reshape shares the buffer")
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Flatten[float32](flat))

	view, err := m.View(tensor.Dim4{3, 2, 1, 1}, tensor.Dim4{2, 1, 6, 6}, 0)
	require.NoError(t, err)
	copied, err := b.Reshape(ctx, view, tensor.Dim4{6, 1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, 5, 2, 4, 6}, tensor.Flatten[float32](copied))

	_, err = b.Reshape(ctx, m, tensor.Dim4{4, 1, 1, 1})
	assert.ErrorIs(t, err, tensor.ErrShape)
}

func TestCPUBackend_Flip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	m := fromSlice(t, []uint8{1, 2, 3, 4, 5, 6}, tensor.Dim4{2, 3, 1, 1})

	tests := []struct {
		mask [4]bool
		want []uint8
	}{
		{[4]bool{}, []uint8{1, 2, 3, 4, 5, 6}},
		{[4]bool{true}, []uint8{2, 1, 4, 3, 6, 5}},
		{[4]bool{false, true}, []uint8{5, 6, 3, 4, 1, 2}},
		{[4]bool{true, true, true, true}, []uint8{6, 5, 4, 3, 2, 1}},
	}
	for _, tt := range tests {
		out, err := b.Flip(ctx, m, tt.mask)
		require.NoError(t, err)
		assert.Equal(t, tt.want, tensor.Flatten[uint8](out), "%v", tt.mask)
	}

	c := fromSlice(t, []complex128{1, 2i, 3}, tensor.Dim4{3, 1, 1, 1})
	out, err := b.Flip(ctx, c, [4]bool{true})
	require.NoError(t, err)
	assert.Equal(t, []complex128{3, 2i, 1}, tensor.Flatten[complex128](out))
}
