package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled, cfg.NumWorkers = true, 4

	n := 1000
	seen := make([]int32, n)
	require.NoError(t, For(n, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	}, cfg))

	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d visited %d times", i, c)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	require.NoError(t, For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg))

	assert.Equal(t, int64(100), counter)
}

func TestFor_SmallChunk(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1
	require.NoError(t, For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg))

	assert.Equal(t, int64(n), counter)
}

func TestFor_PanicBecomesError(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 2, MinChunkSize: 1}

	err := For(10, func(i int) {
		if i == 7 {
			panic("boom")
		}
	}, cfg)
	assert.ErrorContains(t, err, "boom")
}

func TestWorkers(t *testing.T) {
	var mask atomic.Int64
	require.NoError(t, Workers(5, func(w int) error {
		mask.Or(1 << w)
		return nil
	}))
	assert.Equal(t, int64(0b11111), mask.Load())

	sentinel := errors.New("worker failed")
	err := Workers(3, func(w int) error {
		if w == 2 {
			return sentinel
		}
		return nil
	})
	assert.ErrorIs(t, err, sentinel)
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			_ = For(n, func(j int) {
				atomic.AddInt64(&sum, int64(j))
			}, cfg)
		}
	})
}
