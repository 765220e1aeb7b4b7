// Package parallel provides bounded worker pools for host-side kernels.
package parallel

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// For executes f(i) for i in [0, n), splitting the range into contiguous
// chunks. Falls back to sequential execution if parallelism is disabled
// or n is too small.
func For(n int, f func(i int), cfg Config) error {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize {
		return guard(func() error {
			for i := 0; i < n; i++ {
				f(i)
			}
			return nil
		})
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)
	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			return guard(func() error {
				for i := start; i < end; i++ {
					f(i)
				}
				return nil
			})
		})
	}
	return g.Wait()
}

// Workers runs f once per worker index in [0, n) concurrently and returns
// the first error. A panic inside f is reported as an error.
func Workers(n int, f func(worker int) error) error {
	var g errgroup.Group
	for w := 0; w < n; w++ {
		g.Go(func() error {
			return guard(func() error { return f(w) })
		})
	}
	return g.Wait()
}

func guard(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parallel: worker panicked: %v", r)
		}
	}()
	return f()
}
