package webgpu

import (
	"errors"

	"github.com/born-ml/volconv/internal/logger"
)

// ErrUnavailable is returned by New when no WebGPU adapter can be opened.
var ErrUnavailable = errors.New("webgpu: backend not available")

type options struct {
	log   logger.Logger
	depth int
}

// Option configures a WebGPUBackend.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithQueueDepth sets how many tasks may wait on the backend queue.
func WithQueueDepth(n int) Option {
	return func(o *options) { o.depth = n }
}

func newOptions(opts []Option) options {
	o := options{log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
