// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the host backend: every kernel runs as plain loops
// on the backend's ordered work queue.
package cpu

import (
	internalcpu "github.com/born-ml/volconv/internal/backend/cpu"
	"github.com/born-ml/volconv/internal/conv"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Option configures a Backend.
type Option = internalcpu.Option

// Compile-time check that Backend can drive a convolution.
var _ conv.Backend = (*Backend)(nil)

// New creates a CPU backend. Close it to stop its queue.
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}

// WithQueueDepth sets how many tasks may wait on the queue.
func WithQueueDepth(n int) Option {
	return internalcpu.WithQueueDepth(n)
}
