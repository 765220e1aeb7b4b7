// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend. Unwrap runs as a WGSL
// compute shader launched with the geometry the partitioner plans for the
// adapter's limits. The backend is only available on windows; elsewhere
// New returns ErrUnavailable.
//
// Example:
//
//	b, err := webgpu.New()
//	if errors.Is(err, webgpu.ErrUnavailable) {
//	    // fall back to the cpu backend
//	}
//	defer b.Close()
package webgpu

import (
	"github.com/born-ml/volconv/internal/backend/webgpu"
	"github.com/born-ml/volconv/internal/conv"
)

// Backend represents the WebGPU backend implementation.
type Backend = webgpu.WebGPUBackend

// Option configures a Backend.
type Option = webgpu.Option

// ErrUnavailable is returned by New when no adapter can be opened.
var ErrUnavailable = webgpu.ErrUnavailable

var _ conv.Backend = (*Backend)(nil)

// New opens the default high-performance adapter.
func New(opts ...Option) (*Backend, error) {
	return webgpu.New(opts...)
}
