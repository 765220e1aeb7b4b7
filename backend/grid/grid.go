// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package grid provides the device-parallel backend. Unwrap is planned with
// the launch partitioner for a device profile and executed block by block
// on a pool of goroutines.
//
// Example:
//
//	b, err := grid.New(launch.Discrete(), grid.WithWorkers(8))
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
package grid

import (
	"github.com/born-ml/volconv/internal/backend/grid"
	"github.com/born-ml/volconv/internal/conv"
	"github.com/born-ml/volconv/internal/device"
)

// Backend represents the grid backend implementation.
type Backend = grid.GridBackend

// Option configures a Backend.
type Option = grid.Option

var _ conv.Backend = (*Backend)(nil)

// New creates a grid backend for a device with capability c.
func New(c device.Capability, opts ...Option) (*Backend, error) {
	return grid.New(c, opts...)
}

// WithWorkers sets how many goroutines execute blocks.
func WithWorkers(n int) Option {
	return grid.WithWorkers(n)
}
