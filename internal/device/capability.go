// Package device describes the execution limits of a compute device.
//
// A Capability is an immutable value. Callers obtain it once per device
// (usually through a Registry) and pass it explicitly to the launch planner,
// which keeps planning pure and lets tests inject arbitrary hardware.
package device

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrInvalidCapability = errors.New("invalid device capability")
	ErrUnknownDevice     = errors.New("unknown device")
)

// MinThreadsPerBlock is the smallest per-block thread limit the launch
// planner can honour: its widest block shape has 128 threads.
const MinThreadsPerBlock = 128

// Capability is the read-only profile of one device.
type Capability struct {
	Name string `yaml:"name" json:"name"`

	// MaxParallelThreads is the number of threads the whole device keeps
	// resident at once (multiprocessors * threads per multiprocessor).
	MaxParallelThreads int `yaml:"max_parallel_threads" json:"max_parallel_threads"`

	// MaxThreadsPerBlock bounds threads.x*threads.y*threads.z.
	MaxThreadsPerBlock int `yaml:"max_threads_per_block" json:"max_threads_per_block"`

	// L2CacheSize is in bytes.
	L2CacheSize int `yaml:"l2_cache_size" json:"l2_cache_size"`

	// MemoryBusWidth is in bits. A width of 64 marks an integrated device.
	MemoryBusWidth int `yaml:"memory_bus_width" json:"memory_bus_width"`

	MultiProcessorCount int `yaml:"multiprocessor_count" json:"multiprocessor_count"`

	MaxGridSize [3]int `yaml:"max_grid_size" json:"max_grid_size"`
}

// Validate checks that the profile can drive the launch planner.
func (c Capability) Validate() error {
	switch {
	case c.MaxParallelThreads <= 0:
		return fmt.Errorf("%w: %q: max_parallel_threads is %d", ErrInvalidCapability, c.Name, c.MaxParallelThreads)
	case c.MaxThreadsPerBlock < MinThreadsPerBlock:
		return fmt.Errorf("%w: %q: max_threads_per_block is %d (need >= %d)",
			ErrInvalidCapability, c.Name, c.MaxThreadsPerBlock, MinThreadsPerBlock)
	case c.L2CacheSize <= 0:
		return fmt.Errorf("%w: %q: l2_cache_size is %d", ErrInvalidCapability, c.Name, c.L2CacheSize)
	case c.MemoryBusWidth <= 0:
		return fmt.Errorf("%w: %q: memory_bus_width is %d", ErrInvalidCapability, c.Name, c.MemoryBusWidth)
	case c.MultiProcessorCount <= 0:
		return fmt.Errorf("%w: %q: multiprocessor_count is %d", ErrInvalidCapability, c.Name, c.MultiProcessorCount)
	}
	for i, g := range c.MaxGridSize {
		if g <= 0 {
			return fmt.Errorf("%w: %q: max_grid_size[%d] is %d", ErrInvalidCapability, c.Name, i, g)
		}
	}
	return nil
}

// Integrated reports whether the device shares a narrow bus with the host.
func (c Capability) Integrated() bool {
	return c.MemoryBusWidth == 64
}

// Discrete is a mid-range dedicated GPU (68 SMs, 1536 threads per SM).
func Discrete() Capability {
	return Capability{
		Name:                "discrete",
		MaxParallelThreads:  68 * 1536,
		MaxThreadsPerBlock:  1024,
		L2CacheSize:         5 << 20,
		MemoryBusWidth:      320,
		MultiProcessorCount: 68,
		MaxGridSize:         [3]int{1<<31 - 1, 65535, 65535},
	}
}

// IntegratedGPU is a small shared-memory GPU.
func IntegratedGPU() Capability {
	return Capability{
		Name:                "integrated",
		MaxParallelThreads:  24 * 448,
		MaxThreadsPerBlock:  512,
		L2CacheSize:         1 << 20,
		MemoryBusWidth:      64,
		MultiProcessorCount: 24,
		MaxGridSize:         [3]int{65535, 65535, 65535},
	}
}

// WebGPUDefaults uses the limits every WebGPU implementation must provide.
func WebGPUDefaults() Capability {
	return Capability{
		Name:                "webgpu",
		MaxParallelThreads:  16 * 1024,
		MaxThreadsPerBlock:  256,
		L2CacheSize:         2 << 20,
		MemoryBusWidth:      128,
		MultiProcessorCount: 16,
		MaxGridSize:         [3]int{65535, 65535, 65535},
	}
}

// Presets returns the built-in profiles keyed by name.
func Presets() map[string]Capability {
	return map[string]Capability{
		"host":       Host(),
		"discrete":   Discrete(),
		"integrated": IntegratedGPU(),
		"webgpu":     WebGPUDefaults(),
	}
}
