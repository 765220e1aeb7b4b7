//go:build windows

package device

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"
)

// WebGPU probes the default high-performance adapter and describes it by
// the limits it reports.
func WebGPU() Prober {
	return ProberFunc(func(id int) (Capability, error) {
		if id != 0 {
			return Capability{}, fmt.Errorf("%w: webgpu exposes a single adapter, got id %d", ErrUnknownDevice, id)
		}
		l, err := ProbeWebGPU()
		if err != nil {
			return Capability{}, err
		}
		return l.Capability(), nil
	})
}

// ProbeWebGPU opens the default high-performance adapter and reads its limits.
func ProbeWebGPU() (l WebGPULimits, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			l = WebGPULimits{}
			err = fmt.Errorf("%w: webgpu: native library not available: %v", ErrUnknownDevice, r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return WebGPULimits{}, fmt.Errorf("%w: webgpu: %w", ErrUnknownDevice, err)
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return WebGPULimits{}, fmt.Errorf("%w: webgpu: failed to request adapter: %w", ErrUnknownDevice, err)
	}
	defer adapter.Release()

	return AdapterLimits(adapter)
}

// AdapterLimits reads the planner limits of an open adapter.
func AdapterLimits(a *wgpu.Adapter) (WebGPULimits, error) {
	s, err := a.GetLimits()
	if err != nil {
		return WebGPULimits{}, fmt.Errorf("webgpu: %w", err)
	}
	return WebGPULimits{
		MaxInvocationsPerWorkgroup: s.Limits.MaxComputeInvocationsPerWorkgroup,
		MaxWorkgroupSize: [3]uint32{
			s.Limits.MaxComputeWorkgroupSizeX,
			s.Limits.MaxComputeWorkgroupSizeY,
			s.Limits.MaxComputeWorkgroupSizeZ,
		},
		MaxWorkgroupsPerDimension: s.Limits.MaxComputeWorkgroupsPerDimension,
	}, nil
}
