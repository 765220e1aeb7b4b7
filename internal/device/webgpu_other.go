//go:build !windows

package device

import "fmt"

var errNoWebGPU = fmt.Errorf("%w: webgpu backend is only built on windows", ErrUnknownDevice)

// WebGPU reports that no adapter can be probed on this platform.
func WebGPU() Prober {
	return ProberFunc(func(int) (Capability, error) {
		return Capability{}, errNoWebGPU
	})
}

// ProbeWebGPU reports that no adapter can be probed on this platform.
func ProbeWebGPU() (WebGPULimits, error) {
	return WebGPULimits{}, errNoWebGPU
}
