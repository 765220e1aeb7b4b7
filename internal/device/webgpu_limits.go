package device

import "fmt"

// WebGPULimits are the adapter limits the launch planner depends on. A
// zero field means the adapter left the limit undefined.
type WebGPULimits struct {
	MaxInvocationsPerWorkgroup uint32    `json:"max_invocations_per_workgroup"`
	MaxWorkgroupSize           [3]uint32 `json:"max_workgroup_size"`
	MaxWorkgroupsPerDimension  uint32    `json:"max_workgroups_per_dimension"`
}

// Capability maps the limits onto WebGPUDefaults. WebGPU reports no
// multiprocessor, cache or bus figures, so those keep their default values.
func (l WebGPULimits) Capability() Capability {
	c := WebGPUDefaults()
	if l.MaxInvocationsPerWorkgroup > 0 {
		c.MaxThreadsPerBlock = int(l.MaxInvocationsPerWorkgroup)
	}
	if l.MaxWorkgroupsPerDimension > 0 {
		for i := range c.MaxGridSize {
			c.MaxGridSize[i] = int(l.MaxWorkgroupsPerDimension)
		}
	}
	c.MaxParallelThreads = max(c.MaxParallelThreads, c.MaxThreadsPerBlock)
	return c
}

// CheckWorkgroup reports whether a workgroup of x*y*z invocations is
// within the per-axis limits.
func (l WebGPULimits) CheckWorkgroup(x, y, z int) error {
	for i, n := range [3]int{x, y, z} {
		if limit := l.MaxWorkgroupSize[i]; limit > 0 && n > int(limit) {
			return fmt.Errorf("%w: workgroup size %d on axis %d exceeds %d", ErrInvalidCapability, n, i, limit)
		}
	}
	return nil
}
