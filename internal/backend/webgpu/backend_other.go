//go:build !windows

package webgpu

import (
	"fmt"

	"github.com/born-ml/volconv/internal/backend/cpu"
)

// WebGPUBackend is only built on windows.
type WebGPUBackend struct {
	*cpu.CPUBackend
}

// New reports that the backend is not built on this platform.
func New(...Option) (*WebGPUBackend, error) {
	return nil, fmt.Errorf("%w: only built on windows", ErrUnavailable)
}
