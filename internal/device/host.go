package device

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/cpu"
)

const (
	hostThreadsPerCore = 256
	hostL2PerCore      = 1 << 20
)

// HostInfo describes the CPU features that shape the host profile.
type HostInfo struct {
	Cores         int    `json:"cores"`
	CacheLineSize int    `json:"cache_line_size"`
	VectorLanes   int    `json:"vector_lanes"` // float32 lanes per SIMD register
	ISA           string `json:"isa"`
}

// ProbeHost reads the host CPU features.
func ProbeHost() HostInfo {
	info := HostInfo{
		Cores:         runtime.NumCPU(),
		CacheLineSize: int(unsafe.Sizeof(cpu.CacheLinePad{})),
		VectorLanes:   4,
		ISA:           "generic",
	}
	switch {
	case cpu.X86.HasAVX512F:
		info.VectorLanes, info.ISA = 16, "avx512"
	case cpu.X86.HasAVX2:
		info.VectorLanes, info.ISA = 8, "avx2"
	case cpu.X86.HasSSE2:
		info.ISA = "sse2"
	case cpu.ARM64.HasASIMD:
		info.ISA = "neon"
	}
	return info
}

// Host returns the profile used when work is dispatched onto CPU goroutines.
// Every core acts as one multiprocessor sharing the system memory bus.
func Host() Capability {
	info := ProbeHost()
	return Capability{
		Name:                "host",
		MaxParallelThreads:  info.Cores * hostThreadsPerCore,
		MaxThreadsPerBlock:  1024,
		L2CacheSize:         info.Cores * hostL2PerCore,
		MemoryBusWidth:      64,
		MultiProcessorCount: info.Cores,
		MaxGridSize:         [3]int{1<<31 - 1, 65535, 65535},
	}
}
