//go:build windows

package webgpu

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/born-ml/volconv/internal/backend/cpu"
	"github.com/born-ml/volconv/internal/backend/grid"
	"github.com/born-ml/volconv/internal/conv"
	"github.com/born-ml/volconv/internal/device"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/internal/logger"
	"github.com/born-ml/volconv/internal/tensor"
	"github.com/born-ml/volconv/internal/unwrap"
	"github.com/go-webgpu/webgpu/wgpu"
)

// WebGPUBackend runs unwrap on a WebGPU adapter and the dense primitives
// on the host. Every adapter call happens on the backend queue.
type WebGPUBackend struct {
	*cpu.CPUBackend

	cap    device.Capability
	limits device.WebGPULimits
	info   *wgpu.AdapterInfoGo
	log    logger.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache, keyed by shaderKey.
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex
}

// New opens the default high-performance adapter. The launch planner uses
// a capability built from the adapter's reported limits.
func New(opts ...Option) (backend *WebGPUBackend, err error) {
	o := newOptions(opts)

	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("%w: native library not available: %v", ErrUnavailable, r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: failed to request adapter: %w", ErrUnavailable, err)
	}

	limits, err := device.AdapterLimits(adapter)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	c := limits.Capability()
	if err := c.Validate(); err != nil {
		adapter.Release()
		instance.Release()
		return nil, err
	}

	// Adapter info is optional.
	info, _ := adapter.GetInfo()

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: failed to request device: %w", ErrUnavailable, err)
	}
	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: failed to get queue", ErrUnavailable)
	}

	log := o.log.With("backend", "webgpu")
	if info != nil {
		log = log.With("adapter", info.Device)
	}
	return &WebGPUBackend{
		CPUBackend: cpu.New(cpu.WithDevice(tensor.WebGPU), cpu.WithLogger(o.log), cpu.WithQueueDepth(o.depth)),
		cap:        c,
		limits:     limits,
		info:       info,
		log:        log,
		instance:   instance,
		adapter:    adapter,
		dev:        dev,
		queue:      queue,
		shaders:    make(map[string]*wgpu.ShaderModule),
		pipelines:  make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// Name returns the backend name.
func (b *WebGPUBackend) Name() string {
	if b.info != nil && b.info.Device != "" {
		return fmt.Sprintf("WebGPU (%s)", b.info.Device)
	}
	return "WebGPU"
}

// Capability returns the profile built from the adapter limits.
func (b *WebGPUBackend) Capability() device.Capability {
	return b.cap
}

// Limits returns the adapter limits read at creation.
func (b *WebGPUBackend) Limits() device.WebGPULimits {
	return b.limits
}

// Close drains the queue and releases every WebGPU resource.
func (b *WebGPUBackend) Close() error {
	err := b.CPUBackend.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	for key, p := range b.pipelines {
		p.Release()
		delete(b.pipelines, key)
	}
	for key, s := range b.shaders {
		s.Release()
		delete(b.shaders, key)
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.dev != nil {
		b.dev.Release()
		b.dev = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
	return err
}

// Unwrap3D extracts windows on the adapter. Only float32 is supported.
func (b *WebGPUBackend) Unwrap3D(ctx context.Context, in *tensor.RawTensor, w unwrap.Window, column bool) (*tensor.RawTensor, error) {
	if in.DType() != tensor.Float32 {
		return nil, fmt.Errorf("unwrap3d: %w: webgpu supports only float32, got %s", conv.ErrUnsupportedType, in.DType())
	}
	geom, dims, err := grid.PlanUnwrap(b.cap, in.Dims(), in.DType(), w, column)
	if err != nil {
		return nil, fmt.Errorf("unwrap3d: %w", err)
	}
	params, _, err := newUnwrapParams(in.Dims(), in.Strides(), w, column)
	if err != nil {
		return nil, fmt.Errorf("unwrap3d: %w", err)
	}
	groups, err := workgroups(geom, b.limits)
	if err != nil {
		return nil, fmt.Errorf("unwrap3d: %w", err)
	}

	out, err := tensor.NewRaw(dims, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, fmt.Errorf("unwrap3d: failed to create result tensor: %w", err)
	}

	err = b.Run(ctx, "unwrap3d", func() error {
		start := time.Now()
		data, err := b.runUnwrap(geom, groups, params, in.Data(), out.ByteSize())
		if err != nil {
			return err
		}
		copy(out.Data(), data)
		b.log.Debug("unwrap3d",
			"out", dims,
			"threads", geom.Threads,
			"blocks", geom.Blocks,
			"loop", geom.Loop,
			"elapsed", time.Since(start))
		return nil
	}, in, out)
	if err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// runUnwrap uploads src, dispatches the unwrap shader for g and reads
// back size bytes of output.
func (b *WebGPUBackend) runUnwrap(g launch.Geometry, groups [3]uint32, p unwrapParams, src []byte, size int) ([]byte, error) {
	key := shaderKey(g)
	shader := b.compileShader(key, unwrapShader(g))
	pipeline := b.getOrCreatePipeline(key, shader)

	//nolint:gosec // G115: sizes are non-negative and bounded by newUnwrapParams
	srcSize, dstSize := uint64(len(src)), uint64(size)

	bufferSrc := b.createBuffer(src, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferSrc.Release()

	bufferDst := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  dstSize,
	})
	defer bufferDst.Release()

	bufferParams := b.createUniformBuffer(p.bytes())
	defer bufferParams.Release()

	layout := pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bindGroup := b.dev.CreateBindGroupSimple(layout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferSrc, 0, srcSize),
		wgpu.BufferBindingEntry(1, bufferDst, 0, dstSize),
		wgpu.BufferBindingEntry(2, bufferParams, 0, paramsSize),
	})
	defer bindGroup.Release()

	encoder := b.dev.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	return b.readBuffer(bufferDst, dstSize)
}

// compileShader compiles WGSL code once per key.
func (b *WebGPUBackend) compileShader(key, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, ok := b.shaders[key]; ok {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.dev.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[key] = shader
	b.mu.Unlock()
	return shader
}

// getOrCreatePipeline returns the cached pipeline for key or creates one
// with an automatic layout.
func (b *WebGPUBackend) getOrCreatePipeline(key string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, ok := b.pipelines[key]; ok {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	pipeline := b.dev.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[key] = pipeline
	b.mu.Unlock()
	return pipeline
}

// createBuffer creates a buffer holding data.
func (b *WebGPUBackend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(buffer.GetMappedRange(0, size)), size), data)
	buffer.Unmap()
	return buffer
}

// createUniformBuffer creates a uniform buffer rounded up to 16 bytes.
func (b *WebGPUBackend) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := (uint64(len(data)) + 15) &^ 15
	buffer := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(buffer.GetMappedRange(0, size)), size), data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies src into a staging buffer and maps it back to the host.
func (b *WebGPUBackend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.dev.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.dev, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}
	result := make([]byte, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(result, unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size))
	staging.Unmap()
	return result, nil
}
