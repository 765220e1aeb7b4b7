// Package cpu implements the host backend: every operation runs as one task
// on the backend's ordered queue and returns once that task has finished.
package cpu

import (
	"context"
	"fmt"
	"strings"

	"github.com/born-ml/volconv/internal/logger"
	"github.com/born-ml/volconv/internal/parallel"
	"github.com/born-ml/volconv/internal/queue"
	"github.com/born-ml/volconv/internal/tensor"
)

// CPUBackend implements unwrap and the dense primitives on the host.
type CPUBackend struct {
	device tensor.Device
	queue  *queue.Queue
	log    logger.Logger
	par    parallel.Config
	depth  int
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(cpu *CPUBackend) { cpu.log = l }
}

// WithDevice tags results with a device other than tensor.CPU. Used by
// backends that reuse the host primitives.
func WithDevice(d tensor.Device) Option {
	return func(cpu *CPUBackend) { cpu.device = d }
}

// WithParallel sets how data-movement primitives split their work.
func WithParallel(cfg parallel.Config) Option {
	return func(cpu *CPUBackend) { cpu.par = cfg }
}

// WithQueueDepth sets how many tasks may wait on the queue.
func WithQueueDepth(n int) Option {
	return func(cpu *CPUBackend) { cpu.depth = n }
}

// New creates a CPU backend and starts its queue.
func New(opts ...Option) *CPUBackend {
	cpu := &CPUBackend{
		device: tensor.CPU,
		log:    logger.Discard(),
		par:    parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(cpu)
	}
	cpu.log = cpu.log.With("backend", cpu.device.String())
	cpu.queue = queue.New(strings.ToLower(cpu.device.String()), cpu.log, cpu.depth)
	return cpu
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Logger returns the backend's logger.
func (cpu *CPUBackend) Logger() logger.Logger {
	return cpu.log
}

// Parallel returns the worker configuration.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.par
}

// Sync waits for all work submitted so far.
func (cpu *CPUBackend) Sync(ctx context.Context) error {
	return cpu.queue.Sync(ctx)
}

// Close drains the queue and stops it.
func (cpu *CPUBackend) Close() error {
	return cpu.queue.Close()
}

// Run executes fn on the backend queue and waits for it. ctx bounds the
// wait only: a task that has started always runs to completion.
//
// The task holds its own reference to every tensor in uses until fn
// returns, so callers may release them as soon as Run returns, even when
// the wait was cut short.
func (cpu *CPUBackend) Run(ctx context.Context, name string, fn func() error, uses ...*tensor.RawTensor) error {
	held := make([]*tensor.RawTensor, len(uses))
	for i, t := range uses {
		held[i] = t.Clone()
	}
	release := func() {
		for _, t := range held {
			t.Release()
		}
	}

	task, err := cpu.queue.Enqueue(name, func(context.Context) error {
		defer release()
		return fn()
	})
	if err != nil {
		release()
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// alloc allocates a result tensor on the backend's device.
func (cpu *CPUBackend) alloc(op string, dims tensor.Dim4, dtype tensor.DataType) (*tensor.RawTensor, error) {
	out, err := tensor.NewRaw(dims, dtype, cpu.device)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create result tensor: %w", op, err)
	}
	return out, nil
}

// produce allocates a result, fills it on the queue and hands it back only
// when the fill succeeded. inputs are kept alive until the fill has run.
func (cpu *CPUBackend) produce(ctx context.Context, op string, dims tensor.Dim4, dtype tensor.DataType,
	fill func(out *tensor.RawTensor) error, inputs ...*tensor.RawTensor,
) (*tensor.RawTensor, error) {
	out, err := cpu.alloc(op, dims, dtype)
	if err != nil {
		return nil, err
	}
	uses := append([]*tensor.RawTensor{out}, inputs...)
	if err := cpu.Run(ctx, op, func() error { return fill(out) }, uses...); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}
