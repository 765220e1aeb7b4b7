package api

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/volconv/internal/backend/cpu"
	"github.com/born-ml/volconv/internal/backend/grid"
	"github.com/born-ml/volconv/internal/backend/webgpu"
	"github.com/born-ml/volconv/internal/config"
	"github.com/born-ml/volconv/internal/conv"
	"github.com/born-ml/volconv/internal/logger"
)

// BackendProvider hands out compute backends. The host backend is created
// up front; grid backends are created on first use, one per device
// profile, and kept until Close. The WebGPU backend is opened on first
// successful use.
type BackendProvider struct {
	cfg     config.Config
	workers int
	log     logger.Logger
	host    *cpu.CPUBackend

	mu    sync.Mutex
	grids map[string]*grid.GridBackend
	gpu   *webgpu.WebGPUBackend
}

func NewBackendProvider(cfg config.Config, log logger.Logger) *BackendProvider {
	if log == nil {
		log = logger.Discard()
	}
	return &BackendProvider{
		cfg:     cfg,
		workers: cfg.Workers,
		log:     log,
		host:    cpu.New(cpu.WithLogger(log)),
		grids:   make(map[string]*grid.GridBackend),
	}
}

// Backend returns the backend called name ("cpu", "grid" or "webgpu").
// device selects the grid profile and is ignored by the other backends.
func (p *BackendProvider) Backend(name, device string) (conv.Backend, error) {
	switch name {
	case "", "cpu":
		return p.host, nil
	case "grid":
		return p.grid(device)
	case "webgpu":
		return p.webgpu()
	default:
		return nil, newInvalidRequest(fmt.Sprintf("unknown backend %q (want cpu, grid or webgpu)", name))
	}
}

func (p *BackendProvider) grid(name string) (*grid.GridBackend, error) {
	c, err := p.cfg.Device(name)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.grids[c.Name]; ok {
		return g, nil
	}

	opts := []grid.Option{grid.WithLogger(p.log)}
	if p.workers > 0 {
		opts = append(opts, grid.WithWorkers(p.workers))
	}
	g, err := grid.New(c, opts...)
	if err != nil {
		return nil, err
	}
	p.grids[c.Name] = g
	return g, nil
}

func (p *BackendProvider) webgpu() (*webgpu.WebGPUBackend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gpu != nil {
		return p.gpu, nil
	}
	g, err := webgpu.New(webgpu.WithLogger(p.log))
	if err != nil {
		return nil, err
	}
	p.gpu = g
	return g, nil
}

// Close stops every backend queue.
func (p *BackendProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	errs := []error{p.host.Close()}
	for name, g := range p.grids {
		errs = append(errs, g.Close())
		delete(p.grids, name)
	}
	if p.gpu != nil {
		errs = append(errs, p.gpu.Close())
		p.gpu = nil
	}
	return errors.Join(errs...)
}
