package device

import (
	"fmt"
	"sync"
)

// Prober queries the capability of a device by id.
type Prober interface {
	Probe(id int) (Capability, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(id int) (Capability, error)

// Probe calls f(id).
func (f ProberFunc) Probe(id int) (Capability, error) {
	return f(id)
}

// Static serves a fixed list of profiles; device id i maps to profiles[i].
func Static(profiles ...Capability) Prober {
	return ProberFunc(func(id int) (Capability, error) {
		if id < 0 || id >= len(profiles) {
			return Capability{}, fmt.Errorf("%w: id %d (have %d)", ErrUnknownDevice, id, len(profiles))
		}
		return profiles[id], nil
	})
}

// Registry caches one validated Capability per device id for the lifetime
// of the process. It is safe for concurrent use.
type Registry struct {
	prober Prober

	mu     sync.Mutex
	cache  map[int]Capability
	active int
}

// NewRegistry creates a registry backed by p.
func NewRegistry(p Prober) *Registry {
	return &Registry{
		prober: p,
		cache:  make(map[int]Capability),
	}
}

// Lookup returns the capability of device id, probing it on first use.
func (r *Registry) Lookup(id int) (Capability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache[id]; ok {
		return c, nil
	}

	c, err := r.prober.Probe(id)
	if err != nil {
		return Capability{}, fmt.Errorf("probe device %d: %w", id, err)
	}
	if err := c.Validate(); err != nil {
		return Capability{}, err
	}
	r.cache[id] = c
	return c, nil
}

// ActiveID returns the id of the device new work is planned for.
func (r *Registry) ActiveID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SetActive selects the active device after checking that it can be probed.
func (r *Registry) SetActive(id int) error {
	if _, err := r.Lookup(id); err != nil {
		return err
	}
	r.mu.Lock()
	r.active = id
	r.mu.Unlock()
	return nil
}

// Active returns the capability of the active device.
func (r *Registry) Active() (Capability, error) {
	return r.Lookup(r.ActiveID())
}
