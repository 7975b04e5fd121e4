// File: device/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Index-keyed device registry for legacy index-based call sites, plus a
// deferred maintenance queue drained from the worker context.

package device

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/hashicorp/go-multierror"

	"github.com/momentics/hioload-dma/api"
)

// Registry maps adapter indices to device contexts.
type Registry struct {
	mu      sync.Mutex
	devices map[int]*Device
	pending *queue.Queue // deferred maintenance tasks, FIFO
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[int]*Device),
		pending: queue.New(),
	}
}

// Register adds a device under its index.
func (r *Registry) Register(d *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.Index()]; ok {
		return api.NewError(api.ErrCodeConfig, "device index already registered").
			WithContext("index", d.Index())
	}
	r.devices[d.Index()] = d
	return nil
}

// Get resolves an index to its device; nil when absent.
func (r *Registry) Get(index int) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices[index]
}

// Unregister removes a device without closing it.
func (r *Registry) Unregister(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, index)
}

// Len reports registered device count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Defer queues a task for the next maintenance pass.
func (r *Registry) Defer(task func()) {
	r.mu.Lock()
	r.pending.Add(task)
	r.mu.Unlock()
}

// ScheduleMaintenance queues every registered device's maintenance step.
func (r *Registry) ScheduleMaintenance() {
	r.mu.Lock()
	for _, d := range r.devices {
		dev := d
		r.pending.Add(func() { dev.Maintain() })
	}
	r.mu.Unlock()
}

// RunPending executes up to budget deferred tasks and reports how many
// ran. Leftovers stay queued, keeping maintenance cooperative.
func (r *Registry) RunPending(budget int) int {
	ran := 0
	for ran < budget {
		r.mu.Lock()
		if r.pending.Length() == 0 {
			r.mu.Unlock()
			break
		}
		task := r.pending.Remove().(func())
		r.mu.Unlock()
		task()
		ran++
	}
	return ran
}

// CloseAll closes every device, aggregating errors.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	devices := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	r.devices = make(map[int]*Device)
	r.mu.Unlock()

	var errs *multierror.Error
	for _, d := range devices {
		if err := d.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
