// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime metrics registry for operator-visible pipeline state.
// Thread-safe map with dynamic registration and snapshot reads.

package control

import (
	"sync"
	"time"
)

// MetricsRegistry holds named metric sources. Sources are polled lazily at
// snapshot time so hot paths never publish.
type MetricsRegistry struct {
	mu      sync.RWMutex
	static  map[string]any
	sources map[string]func() any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		static:  make(map[string]any),
		sources: make(map[string]func() any),
	}
}

// Set sets or updates a static metric value.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.static[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// RegisterSource registers a function polled on every snapshot.
func (mr *MetricsRegistry) RegisterSource(key string, fn func() any) {
	mr.mu.Lock()
	mr.sources[key] = fn
	mr.mu.Unlock()
}

// GetSnapshot returns the current metrics, polling all sources.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.static)+len(mr.sources))
	for k, v := range mr.static {
		out[k] = v
	}
	for k, fn := range mr.sources {
		out[k] = fn()
	}
	return out
}
