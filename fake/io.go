// File: fake/io.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import "sync"

// IOHandle records register writes and serves readback from the last
// written value, which satisfies the list-pointer init handshake.
type IOHandle struct {
	mu     sync.Mutex
	regs   map[uint16]uint32
	writes []RegWrite
	// Mute suppresses readback for a register, forcing handshake timeout.
	Mute map[uint16]bool
}

// RegWrite is one recorded doorbell/register write.
type RegWrite struct {
	Reg   uint16
	Value uint32
}

// NewIOHandle creates an empty register window.
func NewIOHandle() *IOHandle {
	return &IOHandle{regs: make(map[uint16]uint32), Mute: make(map[uint16]bool)}
}

// Write implements api.IOHandle.
func (h *IOHandle) Write(reg uint16, value uint32) {
	h.mu.Lock()
	h.regs[reg] = value
	h.writes = append(h.writes, RegWrite{Reg: reg, Value: value})
	h.mu.Unlock()
}

// Read implements api.IOHandle.
func (h *IOHandle) Read(reg uint16) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Mute[reg] {
		return 0
	}
	return h.regs[reg]
}

// Writes returns all recorded writes to reg.
func (h *IOHandle) Writes(reg uint16) []RegWrite {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []RegWrite
	for _, w := range h.writes {
		if w.Reg == reg {
			out = append(out, w)
		}
	}
	return out
}

// WriteCount returns the number of writes to reg.
func (h *IOHandle) WriteCount(reg uint16) int {
	return len(h.Writes(reg))
}
