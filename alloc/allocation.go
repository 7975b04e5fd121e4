// File: alloc/allocation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package alloc

// Allocation is the handle returned to callers. It carries both the linear
// view and the bus address so ring code never re-resolves addresses on the
// hot path. An Allocation must be freed exactly once and never aliased;
// the owning pool validates handles on free.
type Allocation struct {
	poolID uint8
	slot   int32
	off    int
	size   int
	align  int
	virt   []byte
	phys   uint32
	lock   uint64
	dma    bool
	valid  bool
}

func (a *Allocation) slotOffset() int { return a.off }

// Bytes returns the linear view of the buffer.
func (a *Allocation) Bytes() []byte { return a.virt }

// Physical returns the bus address hardware must be given.
func (a *Allocation) Physical() uint32 { return a.phys }

// Size returns the usable buffer size in bytes.
func (a *Allocation) Size() int { return a.size }

// DMACapable reports whether the buffer came from a DMA-safe pool.
func (a *Allocation) DMACapable() bool { return a.dma }

// Valid reports whether the handle is still live (not yet freed).
func (a *Allocation) Valid() bool { return a != nil && a.valid }
