// File: ring/base.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// State shared by the RX and TX rings: the descriptor array, the
// software-side state shadow, the buffer side table, and the one-shot
// init handshake with its bounded retry budget.

package ring

import (
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-dma/alloc"
	"github.com/momentics/hioload-dma/api"
)

// Register offsets of the Boomerang list-pointer doorbells.
const (
	RegDownListPtr uint16 = 0x24 // TX
	RegUpListPtr   uint16 = 0x38 // RX
)

const (
	defaultHandshakeAttempts = 5
	defaultHandshakeDelay    = time.Millisecond
)

type ringBase struct {
	descs  []Descriptor
	states []DescState
	bufs   []*alloc.Allocation
	mask   uint32
	head   uint32 // next slot software arms
	tail   uint32 // oldest slot hardware may still hold

	basePhys uint32
	io       api.IOHandle

	outstanding   int32 // armed + hardware-owned, O(1) tally
	doorbells     atomic.Uint64
	illegalWrites atomic.Uint64

	// violation is a test instrumentation hook; nil in production.
	violation func(idx int, from, to DescState)
}

func newRingBase(size int, basePhys uint32, io api.IOHandle) (ringBase, error) {
	if size < 2 || size&(size-1) != 0 {
		return ringBase{}, api.NewError(api.ErrCodeConfig, "ring size must be a power of two").
			WithContext("size", size)
	}
	if io == nil {
		return ringBase{}, api.NewError(api.ErrCodeConfig, "ring requires an I/O handle")
	}
	b := ringBase{
		descs:    make([]Descriptor, size),
		states:   make([]DescState, size),
		bufs:     make([]*alloc.Allocation, size),
		mask:     uint32(size - 1),
		basePhys: basePhys,
		io:       io,
	}
	// The next chain is circular and static; hardware walks it into
	// whatever batch software has armed ahead.
	for i := range b.descs {
		b.descs[i].Next = b.descPhys(uint32(i+1) & b.mask)
	}
	return b, nil
}

func (b *ringBase) size() int { return len(b.descs) }

func (b *ringBase) descPhys(i uint32) uint32 {
	return b.basePhys + (i&b.mask)*DescBytes
}

// transition advances a slot's shadow state. An illegal transition is
// counted and refused; the caller must treat refusal as "do not touch".
func (b *ringBase) transition(idx uint32, to DescState) bool {
	from := b.states[idx]
	if !from.legalNext(to) {
		b.illegalWrites.Add(1)
		if b.violation != nil {
			b.violation(int(idx), from, to)
		}
		return false
	}
	b.states[idx] = to
	return true
}

// ownedBySoftware guards descriptor field writes: the non-owning side
// never mutates buffer fields.
func (b *ringBase) ownedBySoftware(idx uint32) bool {
	if b.states[idx] == DescHardwareOwned || LoadStatus(&b.descs[idx])&StatusOwn != 0 {
		b.illegalWrites.Add(1)
		if b.violation != nil {
			b.violation(int(idx), b.states[idx], b.states[idx])
		}
		return false
	}
	return true
}

func (b *ringBase) doorbell(reg uint16, value uint32) {
	b.io.Write(reg, value)
	b.doorbells.Add(1)
}

// handshake programs a list pointer and verifies the readback within a
// bounded retry-with-delay budget. Exceeding the budget is an init
// failure, the only place a timeout exists in this package.
func (b *ringBase) handshake(reg uint16, attempts int, delay time.Duration) error {
	if attempts <= 0 {
		attempts = defaultHandshakeAttempts
	}
	if delay <= 0 {
		delay = defaultHandshakeDelay
	}
	b.doorbell(reg, b.basePhys)
	for i := 0; i < attempts; i++ {
		if b.io.Read(reg) == b.basePhys {
			return nil
		}
		time.Sleep(delay)
	}
	return api.NewError(api.ErrCodeTimeout, "list pointer readback mismatch").
		WithContext("reg", reg).WithContext("attempts", attempts)
}

// SetViolationHook installs a state machine instrumentation callback.
// Test-only; must be set before the ring starts.
func (b *ringBase) SetViolationHook(fn func(idx int, from, to DescState)) {
	b.violation = fn
}

// HardwareDescriptors exposes the descriptor array for the hardware side
// of the handshake (device models and tests). Software-side callers must
// go through the ring API instead.
func (b *ringBase) HardwareDescriptors() []Descriptor { return b.descs }
