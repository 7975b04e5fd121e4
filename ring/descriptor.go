// File: ring/descriptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// 3C515/Boomerang-style descriptor layout and the software-side state
// machine that shadows the ownership handshake.

package ring

import "sync/atomic"

// Descriptor is the hardware-visible record: a link to the next
// descriptor, a status word carrying the ownership flag, and the buffer's
// bus address and length. Sixteen bytes on the wire.
type Descriptor struct {
	Next   uint32
	Status uint32
	Addr   uint32
	Length uint32
}

// DescBytes is the descriptor footprint in ring memory.
const DescBytes = 16

// Status word bits.
const (
	// StatusOwn: hardware owns the descriptor and may read/write its
	// buffer fields. Software never touches an owned descriptor.
	StatusOwn uint32 = 1 << 31
	// StatusComplete: hardware finished the transfer.
	StatusComplete uint32 = 1 << 15
	// StatusError: hardware reported a transfer error.
	StatusError uint32 = 1 << 14
	// StatusIRQ: request a completion interrupt for this descriptor.
	StatusIRQ uint32 = 1 << 13
	// LengthMask extracts the received byte count from an RX status word.
	LengthMask uint32 = 0x1FFF
)

// LoadStatus reads a descriptor's status word with acquire semantics.
func LoadStatus(d *Descriptor) uint32 { return atomic.LoadUint32(&d.Status) }

// StoreStatus publishes a descriptor's status word; this is the ownership
// transfer point.
func StoreStatus(d *Descriptor, v uint32) { atomic.StoreUint32(&d.Status, v) }

// DescState is the software shadow of one descriptor's position in the
// recycle cycle. The only legal sequence is
// Free -> Armed -> HardwareOwned -> Completed -> Free.
type DescState uint8

const (
	DescFree DescState = iota
	DescArmed
	DescHardwareOwned
	DescCompleted
)

func (s DescState) String() string {
	switch s {
	case DescFree:
		return "free"
	case DescArmed:
		return "armed"
	case DescHardwareOwned:
		return "hw-owned"
	case DescCompleted:
		return "completed"
	}
	return "invalid"
}

// legalNext reports whether s -> to is a permitted transition.
func (s DescState) legalNext(to DescState) bool {
	switch s {
	case DescFree:
		return to == DescArmed
	case DescArmed:
		return to == DescHardwareOwned
	case DescHardwareOwned:
		return to == DescCompleted
	case DescCompleted:
		return to == DescFree
	}
	return false
}
