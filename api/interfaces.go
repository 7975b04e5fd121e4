// File: api/interfaces.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// External collaborator contracts: memory regions, address translation and
// the device register window. All three are injected strategies, selected
// once at startup and never branched per call.

package api

// Region is one raw memory block handed to the allocator. Block is the
// linear view; Bus is the address hardware would see for Block[0] under
// PolicyDirect. Under PolicyTranslated the real physical address comes
// from the TranslationService per locked range.
type Region struct {
	Block []byte
	Bus   uint32
}

// RegionSource produces raw blocks the allocator carves pools from.
// The production source maps process memory; tests substitute a source
// that places regions at chosen bus addresses.
type RegionSource interface {
	// AllocRegion returns a zeroed region of at least size bytes.
	AllocRegion(size int) (Region, error)

	// FreeRegion releases a region previously returned by AllocRegion.
	FreeRegion(Region) error
}

// LockResult describes one locked DMA range.
type LockResult struct {
	// Physical is the bus address hardware must be given for the range.
	Physical uint32

	// Handle identifies the lock for Unlock.
	Handle uint64

	// Bounced is set when the service transparently redirected the range
	// through a bounce buffer. Bounced data is only coherent around
	// explicit lock/unlock, so bounced pools force the copy path.
	Bounced bool
}

// TranslationService is the platform facility that pins a linear range and
// resolves its physical address (the VDS role on the original platform).
type TranslationService interface {
	Lock(bus uint32, size int, flags uint32) (LockResult, error)
	Unlock(handle uint64) error
}

// IOHandle is the register window of one device instance. The ring manager
// uses it for doorbell writes and the one-shot init readback handshake.
// Bus/device enumeration supplies the implementation.
type IOHandle interface {
	Write(reg uint16, value uint32)
	Read(reg uint16) uint32
}
