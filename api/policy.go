// File: api/policy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DMA policy selected once at startup by the platform detector.

package api

// Policy tells the allocator how linear addresses relate to bus addresses
// and whether bus-master DMA is permitted at all.
type Policy uint8

const (
	// PolicyDirect: linear == physical, no translation needed.
	PolicyDirect Policy = iota

	// PolicyTranslated: every DMA region must be locked through a
	// TranslationService before its physical address may be handed to
	// hardware.
	PolicyTranslated

	// PolicyForbidden: the environment virtualizes memory without offering
	// a translation service. Bus-master DMA is unsafe; only copy-path
	// (non-DMA) allocations are served.
	PolicyForbidden
)

func (p Policy) String() string {
	switch p {
	case PolicyDirect:
		return "direct"
	case PolicyTranslated:
		return "translated"
	case PolicyForbidden:
		return "forbidden"
	}
	return "unknown"
}

// DMAAllowed reports whether bus-master DMA allocations may be served.
func (p Policy) DMAAllowed() bool {
	return p != PolicyForbidden
}
