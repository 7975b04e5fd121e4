// File: alloc/region.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Default region source backed by process memory.

package alloc

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-dma/api"
)

type hostRegionSource struct{}

// HostRegionSource returns a RegionSource that maps process memory and
// derives a stable 32-bit bus address from the block's base pointer. Under
// PolicyTranslated the translation service supersedes this address per
// locked range; under PolicyDirect it stands in for the flat mapping.
func HostRegionSource() api.RegionSource { return hostRegionSource{} }

func (hostRegionSource) AllocRegion(size int) (api.Region, error) {
	if size <= 0 {
		return api.Region{}, errors.Errorf("region: invalid size %d", size)
	}
	block := make([]byte, size)
	return api.Region{
		Block: block,
		Bus:   uint32(uintptr(unsafe.Pointer(&block[0]))),
	}, nil
}

func (hostRegionSource) FreeRegion(api.Region) error { return nil }
