// File: fake/region.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-dma/api"
)

// RegionSource hands out regions at scripted bus addresses so tests can
// place pools exactly relative to 64KB boundaries.
type RegionSource struct {
	mu     sync.Mutex
	nextAt []uint32 // scripted bases, consumed in order
	cursor uint32   // fallback base when the script is empty
	live   int
}

// NewRegionSource starts handing out regions at base.
func NewRegionSource(base uint32) *RegionSource {
	return &RegionSource{cursor: base}
}

// PlaceNextAt scripts the bus address of an upcoming AllocRegion call.
func (s *RegionSource) PlaceNextAt(bus uint32) {
	s.mu.Lock()
	s.nextAt = append(s.nextAt, bus)
	s.mu.Unlock()
}

// AllocRegion implements api.RegionSource.
func (s *RegionSource) AllocRegion(size int) (api.Region, error) {
	if size <= 0 {
		return api.Region{}, fmt.Errorf("fake region: invalid size %d", size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bus := s.cursor
	if len(s.nextAt) > 0 {
		bus = s.nextAt[0]
		s.nextAt = s.nextAt[1:]
	} else {
		s.cursor += uint32(size) + 0x1000
	}
	s.live++
	return api.Region{Block: make([]byte, size), Bus: bus}, nil
}

// FreeRegion implements api.RegionSource.
func (s *RegionSource) FreeRegion(api.Region) error {
	s.mu.Lock()
	s.live--
	s.mu.Unlock()
	return nil
}

// Live reports regions allocated but not yet freed.
func (s *RegionSource) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}
