// File: alloc/pool_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-dma/api"
)

// scriptedSource places each region at the next scripted bus address.
// Local to the internal tests; external tests use the fake package.
type scriptedSource struct {
	bases []uint32
	next  uint32
}

func (s *scriptedSource) AllocRegion(size int) (api.Region, error) {
	bus := s.next
	if len(s.bases) > 0 {
		bus = s.bases[0]
		s.bases = s.bases[1:]
	}
	s.next = bus + uint32(size) + 0x1000
	return api.Region{Block: make([]byte, size), Bus: bus}, nil
}

func (s *scriptedSource) FreeRegion(api.Region) error { return nil }

func TestCarveSkipsBoundaryStraddle(t *testing.T) {
	// Raw block starts 512 bytes before a 64KB boundary: the first
	// 1536-byte slot must land past the boundary, never straddle it.
	src := &scriptedSource{bases: []uint32{0x20000 - 512}}

	p, err := carvePool(1, PoolConfig{SlotSize: 1536, SlotCount: 8, Alignment: 16, DMACapable: true}, src)
	require.NoError(t, err)

	require.NotEmpty(t, p.slots)
	assert.GreaterOrEqual(t, p.slots[0].phys, uint32(0x20000))
	for _, s := range p.slots {
		assert.False(t, crossesBoundary(s.phys, 1536),
			"slot at %#x straddles a 64KB unit", s.phys)
	}
	assert.GreaterOrEqual(t, p.boundaryAvoided.Load(), uint64(1))
}

func TestCarveAlignsEverySlot(t *testing.T) {
	src := &scriptedSource{next: 0x1003} // deliberately misaligned base

	p, err := carvePool(1, PoolConfig{SlotSize: 256, SlotCount: 32, Alignment: 64}, src)
	require.NoError(t, err)
	require.Len(t, p.slots, 32)
	for _, s := range p.slots {
		assert.Zero(t, s.phys%64, "slot at %#x not 64-byte aligned", s.phys)
	}
}

func TestCarveRejectsBadConfig(t *testing.T) {
	src := &scriptedSource{}
	cases := []struct {
		name string
		cfg  PoolConfig
	}{
		{"zero slot size", PoolConfig{SlotSize: 0, SlotCount: 4, Alignment: 16}},
		{"zero count", PoolConfig{SlotSize: 256, SlotCount: 0, Alignment: 16}},
		{"non-power-of-two alignment", PoolConfig{SlotSize: 256, SlotCount: 4, Alignment: 48}},
		{"slot larger than boundary unit", PoolConfig{SlotSize: BoundaryUnit + 1, SlotCount: 1, Alignment: 16}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := carvePool(1, tc.cfg, src)
			assert.Error(t, err)
		})
	}
}

func TestCrossesBoundary(t *testing.T) {
	assert.False(t, crossesBoundary(0x0000, 1536))
	assert.False(t, crossesBoundary(0x10000-1536, 1536))
	assert.True(t, crossesBoundary(0x10000-1535, 1536))
	assert.True(t, crossesBoundary(0xFFFF, 2))
	assert.False(t, crossesBoundary(0xFFFF, 1))
}
