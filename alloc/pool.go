// File: alloc/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One slot pool: a raw region carved into boundary-safe, aligned slots
// with a free-list of slot indices.

package alloc

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-dma/api"
)

// BoundaryUnit is the naturally aligned unit legacy DMA controllers cannot
// cross within one transfer.
const BoundaryUnit = 64 * 1024

// PoolConfig sizes one slot pool.
type PoolConfig struct {
	SlotSize  int `json:"slotSize"`
	SlotCount int `json:"slotCount"`
	// Alignment the bus address of every slot must satisfy. Power of two.
	Alignment  int  `json:"alignment"`
	DMACapable bool `json:"dmaCapable"`
}

func (c PoolConfig) validate() error {
	if c.SlotSize <= 0 || c.SlotCount <= 0 {
		return errors.Errorf("pool: slot size %d / count %d must be positive", c.SlotSize, c.SlotCount)
	}
	if c.SlotSize > BoundaryUnit {
		return errors.Errorf("pool: slot size %d cannot fit inside one %d-byte boundary unit", c.SlotSize, BoundaryUnit)
	}
	if c.Alignment <= 0 || c.Alignment&(c.Alignment-1) != 0 {
		return errors.Errorf("pool: alignment %d must be a power of two", c.Alignment)
	}
	return nil
}

// crossesBoundary reports whether [phys, phys+size) straddles a 64KB unit.
func crossesBoundary(phys uint32, size int) bool {
	return (uint64(phys&0xFFFF) + uint64(size)) > 0x10000
}

func alignUp(v uint32, align int) uint32 {
	a := uint32(align)
	return (v + a - 1) &^ (a - 1)
}

type slot struct {
	off  int
	phys uint32
	lock uint64
	live bool
}

// pool owns one raw region. Free-list mutation happens only in the worker
// context; counters are atomic so stats collectors can read concurrently.
type pool struct {
	id     uint8
	cfg    PoolConfig
	region api.Region
	slots  []slot
	free   []int32

	bounced bool

	inUse           int32
	peakInUse       int32
	allocations     atomic.Uint64
	failures        atomic.Uint64
	boundaryAvoided atomic.Uint64
	invalidFrees    atomic.Uint64
}

// carvePool over-allocates the raw block by one boundary unit plus
// alignment slack, then walks it placing slots: each slot start is aligned
// up, and a slot that would straddle a 64KB unit is pushed past the
// boundary instead. Placements skipped this way are counted.
func carvePool(id uint8, cfg PoolConfig, src api.RegionSource) (*pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	raw := cfg.SlotSize*cfg.SlotCount + BoundaryUnit + cfg.Alignment
	region, err := src.AllocRegion(raw)
	if err != nil {
		return nil, errors.Wrap(err, "pool: raw region allocation failed")
	}

	p := &pool{
		id:     id,
		cfg:    cfg,
		region: region,
		slots:  make([]slot, 0, cfg.SlotCount),
		free:   make([]int32, 0, cfg.SlotCount),
	}

	cursor := alignUp(region.Bus, cfg.Alignment)
	end := region.Bus + uint32(len(region.Block))
	for len(p.slots) < cfg.SlotCount {
		if crossesBoundary(cursor, cfg.SlotSize) {
			cursor = alignUp((cursor&^uint32(0xFFFF))+BoundaryUnit, cfg.Alignment)
			p.boundaryAvoided.Add(1)
		}
		if cursor+uint32(cfg.SlotSize) > end {
			break
		}
		p.slots = append(p.slots, slot{
			off:  int(cursor - region.Bus),
			phys: cursor,
		})
		p.free = append(p.free, int32(len(p.slots)-1))
		cursor += uint32(cfg.SlotSize)
	}
	if len(p.slots) == 0 {
		_ = src.FreeRegion(region)
		return nil, errors.Errorf("pool: no boundary-safe slot placement found for slot size %d", cfg.SlotSize)
	}
	return p, nil
}

// take pops a free slot. Returns a negative index when exhausted.
func (p *pool) take() int32 {
	n := len(p.free)
	if n == 0 {
		p.failures.Add(1)
		return -1
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	p.slots[idx].live = true
	p.allocations.Add(1)
	p.inUse++
	if p.inUse > p.peakInUse {
		p.peakInUse = p.inUse
	}
	return idx
}

// release validates a handle against the slot table before returning the
// slot to the free list. A bad handle is reported and mutates nothing.
func (p *pool) release(a *Allocation) error {
	if a.slot < 0 || int(a.slot) >= len(p.slots) {
		p.invalidFrees.Add(1)
		return api.NewError(api.ErrCodeInvalidHandle, "free: slot index out of range").
			WithContext("pool", p.id).WithContext("slot", a.slot)
	}
	s := &p.slots[a.slot]
	if !s.live || s.off != a.slotOffset() {
		p.invalidFrees.Add(1)
		return api.NewError(api.ErrCodeInvalidHandle, "free: handle does not match a live slot").
			WithContext("pool", p.id).WithContext("slot", a.slot)
	}
	s.live = false
	s.lock = 0
	p.free = append(p.free, a.slot)
	p.inUse--
	return nil
}

func (p *pool) stats() api.PoolStats {
	return api.PoolStats{
		SlotSize:        p.cfg.SlotSize,
		SlotCount:       len(p.slots),
		InUse:           int(p.inUse),
		PeakInUse:       int(p.peakInUse),
		Allocations:     p.allocations.Load(),
		Failures:        p.failures.Load(),
		BoundaryAvoided: p.boundaryAvoided.Load(),
		InvalidFrees:    p.invalidFrees.Load(),
		DMACapable:      p.cfg.DMACapable,
		Bounced:         p.bounced,
	}
}
