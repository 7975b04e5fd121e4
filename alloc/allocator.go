// File: alloc/allocator.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Policy-driven allocator over boundary-safe slot pools.

package alloc

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-dma/api"
)

// Config sizes the allocator's pools. DMA pools are selected smallest-fit
// per request; the copy pool backs the copy path and keeps serving under
// PolicyForbidden.
type Config struct {
	DMAPools []PoolConfig `json:"dmaPools"`
	CopyPool PoolConfig   `json:"copyPool"`
}

// Allocator resolves buffers to bus addresses under one fixed policy.
// The translation service is an injected strategy chosen at startup.
type Allocator struct {
	mu     sync.Mutex
	policy api.Policy
	svc    api.TranslationService
	src    api.RegionSource
	pools  []*pool // DMA-capable, ascending slot size
	cp     *pool   // copy-only
	closed bool
	log    *logrus.Entry
}

// New carves all pools up front. Configuration problems abort init; they
// are never deferred to the hot path.
func New(cfg Config, policy api.Policy, svc api.TranslationService, src api.RegionSource) (*Allocator, error) {
	if policy == api.PolicyTranslated && svc == nil {
		return nil, api.NewError(api.ErrCodeConfig, "allocator: translated policy requires a translation service")
	}
	if src == nil {
		return nil, api.NewError(api.ErrCodeConfig, "allocator: nil region source")
	}

	a := &Allocator{
		policy: policy,
		svc:    svc,
		src:    src,
		log:    logrus.WithField("pkg", "alloc"),
	}

	cpCfg := cfg.CopyPool
	cpCfg.DMACapable = false
	cp, err := carvePool(0, cpCfg, src)
	if err != nil {
		return nil, wrapConfig(err, "copy pool")
	}
	a.cp = cp

	if policy.DMAAllowed() {
		dma := append([]PoolConfig(nil), cfg.DMAPools...)
		sort.Slice(dma, func(i, j int) bool { return dma[i].SlotSize < dma[j].SlotSize })
		for i, pc := range dma {
			pc.DMACapable = true
			p, err := carvePool(uint8(i+1), pc, src)
			if err != nil {
				a.teardown()
				return nil, wrapConfig(err, "dma pool")
			}
			a.pools = append(a.pools, p)
		}
	} else {
		a.log.WithField("policy", policy).Warn("bus-master DMA disabled, copy-only pool active")
	}

	a.log.WithFields(logrus.Fields{
		"policy":   policy.String(),
		"dmaPools": len(a.pools),
	}).Info("allocator initialized")
	return a, nil
}

func wrapConfig(err error, what string) error {
	var e *api.Error
	if errors.As(err, &e) {
		return err
	}
	return api.NewError(api.ErrCodeConfig, errors.Wrap(err, what).Error())
}

// Alloc returns a DMA-capable buffer of at least size bytes whose bus
// address satisfies align. Fails fast; never blocks.
func (a *Allocator) Alloc(size, align int) (*Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, api.NewError(api.ErrCodeInternal, api.ErrClosed.Error())
	}
	if !a.policy.DMAAllowed() {
		return nil, api.NewError(api.ErrCodeForbidden, api.ErrForbidden.Error())
	}
	if align <= 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return nil, api.NewError(api.ErrCodeConfig, "alignment must be a power of two").
			WithContext("align", align)
	}
	if len(a.pools) == 0 || size > a.pools[len(a.pools)-1].cfg.SlotSize {
		return nil, api.NewError(api.ErrCodeSizeExceeded, "allocation exceeds largest slot size").
			WithContext("size", size)
	}
	for _, p := range a.pools {
		if p.cfg.SlotSize < size || align > p.cfg.Alignment {
			continue
		}
		if len(p.free) == 0 {
			continue
		}
		return a.claim(p, size, align)
	}
	// Smallest-fit pools all exhausted (or too weakly aligned).
	if best := a.bestFit(size); best != nil {
		best.failures.Add(1)
	}
	return nil, api.NewError(api.ErrCodeExhausted, api.ErrExhausted.Error()).WithContext("size", size)
}

// AllocCopy returns a buffer from the copy-only pool. This path stays
// available under PolicyForbidden.
func (a *Allocator) AllocCopy(size int) (*Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, api.NewError(api.ErrCodeInternal, api.ErrClosed.Error())
	}
	if size > a.cp.cfg.SlotSize {
		return nil, api.NewError(api.ErrCodeSizeExceeded, "allocation exceeds copy slot size").
			WithContext("size", size)
	}
	return a.claim(a.cp, size, a.cp.cfg.Alignment)
}

func (a *Allocator) bestFit(size int) *pool {
	for _, p := range a.pools {
		if p.cfg.SlotSize >= size {
			return p
		}
	}
	return nil
}

func (a *Allocator) claim(p *pool, size, align int) (*Allocation, error) {
	idx := p.take()
	if idx < 0 {
		return nil, api.NewError(api.ErrCodeExhausted, api.ErrExhausted.Error()).
			WithContext("pool", p.id)
	}
	s := &p.slots[idx]
	phys := s.phys

	if p.cfg.DMACapable && a.policy == api.PolicyTranslated {
		res, err := a.svc.Lock(s.phys, p.cfg.SlotSize, 0)
		if err != nil {
			// Undo the take; the slot was never exposed.
			s.live = false
			p.free = append(p.free, idx)
			p.inUse--
			p.failures.Add(1)
			return nil, api.NewError(api.ErrCodeInternal, "translation lock failed").
				WithContext("cause", err.Error())
		}
		s.lock = res.Handle
		phys = res.Physical
		if res.Bounced && !p.bounced {
			p.bounced = true
			a.log.WithField("pool", p.id).Warn("translation service bounces this pool")
		}
	}

	if crossesBoundary(phys, size) {
		// Carve-time layout should make this impossible; refuse the
		// allocation rather than hand out corrupt bounds.
		a.unlockSlot(p, s)
		s.live = false
		p.free = append(p.free, idx)
		p.inUse--
		a.log.WithFields(logrus.Fields{"pool": p.id, "phys": phys, "size": size}).
			Error("boundary violation detected at alloc time")
		return nil, api.NewError(api.ErrCodeBoundary, "allocation would straddle a 64KB unit").
			WithContext("phys", phys)
	}

	return &Allocation{
		poolID: p.id,
		slot:   idx,
		off:    s.off,
		size:   size,
		align:  align,
		virt:   p.region.Block[s.off : s.off+size : s.off+p.cfg.SlotSize],
		phys:   phys,
		lock:   s.lock,
		dma:    p.cfg.DMACapable,
		valid:  true,
	}, nil
}

// Free returns a buffer to its pool. Exactly-once: a second Free on the
// same handle, or a foreign handle, is reported as InvalidHandle and
// mutates no pool state.
func (a *Allocator) Free(alloc *Allocation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if alloc == nil || !alloc.valid {
		return api.NewError(api.ErrCodeInvalidHandle, "free of nil or already-freed handle")
	}
	p := a.poolByID(alloc.poolID)
	if p == nil {
		return api.NewError(api.ErrCodeInvalidHandle, "free: unknown pool").
			WithContext("pool", alloc.poolID)
	}
	// Validate before unlocking: a handle the pool rejects must leave the
	// translation lock untouched.
	if err := p.release(alloc); err != nil {
		return err
	}
	if alloc.lock != 0 && a.svc != nil {
		if err := a.svc.Unlock(alloc.lock); err != nil {
			a.log.WithField("handle", alloc.lock).Warn("translation unlock failed")
		}
	}
	alloc.valid = false
	return nil
}

// PhysicalOf resolves a handle to its bus address. Invalid handles yield 0.
func (a *Allocator) PhysicalOf(alloc *Allocation) uint32 {
	if !alloc.Valid() {
		return 0
	}
	return alloc.phys
}

// Policy returns the policy the allocator was configured with.
func (a *Allocator) Policy() api.Policy { return a.policy }

// CopySlotSize reports the copy pool's slot size, the ceiling for the
// copy-break threshold.
func (a *Allocator) CopySlotSize() int { return a.cp.cfg.SlotSize }

// Utilization reports in-use/capacity of the copy pool in percent, the
// input to adaptive copy-break maintenance.
func (a *Allocator) Utilization() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.cp.slots) == 0 {
		return 0
	}
	return int(a.cp.inUse) * 100 / len(a.cp.slots)
}

// Bounced reports whether any DMA pool is serviced through bounce buffers.
func (a *Allocator) Bounced() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pools {
		if p.bounced {
			return true
		}
	}
	return false
}

func (a *Allocator) poolByID(id uint8) *pool {
	if id == 0 {
		return a.cp
	}
	for _, p := range a.pools {
		if p.id == id {
			return p
		}
	}
	return nil
}

// Stats snapshots all pools.
func (a *Allocator) Stats() api.AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := api.AllocatorStats{Policy: a.policy}
	st.Pools = append(st.Pools, a.cp.stats())
	for _, p := range a.pools {
		st.Pools = append(st.Pools, p.stats())
	}
	return st
}

// Close destroys all pools. Every slot must have been freed; leaks are
// reported per pool and the regions are released regardless.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var errs *multierror.Error
	for _, p := range append([]*pool{a.cp}, a.pools...) {
		if p.inUse != 0 {
			errs = multierror.Append(errs, errors.Errorf("pool %d closed with %d slots in use", p.id, p.inUse))
		}
		if err := a.src.FreeRegion(p.region); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "pool %d region release", p.id))
		}
	}
	return errs.ErrorOrNil()
}

func (a *Allocator) unlockSlot(p *pool, s *slot) {
	if s.lock != 0 && a.svc != nil {
		_ = a.svc.Unlock(s.lock)
		s.lock = 0
	}
}

func (a *Allocator) teardown() {
	for _, p := range a.pools {
		_ = a.src.FreeRegion(p.region)
	}
	if a.cp != nil {
		_ = a.src.FreeRegion(a.cp.region)
	}
}
