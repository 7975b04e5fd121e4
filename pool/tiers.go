// File: pool/tiers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"github.com/momentics/hioload-dma/alloc"
	"github.com/momentics/hioload-dma/api"
)

// Standard Ethernet frame buffer size used by the DMA tier.
const FrameSize = 1536

// Tiers exposes the two buffer classes the data path uses: small copy
// buffers (non-DMA, survive PolicyForbidden) and full-size DMA frame
// buffers for descriptor rings.
type Tiers struct {
	a *alloc.Allocator
}

// NewTiers wraps an allocator. The allocator's copy pool backs AcquireCopy;
// its DMA pools back AcquireFrame.
func NewTiers(a *alloc.Allocator) *Tiers {
	return &Tiers{a: a}
}

// AcquireCopy returns a copy-path buffer of at least n bytes.
func (t *Tiers) AcquireCopy(n int) (*alloc.Allocation, error) {
	return t.a.AllocCopy(n)
}

// AcquireFrame returns a DMA-safe full-frame buffer for ring arming.
func (t *Tiers) AcquireFrame() (*alloc.Allocation, error) {
	return t.a.Alloc(FrameSize, 16)
}

// Release returns a buffer to its pool.
func (t *Tiers) Release(b *alloc.Allocation) error {
	return t.a.Free(b)
}

// CopyUtilization reports copy-pool usage percent for maintenance.
func (t *Tiers) CopyUtilization() int { return t.a.Utilization() }

// MaxCopySize is the largest payload the copy path can hold.
func (t *Tiers) MaxCopySize() int { return t.a.CopySlotSize() }

// Bounced reports whether the DMA tier goes through bounce buffers.
func (t *Tiers) Bounced() bool { return t.a.Bounced() }

// Policy returns the underlying allocator policy.
func (t *Tiers) Policy() api.Policy { return t.a.Policy() }
