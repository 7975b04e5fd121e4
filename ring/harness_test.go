// File: ring/harness_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ring_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-dma/alloc"
	"github.com/momentics/hioload-dma/api"
	"github.com/momentics/hioload-dma/fake"
	"github.com/momentics/hioload-dma/pool"
	"github.com/momentics/hioload-dma/ring"
)

const testThreshold = 192

type harness struct {
	io    *fake.IOHandle
	nic   *fake.NIC
	tiers *pool.Tiers
	cb    *pool.CopyBreak

	rx *ring.RxRing
	tx *ring.TxRing

	frames   []*alloc.Allocation
	lens     []int
	released []uint32
}

// newHarness builds tiers and a copy-break engine with enough buffers to
// keep a ring of ringSize slots armed through refills.
func newHarness(t *testing.T, ringSize int) *harness {
	t.Helper()
	cfg := alloc.Config{
		DMAPools: []alloc.PoolConfig{
			{SlotSize: pool.FrameSize, SlotCount: ringSize*2 + 8, Alignment: 16, DMACapable: true},
		},
		CopyPool: alloc.PoolConfig{SlotSize: pool.FrameSize, SlotCount: ringSize + 8, Alignment: 4},
	}
	a, err := alloc.New(cfg, api.PolicyDirect, nil, fake.NewRegionSource(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	h := &harness{
		io:    fake.NewIOHandle(),
		nic:   fake.NewNIC(),
		tiers: pool.NewTiers(a),
	}
	h.cb, err = pool.NewCopyBreak(h.tiers, pool.ProfilePCI, pool.Tuning{Threshold: testThreshold})
	require.NoError(t, err)
	t.Cleanup(h.releaseDelivered)
	return h
}

func (h *harness) deliver(buf *alloc.Allocation, n int) {
	h.frames = append(h.frames, buf)
	h.lens = append(h.lens, n)
}

func (h *harness) release(phys uint32) {
	h.released = append(h.released, phys)
}

func (h *harness) releaseDelivered() {
	for _, b := range h.frames {
		_ = h.tiers.Release(b)
	}
	h.frames = nil
}

func (h *harness) startRx(t *testing.T, cfg ring.RxConfig) *ring.RxRing {
	t.Helper()
	cfg.HandshakeDelay = time.Microsecond
	r, err := ring.NewRxRing(cfg, h.tiers, h.cb, h.io, h.deliver)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	t.Cleanup(r.Close)
	h.rx = r
	h.nic.AttachRx(r)
	return r
}

func (h *harness) startTx(t *testing.T, cfg ring.TxConfig) *ring.TxRing {
	t.Helper()
	cfg.HandshakeDelay = time.Microsecond
	tx, err := ring.NewTxRing(cfg, h.tiers, h.cb, h.io, h.release)
	require.NoError(t, err)
	require.NoError(t, tx.Start())
	h.tx = tx
	h.nic.AttachTx(tx)
	return tx
}
