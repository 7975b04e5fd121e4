// File: ring/tx.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Transmit ring with lazy interrupt coalescing: a completion interrupt is
// requested when the queue leaves empty, every Kth packet, or when the
// ring approaches capacity. Batching N acknowledgments per interrupt
// trades bounded buffer-retention latency for a large cut in interrupt
// rate; the empty/near-full overrides bound the worst case.

package ring

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-dma/alloc"
	"github.com/momentics/hioload-dma/api"
	"github.com/momentics/hioload-dma/pool"
)

// ReleaseFunc is invoked when a zero-copy submission completes, so the
// buffer's owner can reclaim it. phys names the submitted buffer.
type ReleaseFunc func(phys uint32)

// TxConfig sizes one transmit ring.
type TxConfig struct {
	Size     int    `json:"size"`
	BasePhys uint32 `json:"-"`
	// IRQInterval is K: request a completion interrupt every Kth packet.
	// Power of two so the decision is a bitmask test.
	IRQInterval int `json:"irqInterval"`
	// HighWater forces an interrupt request when in-flight reaches it.
	// Zero: three quarters of the ring.
	HighWater         int           `json:"highWater"`
	HandshakeAttempts int           `json:"handshakeAttempts"`
	HandshakeDelay    time.Duration `json:"-"`
}

func (c TxConfig) withDefaults() TxConfig {
	if c.IRQInterval == 0 {
		c.IRQInterval = 8
	}
	if c.HighWater == 0 {
		c.HighWater = c.Size * 3 / 4
	}
	return c
}

type txPending struct {
	buf  *alloc.Allocation // ring-owned staging buffer, nil on zero-copy
	phys uint32
}

// TxRing drives one download (transmit) descriptor ring.
type TxRing struct {
	ringBase
	cfg     TxConfig
	tiers   *pool.Tiers
	cb      *pool.CopyBreak
	release ReleaseFunc
	pend    []txPending

	inflight int
	sinceIRQ uint32
	forceIRQ bool
	irqMask  uint32

	packets        uint64
	completions    uint64
	irqRequested   uint64
	irqSaved       uint64
	emptyQueueIRQs uint64
	thresholdIRQs  uint64
	highWaterIRQs  uint64
	ringFullEvents uint64

	log *logrus.Entry
}

// NewTxRing builds the ring. Start must be called before traffic.
func NewTxRing(cfg TxConfig, tiers *pool.Tiers, cb *pool.CopyBreak, io api.IOHandle, release ReleaseFunc) (*TxRing, error) {
	cfg = cfg.withDefaults()
	base, err := newRingBase(cfg.Size, cfg.BasePhys, io)
	if err != nil {
		return nil, err
	}
	if cfg.IRQInterval < 1 || cfg.IRQInterval&(cfg.IRQInterval-1) != 0 {
		return nil, api.NewError(api.ErrCodeConfig, "tx IRQ interval must be a power of two").
			WithContext("interval", cfg.IRQInterval)
	}
	if tiers == nil || cb == nil {
		return nil, api.NewError(api.ErrCodeConfig, "tx ring requires tiers and copy-break")
	}
	return &TxRing{
		ringBase: base,
		cfg:      cfg,
		tiers:    tiers,
		cb:       cb,
		release:  release,
		pend:     make([]txPending, cfg.Size),
		irqMask:  uint32(cfg.IRQInterval - 1),
		log:      logrus.WithField("pkg", "ring.tx"),
	}, nil
}

// Start programs the download list pointer and verifies the readback.
func (t *TxRing) Start() error {
	if err := t.handshake(RegDownListPtr, t.cfg.HandshakeAttempts, t.cfg.HandshakeDelay); err != nil {
		return err
	}
	t.log.WithFields(logrus.Fields{"size": t.size(), "k": t.cfg.IRQInterval}).Info("tx ring started")
	return nil
}

// Enqueue stages one payload for transmission. A full ring returns
// backpressure (ErrCodeExhausted) and latches an interrupt request onto
// the next accepted packet so the stall resolves itself.
func (t *TxRing) Enqueue(payload []byte, srcPhys uint32, srcDMASafe bool) error {
	if t.inflight >= t.size()-1 {
		t.forceIRQ = true
		t.ringFullEvents++
		return api.NewError(api.ErrCodeExhausted, "tx ring full").
			WithContext("inflight", t.inflight)
	}
	v, err := t.cb.OnTransmitPrepare(payload, srcPhys, srcDMASafe)
	if err != nil {
		return err
	}

	idx := t.head
	if !t.ownedBySoftware(idx) || !t.transition(idx, DescArmed) {
		// Shadow state disagrees with the ring; refuse rather than corrupt.
		if v.Buf != nil {
			_ = t.tiers.Release(v.Buf)
		}
		return api.NewError(api.ErrCodeInternal, "tx slot not free").WithContext("idx", idx)
	}
	d := &t.descs[idx]
	d.Addr = v.Phys
	d.Length = uint32(v.Len)
	t.pend[idx] = txPending{buf: v.Buf, phys: v.Phys}

	status := StatusOwn
	if t.shouldInterrupt() {
		status |= StatusIRQ
	}
	t.transition(idx, DescHardwareOwned)
	StoreStatus(d, status)

	t.head = (t.head + 1) & t.mask
	t.outstanding++
	t.inflight++
	t.packets++
	t.doorbell(RegDownListPtr, t.descPhys(idx))
	return nil
}

// shouldInterrupt applies the lazy coalescing policy, in priority order:
// leaving empty guarantees forward progress, the Kth-packet mask bounds
// acknowledgment latency, the high-water override prevents a silent stall
// near capacity.
func (t *TxRing) shouldInterrupt() bool {
	request := false
	switch {
	case t.inflight == 0:
		t.emptyQueueIRQs++
		request = true
	case t.sinceIRQ&t.irqMask == t.irqMask:
		t.thresholdIRQs++
		request = true
	case t.inflight+1 >= t.cfg.HighWater:
		t.highWaterIRQs++
		request = true
	case t.forceIRQ:
		request = true
	}
	if request {
		// Any granted request satisfies a latched backpressure demand.
		t.forceIRQ = false
		t.sinceIRQ = 0
		t.irqRequested++
	} else {
		t.sinceIRQ++
		t.irqSaved++
	}
	return request
}

// Harvest reclaims every contiguously completed descriptor from the tail
// in one pass, releasing buffers and updating the in-flight count.
func (t *TxRing) Harvest() int {
	reclaimed := 0
	for t.inflight > 0 {
		idx := t.tail
		st := LoadStatus(&t.descs[idx])
		if st&StatusOwn != 0 {
			break
		}
		if !t.transition(idx, DescCompleted) {
			break
		}
		t.transition(idx, DescFree)
		t.outstanding--

		p := t.pend[idx]
		t.pend[idx] = txPending{}
		if p.buf != nil {
			_ = t.tiers.Release(p.buf)
		} else if t.release != nil {
			t.release(p.phys)
		}

		t.inflight--
		t.completions++
		t.tail = (t.tail + 1) & t.mask
		reclaimed++
	}
	return reclaimed
}

// InFlight reports packets currently queued to hardware.
func (t *TxRing) InFlight() int { return t.inflight }

// Stats snapshots the ring counters.
func (t *TxRing) Stats() api.TxStats {
	return api.TxStats{
		Packets:        t.packets,
		Completions:    t.completions,
		IRQRequested:   t.irqRequested,
		IRQSaved:       t.irqSaved,
		EmptyQueueIRQs: t.emptyQueueIRQs,
		ThresholdIRQs:  t.thresholdIRQs,
		HighWaterIRQs:  t.highWaterIRQs,
		RingFullEvents: t.ringFullEvents,
		DoorbellWrites: t.doorbells.Load(),
		IllegalWrites:  t.illegalWrites.Load(),
	}
}
