// File: ring/rx.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Receive ring: budgeted drain, copy-break hand-off, and batched refill
// armed with a single doorbell write per contiguous run.

package ring

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-dma/alloc"
	"github.com/momentics/hioload-dma/api"
	"github.com/momentics/hioload-dma/pool"
)

// DeliverFunc receives a validated frame. Ownership of buf transfers to
// the callback; it must eventually release the buffer back through the
// tiers.
type DeliverFunc func(buf *alloc.Allocation, n int)

// RxConfig sizes one receive ring.
type RxConfig struct {
	Size     int    `json:"size"`
	BasePhys uint32 `json:"-"`
	// RefillThreshold: refill only once at least this many slots are free.
	RefillThreshold int `json:"refillThreshold"`
	// BatchCap bounds buffers armed per refill call.
	BatchCap int `json:"batchCap"`
	// DrainBudget bounds completions processed per Drain call.
	DrainBudget       int           `json:"drainBudget"`
	HandshakeAttempts int           `json:"handshakeAttempts"`
	HandshakeDelay    time.Duration `json:"-"`
}

func (c RxConfig) withDefaults() RxConfig {
	if c.RefillThreshold == 0 {
		c.RefillThreshold = 8
	}
	if c.BatchCap == 0 {
		c.BatchCap = 16
	}
	if c.DrainBudget == 0 {
		c.DrainBudget = 16
	}
	return c
}

// RxRing drives one upload (receive) descriptor ring.
type RxRing struct {
	ringBase
	cfg     RxConfig
	tiers   *pool.Tiers
	cb      *pool.CopyBreak
	deliver DeliverFunc

	freeCount int

	delivered     uint64
	rxErrors      uint64
	bulkRefills   uint64
	refilled      uint64
	allocFailures uint64

	log *logrus.Entry
}

// NewRxRing builds the ring. Start must be called before traffic.
func NewRxRing(cfg RxConfig, tiers *pool.Tiers, cb *pool.CopyBreak, io api.IOHandle, deliver DeliverFunc) (*RxRing, error) {
	cfg = cfg.withDefaults()
	base, err := newRingBase(cfg.Size, cfg.BasePhys, io)
	if err != nil {
		return nil, err
	}
	if tiers == nil || cb == nil || deliver == nil {
		return nil, api.NewError(api.ErrCodeConfig, "rx ring requires tiers, copy-break and a delivery callback")
	}
	return &RxRing{
		ringBase:  base,
		cfg:       cfg,
		tiers:     tiers,
		cb:        cb,
		deliver:   deliver,
		freeCount: cfg.Size,
		log:       logrus.WithField("pkg", "ring.rx"),
	}, nil
}

// Start arms the full ring and programs the upload list pointer, then
// verifies the readback handshake.
func (r *RxRing) Start() error {
	if n := r.arm(r.size()); n < r.size() {
		r.drainArmed()
		return api.NewError(api.ErrCodeExhausted, "initial ring fill incomplete").
			WithContext("armed", n).WithContext("size", r.size())
	}
	if err := r.handshake(RegUpListPtr, r.cfg.HandshakeAttempts, r.cfg.HandshakeDelay); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{"size": r.size(), "base": r.basePhys}).Info("rx ring started")
	return nil
}

// arm fills up to limit free slots starting at head, grants ownership
// over the armed run, and returns the run length. No doorbell here.
func (r *RxRing) arm(limit int) int {
	armed := 0
	for armed < limit && r.states[r.head] == DescFree {
		idx := r.head
		if !r.ownedBySoftware(idx) {
			break
		}
		if r.bufs[idx] == nil {
			// Slot emptied by a zero-copy hand-off; it needs a fresh frame.
			b, err := r.tiers.AcquireFrame()
			if err != nil {
				r.allocFailures++
				r.cb.NoteZeroCopyFailure()
				break
			}
			r.bufs[idx] = b
		}
		d := &r.descs[idx]
		d.Addr = r.bufs[idx].Physical()
		d.Length = uint32(r.bufs[idx].Size())
		r.transition(idx, DescArmed)
		r.head = (r.head + 1) & r.mask
		armed++
	}
	// Ownership flips after every descriptor in the run is filled, so
	// hardware never observes a half-built descriptor.
	idx := (r.head - uint32(armed)) & r.mask
	for i := 0; i < armed; i++ {
		r.transition(idx, DescHardwareOwned)
		StoreStatus(&r.descs[idx], StatusOwn)
		idx = (idx + 1) & r.mask
	}
	r.outstanding += int32(armed)
	r.freeCount -= armed
	return armed
}

// Refill arms a batch once enough slots are free, then issues exactly one
// doorbell naming the first descriptor of the run; hardware walks the
// pre-linked chain through the rest.
func (r *RxRing) Refill() int {
	if r.freeCount < r.cfg.RefillThreshold {
		return 0
	}
	start := r.head
	armed := r.arm(r.cfg.BatchCap)
	if armed == 0 {
		return 0
	}
	r.doorbell(RegUpListPtr, r.descPhys(start))
	r.bulkRefills++
	r.refilled += uint64(armed)
	return armed
}

// Drain processes completed descriptors from the tail, at most budget per
// invocation so other work is not starved; leftovers stay for the next
// call. Error frames are recycled, never delivered. Returns the number
// processed.
func (r *RxRing) Drain(budget int) int {
	if budget <= 0 {
		budget = r.cfg.DrainBudget
	}
	processed := 0
	for processed < budget && r.outstanding > 0 {
		idx := r.tail
		st := LoadStatus(&r.descs[idx])
		if st&StatusOwn != 0 {
			break // hardware still owns it
		}
		if !r.transition(idx, DescCompleted) {
			break
		}
		r.outstanding--

		n := int(st & LengthMask)
		if st&StatusError != 0 || n == 0 || n > r.bufs[idx].Size() {
			// Hardware error, or a reported length outside the buffer. A
			// 13-bit length word can claim up to 8191 bytes against a
			// 1536-byte buffer; such frames are bad frames. Recycle: the
			// buffer stays attached and the slot is re-armed on the refill
			// pass that follows this drain.
			r.rxErrors++
		} else {
			v := r.cb.OnReceive(r.bufs[idx], n, r.bufs[idx].DMACapable() && !r.tiers.Bounced())
			if v.Deliver != nil {
				r.deliver(v.Deliver, n)
				r.delivered++
			}
			if !v.KeepOriginal {
				r.bufs[idx] = nil
			}
		}
		r.transition(idx, DescFree)
		r.freeCount++
		r.tail = (r.tail + 1) & r.mask
		processed++
	}
	return processed
}

// Pending reports whether completed descriptors remain un-drained.
func (r *RxRing) Pending() bool {
	return r.outstanding > 0 && LoadStatus(&r.descs[r.tail])&StatusOwn == 0
}

// Close drops every software-held buffer. The ring must be quiesced.
func (r *RxRing) Close() {
	r.drainArmed()
}

func (r *RxRing) drainArmed() {
	for i := range r.bufs {
		if r.bufs[i] != nil {
			_ = r.tiers.Release(r.bufs[i])
			r.bufs[i] = nil
		}
	}
}

// HardwareBuffer exposes slot i's buffer bytes for the hardware side of
// the handshake (device models and tests). Nil when the slot is empty.
func (r *RxRing) HardwareBuffer(i int) []byte {
	b := r.bufs[uint32(i)&r.mask]
	if b == nil {
		return nil
	}
	return b.Bytes()
}

// Stats snapshots the ring counters.
func (r *RxRing) Stats() api.RxStats {
	return api.RxStats{
		Delivered:      r.delivered,
		Errors:         r.rxErrors,
		DoorbellWrites: r.doorbells.Load(),
		BulkRefills:    r.bulkRefills,
		Refilled:       r.refilled,
		AllocFailures:  r.allocFailures,
		IllegalWrites:  r.illegalWrites.Load(),
	}
}
