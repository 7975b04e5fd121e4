// File: pool/copybreak.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Copy-break: small payloads are copied into a fresh buffer so the scarce
// DMA buffer returns to service immediately; large payloads are handed
// onward zero-copy. The threshold adapts to copy-pool pressure within
// fixed clamps. Nothing on these paths blocks; allocation failure falls
// back or drops with a counter.

package pool

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-dma/alloc"
	"github.com/momentics/hioload-dma/api"
)

// Decision classifies one packet length.
type Decision uint8

const (
	DecisionCopy Decision = iota
	DecisionZeroCopy
)

// Tuning holds the adaptive-threshold knobs. Zero values take defaults.
type Tuning struct {
	Threshold int  `json:"threshold"`
	Min       int  `json:"min"`
	Max       int  `json:"max"` // 0: profile ceiling
	StepPct   int  `json:"stepPct"`
	HighWater int  `json:"highWater"` // copy-pool utilization %
	LowWater  int  `json:"lowWater"`
	// CopyFractionLow: raising the threshold additionally requires the
	// cumulative copy fraction (%) to sit below this mark.
	CopyFractionLow int  `json:"copyFractionLow"`
	Adaptive        bool `json:"adaptive"`
}

func (t Tuning) withDefaults(p Profile) Tuning {
	if t.Threshold == 0 {
		t.Threshold = 192
	}
	if t.Min == 0 {
		t.Min = 64
	}
	if t.Max == 0 {
		t.Max = p.MaxThreshold()
	}
	if t.StepPct == 0 {
		t.StepPct = 10
	}
	if t.HighWater == 0 {
		t.HighWater = 80
	}
	if t.LowWater == 0 {
		t.LowWater = 25
	}
	if t.CopyFractionLow == 0 {
		t.CopyFractionLow = 40
	}
	return t
}

// RxVerdict is the receive-path outcome for one completed frame.
type RxVerdict struct {
	// Deliver is the buffer to hand to the delivery callback; nil means
	// the frame is dropped.
	Deliver *alloc.Allocation
	// KeepOriginal: the original hardware buffer stays attached to its
	// descriptor slot (copy path and drop path). When false the original
	// left with the consumer and the slot needs a replacement at refill.
	KeepOriginal bool
	Copied       bool
}

// TxVerdict is the transmit-prepare outcome.
type TxVerdict struct {
	// Buf is the ring-owned staging buffer, nil on zero-copy submission.
	Buf    *alloc.Allocation
	Phys   uint32
	Len    int
	Copied bool
}

// CopyBreak implements the per-packet copy/zero-copy decision with an
// adaptive threshold.
type CopyBreak struct {
	tiers   *Tiers
	profile Profile
	copyFn  copyFunc

	threshold atomic.Int32
	min, max  int
	stepPct   int
	hiWater   int
	loWater   int
	copyLow   int
	adaptive  bool

	avgPkt      atomic.Int32
	copied      atomic.Uint64
	zeroCopied  atomic.Uint64
	copyFail    atomic.Uint64
	zeroFail    atomic.Uint64
	dropped     atomic.Uint64
	adjustments atomic.Uint64

	log *logrus.Entry
}

// NewCopyBreak builds an engine for the given hardware profile. The copy
// routine is selected here, once.
func NewCopyBreak(t *Tiers, profile Profile, tune Tuning) (*CopyBreak, error) {
	tune = tune.withDefaults(profile)
	if tune.Min > tune.Max || tune.Threshold < tune.Min || tune.Threshold > tune.Max {
		return nil, api.NewError(api.ErrCodeConfig, "copybreak: threshold outside [min,max]").
			WithContext("threshold", tune.Threshold).
			WithContext("min", tune.Min).WithContext("max", tune.Max)
	}
	if tune.Max > t.MaxCopySize() {
		return nil, api.NewError(api.ErrCodeConfig, "copybreak: max threshold exceeds copy slot size").
			WithContext("max", tune.Max).WithContext("slot", t.MaxCopySize())
	}
	cb := &CopyBreak{
		tiers:    t,
		profile:  profile,
		copyFn:   copyFuncFor(profile),
		min:      tune.Min,
		max:      tune.Max,
		stepPct:  tune.StepPct,
		hiWater:  tune.HighWater,
		loWater:  tune.LowWater,
		copyLow:  tune.CopyFractionLow,
		adaptive: tune.Adaptive,
		log:      logrus.WithField("pkg", "copybreak"),
	}
	cb.threshold.Store(int32(tune.Threshold))
	cb.log.WithFields(logrus.Fields{
		"profile":   profile.String(),
		"threshold": tune.Threshold,
		"max":       tune.Max,
	}).Info("copy-break engine ready")
	return cb, nil
}

// Threshold returns the current copy-break threshold.
func (cb *CopyBreak) Threshold() int { return int(cb.threshold.Load()) }

// Classify decides copy vs zero-copy for a packet length. Length equal to
// the threshold still copies.
func (cb *CopyBreak) Classify(n int) Decision {
	if n <= cb.Threshold() {
		return DecisionCopy
	}
	return DecisionZeroCopy
}

// OnReceive decides the fate of one received frame of n bytes sitting in
// orig. A source that is not DMA-safe (bounced pool) forces the copy path
// regardless of size.
func (cb *CopyBreak) OnReceive(orig *alloc.Allocation, n int, srcDMASafe bool) RxVerdict {
	cb.observe(n)
	forced := !srcDMASafe
	if forced || cb.Classify(n) == DecisionCopy {
		small, err := cb.tiers.AcquireCopy(n)
		if err == nil {
			cb.copyFn(small.Bytes()[:n], orig.Bytes()[:n])
			cb.copied.Add(1)
			return RxVerdict{Deliver: small, KeepOriginal: true, Copied: true}
		}
		cb.copyFail.Add(1)
		if forced {
			// No legal zero-copy escape; drop, re-arm the original.
			cb.dropped.Add(1)
			return RxVerdict{KeepOriginal: true}
		}
	}
	cb.zeroCopied.Add(1)
	return RxVerdict{Deliver: orig}
}

// OnTransmitPrepare mirrors the receive decision: below-threshold payloads
// are copied into a DMA-safe staging buffer; above-threshold payloads go
// zero-copy when the source already is DMA-safe and the tier does not
// bounce.
func (cb *CopyBreak) OnTransmitPrepare(payload []byte, srcPhys uint32, srcDMASafe bool) (TxVerdict, error) {
	n := len(payload)
	if n > FrameSize {
		return TxVerdict{}, api.NewError(api.ErrCodeSizeExceeded, "payload exceeds frame capacity").
			WithContext("len", n).WithContext("max", FrameSize)
	}
	cb.observe(n)
	zeroCopyLegal := n > cb.Threshold() && srcDMASafe && !cb.tiers.Bounced()

	if !zeroCopyLegal || cb.Classify(n) == DecisionCopy {
		frame, err := cb.tiers.AcquireFrame()
		if err == nil {
			cb.copyFn(frame.Bytes()[:n], payload)
			cb.copied.Add(1)
			return TxVerdict{Buf: frame, Phys: frame.Physical(), Len: n, Copied: true}, nil
		}
		cb.copyFail.Add(1)
		if !zeroCopyLegal {
			cb.dropped.Add(1)
			return TxVerdict{}, api.NewError(api.ErrCodeExhausted, "transmit staging buffer unavailable")
		}
	}
	cb.zeroCopied.Add(1)
	return TxVerdict{Phys: srcPhys, Len: n}, nil
}

// Maintain runs one adaptive-threshold step. High copy-pool pressure
// lowers the threshold (fewer copies, relieve the pool); a mostly idle
// pool with a low copy fraction raises it (cheap copies when headroom
// exists). Exactly one step per call, clamped to [min,max].
func (cb *CopyBreak) Maintain() {
	if !cb.adaptive {
		return
	}
	old := int(cb.threshold.Load())
	next := old
	util := cb.tiers.CopyUtilization()

	switch {
	case util > cb.hiWater:
		next = old - old*cb.stepPct/100
	case util < cb.loWater && cb.copyFraction() < cb.copyLow:
		next = old + old*cb.stepPct/100
	}

	if next < cb.min {
		next = cb.min
	}
	if next > cb.max {
		next = cb.max
	}
	if next != old {
		cb.threshold.Store(int32(next))
		cb.adjustments.Add(1)
		cb.log.WithFields(logrus.Fields{
			"from": old, "to": next, "util": util,
		}).Debug("copy-break threshold adjusted")
	}
}

// NoteZeroCopyFailure records a failed replacement allocation after a
// zero-copy hand-off; the descriptor slot stays unarmed until a later
// refill succeeds.
func (cb *CopyBreak) NoteZeroCopyFailure() { cb.zeroFail.Add(1) }

func (cb *CopyBreak) copyFraction() int {
	c := cb.copied.Load()
	z := cb.zeroCopied.Load()
	if c+z == 0 {
		return 0
	}
	return int(c * 100 / (c + z))
}

// observe folds a packet length into the rolling average (shift-4 EWMA).
func (cb *CopyBreak) observe(n int) {
	avg := cb.avgPkt.Load()
	if avg == 0 {
		cb.avgPkt.Store(int32(n))
		return
	}
	cb.avgPkt.Store(avg - avg/16 + int32(n)/16)
}

// Stats snapshots the engine counters.
func (cb *CopyBreak) Stats() api.CopyBreakStats {
	return api.CopyBreakStats{
		Threshold:        cb.Threshold(),
		AvgPacketSize:    int(cb.avgPkt.Load()),
		Copied:           cb.copied.Load(),
		ZeroCopied:       cb.zeroCopied.Load(),
		CopyFailures:     cb.copyFail.Load(),
		ZeroCopyFailures: cb.zeroFail.Load(),
		Dropped:          cb.dropped.Load(),
		Adjustments:      cb.adjustments.Load(),
	}
}
