// File: api/stats.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Statistics snapshots. These are the only observable state the pipeline
// exposes; there is no persistence.

package api

// PoolStats is one slot pool's counters.
type PoolStats struct {
	SlotSize    int
	SlotCount   int
	InUse       int
	PeakInUse   int
	Allocations uint64
	Failures    uint64
	// BoundaryAvoided counts slot placements skipped at carve time because
	// they would have straddled a 64KB unit.
	BoundaryAvoided uint64
	InvalidFrees    uint64
	DMACapable      bool
	Bounced         bool
}

// AllocatorStats aggregates per-pool stats.
type AllocatorStats struct {
	Policy Policy
	Pools  []PoolStats
}

// CopyBreakStats is the copy-vs-zero-copy engine's snapshot.
type CopyBreakStats struct {
	Threshold        int
	AvgPacketSize    int
	Copied           uint64
	ZeroCopied       uint64
	CopyFailures     uint64
	ZeroCopyFailures uint64
	Dropped          uint64
	Adjustments      uint64
}

// RxStats is one receive ring's snapshot.
type RxStats struct {
	Delivered      uint64
	Errors         uint64
	DoorbellWrites uint64
	BulkRefills    uint64
	Refilled       uint64
	AllocFailures  uint64
	IllegalWrites  uint64
}

// PacketsPerDoorbell reports the refill batching factor achieved so far.
func (s RxStats) PacketsPerDoorbell() float64 {
	if s.DoorbellWrites == 0 {
		return 0
	}
	return float64(s.Refilled) / float64(s.DoorbellWrites)
}

// TxStats is one transmit ring's snapshot.
type TxStats struct {
	Packets        uint64
	Completions    uint64
	IRQRequested   uint64
	IRQSaved       uint64
	EmptyQueueIRQs uint64
	ThresholdIRQs  uint64
	HighWaterIRQs  uint64
	RingFullEvents uint64
	DoorbellWrites uint64
	IllegalWrites  uint64
}

// InterruptReductionPct reports how many completion interrupts lazy
// coalescing avoided, as a percentage of would-be per-packet interrupts.
func (s TxStats) InterruptReductionPct() float64 {
	total := s.IRQRequested + s.IRQSaved
	if total == 0 {
		return 0
	}
	return 100 * float64(s.IRQSaved) / float64(total)
}
