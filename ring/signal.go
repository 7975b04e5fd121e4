// File: ring/signal.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded MPMC signal queue between the completion-signaling context and
// the worker. Sequence-numbered cells in the style of Dmitry Vyukov's
// MPMC queue: the signaling side only ever enqueues, so it never touches
// ring state.

package ring

import "sync/atomic"

// SignalKind identifies which ring has pending completions.
type SignalKind uint8

const (
	SignalRxComplete SignalKind = iota
	SignalTxComplete
)

type sigCell struct {
	seq  atomic.Uint64
	kind SignalKind
}

// SignalQueue is a bounded, lock-free MPMC queue of completion signals.
type SignalQueue struct {
	head  uint64
	_     [56]byte
	tail  uint64
	_     [56]byte
	mask  uint64
	cells []sigCell
}

// NewSignalQueue creates a queue with capacity rounded up to a power of two.
func NewSignalQueue(capacity int) *SignalQueue {
	size := 2
	for size < capacity {
		size <<= 1
	}
	q := &SignalQueue{
		mask:  uint64(size - 1),
		cells: make([]sigCell, size),
	}
	for i := range q.cells {
		q.cells[i].seq.Store(uint64(i))
	}
	return q
}

// Post enqueues a signal; returns false when the queue is full. Safe from
// the signaling context: no allocation, no blocking, no ring mutation.
func (q *SignalQueue) Post(k SignalKind) bool {
	for {
		tail := atomic.LoadUint64(&q.tail)
		c := &q.cells[tail&q.mask]
		dif := int64(c.seq.Load()) - int64(tail)
		switch {
		case dif == 0:
			if atomic.CompareAndSwapUint64(&q.tail, tail, tail+1) {
				c.kind = k
				c.seq.Store(tail + 1)
				return true
			}
		case dif < 0:
			return false
		}
	}
}

// Poll dequeues a signal; ok is false when the queue is empty.
func (q *SignalQueue) Poll() (k SignalKind, ok bool) {
	for {
		head := atomic.LoadUint64(&q.head)
		c := &q.cells[head&q.mask]
		dif := int64(c.seq.Load()) - int64(head+1)
		switch {
		case dif == 0:
			if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
				k = c.kind
				c.seq.Store(head + q.mask + 1)
				return k, true
			}
		case dif < 0:
			return 0, false
		}
	}
}

// Pending returns the number of queued signals.
func (q *SignalQueue) Pending() int {
	return int(atomic.LoadUint64(&q.tail) - atomic.LoadUint64(&q.head))
}
