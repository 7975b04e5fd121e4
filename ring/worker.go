// File: ring/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The cooperative worker context. All ring draining and refilling and all
// allocator traffic happen here; the signaling context only acknowledges
// and posts. Each step is bounded by an explicit budget instead of
// draining until empty, so one busy ring cannot starve other work.

package ring

// Worker ties a signal queue to one RX and one TX ring.
type Worker struct {
	signals *SignalQueue
	rx      *RxRing
	tx      *TxRing
	budget  int

	// maintain runs periodic engine upkeep (adaptive copy-break step).
	maintain      func()
	maintainEvery int
	steps         int
}

// NewWorker builds a worker. budget bounds both signal handling and RX
// completions per Step; maintain may be nil.
func NewWorker(q *SignalQueue, rx *RxRing, tx *TxRing, budget int, maintain func(), maintainEvery int) *Worker {
	if budget <= 0 {
		budget = 16
	}
	if maintainEvery <= 0 {
		maintainEvery = 64
	}
	return &Worker{
		signals:       q,
		rx:            rx,
		tx:            tx,
		budget:        budget,
		maintain:      maintain,
		maintainEvery: maintainEvery,
	}
}

// Ack is the completion-signaling entry point: acknowledge the hardware
// event and mark work pending. Returns false when the queue is full, in
// which case the pending work is discovered on the next Step anyway.
func (w *Worker) Ack(k SignalKind) bool {
	return w.signals.Post(k)
}

// Step runs one bounded pass in the worker context and reports how much
// work it performed. Leftover completions remain queued for the next
// invocation.
func (w *Worker) Step() int {
	work := 0
	for i := 0; i < w.budget; i++ {
		if _, ok := w.signals.Poll(); !ok {
			break
		}
		work++
	}

	// Drain and refill regardless of signals: acknowledgments may have
	// been dropped on a full queue, and ownership bits are authoritative.
	if w.rx != nil {
		work += w.rx.Drain(w.budget)
		w.rx.Refill()
	}
	if w.tx != nil {
		work += w.tx.Harvest()
	}

	w.steps++
	if w.maintain != nil && w.steps%w.maintainEvery == 0 {
		w.maintain()
	}
	return work
}

// PendingSignals reports queued, not-yet-handled acknowledgments.
func (w *Worker) PendingSignals() int { return w.signals.Pending() }
