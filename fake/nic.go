// File: fake/nic.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Software model of the hardware side of the ownership handshake. The
// NIC walks the descriptor chain exactly like the adapter: it only ever
// touches descriptors whose OWN bit is set, and returns them with one
// atomic status store.

package fake

import (
	"github.com/momentics/hioload-dma/ring"
)

// NIC consumes and produces against attached rings.
type NIC struct {
	rx       []ring.Descriptor
	tx       []ring.Descriptor
	rxRing   *ring.RxRing
	rxCursor int
	txCursor int

	// TxIRQsSeen counts transmit descriptors that carried an interrupt
	// request when the NIC completed them.
	TxIRQsSeen int
}

// NewNIC creates a detached NIC model.
func NewNIC() *NIC { return &NIC{} }

// AttachRx points the NIC at a receive ring.
func (n *NIC) AttachRx(r *ring.RxRing) {
	n.rxRing = r
	n.rx = r.HardwareDescriptors()
	n.rxCursor = 0
}

// AttachTx points the NIC at a transmit ring.
func (n *NIC) AttachTx(t *ring.TxRing) {
	n.tx = t.HardwareDescriptors()
	n.txCursor = 0
}

// ReceiveFrame stores payload into the current descriptor's buffer and
// completes it. Returns false when the NIC owns no descriptor (ring
// starved).
func (n *NIC) ReceiveFrame(payload []byte) bool {
	if len(n.rx) == 0 {
		return false
	}
	d := &n.rx[n.rxCursor]
	if ring.LoadStatus(d)&ring.StatusOwn == 0 {
		return false
	}
	if buf := n.rxRing.HardwareBuffer(n.rxCursor); buf != nil {
		copy(buf, payload)
	}
	ring.StoreStatus(d, ring.StatusComplete|uint32(len(payload))&ring.LengthMask)
	n.rxCursor = (n.rxCursor + 1) % len(n.rx)
	return true
}

// CompleteRx completes up to count owned descriptors with frameLen bytes
// each and returns how many it completed.
func (n *NIC) CompleteRx(count, frameLen int) int {
	done := 0
	for done < count {
		d := &n.rx[n.rxCursor]
		if ring.LoadStatus(d)&ring.StatusOwn == 0 {
			break
		}
		ring.StoreStatus(d, ring.StatusComplete|uint32(frameLen)&ring.LengthMask)
		n.rxCursor = (n.rxCursor + 1) % len(n.rx)
		done++
	}
	return done
}

// CompleteRxError completes the current descriptor with a hardware error.
func (n *NIC) CompleteRxError() bool {
	d := &n.rx[n.rxCursor]
	if ring.LoadStatus(d)&ring.StatusOwn == 0 {
		return false
	}
	ring.StoreStatus(d, ring.StatusComplete|ring.StatusError)
	n.rxCursor = (n.rxCursor + 1) % len(n.rx)
	return true
}

// CompleteTx completes up to count owned transmit descriptors, recording
// interrupt requests, and returns how many it completed.
func (n *NIC) CompleteTx(count int) int {
	done := 0
	for done < count {
		d := &n.tx[n.txCursor]
		st := ring.LoadStatus(d)
		if st&ring.StatusOwn == 0 {
			break
		}
		if st&ring.StatusIRQ != 0 {
			n.TxIRQsSeen++
		}
		ring.StoreStatus(d, ring.StatusComplete)
		n.txCursor = (n.txCursor + 1) % len(n.tx)
		done++
	}
	return done
}
