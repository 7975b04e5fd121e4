// File: ring/rx_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ring_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-dma/api"
	"github.com/momentics/hioload-dma/ring"
)

func TestRxStartArmsFullRing(t *testing.T) {
	h := newHarness(t, 16)
	r := h.startRx(t, ring.RxConfig{Size: 16, BasePhys: 0x100000})

	for i, d := range r.HardwareDescriptors() {
		assert.NotZero(t, ring.LoadStatus(&r.HardwareDescriptors()[i])&ring.StatusOwn,
			"descriptor %d must be hardware-owned after start", i)
		assert.NotZero(t, d.Addr, "descriptor %d must point at a buffer", i)
	}

	writes := h.io.Writes(ring.RegUpListPtr)
	require.Len(t, writes, 1, "start issues exactly one list-pointer write")
	assert.Equal(t, uint32(0x100000), writes[0].Value)
	assert.Zero(t, r.Stats().IllegalWrites)
}

// Ten completions against a 32-slot ring with refill threshold 8 must be
// re-armed by a single batched doorbell, not ten.
func TestRxBatchedRefillSingleDoorbell(t *testing.T) {
	h := newHarness(t, 32)
	r := h.startRx(t, ring.RxConfig{Size: 32, BasePhys: 0x100000, RefillThreshold: 8, BatchCap: 16})

	require.Equal(t, 10, h.nic.CompleteRx(10, 100))
	require.Equal(t, 10, r.Drain(32))

	armed := r.Refill()
	assert.Equal(t, 10, armed)
	assert.Equal(t, 2, h.io.WriteCount(ring.RegUpListPtr), "one handshake write plus one refill doorbell")

	st := r.Stats()
	assert.EqualValues(t, 1, st.BulkRefills)
	assert.EqualValues(t, 10, st.Refilled)
	assert.Zero(t, st.IllegalWrites)
	assert.InDelta(t, 5.0, st.PacketsPerDoorbell(), 0.01, "ten frames over handshake plus refill doorbell")
}

func TestRxRefillBelowThresholdSkipped(t *testing.T) {
	h := newHarness(t, 32)
	r := h.startRx(t, ring.RxConfig{Size: 32, BasePhys: 0x100000, RefillThreshold: 8})

	require.Equal(t, 4, h.nic.CompleteRx(4, 100))
	require.Equal(t, 4, r.Drain(32))

	assert.Zero(t, r.Refill(), "four free slots stay below the threshold of eight")
	assert.Equal(t, 1, h.io.WriteCount(ring.RegUpListPtr), "no doorbell beyond the handshake")
}

func TestRxDrainBudgetLeavesLeftovers(t *testing.T) {
	h := newHarness(t, 16)
	r := h.startRx(t, ring.RxConfig{Size: 16, BasePhys: 0x100000})

	require.Equal(t, 10, h.nic.CompleteRx(10, 100))
	assert.Equal(t, 4, r.Drain(4))
	assert.True(t, r.Pending(), "six completions remain queued")
	assert.Equal(t, 6, r.Drain(16))
	assert.False(t, r.Pending())
	assert.Len(t, h.frames, 10)
}

func TestRxErrorFrameRecycledNotDelivered(t *testing.T) {
	h := newHarness(t, 16)
	r := h.startRx(t, ring.RxConfig{Size: 16, BasePhys: 0x100000, RefillThreshold: 1})

	require.True(t, h.nic.CompleteRxError())
	require.Equal(t, 1, r.Drain(16))

	assert.Empty(t, h.frames, "error frames are never delivered")
	assert.EqualValues(t, 1, r.Stats().Errors)
	assert.NotNil(t, r.HardwareBuffer(0), "the buffer stays attached for recycling")

	assert.Equal(t, 1, r.Refill(), "the recycled slot re-arms without a fresh allocation")
	assert.Zero(t, r.Stats().AllocFailures)
}

// A completed descriptor whose 13-bit length word falls outside the
// buffer is a bad frame: recycled like a hardware error, never handed to
// the consumer.
func TestRxOutOfRangeLengthRecycledNotDelivered(t *testing.T) {
	h := newHarness(t, 16)
	r := h.startRx(t, ring.RxConfig{Size: 16, BasePhys: 0x100000, RefillThreshold: 1})

	require.Equal(t, 1, h.nic.CompleteRx(1, 5000), "length word beyond the 1536-byte buffer")
	require.Equal(t, 1, h.nic.CompleteRx(1, 0), "zero-length completion")
	require.Equal(t, 2, r.Drain(16))

	assert.Empty(t, h.frames, "out-of-range lengths are never delivered")
	assert.EqualValues(t, 2, r.Stats().Errors)
	assert.NotNil(t, r.HardwareBuffer(0), "the buffer stays attached for recycling")
	assert.NotNil(t, r.HardwareBuffer(1))

	assert.Equal(t, 2, r.Refill(), "both slots re-arm without fresh allocations")
	assert.Zero(t, r.Stats().AllocFailures)
}

func TestRxCopyPathDeliversDistinctBuffer(t *testing.T) {
	h := newHarness(t, 16)
	r := h.startRx(t, ring.RxConfig{Size: 16, BasePhys: 0x100000})

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	hw := r.HardwareBuffer(0)
	require.True(t, h.nic.ReceiveFrame(payload))
	require.Equal(t, 1, r.Drain(16))

	require.Len(t, h.frames, 1)
	assert.Equal(t, 100, h.lens[0])
	assert.True(t, bytes.Equal(payload, h.frames[0].Bytes()[:100]))
	assert.NotSame(t, &hw[0], &h.frames[0].Bytes()[0], "below-threshold frames are copied out")
	assert.NotNil(t, r.HardwareBuffer(0), "the original buffer stays on the slot")
}

func TestRxZeroCopyPathHandsOffOriginal(t *testing.T) {
	h := newHarness(t, 16)
	r := h.startRx(t, ring.RxConfig{Size: 16, BasePhys: 0x100000, RefillThreshold: 1})

	payload := make([]byte, 1000)
	hw := r.HardwareBuffer(0)
	require.True(t, h.nic.ReceiveFrame(payload))
	require.Equal(t, 1, r.Drain(16))

	require.Len(t, h.frames, 1)
	assert.Same(t, &hw[0], &h.frames[0].Bytes()[0], "above-threshold frames travel zero-copy")
	assert.Nil(t, r.HardwareBuffer(0), "the slot gave its buffer away")

	assert.Equal(t, 1, r.Refill())
	assert.NotNil(t, r.HardwareBuffer(0), "refill attaches a replacement frame")
}

func TestRxHandshakeTimeout(t *testing.T) {
	h := newHarness(t, 8)
	h.io.Mute[ring.RegUpListPtr] = true

	r, err := ring.NewRxRing(ring.RxConfig{
		Size: 8, BasePhys: 0x100000, HandshakeAttempts: 3, HandshakeDelay: time.Microsecond,
	}, h.tiers, h.cb, h.io, h.deliver)
	require.NoError(t, err)
	defer r.Close()

	err = r.Start()
	assert.True(t, api.IsCode(err, api.ErrCodeTimeout))
}

func TestRxRejectsBadConfig(t *testing.T) {
	h := newHarness(t, 8)

	_, err := ring.NewRxRing(ring.RxConfig{Size: 12}, h.tiers, h.cb, h.io, h.deliver)
	assert.True(t, api.IsCode(err, api.ErrCodeConfig), "non-power-of-two size")

	_, err = ring.NewRxRing(ring.RxConfig{Size: 8}, h.tiers, h.cb, nil, h.deliver)
	assert.True(t, api.IsCode(err, api.ErrCodeConfig), "missing I/O handle")

	_, err = ring.NewRxRing(ring.RxConfig{Size: 8}, nil, h.cb, h.io, h.deliver)
	assert.True(t, api.IsCode(err, api.ErrCodeConfig), "missing tiers")
}

// Several completion/drain/refill rounds must never trip the descriptor
// state machine.
func TestRxSustainedTrafficNoViolations(t *testing.T) {
	h := newHarness(t, 32)
	r := h.startRx(t, ring.RxConfig{Size: 32, BasePhys: 0x100000, RefillThreshold: 8, BatchCap: 16})

	violations := 0
	r.SetViolationHook(func(idx int, from, to ring.DescState) { violations++ })

	for round := 0; round < 6; round++ {
		h.nic.CompleteRx(10, 100)
		r.Drain(32)
		r.Refill()
		h.releaseDelivered()
	}

	assert.Zero(t, violations)
	assert.Zero(t, r.Stats().IllegalWrites)
	assert.EqualValues(t, 60, r.Stats().Delivered)
}
