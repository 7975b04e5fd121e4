// File: device/device_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package device_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-dma/alloc"
	"github.com/momentics/hioload-dma/api"
	"github.com/momentics/hioload-dma/control"
	"github.com/momentics/hioload-dma/device"
	"github.com/momentics/hioload-dma/fake"
	"github.com/momentics/hioload-dma/platform"
	"github.com/momentics/hioload-dma/ring"
)

func testConfig() control.Config {
	cfg := control.DefaultConfig()
	cfg.Rx.Size = 16
	cfg.Tx.Size = 16
	return cfg
}

// openDevice wires a full pipeline against fake hardware. Delivered
// frames are counted and released straight back to the tiers.
func openDevice(t *testing.T, env platform.Environment) (*device.Device, *fake.NIC, *fake.IOHandle, *int) {
	t.Helper()
	io := fake.NewIOHandle()
	delivered := 0

	var dev *device.Device
	var err error
	dev, err = device.Open(testConfig(), device.Options{
		Index:      0,
		Name:       "3c515-0",
		IO:         io,
		RxBasePhys: 0x100000,
		TxBasePhys: 0x200000,
		Regions:    fake.NewRegionSource(0),
		Env:        env,
		Deliver: func(buf *alloc.Allocation, n int) {
			delivered++
			require.NoError(t, dev.Tiers().Release(buf))
		},
	})
	require.NoError(t, err)

	nic := fake.NewNIC()
	if dev.Rx() != nil {
		nic.AttachRx(dev.Rx())
		nic.AttachTx(dev.Tx())
	}
	return dev, nic, io, &delivered
}

func TestOpenDirectPolicyEndToEnd(t *testing.T) {
	dev, nic, _, delivered := openDevice(t, platform.Env{Description: "flat"})

	policy, desc := dev.Policy()
	assert.Equal(t, api.PolicyDirect, policy)
	assert.Contains(t, desc, "direct DMA")
	require.NotNil(t, dev.Rx())
	require.NotNil(t, dev.Tx())

	// Inbound traffic: complete, acknowledge, run the worker.
	nic.CompleteRx(6, 100)
	assert.True(t, dev.Ack(ring.SignalRxComplete))
	dev.Step()
	assert.Equal(t, 6, *delivered)

	// Outbound traffic through copy-break staging.
	payload := make([]byte, 100)
	require.NoError(t, dev.Transmit(payload, 0, false))
	nic.CompleteTx(1)
	dev.Ack(ring.SignalTxComplete)
	dev.Step()
	assert.Zero(t, dev.Tx().InFlight())

	require.NoError(t, dev.Close())
}

func TestOpenForbiddenPolicySkipsRings(t *testing.T) {
	dev, _, io, _ := openDevice(t, platform.Env{Paging: true, Description: "paged"})
	defer func() { require.NoError(t, dev.Close()) }()

	policy, _ := dev.Policy()
	assert.Equal(t, api.PolicyForbidden, policy)
	assert.Nil(t, dev.Rx())
	assert.Nil(t, dev.Tx())
	assert.Zero(t, io.WriteCount(ring.RegUpListPtr), "no hardware programming without DMA")

	err := dev.Transmit(make([]byte, 100), 0, false)
	assert.True(t, api.IsCode(err, api.ErrCodeForbidden))

	// The copy pool still serves programmed-I/O buffers.
	buf, err := dev.Tiers().AcquireCopy(100)
	require.NoError(t, err)
	require.NoError(t, dev.Tiers().Release(buf))
}

func TestOpenTranslatedPolicyLocksBuffers(t *testing.T) {
	svc := fake.NewTranslationService()
	svc.Offset = 0x40000

	io := fake.NewIOHandle()
	dev, err := device.Open(testConfig(), device.Options{
		Name:        "3c515-0",
		IO:          io,
		RxBasePhys:  0x100000,
		TxBasePhys:  0x200000,
		Translation: svc,
		Regions:     fake.NewRegionSource(0),
		Env:         platform.Env{Translation: true, Paging: true, Description: "v86"},
		Deliver:     func(buf *alloc.Allocation, n int) {},
	})
	require.NoError(t, err)

	policy, _ := dev.Policy()
	assert.Equal(t, api.PolicyTranslated, policy)
	assert.NotZero(t, svc.LockedRanges(), "armed ring buffers hold translation locks")

	require.NoError(t, dev.Close())
	assert.Zero(t, svc.LockedRanges(), "teardown releases every lock")
}

func TestDeviceMetricsSnapshot(t *testing.T) {
	dev, nic, _, _ := openDevice(t, platform.Env{Description: "flat"})
	defer func() { require.NoError(t, dev.Close()) }()

	nic.CompleteRx(3, 100)
	dev.Step()

	snap := dev.Metrics().GetSnapshot()
	assert.Equal(t, "direct", snap["policy"])
	rx, ok := snap["rx"].(api.RxStats)
	require.True(t, ok)
	assert.EqualValues(t, 3, rx.Delivered)

	src := dev.StatSources()
	require.NotNil(t, src.Allocator)
	require.NotNil(t, src.Rx)
	assert.NotEmpty(t, src.Allocator().Pools)
}

func TestRegistryLifecycle(t *testing.T) {
	reg := device.NewRegistry()

	a, _, _, _ := openDevice(t, platform.Env{Description: "flat"})
	require.NoError(t, reg.Register(a))
	assert.Equal(t, 1, reg.Len())
	assert.Same(t, a, reg.Get(0))
	assert.Nil(t, reg.Get(9))

	err := reg.Register(a)
	assert.True(t, api.IsCode(err, api.ErrCodeConfig), "duplicate index refused")

	require.NoError(t, reg.CloseAll())
	assert.Zero(t, reg.Len())
}

func TestRegistryDeferredMaintenance(t *testing.T) {
	reg := device.NewRegistry()

	ran := 0
	for i := 0; i < 5; i++ {
		reg.Defer(func() { ran++ })
	}
	assert.Equal(t, 3, reg.RunPending(3), "budget bounds one pass")
	assert.Equal(t, 3, ran)
	assert.Equal(t, 2, reg.RunPending(10))
	assert.Equal(t, 5, ran)
	assert.Zero(t, reg.RunPending(10))
}

func TestRegistryScheduleMaintenance(t *testing.T) {
	reg := device.NewRegistry()
	dev, _, _, _ := openDevice(t, platform.Env{Description: "flat"})
	require.NoError(t, reg.Register(dev))

	reg.ScheduleMaintenance()
	assert.Equal(t, 1, reg.RunPending(10))
	require.NoError(t, reg.CloseAll())
}
