// File: control/collectors_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-dma/api"
	"github.com/momentics/hioload-dma/control"
)

func fullSources() control.StatSources {
	return control.StatSources{
		Allocator: func() api.AllocatorStats {
			return api.AllocatorStats{
				Policy: api.PolicyDirect,
				Pools: []api.PoolStats{
					{SlotSize: 1536, SlotCount: 8, InUse: 3, Allocations: 40},
					{SlotSize: 1536, SlotCount: 16, InUse: 5, Allocations: 100, BoundaryAvoided: 2},
				},
			}
		},
		CopyBreak: func() api.CopyBreakStats {
			return api.CopyBreakStats{Threshold: 192, Copied: 30, ZeroCopied: 10}
		},
		Rx: func() api.RxStats {
			return api.RxStats{Delivered: 40, DoorbellWrites: 5, Refilled: 40}
		},
		Tx: func() api.TxStats {
			return api.TxStats{Packets: 32, IRQRequested: 4, IRQSaved: 28}
		},
	}
}

func TestPipelineCollectorExportsAllFamilies(t *testing.T) {
	c := control.NewPipelineCollector("eth0", fullSources())

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	// 5 pool metrics over 2 pools, 4 copy-break, 4 rx, 4 tx.
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5*2+4+4+4, n)
}

func TestPipelineCollectorSkipsNilSources(t *testing.T) {
	src := fullSources()
	src.Rx = nil
	src.Tx = nil
	c := control.NewPipelineCollector("eth0", src)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5*2+4, n, "ringless devices export allocator and copy-break only")
}

func TestMetricsRegistrySnapshot(t *testing.T) {
	mr := control.NewMetricsRegistry()
	mr.Set("policy", "direct")

	polls := 0
	mr.RegisterSource("rx", func() any { polls++; return api.RxStats{Delivered: uint64(polls)} })

	snap := mr.GetSnapshot()
	assert.Equal(t, "direct", snap["policy"])
	assert.Equal(t, api.RxStats{Delivered: 1}, snap["rx"])

	snap = mr.GetSnapshot()
	assert.Equal(t, api.RxStats{Delivered: 2}, snap["rx"], "sources are polled per snapshot")
}
