// File: control/collectors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Prometheus collector over the pipeline's statistics accessors. Stats
// are snapshotted at scrape time; nothing is published from hot paths.

package control

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/hioload-dma/api"
)

const metricNamespace = "hioload_dma"

// StatSources supplies the snapshots the collector scrapes. Nil members
// are skipped.
type StatSources struct {
	Allocator func() api.AllocatorStats
	CopyBreak func() api.CopyBreakStats
	Rx        func() api.RxStats
	Tx        func() api.TxStats
}

// PipelineCollector exposes one device's pipeline statistics.
type PipelineCollector struct {
	device string
	src    StatSources

	poolInUse       *prometheus.Desc
	poolAllocations *prometheus.Desc
	poolFailures    *prometheus.Desc
	poolBoundary    *prometheus.Desc
	poolInvalidFree *prometheus.Desc

	cbThreshold *prometheus.Desc
	cbCopied    *prometheus.Desc
	cbZeroCopy  *prometheus.Desc
	cbDropped   *prometheus.Desc

	rxDelivered *prometheus.Desc
	rxErrors    *prometheus.Desc
	rxDoorbells *prometheus.Desc
	rxPerBell   *prometheus.Desc

	txPackets   *prometheus.Desc
	txIRQs      *prometheus.Desc
	txIRQSaved  *prometheus.Desc
	txReduction *prometheus.Desc
}

// NewPipelineCollector builds a collector labeled with the device name.
func NewPipelineCollector(device string, src StatSources) *PipelineCollector {
	ns := metricNamespace
	dev := prometheus.Labels{"device": device}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(ns+"_"+name, help, labels, dev)
	}
	return &PipelineCollector{
		device: device,
		src:    src,

		poolInUse:       desc("pool_in_use", "Slots currently allocated.", "pool"),
		poolAllocations: desc("pool_allocations_total", "Slot allocations served.", "pool"),
		poolFailures:    desc("pool_failures_total", "Slot allocations refused.", "pool"),
		poolBoundary:    desc("pool_boundary_avoided_total", "64KB-straddling placements skipped at carve time.", "pool"),
		poolInvalidFree: desc("pool_invalid_frees_total", "Rejected double or foreign frees.", "pool"),

		cbThreshold: desc("copybreak_threshold_bytes", "Current copy-break threshold."),
		cbCopied:    desc("copybreak_copied_total", "Packets taken through the copy path."),
		cbZeroCopy:  desc("copybreak_zerocopy_total", "Packets handed off zero-copy."),
		cbDropped:   desc("copybreak_dropped_total", "Packets dropped after allocation failure."),

		rxDelivered: desc("rx_delivered_total", "Frames delivered upward."),
		rxErrors:    desc("rx_errors_total", "Hardware-errored frames recycled."),
		rxDoorbells: desc("rx_doorbell_writes_total", "Upload list pointer writes."),
		rxPerBell:   desc("rx_packets_per_doorbell", "Refill batching factor."),

		txPackets:   desc("tx_packets_total", "Packets queued to hardware."),
		txIRQs:      desc("tx_irq_requested_total", "Completion interrupts requested."),
		txIRQSaved:  desc("tx_irq_saved_total", "Completion interrupts avoided by coalescing."),
		txReduction: desc("tx_interrupt_reduction_pct", "Share of per-packet interrupts avoided."),
	}
}

// Describe implements prometheus.Collector.
func (c *PipelineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.poolInUse, c.poolAllocations, c.poolFailures, c.poolBoundary, c.poolInvalidFree,
		c.cbThreshold, c.cbCopied, c.cbZeroCopy, c.cbDropped,
		c.rxDelivered, c.rxErrors, c.rxDoorbells, c.rxPerBell,
		c.txPackets, c.txIRQs, c.txIRQSaved, c.txReduction,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *PipelineCollector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	if c.src.Allocator != nil {
		st := c.src.Allocator()
		for i, p := range st.Pools {
			label := strconv.Itoa(i)
			gauge(c.poolInUse, float64(p.InUse), label)
			counter(c.poolAllocations, float64(p.Allocations), label)
			counter(c.poolFailures, float64(p.Failures), label)
			counter(c.poolBoundary, float64(p.BoundaryAvoided), label)
			counter(c.poolInvalidFree, float64(p.InvalidFrees), label)
		}
	}
	if c.src.CopyBreak != nil {
		st := c.src.CopyBreak()
		gauge(c.cbThreshold, float64(st.Threshold))
		counter(c.cbCopied, float64(st.Copied))
		counter(c.cbZeroCopy, float64(st.ZeroCopied))
		counter(c.cbDropped, float64(st.Dropped))
	}
	if c.src.Rx != nil {
		st := c.src.Rx()
		counter(c.rxDelivered, float64(st.Delivered))
		counter(c.rxErrors, float64(st.Errors))
		counter(c.rxDoorbells, float64(st.DoorbellWrites))
		gauge(c.rxPerBell, st.PacketsPerDoorbell())
	}
	if c.src.Tx != nil {
		st := c.src.Tx()
		counter(c.txPackets, float64(st.Packets))
		counter(c.txIRQs, float64(st.IRQRequested))
		counter(c.txIRQSaved, float64(st.IRQSaved))
		gauge(c.txReduction, st.InterruptReductionPct())
	}
}

var _ prometheus.Collector = (*PipelineCollector)(nil)
