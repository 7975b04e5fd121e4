// File: device/device.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-device context object: one adapter's policy, allocator, buffer
// tiers, rings and worker, wired in startup order. Replaces the fixed
// per-adapter global arrays of the legacy layout.

package device

import (
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-dma/alloc"
	"github.com/momentics/hioload-dma/api"
	"github.com/momentics/hioload-dma/control"
	"github.com/momentics/hioload-dma/platform"
	"github.com/momentics/hioload-dma/pool"
	"github.com/momentics/hioload-dma/ring"
)

// Options carries what bus/device enumeration supplies: the register
// window, ring base addresses, and the platform services.
type Options struct {
	Index int
	Name  string

	IO         api.IOHandle
	RxBasePhys uint32
	TxBasePhys uint32

	Translation api.TranslationService
	Regions     api.RegionSource
	// Env overrides host environment detection; nil probes the host.
	Env platform.Environment

	Deliver ring.DeliverFunc
	Release ring.ReleaseFunc
}

// Device is one adapter instance's pipeline.
type Device struct {
	index      int
	name       string
	policy     api.Policy
	policyDesc string

	allocator *alloc.Allocator
	tiers     *pool.Tiers
	copybreak *pool.CopyBreak
	rx        *ring.RxRing
	tx        *ring.TxRing
	worker    *ring.Worker

	metrics *control.MetricsRegistry
	log     *logrus.Entry
}

// Open builds the pipeline: probe policy once, configure the allocator
// under it, stack the tiers and copy-break engine on top, then arm the
// rings. Under PolicyForbidden no rings are built; the hardware layer
// must fall back to programmed I/O with copy-path buffers.
func Open(cfg control.Config, opts Options) (*Device, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	profile, err := cfg.HardwareProfile()
	if err != nil {
		return nil, err
	}
	if opts.Regions == nil {
		opts.Regions = alloc.HostRegionSource()
	}
	env := opts.Env
	if env == nil {
		env = platform.Host(opts.Translation)
	}

	policy, desc := platform.Probe(env)
	log := logrus.WithFields(logrus.Fields{"pkg": "device", "dev": opts.Name})
	log.WithFields(logrus.Fields{"policy": policy.String(), "env": desc}).Info("DMA policy selected")

	allocator, err := alloc.New(cfg.Allocator, policy, opts.Translation, opts.Regions)
	if err != nil {
		return nil, err
	}
	tiers := pool.NewTiers(allocator)
	cb, err := pool.NewCopyBreak(tiers, profile, cfg.CopyBreak)
	if err != nil {
		_ = allocator.Close()
		return nil, err
	}

	d := &Device{
		index:      opts.Index,
		name:       opts.Name,
		policy:     policy,
		policyDesc: desc,
		allocator:  allocator,
		tiers:      tiers,
		copybreak:  cb,
		metrics:    control.NewMetricsRegistry(),
		log:        log,
	}

	if policy.DMAAllowed() && opts.IO != nil {
		rxCfg := cfg.Rx
		rxCfg.BasePhys = opts.RxBasePhys
		d.rx, err = ring.NewRxRing(rxCfg, tiers, cb, opts.IO, opts.Deliver)
		if err != nil {
			_ = allocator.Close()
			return nil, err
		}
		txCfg := cfg.Tx
		txCfg.BasePhys = opts.TxBasePhys
		d.tx, err = ring.NewTxRing(txCfg, tiers, cb, opts.IO, opts.Release)
		if err != nil {
			_ = allocator.Close()
			return nil, err
		}
		if err := d.rx.Start(); err != nil {
			d.rx.Close()
			_ = allocator.Close()
			return nil, err
		}
		if err := d.tx.Start(); err != nil {
			d.rx.Close()
			_ = allocator.Close()
			return nil, err
		}
	}

	d.worker = ring.NewWorker(ring.NewSignalQueue(64), d.rx, d.tx, cfg.WorkerBudget, cb.Maintain, cfg.MaintainEvery)
	d.registerMetrics()
	return d, nil
}

// Ack acknowledges a hardware completion from the signaling context.
func (d *Device) Ack(k ring.SignalKind) bool { return d.worker.Ack(k) }

// Step runs one bounded worker pass.
func (d *Device) Step() int { return d.worker.Step() }

// Transmit stages one payload through copy-break onto the TX ring.
func (d *Device) Transmit(payload []byte, srcPhys uint32, srcDMASafe bool) error {
	if d.tx == nil {
		return api.NewError(api.ErrCodeForbidden, "no DMA transmit path under current policy")
	}
	return d.tx.Enqueue(payload, srcPhys, srcDMASafe)
}

// Maintain runs one adaptive copy-break step.
func (d *Device) Maintain() { d.copybreak.Maintain() }

// Index returns the registry index.
func (d *Device) Index() int { return d.index }

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Policy returns the selected DMA policy and its description.
func (d *Device) Policy() (api.Policy, string) { return d.policy, d.policyDesc }

// Allocator exposes the device allocator (buffer release by consumers).
func (d *Device) Allocator() *alloc.Allocator { return d.allocator }

// Tiers exposes the buffer tiers.
func (d *Device) Tiers() *pool.Tiers { return d.tiers }

// Rx returns the receive ring; nil under PolicyForbidden.
func (d *Device) Rx() *ring.RxRing { return d.rx }

// Tx returns the transmit ring; nil under PolicyForbidden.
func (d *Device) Tx() *ring.TxRing { return d.tx }

// StatSources bundles the statistics accessors for a Prometheus collector.
func (d *Device) StatSources() control.StatSources {
	src := control.StatSources{
		Allocator: d.allocator.Stats,
		CopyBreak: d.copybreak.Stats,
	}
	if d.rx != nil {
		src.Rx = d.rx.Stats
	}
	if d.tx != nil {
		src.Tx = d.tx.Stats
	}
	return src
}

// Metrics returns the device's metrics registry.
func (d *Device) Metrics() *control.MetricsRegistry { return d.metrics }

func (d *Device) registerMetrics() {
	d.metrics.Set("policy", d.policy.String())
	d.metrics.RegisterSource("allocator", func() any { return d.allocator.Stats() })
	d.metrics.RegisterSource("copybreak", func() any { return d.copybreak.Stats() })
	if d.rx != nil {
		d.metrics.RegisterSource("rx", func() any { return d.rx.Stats() })
	}
	if d.tx != nil {
		d.metrics.RegisterSource("tx", func() any { return d.tx.Stats() })
	}
}

// Close quiesces the rings and destroys the pools. Buffer leaks surface
// as errors, aggregated so shutdown always completes.
func (d *Device) Close() error {
	var errs *multierror.Error
	if d.tx != nil {
		d.tx.Harvest()
	}
	if d.rx != nil {
		d.rx.Close()
	}
	if err := d.allocator.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
