// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Typed pipeline configuration with YAML loading, validation and
// memory-budget auto-sizing.

package control

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/momentics/hioload-dma/alloc"
	"github.com/momentics/hioload-dma/api"
	"github.com/momentics/hioload-dma/pool"
	"github.com/momentics/hioload-dma/ring"
)

// MemoryTier picks a pool-sizing preset when explicit slot counts are
// absent, the way the original driver auto-configured its buffer pools
// from available conventional memory.
type MemoryTier string

const (
	TierMinimal     MemoryTier = "minimal"
	TierStandard    MemoryTier = "standard"
	TierPerformance MemoryTier = "performance"
)

// Config is the whole pipeline's configuration.
type Config struct {
	Profile    string        `json:"profile"` // isa8|isa16|pci|pci-fast
	MemoryTier MemoryTier    `json:"memoryTier"`
	Allocator  alloc.Config  `json:"allocator"`
	CopyBreak  pool.Tuning   `json:"copyBreak"`
	Rx         ring.RxConfig `json:"rx"`
	Tx         ring.TxConfig `json:"tx"`
	// WorkerBudget bounds completions handled per worker step.
	WorkerBudget  int `json:"workerBudget"`
	MaintainEvery int `json:"maintainEvery"`
}

// DefaultConfig is a standard-tier PCI setup.
func DefaultConfig() Config {
	return Config{
		Profile:    pool.ProfilePCI.String(),
		MemoryTier: TierStandard,
		CopyBreak:  pool.Tuning{Adaptive: true},
		Rx:         ring.RxConfig{Size: 32},
		Tx:         ring.TxConfig{Size: 32},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: read")
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, api.NewError(api.ErrCodeConfig, errors.Wrap(err, "config: parse").Error())
	}
	return cfg, nil
}

// HardwareProfile resolves the profile name.
func (c Config) HardwareProfile() (pool.Profile, error) {
	switch c.Profile {
	case "", "pci":
		return pool.ProfilePCI, nil
	case "isa8":
		return pool.ProfileISA8, nil
	case "isa16":
		return pool.ProfileISA16, nil
	case "pci-fast":
		return pool.ProfilePCIFast, nil
	}
	return 0, api.NewError(api.ErrCodeConfig, "unknown hardware profile").WithContext("profile", c.Profile)
}

// Normalize fills derived values: pool sizing from the memory tier when
// counts are zero. Returns the effective config.
func (c Config) Normalize() Config {
	if len(c.Allocator.DMAPools) == 0 {
		n := c.MemoryTier.frameBuffers()
		c.Allocator.DMAPools = []alloc.PoolConfig{
			{SlotSize: pool.FrameSize, SlotCount: n, Alignment: 16, DMACapable: true},
		}
	}
	if c.Allocator.CopyPool.SlotCount == 0 {
		c.Allocator.CopyPool = alloc.PoolConfig{
			SlotSize:  pool.FrameSize,
			SlotCount: c.MemoryTier.copyBuffers(),
			Alignment: 4,
		}
	}
	if c.WorkerBudget == 0 {
		c.WorkerBudget = 16
	}
	if c.MaintainEvery == 0 {
		c.MaintainEvery = 64
	}
	return c
}

// Validate rejects structurally bad configuration before any carving.
func (c Config) Validate() error {
	if _, err := c.HardwareProfile(); err != nil {
		return err
	}
	if c.Rx.Size < 2 || c.Rx.Size&(c.Rx.Size-1) != 0 {
		return api.NewError(api.ErrCodeConfig, "rx ring size must be a power of two").
			WithContext("size", c.Rx.Size)
	}
	if c.Tx.Size < 2 || c.Tx.Size&(c.Tx.Size-1) != 0 {
		return api.NewError(api.ErrCodeConfig, "tx ring size must be a power of two").
			WithContext("size", c.Tx.Size)
	}
	if k := c.Tx.IRQInterval; k != 0 && k&(k-1) != 0 {
		return api.NewError(api.ErrCodeConfig, "tx IRQ interval must be a power of two").
			WithContext("interval", k)
	}
	return nil
}

func (t MemoryTier) frameBuffers() int {
	switch t {
	case TierMinimal:
		return 16
	case TierPerformance:
		return 96
	default:
		return 48
	}
}

func (t MemoryTier) copyBuffers() int {
	switch t {
	case TierMinimal:
		return 8
	case TierPerformance:
		return 64
	default:
		return 32
	}
}
