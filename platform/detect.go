// File: platform/detect.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral DMA policy detection. Platform-specific environment
// probing lives in separate files (platform_linux.go, platform_stub.go)
// guarded by build tags.

package platform

import (
	"fmt"

	"github.com/momentics/hioload-dma/api"
)

// Environment is what the detector inspects. Production code builds one
// with Host; tests construct Env values directly.
type Environment interface {
	// TranslationServicePresent reports whether a translation/locking
	// service is available for DMA address resolution.
	TranslationServicePresent() bool

	// PagingActive reports whether a paging or virtualizing memory manager
	// stands between linear and physical addresses.
	PagingActive() bool

	// Describe names the detected environment for logs and diagnostics.
	Describe() string
}

// Env is a plain Environment value.
type Env struct {
	Translation bool
	Paging      bool
	Description string
}

func (e Env) TranslationServicePresent() bool { return e.Translation }
func (e Env) PagingActive() bool              { return e.Paging }
func (e Env) Describe() string                { return e.Description }

// Probe inspects the environment once and returns the DMA policy plus a
// human-readable description. It never fails: the worst case is the safe
// PolicyForbidden, which disables bus-master DMA entirely.
//
// Detection order:
//  1. translation service present -> PolicyTranslated
//  2. paging active without a translation service -> PolicyForbidden
//  3. otherwise -> PolicyDirect (linear == physical)
func Probe(env Environment) (api.Policy, string) {
	desc := env.Describe()
	switch {
	case env.TranslationServicePresent():
		return api.PolicyTranslated, fmt.Sprintf("%s; translation service available, common-buffer DMA", desc)
	case env.PagingActive():
		return api.PolicyForbidden, fmt.Sprintf("%s; paging active without translation service, bus-master DMA disabled", desc)
	default:
		return api.PolicyDirect, fmt.Sprintf("%s; flat mapping, direct DMA", desc)
	}
}

// Host builds an Environment from the running system. svc is the
// translation service wired by the caller, nil when none exists; its
// presence is part of the detected environment, not a per-call branch.
func Host(svc api.TranslationService) Environment {
	return Env{
		Translation: svc != nil,
		Paging:      hostPagingActive(),
		Description: hostDescription(),
	}
}
