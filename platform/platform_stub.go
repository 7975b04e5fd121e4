//go:build !linux
// +build !linux

// File: platform/platform_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conservative host probing for platforms without a specific prober.

package platform

import "runtime"

// Without platform knowledge, assume memory is virtualized. Combined with
// an absent translation service this yields the safe PolicyForbidden.
func hostPagingActive() bool { return true }

func hostDescription() string {
	return runtime.GOOS + "/" + runtime.GOARCH + " (generic probe)"
}
