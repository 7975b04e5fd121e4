//go:build linux
// +build linux

// File: platform/platform_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux host probing via golang.org/x/sys.

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// hostPagingActive: a Linux process always runs behind the MMU, so linear
// addresses never equal physical ones.
func hostPagingActive() bool { return true }

func hostDescription() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "linux (uname unavailable)"
	}
	return fmt.Sprintf("%s %s, page size %d",
		charsToString(uts.Sysname[:]), charsToString(uts.Release[:]), unix.Getpagesize())
}

func charsToString(cs []byte) string {
	n := 0
	for n < len(cs) && cs[n] != 0 {
		n++
	}
	return string(cs[:n])
}
