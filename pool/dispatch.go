// File: pool/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Static copy-routine selection. The routine is chosen once per engine
// from a dispatch table keyed by hardware profile; nothing is generated
// or re-selected at runtime.

package pool

import "encoding/binary"

// Profile classifies the adapter/bus generation. It bounds the adaptive
// copy-break threshold and picks the copy routine: older buses copy so
// slowly that large copy thresholds only hurt.
type Profile uint8

const (
	ProfileISA8 Profile = iota
	ProfileISA16
	ProfilePCI
	ProfilePCIFast
)

func (p Profile) String() string {
	switch p {
	case ProfileISA8:
		return "isa8"
	case ProfileISA16:
		return "isa16"
	case ProfilePCI:
		return "pci"
	case ProfilePCIFast:
		return "pci-fast"
	}
	return "unknown"
}

// MaxThreshold is the copy-break ceiling for this profile.
func (p Profile) MaxThreshold() int {
	switch p {
	case ProfileISA8:
		return 1024
	case ProfileISA16:
		return 768
	case ProfilePCI:
		return 512
	case ProfilePCIFast:
		return 256
	}
	return 512
}

type copyFunc func(dst, src []byte) int

var copyTable = map[Profile]copyFunc{
	ProfileISA8:    copyWords,
	ProfileISA16:   copyWords,
	ProfilePCI:     copyBuiltin,
	ProfilePCIFast: copyBuiltin,
}

func copyFuncFor(p Profile) copyFunc {
	if fn, ok := copyTable[p]; ok {
		return fn
	}
	return copyBuiltin
}

func copyBuiltin(dst, src []byte) int { return copy(dst, src) }

// copyWords moves 8-byte words with a byte tail, the shape of the
// unrolled word-copy loop used on ISA-class hardware.
func copyWords(dst, src []byte) int {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	i := 0
	for ; i+8 <= n; i += 8 {
		binary.LittleEndian.PutUint64(dst[i:], binary.LittleEndian.Uint64(src[i:]))
	}
	for ; i < n; i++ {
		dst[i] = src[i]
	}
	return n
}
