// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sized buffer tiers atop the DMA-safe allocator, and the copy-break
// engine that decides per packet whether to copy or hand the original
// buffer onward. The adaptive threshold trades cheap copies against DMA
// buffer pressure; both directions of adjustment are clamped and stepped.
package pool
