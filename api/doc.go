// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared contracts for the DMA buffer and descriptor-ring pipeline.
//
// The api package holds only interfaces, value types and error taxonomy.
// Implementations live in platform, alloc, pool, ring and device; test
// doubles live in fake. Nothing here allocates or touches hardware.
package api
