// Package alloc
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DMA-safe slot pool allocator.
//
// Each pool carves fixed-size slots out of one raw region so that every
// slot is alignment-correct and never straddles a naturally aligned 64KB
// unit, the layout restriction of legacy ISA DMA controllers. Physical
// address resolution follows the policy selected at startup: identity
// under PolicyDirect, per-slot locking through a TranslationService under
// PolicyTranslated. Under PolicyForbidden only the copy-only pool serves.
package alloc
