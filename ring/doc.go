// Package ring
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hardware descriptor rings with the ownership-bit handshake.
//
// No locks protect ring state. The OWN bit is the only synchronization
// primitive: each side writes descriptor fields only while it owns the
// descriptor, and hands it over with a single atomic status store the
// other side polls. The ring manager's API is the sole writer on the
// software side; descriptors are never handed out mutable.
package ring
