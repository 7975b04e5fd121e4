// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable stand-ins for the platform services
// and for the hardware side of the descriptor-ring handshake.
package fake
