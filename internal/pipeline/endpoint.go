// SPDX-License-Identifier: GPL-3.0-or-later

package pipeline

import "net/netip"

// NewEndpointFunc returns a [Func] that always returns the given [netip.AddrPort].
//
// This is a convenience wrapper around [ConstFunc] for the common case of
// injecting a fixed downstream endpoint, such as a child PT's local SOCKS
// address, into a pipeline that otherwise expects to receive one as input.
func NewEndpointFunc(endpoint netip.AddrPort) Func[Unit, netip.AddrPort] {
	return ConstFunc(endpoint)
}
