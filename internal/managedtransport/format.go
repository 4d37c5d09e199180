// SPDX-License-Identifier: GPL-3.0-or-later

package managedtransport

import "fmt"

// FormatCmethod renders a CMETHOD line announcing a chain's user-facing
// SOCKS endpoint to our own parent (internal/controller is the writer).
func FormatCmethod(name string, proto Protocol, host string, port int) string {
	return fmt.Sprintf("CMETHOD %s %s %s:%d", name, proto, host, port)
}

// FormatCmethodError renders a CMETHOD-ERROR line reporting a per-chain
// failure to our parent.
func FormatCmethodError(name, reason string) string {
	return fmt.Sprintf("CMETHOD-ERROR %s %s", name, reason)
}

// FormatCmethodsDone renders the line-protocol terminator announcing that
// every requested chain has been reported, success or failure.
func FormatCmethodsDone() string {
	return "CMETHODS DONE"
}

// FormatVersion renders the VERSION line this combiner reports to its own
// parent, confirming it speaks the same managed-transport version it
// requires of its own children.
func FormatVersion() string {
	return "VERSION " + SupportedVersion
}
