// SPDX-License-Identifier: GPL-3.0-or-later

// Package controller is the thin surface that reads which chain names
// our own parent (an anonymity client acting as our managed-transport
// controller) requested, and reports success, failure, and end-of-methods
// back to it over our standard output — the writing side of the same
// line protocol internal/managedtransport reads from child PTs.
package controller

import (
	"fmt"
	"io"
	"net/netip"
	"strings"
	"sync"

	"github.com/bassosimone/ptcombine/internal/managedtransport"
)

const envClientTransports = "TOR_PT_CLIENT_TRANSPORTS"

// RequestedChains parses TOR_PT_CLIENT_TRANSPORTS out of environ (the
// [os.Environ] shape) and intersects it with knownChainNames, the chain
// names this combiner actually knows how to serve.
func RequestedChains(environ []string, knownChainNames []string) []string {
	var raw string
	for _, kv := range environ {
		if key, val, ok := strings.Cut(kv, "="); ok && key == envClientTransports {
			raw = val
			break
		}
	}
	if raw == "" {
		return nil
	}

	known := make(map[string]bool, len(knownChainNames))
	for _, name := range knownChainNames {
		known[name] = true
	}

	var requested []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name != "" && known[name] {
			requested = append(requested, name)
		}
	}
	return requested
}

// Controller reports chain outcomes to the parent over w, serializing
// writes since the managed-transport protocol is line-oriented and
// requires a single writer.
type Controller struct {
	mu sync.Mutex
	w  io.Writer
}

// New returns a [*Controller] writing to w (typically os.Stdout).
func New(w io.Writer) *Controller {
	return &Controller{w: w}
}

// ReportVersion announces the managed-transport version this combiner
// speaks to its own parent.
func (c *Controller) ReportVersion() error {
	return c.writeLine(managedtransport.FormatVersion())
}

// ReportSuccess announces that chain name is ready, reachable at addr
// via SOCKSv4 (the only protocol the head interceptor speaks).
func (c *Controller) ReportSuccess(name string, addr netip.AddrPort) error {
	return c.writeLine(managedtransport.FormatCmethod(name, managedtransport.SOCKS4, addr.Addr().String(), int(addr.Port())))
}

// ReportFailure announces that chain name could not be served, with a
// human-readable reason.
func (c *Controller) ReportFailure(name, reason string) error {
	return c.writeLine(managedtransport.FormatCmethodError(name, reason))
}

// Done announces that every requested chain has been reported, success
// or failure.
func (c *Controller) Done() error {
	return c.writeLine(managedtransport.FormatCmethodsDone())
}

func (c *Controller) writeLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, line)
	return err
}
