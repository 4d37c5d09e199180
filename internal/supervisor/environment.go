// SPDX-License-Identifier: GPL-3.0-or-later

// Package supervisor spawns the minimal set of child PT processes needed
// to cover a run's requested chains, wires each child's standard output
// into a [managedtransport.Reader], and enforces cleanup of every child
// on parent exit.
package supervisor

import (
	"fmt"
	"strings"
)

const (
	envPrefix          = "TOR_PT_"
	envTransportVer    = "TOR_PT_MANAGED_TRANSPORT_VER"
	envClientTransport = "TOR_PT_CLIENT_TRANSPORTS"
	envStateLocation   = "TOR_PT_STATE_LOCATION"
	stateSubdir        = "fog"
)

// childEnv computes the environment a child PT process should see, given
// the parent's own environment (as `KEY=VALUE` strings, the shape
// [os.Environ] returns), the PT names this child must provide, and the
// managed-transport protocol version this combiner supports.
//
// It strips every TOR_PT_-prefixed variable from the parent environment,
// then re-adds TOR_PT_MANAGED_TRANSPORT_VER, TOR_PT_CLIENT_TRANSPORTS, and
// (if the parent provided one) TOR_PT_STATE_LOCATION re-rooted under a
// "fog" subdirectory so each child gets its own state directory.
func childEnv(parentEnv []string, ptNames []string, version string) []string {
	var out []string
	var parentState string
	for _, kv := range parentEnv {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, envPrefix) {
			if key == envStateLocation {
				_, parentState, _ = strings.Cut(kv, "=")
			}
			continue
		}
		out = append(out, kv)
	}

	out = append(out, fmt.Sprintf("%s=%s", envTransportVer, version))
	out = append(out, fmt.Sprintf("%s=%s", envClientTransport, strings.Join(ptNames, ",")))
	if parentState != "" {
		out = append(out, fmt.Sprintf("%s=%s/%s", envStateLocation, parentState, stateSubdir))
	}
	return out
}
