// SPDX-License-Identifier: GPL-3.0-or-later

// Package managedtransport implements both directions of the Tor
// managed-transport line protocol this combiner needs: reading it from a
// child PT's standard output ([Reader]), and writing it to our own
// standard output when reporting chains to our parent ([FormatCmethod] and
// friends, shared with internal/controller).
package managedtransport

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocol is the SOCKS version a child PT's local endpoint speaks.
type Protocol string

const (
	SOCKS4 Protocol = "socks4"
	SOCKS5 Protocol = "socks5"
)

// MethodSpec is the tuple a child PT advertises for one transport name:
// the local SOCKS endpoint applications should dial to use it, plus any
// ARGS/OPT-ARGS the child published alongside it. Immutable after
// construction; shared by value between the supervisor and chain builder.
type MethodSpec struct {
	Name     string
	Protocol Protocol
	Host     string
	Port     int
	Args     []string
	OptArgs  []string
}

// Addr returns the method spec's local endpoint as host:port.
func (m MethodSpec) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// ParseCmethodLine parses the fields of a CMETHOD line, excluding the
// leading "CMETHOD" keyword itself, into a [MethodSpec].
//
// Expected shape: NAME SOCKS4|SOCKS5 HOST:PORT [ARGS=v1,v2,…] [OPT-ARGS=v1,…].
// ARGS and OPT-ARGS are parsed by taking everything after the "=" sign —
// not by slicing a fixed number of bytes off either end, which is the bug
// an implementer reading the source this protocol is modeled on should not
// replicate.
func ParseCmethodLine(fields []string) (MethodSpec, error) {
	if len(fields) < 3 {
		return MethodSpec{}, fmt.Errorf("CMETHOD line has %d fields, want at least 3", len(fields))
	}

	var proto Protocol
	switch strings.ToLower(fields[1]) {
	case "socks4":
		proto = SOCKS4
	case "socks5":
		proto = SOCKS5
	default:
		return MethodSpec{}, fmt.Errorf("CMETHOD unknown protocol %q", fields[1])
	}

	host, portStr, ok := strings.Cut(fields[2], ":")
	if !ok {
		return MethodSpec{}, fmt.Errorf("CMETHOD endpoint %q is not host:port", fields[2])
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return MethodSpec{}, fmt.Errorf("CMETHOD endpoint %q has invalid port: %w", fields[2], err)
	}

	spec := MethodSpec{
		Name:     fields[0],
		Protocol: proto,
		Host:     host,
		Port:     port,
	}

	for _, field := range fields[3:] {
		if rest, ok := strings.CutPrefix(field, "ARGS="); ok {
			spec.Args = splitNonEmpty(rest, ",")
		} else if rest, ok := strings.CutPrefix(field, "OPT-ARGS="); ok {
			spec.OptArgs = splitNonEmpty(rest, ",")
		}
		// Unrecognized trailing fields are ignored, matching M's "any
		// unrecognized line is ignored" tolerance extended to fields.
	}

	return spec, nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}
