// SPDX-License-Identifier: GPL-3.0-or-later

package managedtransport

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/bassosimone/ptcombine/internal/future"
)

// SupportedVersion is the only managed-transport protocol version this
// combiner understands.
const SupportedVersion = "1"

// Ready is the outcome a [Reader] resolves once a child PT completes its
// handshake successfully: every method it advertised, keyed by name.
type Ready struct {
	Methods map[string]MethodSpec
}

// state is M's internal position in the line protocol state machine
// described informally as AWAIT_VERSION_OR_CMETHOD / FAILED / DONE.
type state int

const (
	stateAwait state = iota
	stateFailed
	stateDone
)

// Reader parses one child PT's standard output into a one-shot [Ready]
// outcome. Exactly one of ready/failed is ever observable: after
// CMETHODS DONE or a terminal error, Run stops consuming input and
// further output is not parsed.
type Reader struct {
	outcome *future.Future[Ready]
	state   state
	ready   map[string]MethodSpec
}

// NewReader returns a [*Reader] whose outcome can be awaited via Outcome.
func NewReader() *Reader {
	return &Reader{
		outcome: future.New[Ready](),
		state:   stateAwait,
		ready:   make(map[string]MethodSpec),
	}
}

// Outcome returns the one-shot future this reader resolves once parsing
// reaches CMETHODS DONE (success) or fails (end-of-stream before DONE, or
// an unsupported VERSION). Malformed CMETHOD lines are skipped, not fatal.
func (r *Reader) Outcome() *future.Future[Ready] {
	return r.outcome
}

// Run consumes r from the child's standard output until EOF or a
// terminal state is reached, resolving Outcome exactly once. Run itself
// never returns an error: all failures are reported through Outcome so
// callers waiting on multiple children observe a uniform interface.
func (r *Reader) Run(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if r.state != stateAwait {
			break
		}
		if done := r.handleLine(scanner.Text()); done {
			return
		}
	}
	if r.state == stateAwait {
		// End-of-stream before CMETHODS DONE means the child gave up
		// without ever signaling readiness; fire failed.
		err := scanner.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		r.outcome.Resolve(Ready{}, fmt.Errorf("managed transport child ended before CMETHODS DONE: %w", err))
	}
}

// handleLine processes one line of the managed-transport protocol and
// returns true once Outcome has been resolved and no more lines should be
// read.
func (r *Reader) handleLine(line string) bool {
	line = strings.TrimRight(line, "\r")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "VERSION":
		if len(fields) < 2 || fields[1] != SupportedVersion {
			r.state = stateFailed
			r.outcome.Resolve(Ready{}, fmt.Errorf("unsupported managed transport version %q", safeField(fields, 1)))
			return true
		}
		return false

	case "CMETHOD":
		spec, err := ParseCmethodLine(fields[1:])
		if err != nil {
			// A malformed CMETHOD line does not itself fail the whole
			// child; unrecognized lines are ignored. Only a VERSION
			// mismatch and end-of-stream before DONE are fatal.
			return false
		}
		r.ready[spec.Name] = spec
		return false

	case "CMETHODS":
		if len(fields) >= 2 && fields[1] == "DONE" {
			r.state = stateDone
			r.outcome.Resolve(Ready{Methods: r.ready}, nil)
			return true
		}
		return false

	default:
		return false
	}
}

func safeField(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}
