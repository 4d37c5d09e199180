// SPDX-License-Identifier: GPL-3.0-or-later

// Package chain builds, per requested chain alias, the sequence of
// single-use relays connecting intermediate PTs tail-to-head, plus the
// user-facing SOCKSv4 interceptor at the head.
package chain

import (
	"context"
	"fmt"

	"github.com/bassosimone/ptcombine/internal/managedtransport"
	"github.com/bassosimone/ptcombine/internal/pipeline"
	"github.com/bassosimone/ptcombine/internal/relay"
)

// Builder constructs chains of relays given the ordered method specs of
// the PTs in a chain alias.
type Builder struct {
	cfg    *pipeline.Config
	logger pipeline.SLogger
}

// New returns a [*Builder]. Pass [pipeline.NewConfig] and
// [pipeline.DefaultSLogger] for defaults.
func New(cfg *pipeline.Config, logger pipeline.SLogger) *Builder {
	if logger == nil {
		logger = pipeline.DefaultSLogger()
	}
	return &Builder{cfg: cfg, logger: logger}
}

// Chain is the live set of relays backing one chain instance: one relay
// per PT from the second PT through the last, plus the head's upstream
// target (the first relay's address, or the bridge directly when the
// chain has only one PT — never the case here since chains require
// length ≥ 2).
type Chain struct {
	// Relays holds R₂..Rₙ, in that order: Relays[0] is the relay for the
	// chain's second PT (the head's upstream target), Relays[len-1] is
	// the tail relay connecting to the bridge.
	Relays []*relay.Relay
}

// HeadUpstream is the target the interceptor dials through the chain's
// first PT: the address of R₂, the relay for the second PT in the chain.
func (c *Chain) HeadUpstream() relay.Target {
	addr := c.Relays[0].Addr()
	return relay.Target{Host: addr.Addr().String(), Port: int(addr.Port())}
}

// Build allocates relays for pts[1:] (P₂..Pₙ) in reverse order — the tail
// relay (to bridge) first, then each predecessor using the relay it just
// bound as its upstream — and starts each relay's Serve loop. pts must
// have length ≥ 2; pts[0] (P₁) gets no relay of its own, since the
// interceptor dials through it directly. logger, if non-nil, overrides the
// builder's default logger for this chain instance — callers pass a
// span-tagged logger here to correlate every relay in one application
// connection's chain; pass nil to use the builder's default.
func (b *Builder) Build(ctx context.Context, pts []managedtransport.MethodSpec, bridge relay.Target, logger pipeline.SLogger) (*Chain, error) {
	if len(pts) < 2 {
		return nil, fmt.Errorf("chain: need at least 2 PTs, got %d", len(pts))
	}
	if logger == nil {
		logger = b.logger
	}

	n := len(pts)
	relays := make([]*relay.Relay, n-1) // index i holds the relay for pts[i+1]
	upstream := bridge

	for i := n - 1; i >= 1; i-- {
		r := relay.New(pts[i], upstream, b.cfg, logger)
		addr, err := r.Listen()
		if err != nil {
			teardown(relays[i:])
			return nil, fmt.Errorf("chain: bind relay for PT %q: %w", pts[i].Name, err)
		}
		r.Serve(ctx)
		relays[i-1] = r
		upstream = relay.Target{Host: addr.Addr().String(), Port: int(addr.Port())}
	}

	return &Chain{Relays: relays}, nil
}

// Teardown closes every relay still accepting in c by cancelling its
// listener; used when chain setup or the interceptor's splice fails
// partway through, so surviving relays don't linger waiting for a
// connection that will never arrive.
func (c *Chain) Teardown() {
	teardown(c.Relays)
}

func teardown(relays []*relay.Relay) {
	for _, r := range relays {
		if r != nil {
			r.CloseListener()
		}
	}
}
