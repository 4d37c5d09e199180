// SPDX-License-Identifier: GPL-3.0-or-later

package chain

import (
	"context"
	"net"
	"net/netip"

	"github.com/bassosimone/ptcombine/internal/managedtransport"
	"github.com/bassosimone/ptcombine/internal/pipeline"
	"github.com/bassosimone/ptcombine/internal/relay"
	"github.com/bassosimone/ptcombine/internal/socksproto"
)

// Interceptor is the user-facing SOCKSv4 listener at the head of a
// chain. Its per-connection state machine is
// LISTEN → READ_SOCKS_REQUEST → BUILD_CHAIN → SPLICE → CLOSED: the chain
// of relays behind it is built fresh at accept time, from the
// application's requested destination, not at chain-construction time.
type Interceptor struct {
	name     string // chain alias, for logging and controller reports
	pts      []managedtransport.MethodSpec
	builder  *Builder
	cfg      *pipeline.Config
	logger   pipeline.SLogger
	listener net.Listener
	addr     netip.AddrPort
}

// NewInterceptor constructs an [*Interceptor] for chain alias name, given
// the ready method specs for every PT in the chain, in chain order.
func NewInterceptor(name string, pts []managedtransport.MethodSpec, builder *Builder, cfg *pipeline.Config, logger pipeline.SLogger) *Interceptor {
	if logger == nil {
		logger = pipeline.DefaultSLogger()
	}
	return &Interceptor{name: name, pts: pts, builder: builder, cfg: cfg, logger: logger}
}

// Listen binds the interceptor's loopback SOCKSv4 port. Must be called
// before [Interceptor.Serve]; its result is what [internal/controller]
// reports back to the parent as this chain's endpoint.
func (ic *Interceptor) Listen() (netip.AddrPort, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return netip.AddrPort{}, err
	}
	ic.listener = ln
	ic.addr = ln.Addr().(*net.TCPAddr).AddrPort()
	return ic.addr, nil
}

// Addr returns the interceptor's listening address; valid after Listen.
func (ic *Interceptor) Addr() netip.AddrPort {
	return ic.addr
}

// Serve runs the interceptor's accept loop until ctx is cancelled or the
// listener is closed. Unlike a relay, the interceptor accepts
// indefinitely: it remains available for subsequent connections because
// its relay infrastructure is per-connection and rebuilt on every accept.
func (ic *Interceptor) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		ic.listener.Close()
	}()
	for {
		conn, err := ic.listener.Accept()
		if err != nil {
			return // listener closed, either by ctx or Close
		}
		go ic.handleConn(ctx, conn)
	}
}

// Close stops the interceptor from accepting further connections.
func (ic *Interceptor) Close() {
	if ic.listener != nil {
		ic.listener.Close()
	}
}

// handleConn tags every log line for this application connection, from
// the initial SOCKS4 request through chain construction, head dial, and
// splice, with a single [pipeline.NewSpanID] so the connection's whole
// lifecycle can be correlated across the chain's relays.
func (ic *Interceptor) handleConn(ctx context.Context, appConn net.Conn) {
	logger := pipeline.WithSpanID(ic.logger, pipeline.NewSpanID())

	req, err := socksproto.AcceptSOCKS4(appConn)
	if err != nil {
		logger.Info("interceptor bad request", "chain", ic.name, "err", err.Error())
		appConn.Close()
		return
	}

	bridge := relay.Target{Host: req.Host, Port: req.Port}
	c, err := ic.builder.Build(ctx, ic.pts, bridge, logger)
	if err != nil {
		logger.Info("interceptor build chain failed", "chain", ic.name, "bridge", bridge.String(), "err", err.Error())
		socksproto.Reply(appConn, false, nil, 0)
		appConn.Close()
		return
	}

	hctx, cancel := context.WithTimeout(ctx, relay.HandshakeTimeout)
	outbound, err := relay.DialThrough(hctx, ic.pts[0], c.HeadUpstream(), ic.cfg, logger)
	cancel()
	if err != nil {
		logger.Info("interceptor connect through head PT failed", "chain", ic.name, "err", err.Error())
		socksproto.Reply(appConn, false, nil, 0)
		appConn.Close()
		c.Teardown()
		return
	}

	if err := socksproto.Reply(appConn, true, net.IPv4zero, 0); err != nil {
		appConn.Close()
		outbound.Close()
		c.Teardown()
		return
	}

	err = relay.Splice(appConn, outbound)
	appConn.Close()
	outbound.Close()
	if err != nil {
		logger.Info("interceptor splice ended", "chain", ic.name, "err", err.Error())
	}

	if _, compErr := c.Relays[len(c.Relays)-1].Completion().Wait(ctx); compErr != nil {
		logger.Info("interceptor chain tail relay failed", "chain", ic.name, "err", compErr.Error())
	}
}
