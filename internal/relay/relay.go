// SPDX-License-Identifier: GPL-3.0-or-later

// Package relay implements the single-use SOCKS relay: a listener that
// accepts exactly one connection, dials the next hop through a SOCKS
// handshake, splices bytes bidirectionally, and fires a one-shot
// completion signal.
package relay

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/ptcombine/internal/future"
	"github.com/bassosimone/ptcombine/internal/managedtransport"
	"github.com/bassosimone/ptcombine/internal/pipeline"
	"github.com/bassosimone/ptcombine/internal/socksproto"
)

// HandshakeTimeout bounds outbound connect and SOCKS handshake duration.
// No timeout applies once splicing begins.
const HandshakeTimeout = 30 * time.Second

// Target is an (host, port) destination a relay connects onward to,
// either the next relay in a chain or the final bridge.
type Target struct {
	Host string
	Port int
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Relay is a single-use SOCKS relay, constructed with the method spec of
// the PT it dials through and the destination it requests via CONNECT.
type Relay struct {
	downstream managedtransport.MethodSpec
	upstream   Target
	cfg        *pipeline.Config
	logger     pipeline.SLogger

	listener net.Listener
	addr     netip.AddrPort
	done     *future.Future[struct{}]
}

// New constructs a [*Relay]. cfg and logger follow the pipeline package's
// conventions; pass [pipeline.NewConfig] and [pipeline.DefaultSLogger] for
// defaults. Every log line this relay emits, from accept through dial,
// handshake, splice, and close, is tagged with a single [pipeline.NewSpanID]
// so its whole lifecycle can be correlated in the logs.
func New(downstream managedtransport.MethodSpec, upstream Target, cfg *pipeline.Config, logger pipeline.SLogger) *Relay {
	if logger == nil {
		logger = pipeline.DefaultSLogger()
	}
	return &Relay{
		downstream: downstream,
		upstream:   upstream,
		cfg:        cfg,
		logger:     pipeline.WithSpanID(logger, pipeline.NewSpanID()),
		done:       future.New[struct{}](),
	}
}

// DialThrough dials downstream's local SOCKS endpoint and performs a
// CONNECT handshake requesting upstream, using the pipeline package's
// connect/cancel-watch/observe composition for the outbound leg. It is
// the dial-and-handshake step shared by every relay and by the head
// interceptor, which performs it directly on an already-accepted
// application connection instead of through a listener of its own.
func DialThrough(ctx context.Context, downstream managedtransport.MethodSpec, upstream Target, cfg *pipeline.Config, logger pipeline.SLogger) (net.Conn, error) {
	if logger == nil {
		logger = pipeline.DefaultSLogger()
	}
	dial := pipeline.Compose3(
		pipeline.NewConnectFunc(cfg, "tcp", logger),
		pipeline.NewCancelWatchFunc(),
		pipeline.NewObserveConnFunc(cfg, logger),
	)

	addr, err := netip.ParseAddrPort(downstream.Addr())
	if err != nil {
		return nil, fmt.Errorf("relay: downstream endpoint %q: %w", downstream.Addr(), err)
	}
	outbound, err := dial.Call(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("relay: dial downstream %s: %w", downstream.Addr(), err)
	}
	if err := socksproto.Connect(ctx, outbound, string(downstream.Protocol), upstream.Host, upstream.Port); err != nil {
		outbound.Close()
		return nil, fmt.Errorf("relay: socks connect to %s via %s: %w", upstream, downstream.Name, err)
	}
	return outbound, nil
}

// Listen binds the relay's loopback listening port so its address can be
// published to the chain builder before any accept happens. Must be
// called before [Relay.Serve].
func (r *Relay) Listen() (netip.AddrPort, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("relay: listen: %w", err)
	}
	r.listener = ln
	r.addr = ln.Addr().(*net.TCPAddr).AddrPort()
	return r.addr, nil
}

// Addr returns the relay's listening address; valid only after [Listen].
func (r *Relay) Addr() netip.AddrPort {
	return r.addr
}

// Completion returns the one-shot future that resolves once the relay's
// single connection finishes, successfully or not.
func (r *Relay) Completion() *future.Future[struct{}] {
	return r.done
}

// CloseListener closes the relay's listener if it hasn't accepted a
// connection yet, used to tear down surviving relays when chain setup
// fails partway through. Safe to call after the listener already closed
// itself on accept.
func (r *Relay) CloseListener() {
	if r.listener != nil {
		r.listener.Close()
	}
}

// Serve starts waiting for the relay's one inbound connection in the
// background and returns immediately; the connection is handled in that
// background goroutine. On the first inbound
// connection, the listener is closed immediately so no second connection
// can race in. If ctx is cancelled before any connection arrives, the
// listener is closed and Completion resolves with an error.
func (r *Relay) Serve(ctx context.Context) {
	go r.acceptLoop(ctx)
}

func (r *Relay) acceptLoop(ctx context.Context) {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, err := r.listener.Accept()
		accepted <- acceptResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		r.listener.Close()
		r.done.Resolve(struct{}{}, ctx.Err())
		return
	case res := <-accepted:
		r.listener.Close() // stop accepting immediately: this relay is single-use
		if res.err != nil {
			r.done.Resolve(struct{}{}, fmt.Errorf("relay: accept: %w", res.err))
			return
		}
		r.handleConn(ctx, res.conn)
	}
}

func (r *Relay) handleConn(ctx context.Context, inbound net.Conn) {
	hctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	outbound, err := DialThrough(hctx, r.downstream, r.upstream, r.cfg, r.logger)
	cancel()
	if err != nil {
		inbound.Close()
		r.done.Resolve(struct{}{}, err)
		return
	}

	err = Splice(inbound, outbound)
	inbound.Close()
	outbound.Close()
	r.done.Resolve(struct{}{}, err)
}
