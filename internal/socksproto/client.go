// SPDX-License-Identifier: GPL-3.0-or-later

// Package socksproto implements the two SOCKS surfaces this combiner
// needs that no single pack library covers together: a CONNECT client
// for both SOCKS4(a) and SOCKS5 (dialing the next hop's local endpoint),
// and a SOCKS4 server accept handshake for the user-facing interceptor.
// The SOCKS5 client leg delegates to [golang.org/x/net/proxy], which
// implements only the client side and only version 5; SOCKS4 in either
// direction is hand-written here, styled after that package's own
// request/reply framing. There is no SOCKS5 server side.
package socksproto

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

const (
	socks4VersionRequest = 0x04
	socks4CmdConnect     = 0x01
	socks4ReplyGranted   = 0x5a
	socks4ReplyRejected  = 0x5b
	socks4ReplyVersion   = 0x00
)

// Connect performs a CONNECT handshake over conn (already TCP-connected
// to the method spec's local endpoint) for the given protocol, requesting
// access to targetHost:targetPort. It returns once the handshake succeeds
// or fails; conn is left ready for splicing on success.
func Connect(ctx context.Context, conn net.Conn, protocol string, targetHost string, targetPort int) error {
	switch protocol {
	case "socks5":
		return connectSOCKS5(ctx, conn, targetHost, targetPort)
	case "socks4":
		return connectSOCKS4(ctx, conn, targetHost, targetPort)
	default:
		// Callers are expected to have validated protocol already; this
		// is the last line of defense against an unsupported CMETHOD.
		return fmt.Errorf("socksproto: unknown protocol %q", protocol)
	}
}

// connectSOCKS5 delegates to [golang.org/x/net/proxy]'s SOCKS5 dialer,
// wrapping the already-open conn as its forward dialer so no second TCP
// connection is made.
func connectSOCKS5(ctx context.Context, conn net.Conn, targetHost string, targetPort int) error {
	target := net.JoinHostPort(targetHost, fmt.Sprintf("%d", targetPort))
	dialer, err := proxy.SOCKS5("tcp", conn.RemoteAddr().String(), nil, &singleConnDialer{conn: conn})
	if err != nil {
		return fmt.Errorf("socksproto: socks5 dialer setup: %w", err)
	}
	type contextDialer interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	}
	if cd, ok := dialer.(contextDialer); ok {
		_, err = cd.DialContext(ctx, "tcp", target)
	} else {
		_, err = dialer.Dial("tcp", target)
	}
	if err != nil {
		return fmt.Errorf("socksproto: socks5 connect to %s: %w", target, err)
	}
	return nil
}

// singleConnDialer is a [proxy.Dialer] that hands back the single
// already-open connection it was constructed with, so [proxy.SOCKS5]
// performs its handshake over conn instead of dialing anew.
type singleConnDialer struct {
	conn net.Conn
}

func (d *singleConnDialer) Dial(network, addr string) (net.Conn, error) {
	return d.conn, nil
}

// connectSOCKS4 hand-rolls a SOCKS4/4a CONNECT request over conn: no pack
// library implements the client side of this protocol version.
func connectSOCKS4(ctx context.Context, conn net.Conn, targetHost string, targetPort int) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
		defer conn.SetDeadline(noDeadline)
	}

	req := make([]byte, 0, 32)
	req = append(req, socks4VersionRequest, socks4CmdConnect)
	req = binary.BigEndian.AppendUint16(req, uint16(targetPort))

	ip := net.ParseIP(targetHost)
	isV4 := ip != nil && ip.To4() != nil
	if isV4 {
		req = append(req, ip.To4()...)
		req = append(req, 0x00) // empty USERID
	} else {
		// SOCKS4a: DSTIP is 0.0.0.x (x != 0), followed by USERID\0 then
		// the domain name \0-terminated.
		req = append(req, 0x00, 0x00, 0x00, 0x01)
		req = append(req, 0x00) // empty USERID
		req = append(req, []byte(targetHost)...)
		req = append(req, 0x00)
	}

	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("socksproto: socks4 request write: %w", err)
	}

	reply := make([]byte, 8)
	if _, err := readFull(conn, reply); err != nil {
		return fmt.Errorf("socksproto: socks4 reply read: %w", err)
	}
	if reply[0] != socks4ReplyVersion {
		return fmt.Errorf("socksproto: socks4 reply has unexpected version byte 0x%02x", reply[0])
	}
	if reply[1] != socks4ReplyGranted {
		return fmt.Errorf("socksproto: socks4 request rejected, code 0x%02x", reply[1])
	}
	return nil
}

var noDeadline time.Time

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
