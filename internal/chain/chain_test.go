// SPDX-License-Identifier: GPL-3.0-or-later

package chain

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/ptcombine/internal/managedtransport"
	"github.com/bassosimone/ptcombine/internal/pipeline"
	"github.com/bassosimone/ptcombine/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSOCKS4Echo stands in for a child PT's local SOCKS4 endpoint: it
// grants every CONNECT request then echoes bytes back, so a chain of N
// such fakes can be exercised without real PT binaries.
func fakeSOCKS4Echo(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				header := make([]byte, 8)
				if _, err := io.ReadFull(conn, header); err != nil {
					return
				}
				for {
					b := make([]byte, 1)
					if _, err := io.ReadFull(conn, b); err != nil || b[0] == 0 {
						break
					}
				}
				conn.Write([]byte{0, 0x5a, 0, 0, 0, 0, 0, 0})
				io.Copy(conn, conn)
			}(conn)
		}
	}()
	return ln
}

func TestBuildChainMinimum(t *testing.T) {
	pt1 := fakeSOCKS4Echo(t)
	defer pt1.Close()
	pt2 := fakeSOCKS4Echo(t)
	defer pt2.Close()

	bridge, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer bridge.Close()
	go func() {
		conn, err := bridge.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	p1Addr := pt1.Addr().(*net.TCPAddr)
	p2Addr := pt2.Addr().(*net.TCPAddr)
	bridgeAddr := bridge.Addr().(*net.TCPAddr)

	pts := []managedtransport.MethodSpec{
		{Name: "p1", Protocol: managedtransport.SOCKS4, Host: "127.0.0.1", Port: p1Addr.Port},
		{Name: "p2", Protocol: managedtransport.SOCKS4, Host: "127.0.0.1", Port: p2Addr.Port},
	}

	b := New(pipeline.NewConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := b.Build(ctx, pts, relay.Target{Host: "127.0.0.1", Port: bridgeAddr.Port}, nil)
	require.NoError(t, err)
	require.Len(t, c.Relays, 1) // n=2 boundary: one relay (for p2), no intermediates

	outbound, err := relay.DialThrough(ctx, pts[0], c.HeadUpstream(), pipeline.NewConfig(), nil)
	require.NoError(t, err)
	defer outbound.Close()

	_, err = outbound.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(outbound, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestBuildChainRepeatedPT(t *testing.T) {
	pt := fakeSOCKS4Echo(t)
	defer pt.Close()
	bridge, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer bridge.Close()
	go func() {
		conn, err := bridge.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	ptAddr := pt.Addr().(*net.TCPAddr)
	spec := managedtransport.MethodSpec{Name: "b", Protocol: managedtransport.SOCKS4, Host: "127.0.0.1", Port: ptAddr.Port}
	pts := []managedtransport.MethodSpec{spec, spec}

	b := New(pipeline.NewConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bridgeAddr := bridge.Addr().(*net.TCPAddr)
	c, err := b.Build(ctx, pts, relay.Target{Host: "127.0.0.1", Port: bridgeAddr.Port}, nil)
	require.NoError(t, err)
	require.Len(t, c.Relays, 1)
	assert.NotEqual(t, 0, c.Relays[0].Addr().Port())
}

func TestBuildChainTooShort(t *testing.T) {
	b := New(pipeline.NewConfig(), nil)
	_, err := b.Build(context.Background(), []managedtransport.MethodSpec{{Name: "a"}}, relay.Target{}, nil)
	require.Error(t, err)
}
