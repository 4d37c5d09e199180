// SPDX-License-Identifier: GPL-3.0-or-later

package controller

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestedChainsIntersection(t *testing.T) {
	environ := []string{"PATH=/usr/bin", "TOR_PT_CLIENT_TRANSPORTS=fog_a,fog_c,ghost"}
	known := []string{"fog_a", "fog_b"}

	got := RequestedChains(environ, known)
	assert.Equal(t, []string{"fog_a"}, got)
}

func TestRequestedChainsMissingEnv(t *testing.T) {
	got := RequestedChains([]string{"PATH=/usr/bin"}, []string{"fog_a"})
	assert.Nil(t, got)
}

func TestControllerReports(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)

	require.NoError(t, c.ReportVersion())
	require.NoError(t, c.ReportSuccess("fog_a", netip.MustParseAddrPort("127.0.0.1:9050")))
	require.NoError(t, c.ReportFailure("fog_b", "missing PT b"))
	require.NoError(t, c.Done())

	want := "VERSION 1\nCMETHOD fog_a socks4 127.0.0.1:9050\nCMETHOD-ERROR fog_b missing PT b\nCMETHODS DONE\n"
	assert.Equal(t, want, buf.String())
}
