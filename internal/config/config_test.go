// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
# comment line, ignored

ClientTransportPlugin obfs4 exec /usr/bin/obfs4proxy
ClientTransportPlugin meek_lite,meek exec /usr/bin/meek-client
Alias fog_a obfs4|meek_lite
Alias fog_b meek|obfs4|meek_lite
`

func TestParseBasic(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	names := cfg.ChainNames()
	assert.ElementsMatch(t, []string{"fog_a", "fog_b"}, names)

	pts, ok := cfg.ChainFor("fog_a")
	require.True(t, ok)
	assert.Equal(t, []string{"obfs4", "meek_lite"}, pts)

	cmdline, ok := cfg.CmdlineFor("obfs4")
	require.True(t, ok)
	assert.Equal(t, CommandLine{"exec", "/usr/bin/obfs4proxy"}, cmdline)

	_, ok = cfg.ChainFor("nonexistent")
	assert.False(t, ok)
}

func TestParseSharedCommandLine(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	meekCmdline, ok := cfg.CmdlineFor("meek")
	require.True(t, ok)
	meekLiteCmdline, ok := cfg.CmdlineFor("meek_lite")
	require.True(t, ok)
	assert.Equal(t, meekCmdline, meekLiteCmdline)

	chains := cfg.ChainsUsingCmdline(meekCmdline)
	assert.ElementsMatch(t, []string{"fog_a", "fog_b"}, chains)

	unique := cfg.UniqueCommandLines("fog_a", "fog_b")
	assert.Len(t, unique, 2) // obfs4's cmdline and meek/meek_lite's shared cmdline
}

func TestParsePTsByCmdline(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	meekCmdline, ok := cfg.CmdlineFor("meek")
	require.True(t, ok)

	pts := cfg.PTsByCmdline(meekCmdline, "fog_b")
	assert.ElementsMatch(t, []string{"meek", "meek_lite"}, pts)
}

func TestParseDuplicateTransportName(t *testing.T) {
	const cfgText = `
ClientTransportPlugin obfs4 exec /bin/a
ClientTransportPlugin obfs4 exec /bin/b
`
	_, err := Parse(strings.NewReader(cfgText))
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 3, parseErr.Line)
}

func TestParseDuplicateAlias(t *testing.T) {
	const cfgText = `
ClientTransportPlugin a exec /bin/a
ClientTransportPlugin b exec /bin/b
Alias fog a|b
Alias fog b|a
`
	_, err := Parse(strings.NewReader(cfgText))
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 5, parseErr.Line)
}

func TestParseChainTooShort(t *testing.T) {
	const cfgText = `
ClientTransportPlugin a exec /bin/a
Alias fog a
`
	_, err := Parse(strings.NewReader(cfgText))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 PTs")
}

func TestParseUnknownPT(t *testing.T) {
	const cfgText = `
ClientTransportPlugin a exec /bin/a
Alias fog a|ghost
`
	_, err := Parse(strings.NewReader(cfgText))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown PT "ghost"`)
}

func TestParseUnknownDirectiveWarns(t *testing.T) {
	const cfgText = `
ClientTransportPlugin a exec /bin/a
Alias fog a|a
Whatever else
`
	_, warnings, err := ParseWithWarnings(strings.NewReader(cfgText))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "line 4")
	assert.Contains(t, warnings[0], "Whatever")
}

func TestParseShellQuoting(t *testing.T) {
	const cfgText = `ClientTransportPlugin obfs4 exec /usr/bin/obfs4proxy --arg "value with spaces"`
	cfg, err := Parse(strings.NewReader(cfgText))
	require.NoError(t, err)

	cmdline, ok := cfg.CmdlineFor("obfs4")
	require.True(t, ok)
	assert.Equal(t, CommandLine{"exec", "/usr/bin/obfs4proxy", "--arg", "value with spaces"}, cmdline)
}

func TestParseInvalidQuoting(t *testing.T) {
	const cfgText = `ClientTransportPlugin obfs4 exec "unterminated`
	_, err := Parse(strings.NewReader(cfgText))
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}
