// SPDX-License-Identifier: GPL-3.0-or-later

// Package config parses the pluggable-transport-combiner directive file
// into a transport catalog, an alias catalog, and the derived command-line
// to chain-names index the supervisor needs to dedupe child processes.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"
)

// CommandLine is an ordered sequence of argv strings, treated both as a
// value and as a deduplication key: two PTs sharing a byte-identical
// CommandLine share one child process.
type CommandLine []string

// Key returns a comparable representation of the command line suitable
// for use as a map key.
func (c CommandLine) Key() string {
	return strings.Join(c, "\x00")
}

// Config is the immutable, parsed transport catalog and alias catalog for
// one combiner run, plus the cmdline→chains index derived from it.
//
// A Config is safe for concurrent read-only use once returned by [Parse];
// it is never mutated afterward.
type Config struct {
	transports map[string]CommandLine // PT name -> command line
	aliases    map[string][]string    // chain alias -> ordered PT names
	byCmdline  map[string][]string    // cmdline key -> chain aliases referencing it
}

// ParseError reports a fatal configuration problem together with the
// 1-based line number that caused it, so operators can fix the directive
// file without hunting through it line by line.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Parse reads a directive file from r and returns the resulting [*Config].
//
// Recognized directives are `ClientTransportPlugin NAMES CMD…` and
// `Alias CHAINNAME P1|P2|…|Pk`. `#` begins a comment, blank lines are
// ignored, tokens are split with shell-style quoting. Unknown directives
// emit no error (callers that want to warn should inspect the returned
// warnings via [ParseWithWarnings]).
func Parse(r io.Reader) (*Config, error) {
	cfg, _, err := ParseWithWarnings(r)
	return cfg, err
}

// ParseWithWarnings is like [Parse] but also returns one warning string per
// unrecognized directive line, each prefixed with its line number.
func ParseWithWarnings(r io.Reader) (*Config, []string, error) {
	transports := make(map[string]CommandLine)
	transportLines := make(map[string]int) // PT name -> line it was first defined on
	aliases := make(map[string][]string)
	aliasLines := make(map[string]int)
	var warnings []string

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		tokens, err := shlex.Split(line)
		if err != nil {
			return nil, nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("invalid quoting: %s", err)}
		}
		if len(tokens) == 0 {
			continue
		}

		switch tokens[0] {
		case "ClientTransportPlugin":
			if len(tokens) < 3 {
				return nil, nil, &ParseError{Line: lineNo, Message: "ClientTransportPlugin requires NAMES and a command line"}
			}
			names := strings.Split(tokens[1], ",")
			cmdline := CommandLine(tokens[2:])
			for _, name := range names {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				if prev, dup := transportLines[name]; dup {
					return nil, nil, &ParseError{
						Line:    lineNo,
						Message: fmt.Sprintf("duplicate ClientTransportPlugin name %q (first defined on line %d)", name, prev),
					}
				}
				transportLines[name] = lineNo
				transports[name] = cmdline
			}

		case "Alias":
			if len(tokens) != 3 {
				return nil, nil, &ParseError{Line: lineNo, Message: "Alias requires CHAINNAME and a |-separated PT list"}
			}
			chainName, spec := tokens[1], tokens[2]
			if prev, dup := aliasLines[chainName]; dup {
				return nil, nil, &ParseError{
					Line:    lineNo,
					Message: fmt.Sprintf("duplicate Alias %q (first defined on line %d)", chainName, prev),
				}
			}
			pts := strings.Split(spec, "|")
			if len(pts) < 2 {
				return nil, nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("chain %q must name at least 2 PTs, got %d", chainName, len(pts))}
			}
			for _, pt := range pts {
				if _, ok := transports[pt]; !ok {
					return nil, nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("chain %q references unknown PT %q", chainName, pt)}
				}
			}
			aliasLines[chainName] = lineNo
			aliases[chainName] = pts

		default:
			warnings = append(warnings, fmt.Sprintf("line %d: unknown directive %q, skipped", lineNo, tokens[0]))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	cfg := &Config{
		transports: transports,
		aliases:    aliases,
	}
	cfg.byCmdline = cfg.buildCmdlineIndex()
	return cfg, warnings, nil
}

// buildCmdlineIndex maps each distinct command line to the chain names
// that reference it, so the same child process can be shared across every
// chain that uses one of its PTs.
func (c *Config) buildCmdlineIndex() map[string][]string {
	index := make(map[string][]string)
	seen := make(map[string]map[string]bool) // cmdline key -> set of chain names already recorded
	for chainName, pts := range c.aliases {
		for _, pt := range pts {
			key := c.transports[pt].Key()
			if seen[key] == nil {
				seen[key] = make(map[string]bool)
			}
			if !seen[key][chainName] {
				seen[key][chainName] = true
				index[key] = append(index[key], chainName)
			}
		}
	}
	return index
}

// ChainNames returns the set of known chain aliases.
func (c *Config) ChainNames() []string {
	names := make([]string, 0, len(c.aliases))
	for name := range c.aliases {
		names = append(names, name)
	}
	return names
}

// ChainFor returns the ordered PT names for chain alias name, and whether
// it exists.
func (c *Config) ChainFor(name string) ([]string, bool) {
	pts, ok := c.aliases[name]
	return pts, ok
}

// CmdlineFor returns the command line for PT name ptName, and whether it
// exists.
func (c *Config) CmdlineFor(ptName string) (CommandLine, bool) {
	cmdline, ok := c.transports[ptName]
	return cmdline, ok
}

// PTsByCmdline returns the unique set of PT names whose command line
// equals cmdline and which appear in any of the given chain names.
func (c *Config) PTsByCmdline(cmdline CommandLine, chainNames ...string) []string {
	wanted := make(map[string]bool, len(chainNames))
	for _, name := range chainNames {
		wanted[name] = true
	}
	key := cmdline.Key()

	seen := make(map[string]bool)
	var pts []string
	for ptName, ptCmdline := range c.transports {
		if ptCmdline.Key() != key || seen[ptName] {
			continue
		}
		for chainName, chainPTs := range c.aliases {
			if !wanted[chainName] {
				continue
			}
			for _, pt := range chainPTs {
				if pt == ptName {
					seen[ptName] = true
					pts = append(pts, ptName)
					break
				}
			}
			if seen[ptName] {
				break
			}
		}
	}
	return pts
}

// ChainsUsingCmdline returns the chain aliases that contain any PT using
// cmdline, per the derived cmdline→chains index.
func (c *Config) ChainsUsingCmdline(cmdline CommandLine) []string {
	return c.byCmdline[cmdline.Key()]
}

// UniqueCommandLines returns the set of distinct command lines referenced
// by the given chain names — the minimal set of child processes the
// supervisor must launch to cover them.
func (c *Config) UniqueCommandLines(chainNames ...string) []CommandLine {
	seen := make(map[string]bool)
	var result []CommandLine
	for _, chainName := range chainNames {
		pts, ok := c.aliases[chainName]
		if !ok {
			continue
		}
		for _, pt := range pts {
			cmdline := c.transports[pt]
			key := cmdline.Key()
			if !seen[key] {
				seen[key] = true
				result = append(result, cmdline)
			}
		}
	}
	return result
}
