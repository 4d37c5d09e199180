// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/bassosimone/ptcombine/internal/config"
	"github.com/bassosimone/ptcombine/internal/future"
	"github.com/bassosimone/ptcombine/internal/managedtransport"
	"github.com/bassosimone/ptcombine/internal/pipeline"
)

// Supervisor spawns the minimal set of child PT processes required to
// cover a run's requested chains and exposes a per-PT ready future for
// each expected transport name.
type Supervisor struct {
	logger  pipeline.SLogger
	environ func() []string

	mu       sync.Mutex
	children []*child
	perPT    map[string]*future.Future[managedtransport.MethodSpec]
}

// child is one spawned PT process together with its managed-transport
// reader and the environment goroutine reaping it.
type child struct {
	cmdline config.CommandLine
	ptNames []string
	cmd     *exec.Cmd
	reader  *managedtransport.Reader
}

// New returns a [*Supervisor] that logs through logger (use
// [pipeline.DefaultSLogger] to discard logs).
func New(logger pipeline.SLogger) *Supervisor {
	if logger == nil {
		logger = pipeline.DefaultSLogger()
	}
	return &Supervisor{
		logger:  logger,
		environ: os.Environ,
		perPT:   make(map[string]*future.Future[managedtransport.MethodSpec]),
	}
}

// Launch spawns one child process for cmdline, expected to provide every
// PT name in ptNames. It returns immediately after the process starts;
// ready/failure for each PT is observed via [Ready].
func (s *Supervisor) Launch(ctx context.Context, cmdline config.CommandLine, ptNames []string) error {
	if len(cmdline) == 0 {
		return fmt.Errorf("supervisor: empty command line for PTs %v", ptNames)
	}

	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.Env = childEnv(s.environ(), ptNames, managedtransport.SupportedVersion)
	cmd.Stderr = nil
	setPdeathsig(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("supervisor: stdout pipe for %v: %w", ptNames, err)
	}

	reader := managedtransport.NewReader()

	s.mu.Lock()
	for _, name := range ptNames {
		s.perPT[name] = future.New[managedtransport.MethodSpec]()
	}
	s.mu.Unlock()

	if err := cmd.Start(); err != nil {
		for _, name := range ptNames {
			s.resolvePT(name, managedtransport.MethodSpec{}, fmt.Errorf("supervisor: spawn failed: %w", err))
		}
		return fmt.Errorf("supervisor: spawn %v: %w", cmdline, err)
	}

	s.logger.Info("supervisor child started", "pts", ptNames, "pid", cmd.Process.Pid)

	c := &child{cmdline: cmdline, ptNames: ptNames, cmd: cmd, reader: reader}
	s.mu.Lock()
	s.children = append(s.children, c)
	s.mu.Unlock()

	go s.runChild(c, stdout)

	return nil
}

// runChild drives one child's managed-transport reader to completion,
// resolves every per-PT future it covers, and reaps the process.
func (s *Supervisor) runChild(c *child, stdout io.ReadCloser) {
	c.reader.Run(stdout)
	ready, err := c.reader.Outcome().Wait(context.Background())

	for _, name := range c.ptNames {
		if err != nil {
			s.resolvePT(name, managedtransport.MethodSpec{}, fmt.Errorf("supervisor: PT %q: %w", name, err))
			continue
		}
		spec, ok := ready.Methods[name]
		if !ok {
			// Required PT missing from CMETHODS DONE gets the same
			// treatment as a child launch failure, for this PT only.
			s.resolvePT(name, managedtransport.MethodSpec{}, fmt.Errorf("supervisor: PT %q missing from CMETHODS DONE", name))
			continue
		}
		s.resolvePT(name, spec, nil)
	}

	if err != nil {
		s.logger.Info("supervisor child failed handshake", "pts", c.ptNames, "err", err.Error())
	} else {
		s.logger.Info("supervisor child ready", "pts", c.ptNames)
	}

	if waitErr := c.cmd.Wait(); waitErr != nil {
		s.logger.Info("supervisor child exited", "pts", c.ptNames, "err", waitErr.Error())
	}
}

func (s *Supervisor) resolvePT(name string, spec managedtransport.MethodSpec, err error) {
	s.mu.Lock()
	f := s.perPT[name]
	s.mu.Unlock()
	if f != nil {
		f.Resolve(spec, err)
	}
}

// Ready returns the per-PT ready future for ptName, or false if no
// [Launch] call ever registered that name.
func (s *Supervisor) Ready(ptName string) (*future.Future[managedtransport.MethodSpec], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.perPT[ptName]
	return f, ok
}

// Shutdown terminates every spawned child process. Safe to call multiple
// times and from any goroutine.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	children := append([]*child(nil), s.children...)
	s.mu.Unlock()

	for _, c := range children {
		if c.cmd.Process == nil {
			continue
		}
		if err := c.cmd.Process.Kill(); err != nil {
			s.logger.Info("supervisor kill failed", "pts", c.ptNames, "err", err.Error())
		}
	}
}
