// SPDX-License-Identifier: GPL-3.0-or-later

// Command ptcombine is the process root: it parses a configuration file,
// spawns the minimal set of child pluggable-transport processes needed to
// cover the chains its own parent requests, wires each chain's relays and
// head interceptor together, and reports progress back to the parent
// over the managed-transport line protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/bassosimone/ptcombine/internal/chain"
	"github.com/bassosimone/ptcombine/internal/config"
	"github.com/bassosimone/ptcombine/internal/controller"
	"github.com/bassosimone/ptcombine/internal/managedtransport"
	"github.com/bassosimone/ptcombine/internal/pipeline"
	"github.com/bassosimone/ptcombine/internal/supervisor"
)

func main() {
	os.Exit(run(os.Args[1:], os.Environ()))
}

func run(args []string, environ []string) int {
	fs := flag.NewFlagSet("ptcombine", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the directive file")
	verbose := fs.Bool("verbose", false, "enable debug-level logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	f, err := os.Open(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptcombine: cannot open config %s: %s\n", *configPath, err)
		return 1
	}
	defer f.Close()

	cfg, warnings, err := config.ParseWithWarnings(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptcombine: %s\n", err)
		return 1
	}
	for _, w := range warnings {
		logger.Info("config warning", "msg", w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctrl := controller.New(os.Stdout)
	requested := controller.RequestedChains(environ, cfg.ChainNames())
	if len(requested) == 0 {
		fmt.Fprintln(os.Stderr, "ptcombine: no chains requested or known, nothing to serve")
		return 1
	}
	if err := ctrl.ReportVersion(); err != nil {
		return 1
	}

	sup := supervisor.New(pipelineLogger{logger})
	supervisor.WatchParent(sup.Shutdown)
	defer sup.Shutdown()

	for _, cmdline := range cfg.UniqueCommandLines(requested...) {
		ptNames := cfg.PTsByCmdline(cmdline, requested...)
		if err := sup.Launch(ctx, cmdline, ptNames); err != nil {
			logger.Error("failed to launch child", "cmdline", []string(cmdline), "pts", ptNames, "err", err.Error())
		}
	}

	builder := chain.New(pipeline.NewConfig(), pipelineLogger{logger})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var interceptors []*chain.Interceptor
	served := 0

	for _, name := range requested {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			ic, err := buildChainInterceptor(ctx, name, cfg, sup, builder, pipelineLogger{logger})
			if err != nil {
				logger.Info("chain failed", "chain", name, "err", err.Error())
				ctrl.ReportFailure(name, err.Error())
				return
			}
			mu.Lock()
			interceptors = append(interceptors, ic)
			served++
			mu.Unlock()
			ctrl.ReportSuccess(name, ic.Addr())
		}(name)
	}
	wg.Wait()
	ctrl.Done()

	if served == 0 {
		return 1
	}

	for _, ic := range interceptors {
		go ic.Serve(ctx)
	}

	<-ctx.Done()
	for _, ic := range interceptors {
		ic.Close()
	}
	return 0
}

// buildChainInterceptor awaits readiness of every PT in chain name, then
// binds and returns its head interceptor.
func buildChainInterceptor(
	ctx context.Context,
	name string,
	cfg *config.Config,
	sup *supervisor.Supervisor,
	builder *chain.Builder,
	logger pipeline.SLogger,
) (*chain.Interceptor, error) {
	ptNames, ok := cfg.ChainFor(name)
	if !ok {
		return nil, fmt.Errorf("unknown chain %q", name)
	}

	specs := make([]managedtransport.MethodSpec, len(ptNames))
	for i, ptName := range ptNames {
		f, ok := sup.Ready(ptName)
		if !ok {
			return nil, fmt.Errorf("PT %q was never launched", ptName)
		}
		spec, err := f.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("PT %q: %w", ptName, err)
		}
		specs[i] = spec
	}

	ic := chain.NewInterceptor(name, specs, builder, pipeline.NewConfig(), logger)
	if _, err := ic.Listen(); err != nil {
		return nil, fmt.Errorf("bind interceptor: %w", err)
	}
	return ic, nil
}

func defaultConfigPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "ptcombine.conf"
	}
	return filepath.Join(filepath.Dir(exe), "ptcombine.conf")
}

// pipelineLogger adapts a [*slog.Logger] to [pipeline.SLogger].
type pipelineLogger struct {
	l *slog.Logger
}

func (p pipelineLogger) Debug(msg string, args ...any) { p.l.Debug(msg, args...) }
func (p pipelineLogger) Info(msg string, args ...any)  { p.l.Info(msg, args...) }
