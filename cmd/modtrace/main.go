// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command modtrace analyzes the module structure of a multi-module source
// tree from the command line.
//
// Usage:
//
//	modtrace http-requests --root ./modules
//	modtrace http-requests --pattern client.post --pattern restTemplate.exchange --chain
//	modtrace expose --show-dependency
//	modtrace tables --json
//	modtrace impact changes.patch
//	git diff main | modtrace impact -
//	modtrace snapshot save --label before-refactor
//	modtrace snapshot diff <snapshot-id>
//	modtrace export neo4j --uri bolt://localhost:7687
//	modtrace watch
//
// Exit codes: 0 on success, 1 on error, 2 when --fail-if-empty found
// nothing.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/modtrace/services/trace"
	"github.com/AleutianAI/modtrace/services/trace/config"
	"github.com/AleutianAI/modtrace/services/trace/report"
	badgerstore "github.com/AleutianAI/modtrace/services/trace/storage/badger"
	"github.com/AleutianAI/modtrace/services/trace/telemetry"
)

const (
	exitOK    = 0
	exitError = 1
	exitEmpty = 2
)

// errEmptyResult is returned by commands run with --fail-if-empty that
// found nothing. It maps to exit code 2 and prints no error message.
var errEmptyResult = errors.New("no results")

// app holds the state shared by every command of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// lookupEnv reads MODTRACE_* overrides. Tests replace it.
	lookupEnv func(string) (string, bool)

	rootDir    string
	configPath string
	jsonOut    bool
	noColor    bool
	verbose    bool
	otelStdout bool

	root              string
	logger            *slog.Logger
	cfg               *config.AnalysisConfig
	svc               *trace.Service
	store             *badgerstore.Store
	shutdownTelemetry func(context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one CLI invocation and returns its exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, lookupEnv: os.LookupEnv}
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errEmptyResult):
		return exitEmpty
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "modtrace",
		Short: "Module dependency and HTTP call-site analysis for multi-module source trees",
		Long: `modtrace indexes every source file under a root, builds the class and
module dependency graphs, and reports reachable HTTP call sites, each
module's exposed API, repository tables and the impact of a change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.rootDir, "root", "r", ".", "Root directory of the multi-module tree")
	pf.StringVarP(&a.configPath, "config", "c", "", "Config file (default: <root>/"+config.ConfigFileName+" when present)")
	pf.BoolVar(&a.jsonOut, "json", false, "Write JSON instead of text")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&a.otelStdout, "otel-stdout", false, "Write OpenTelemetry spans and metrics to stderr")

	root.AddCommand(
		newHTTPRequestsCommand(a),
		newExposeCommand(a),
		newTablesCommand(a),
		newModulesCommand(a),
		newImpactCommand(a),
		newSnapshotCommand(a),
		newExportCommand(a),
		newWatchCommand(a),
		newVersionCommand(a),
	)
	return root
}

// setup resolves the root and config and builds the service.
//
// Config precedence, lowest first: embedded defaults, the project file,
// <root>/.env, MODTRACE_* variables, command flags (applied by each
// command afterwards).
func (a *app) setup(ctx context.Context) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

	root, err := filepath.Abs(a.rootDir)
	if err != nil {
		return fmt.Errorf("resolving root %q: %w", a.rootDir, err)
	}
	a.root = root

	cfg, err := config.LoadFile(root, a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(a.lookupEnv); err != nil {
		return err
	}
	a.cfg = cfg

	if a.otelStdout {
		shutdown, err := telemetry.Init(ctx, telemetry.StdoutConfig(a.stderr))
		if err != nil {
			return err
		}
		a.shutdownTelemetry = shutdown
	}

	svcCfg := trace.DefaultServiceConfig()
	svcCfg.Analysis = cfg
	svcCfg.Logger = a.logger
	a.svc = trace.NewService(svcCfg)
	return nil
}

// validate re-checks the config after command flags were applied.
func (a *app) validate() error {
	return a.cfg.Validate()
}

// openSnapshots attaches a snapshot store to the service. dir overrides
// the configured directory; both empty means <root>/.modtrace/snapshots.
func (a *app) openSnapshots(dir string) error {
	if dir == "" {
		dir = a.cfg.Snapshots.Dir
	}
	if dir == "" {
		dir = filepath.Join(a.root, ".modtrace", "snapshots")
	}

	cfg := badgerstore.DefaultConfig(dir)
	if a.verbose {
		cfg.Logger = a.logger
	}
	store, err := badgerstore.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening snapshot store %s: %w", dir, err)
	}
	mgr, err := store.Snapshots(a.logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	a.store = store
	a.svc.WithSnapshots(mgr)
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdownTelemetry != nil {
		errs = append(errs, a.shutdownTelemetry(context.Background()))
	}
	return errors.Join(errs...)
}

// renderer returns a text renderer on stdout, colored only for terminals.
func (a *app) renderer() *report.Renderer {
	color := false
	if f, ok := a.stdout.(*os.File); ok {
		color = report.ColorEnabled(f, a.noColor)
	}
	return report.NewRenderer(a.stdout, color)
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the modtrace version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(a.stdout, "modtrace %s\n", trace.ServiceVersion)
			return err
		},
	}
}
