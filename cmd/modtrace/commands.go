// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/modtrace/services/trace"
	"github.com/AleutianAI/modtrace/services/trace/report"
	"github.com/AleutianAI/modtrace/services/trace/tables"
)

func newHTTPRequestsCommand(a *app) *cobra.Command {
	var (
		patterns    []string
		starts      []string
		entrySubdir string
		entryDepth  int
		showChain   bool
		failIfEmpty bool
	)

	cmd := &cobra.Command{
		Use:     "http-requests",
		Aliases: []string{"list-http-request"},
		Short:   "List HTTP call sites reachable from the entry classes",
		Long: `Walks the class dependency graph from every class under the entry
directory (default "application") and lists each method containing one of
the call-site patterns, with the first call argument resolved to a literal
where possible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("entry-subdir") {
				a.cfg.EntrySubdir = entrySubdir
			}
			if cmd.Flags().Changed("entry-depth") {
				a.cfg.EntryDepth = entryDepth
			}
			if err := a.validate(); err != nil {
				return err
			}

			out, err := a.svc.Trace(cmd.Context(), a.root, trace.TraceRequestOptions{
				Starts:   starts,
				Patterns: patterns,
			})
			if err != nil {
				return err
			}
			a.logger.Debug("trace finished",
				slog.Int("start_classes", len(out.Starts)),
				slog.Int("classes_visited", out.Stats.ClassesVisited),
				slog.Int("matches", out.Matches.Len()),
			)

			if a.jsonOut {
				startClasses := out.Starts
				if startClasses == nil {
					startClasses = []string{}
				}
				err = report.JSON(a.stdout, trace.TraceResponse{
					StartClasses: startClasses,
					Patterns:     out.Patterns,
					Matches:      out.Matches.Matches(),
					ByModule:     out.Matches.ByModule(),
					Stats:        out.Stats,
				})
			} else {
				err = a.renderer().Matches(out.Matches.ByModule(), showChain)
			}
			if err != nil {
				return err
			}
			if failIfEmpty && !out.Matches.HasMatches() {
				return errEmptyResult
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&patterns, "pattern", "p", nil, "Call-site substring to search for (repeatable; default from config)")
	f.StringArrayVarP(&starts, "start", "s", nil, "Start class FQN (repeatable; default: classes under the entry directory)")
	f.StringVar(&entrySubdir, "entry-subdir", "", "Directory name holding entry classes")
	f.IntVar(&entryDepth, "entry-depth", 0, "How deep the entry directory is searched")
	f.BoolVar(&showChain, "chain", false, "Print the class chain leading to each call site")
	f.BoolVar(&failIfEmpty, "fail-if-empty", false, "Exit with code 2 when nothing matched")
	return cmd
}

func newExposeCommand(a *app) *cobra.Command {
	var (
		showDependency bool
		exposeDir      string
	)

	cmd := &cobra.Command{
		Use:     "expose",
		Aliases: []string{"list-expose"},
		Short:   "List each module's exposed API classes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if exposeDir != "" {
				a.cfg.ExposeDir = exposeDir
			}
			if err := a.validate(); err != nil {
				return err
			}
			rep, err := a.svc.Expose(cmd.Context(), a.root, showDependency)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return report.JSON(a.stdout, rep)
			}
			return a.renderer().Expose(rep)
		},
	}
	cmd.Flags().BoolVarP(&showDependency, "show-dependency", "d", false, "Show cross-module callers of each exposed class")
	cmd.Flags().StringVar(&exposeDir, "expose-dir", "", "Directory name marking a module's public API")
	return cmd
}

func newTablesCommand(a *app) *cobra.Command {
	var infraDir string

	cmd := &cobra.Command{
		Use:     "tables",
		Aliases: []string{"list-table"},
		Short:   "List the table behind each repository class",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if infraDir != "" {
				a.cfg.InfraDir = infraDir
			}
			if err := a.validate(); err != nil {
				return err
			}
			mods, err := a.svc.Tables(cmd.Context(), a.root)
			if err != nil {
				return err
			}
			if a.jsonOut {
				if mods == nil {
					mods = []tables.ModuleTables{}
				}
				return report.JSON(a.stdout, trace.TablesResponse{Modules: mods})
			}
			return a.renderer().Tables(mods)
		},
	}
	cmd.Flags().StringVar(&infraDir, "infra-dir", "", "Directory name holding repository classes")
	return cmd
}

func newModulesCommand(a *app) *cobra.Command {
	var evidence bool

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Print the module dependency graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			an, err := a.svc.Analyze(cmd.Context(), a.root)
			if err != nil {
				return err
			}
			for _, fe := range an.FileErrors {
				a.logger.Warn("file skipped", slog.String("class", fe.Class), slog.String("error", fe.Err.Error()))
			}
			if a.jsonOut {
				return report.JSON(a.stdout, trace.NewAnalyzeResponse(an))
			}
			return a.renderer().Modules(an.Modules, evidence)
		},
	}
	cmd.Flags().BoolVarP(&evidence, "evidence", "e", false, "List the class edges behind each module edge")
	return cmd
}

func newImpactCommand(a *app) *cobra.Command {
	var failIfEmpty bool

	cmd := &cobra.Command{
		Use:   "impact PATCH",
		Short: "Report the modules affected by a unified diff",
		Long: `Reads a unified diff (a file, or "-" for stdin), maps the changed files
to modules and lists every module that transitively depends on them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := readPatch(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			rep, err := a.svc.Impact(cmd.Context(), a.root, patch)
			if err != nil {
				return err
			}
			if a.jsonOut {
				err = report.JSON(a.stdout, rep)
			} else {
				err = a.renderer().Impact(rep)
			}
			if err != nil {
				return err
			}
			if failIfEmpty && len(rep.ChangedModules) == 0 {
				return errEmptyResult
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failIfEmpty, "fail-if-empty", false, "Exit with code 2 when no module changed")
	return cmd
}

func readPatch(arg string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("reading patch: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("reading patch: %s is empty", arg)
	}
	return string(data), nil
}
