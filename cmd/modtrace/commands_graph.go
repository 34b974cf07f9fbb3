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
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/modtrace/services/trace"
	"github.com/AleutianAI/modtrace/services/trace/export"
	"github.com/AleutianAI/modtrace/services/trace/report"
	"github.com/AleutianAI/modtrace/services/trace/watch"
)

func newSnapshotCommand(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list and diff graph snapshots",
		Long: `Snapshots store the class graph of one analysis in a BadgerDB directory
(default <root>/.modtrace/snapshots) so later runs can be compared
against it. Snapshots are for reporting only and never feed an analysis.`,
	}
	cmd.PersistentFlags().StringVar(&dir, "snapshot-dir", "", "Snapshot BadgerDB directory")

	var label string
	save := &cobra.Command{
		Use:   "save",
		Short: "Analyze the root and store its graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.openSnapshots(dir); err != nil {
				return err
			}
			meta, err := a.svc.SaveSnapshot(cmd.Context(), a.root, label)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return report.JSON(a.stdout, meta)
			}
			_, err = fmt.Fprintf(a.stdout, "Saved snapshot %s (%d classes, %d edges, %d modules)\n",
				meta.SnapshotID, meta.ClassCount, meta.EdgeCount, meta.ModuleCount)
			return err
		},
	}
	save.Flags().StringVarP(&label, "label", "l", "", "Label stored with the snapshot")

	var (
		limit int
		all   bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshots of the root, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.openSnapshots(dir); err != nil {
				return err
			}
			root := a.root
			if all {
				root = ""
			}
			metas, err := a.svc.ListSnapshots(cmd.Context(), root, limit)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return report.JSON(a.stdout, trace.SnapshotListResponse{Snapshots: metas})
			}
			return a.renderer().Snapshots(metas)
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum snapshots to list (0 means 100)")
	list.Flags().BoolVar(&all, "all", false, "List snapshots of every project in the store")

	var failIfEmpty bool
	diff := &cobra.Command{
		Use:   "diff BASE [TARGET]",
		Short: "Compare two snapshots, or a snapshot against the current tree",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openSnapshots(dir); err != nil {
				return err
			}
			target := ""
			if len(args) == 2 {
				target = args[1]
			}
			d, err := a.svc.DiffSnapshots(cmd.Context(), a.root, args[0], target)
			if err != nil {
				return err
			}
			if a.jsonOut {
				err = report.JSON(a.stdout, d)
			} else {
				err = a.renderer().Diff(d)
			}
			if err != nil {
				return err
			}
			if failIfEmpty && d.IsEmpty() {
				return errEmptyResult
			}
			return nil
		},
	}
	diff.Flags().BoolVar(&failIfEmpty, "fail-if-empty", false, "Exit with code 2 when nothing changed")

	cmd.AddCommand(save, list, diff)
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the dependency graphs to an external store",
	}

	var (
		uri       string
		user      string
		password  string
		database  string
		batchSize int
		clean     bool
	)
	neo := &cobra.Command{
		Use:   "neo4j",
		Short: "Load modules, classes and dependency edges into Neo4j",
		Long: `Upserts :Module and :Class nodes with IN_MODULE, DEPENDS_ON and
MODULE_DEPENDS_ON relationships. Loading is idempotent; --clean removes
previously exported nodes first. The password is best supplied through
MODTRACE_NEO4J_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			if f.Changed("uri") {
				a.cfg.Neo4j.URI = uri
			}
			if f.Changed("user") {
				a.cfg.Neo4j.Username = user
			}
			if f.Changed("password") {
				a.cfg.Neo4j.Password = password
			}
			if f.Changed("database") {
				a.cfg.Neo4j.Database = database
			}
			if f.Changed("batch-size") {
				a.cfg.Neo4j.BatchSize = batchSize
			}
			if err := a.validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			nc := a.cfg.Neo4j
			loader, err := export.Connect(ctx, export.Config{
				URI:      nc.URI,
				Username: nc.Username,
				Password: nc.Password,
				Database: nc.Database,
			}, export.WithBatchSize(nc.BatchSize), export.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer func() {
				if err := loader.Close(context.WithoutCancel(ctx)); err != nil {
					a.logger.Warn("closing neo4j driver", slog.String("error", err.Error()))
				}
			}()

			stats, err := a.svc.Export(ctx, a.root, loader, clean)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return report.JSON(a.stdout, stats)
			}
			_, err = fmt.Fprintf(a.stdout, "Exported %d modules, %d classes, %d class edges, %d module edges (%d statements)\n",
				stats.Modules, stats.Classes, stats.ClassEdges, stats.ModuleEdges, stats.Statements)
			return err
		},
	}
	nf := neo.Flags()
	nf.StringVar(&uri, "uri", "", "Neo4j URI, e.g. bolt://localhost:7687")
	nf.StringVar(&user, "user", "", "Neo4j user")
	nf.StringVar(&password, "password", "", "Neo4j password")
	nf.StringVar(&database, "database", "", "Neo4j database")
	nf.IntVar(&batchSize, "batch-size", 0, "Rows per UNWIND statement")
	nf.BoolVar(&clean, "clean", false, "Delete previously exported nodes first")

	cmd.AddCommand(neo)
	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	var (
		patterns    []string
		showChain   bool
		debounce    time.Duration
		minInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rerun the HTTP call-site listing whenever sources change",
		Long: `Runs http-requests once, then watches the root and reruns the full
analysis after each debounced batch of source file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("debounce") {
				a.cfg.Watch.Debounce = debounce
			}
			if cmd.Flags().Changed("min-interval") {
				a.cfg.Watch.MinInterval = minInterval
			}
			if err := a.validate(); err != nil {
				return err
			}

			rerun := func(ctx context.Context, _ []watch.Change) error {
				out, err := a.svc.Trace(ctx, a.root, trace.TraceRequestOptions{Patterns: patterns})
				if err != nil {
					return err
				}
				if a.jsonOut {
					return report.JSON(a.stdout, out.Matches.ByModule())
				}
				fmt.Fprintf(a.stdout, "\n%s\n", strings.Repeat("=", 60))
				return a.renderer().Matches(out.Matches.ByModule(), showChain)
			}

			ctx := cmd.Context()
			if err := rerun(ctx, nil); err != nil {
				return err
			}

			ignore := append([]string{}, a.cfg.IgnoreDirs...)
			ignore = append(ignore, a.cfg.Watch.IgnorePatterns...)
			w, err := watch.New(a.root, rerun,
				watch.WithDebounce(a.cfg.Watch.Debounce),
				watch.WithMinInterval(a.cfg.Watch.MinInterval),
				watch.WithIgnorePatterns(ignore),
				watch.WithExtension(a.cfg.Extension),
				watch.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&patterns, "pattern", "p", nil, "Call-site substring to search for (repeatable)")
	f.BoolVar(&showChain, "chain", false, "Print the class chain leading to each call site")
	f.DurationVar(&debounce, "debounce", 0, "Quiet period before a batch of changes is handled")
	f.DurationVar(&minInterval, "min-interval", 0, "Minimum time between two reruns")
	return cmd
}
