// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes class and module graphs to Neo4j.
//
// Nodes:
//
//	(:Module {name})
//	(:Class {fqn, name, package, module, file})
//
// Relationships:
//
//	(:Class)-[:IN_MODULE]->(:Module)
//	(:Class)-[:DEPENDS_ON {rules}]->(:Class)
//	(:Module)-[:MODULE_DEPENDS_ON {evidence_count}]->(:Module)
//
// All writes are batched UNWIND ... MERGE statements, so loading the same
// graph twice leaves the database unchanged.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/registry"
)

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 500

var (
	// ErrNoURI is returned by Connect when no bolt URI is configured.
	ErrNoURI = errors.New("neo4j uri is required")

	// ErrNilGraph is returned by Load when the class graph is nil.
	ErrNilGraph = errors.New("class graph must not be nil")
)

// Runner executes one Cypher statement.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

// Config holds Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// driverRunner runs statements through a neo4j driver.
type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *driverRunner) Run(ctx context.Context, cypher string, params map[string]any) error {
	opts := []neo4j.ExecuteQueryConfigurationOption{}
	if r.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(r.database))
	}
	_, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	return err
}

// Options configures a Loader.
type Options struct {
	BatchSize int
	Logger    *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{BatchSize: DefaultBatchSize, Logger: slog.Default()}
}

// Option is a functional option for Loader.
type Option func(*Options)

// WithBatchSize sets the rows per statement. Values < 1 are ignored.
func WithBatchSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.BatchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Loader writes graphs through a Runner.
//
// Thread Safety: Safe for concurrent use if the Runner is.
type Loader struct {
	runner Runner
	opts   Options
	closer func(context.Context) error
}

// NewLoader creates a loader over runner.
func NewLoader(runner Runner, opts ...Option) *Loader {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader{runner: runner, opts: o}
}

// Connect opens a driver for cfg, verifies connectivity and returns a
// loader over it. Close releases the driver.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Loader, error) {
	if cfg.URI == "" {
		return nil, ErrNoURI
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j at %s: %w", cfg.URI, err)
	}
	l := NewLoader(&driverRunner{driver: driver, database: cfg.Database}, opts...)
	l.closer = driver.Close
	return l, nil
}

// Close releases the driver opened by Connect. It is a no-op for loaders
// built with NewLoader.
func (l *Loader) Close(ctx context.Context) error {
	if l.closer == nil {
		return nil
	}
	return l.closer(ctx)
}

// CleanGraph removes every node and relationship this package writes.
func (l *Loader) CleanGraph(ctx context.Context) error {
	l.opts.Logger.Info("cleaning modtrace graph data")
	queries := []string{
		"MATCH ()-[r:DEPENDS_ON]->() DELETE r",
		"MATCH ()-[r:MODULE_DEPENDS_ON]->() DELETE r",
		"MATCH ()-[r:IN_MODULE]->() DELETE r",
		"MATCH (n:Class) DETACH DELETE n",
		"MATCH (n:Module) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := l.runner.Run(ctx, q, nil); err != nil {
			return fmt.Errorf("clean graph: %w", err)
		}
	}
	return nil
}

// CreateIndexes ensures lookup indexes exist.
func (l *Loader) CreateIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX modtrace_module_name IF NOT EXISTS FOR (n:Module) ON (n.name)",
		"CREATE INDEX modtrace_class_fqn IF NOT EXISTS FOR (n:Class) ON (n.fqn)",
	}
	for _, q := range indexes {
		if err := l.runner.Run(ctx, q, nil); err != nil {
			return fmt.Errorf("create indexes: %w", err)
		}
	}
	return nil
}

// LoadStats counts what Load wrote.
type LoadStats struct {
	Modules     int `json:"modules"`
	Classes     int `json:"classes"`
	ClassEdges  int `json:"class_edges"`
	ModuleEdges int `json:"module_edges"`
	Statements  int `json:"statements"`
}

// Load upserts cg and its module projection.
//
// Description:
//
//	Writes modules first, then classes with their IN_MODULE link, then
//	class edges and finally module edges. When mg is nil it is projected
//	from cg.
//
// Inputs:
//
//	ctx - Cancellation is checked between statements.
//	cg - The class graph. Must not be nil.
//	mg - The module graph of cg, or nil.
//
// Outputs:
//
//	LoadStats - Rows written so far, also on error.
//	error - ErrNilGraph, ctx.Err(), or the first Runner failure.
func (l *Loader) Load(ctx context.Context, cg *graph.ClassGraph, mg *graph.ModuleGraph) (LoadStats, error) {
	var stats LoadStats
	if cg == nil {
		return stats, ErrNilGraph
	}
	if mg == nil {
		mg = graph.ProjectModules(cg)
	}

	modules := make([]map[string]any, 0, len(mg.Modules()))
	for _, m := range mg.Modules() {
		modules = append(modules, map[string]any{"name": m})
	}
	n, err := l.runBatches(ctx, `UNWIND $batch AS row
		 MERGE (m:Module {name: row.name})`, modules)
	stats.Statements += n
	if err != nil {
		return stats, fmt.Errorf("load modules: %w", err)
	}
	stats.Modules = len(modules)

	nodes := cg.Nodes()
	classes := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		classes = append(classes, map[string]any{
			"fqn":     node.ID,
			"name":    registry.SimpleName(node.ID),
			"package": node.Package,
			"module":  node.Module,
			"file":    node.FilePath,
		})
	}
	n, err = l.runBatches(ctx, `UNWIND $batch AS row
		 MERGE (c:Class {fqn: row.fqn})
		 SET c.name = row.name, c.package = row.package, c.module = row.module, c.file = row.file
		 WITH c, row
		 MERGE (m:Module {name: row.module})
		 MERGE (c)-[:IN_MODULE]->(m)`, classes)
	stats.Statements += n
	if err != nil {
		return stats, fmt.Errorf("load classes: %w", err)
	}
	stats.Classes = len(classes)

	edges := cg.Edges()
	classEdges := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		classEdges = append(classEdges, map[string]any{
			"from":  e.FromID,
			"to":    e.ToID,
			"rules": e.Rules.String(),
		})
	}
	n, err = l.runBatches(ctx, `UNWIND $batch AS row
		 MATCH (a:Class {fqn: row.from}), (b:Class {fqn: row.to})
		 MERGE (a)-[r:DEPENDS_ON]->(b)
		 SET r.rules = row.rules`, classEdges)
	stats.Statements += n
	if err != nil {
		return stats, fmt.Errorf("load class edges: %w", err)
	}
	stats.ClassEdges = len(classEdges)

	moduleEdges := make([]map[string]any, 0, mg.EdgeCount())
	for _, e := range mg.Edges() {
		moduleEdges = append(moduleEdges, map[string]any{
			"from":     e.From,
			"to":       e.To,
			"evidence": len(e.Evidence),
		})
	}
	n, err = l.runBatches(ctx, `UNWIND $batch AS row
		 MATCH (a:Module {name: row.from}), (b:Module {name: row.to})
		 MERGE (a)-[r:MODULE_DEPENDS_ON]->(b)
		 SET r.evidence_count = row.evidence`, moduleEdges)
	stats.Statements += n
	if err != nil {
		return stats, fmt.Errorf("load module edges: %w", err)
	}
	stats.ModuleEdges = len(moduleEdges)

	l.opts.Logger.Info("graph exported to neo4j",
		slog.Int("modules", stats.Modules),
		slog.Int("classes", stats.Classes),
		slog.Int("class_edges", stats.ClassEdges),
		slog.Int("module_edges", stats.ModuleEdges),
	)
	return stats, nil
}

// runBatches runs cypher once per chunk of rows and returns how many
// statements were sent. Empty input sends nothing.
func (l *Loader) runBatches(ctx context.Context, cypher string, rows []map[string]any) (int, error) {
	sent := 0
	for start := 0; start < len(rows); start += l.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		end := start + l.opts.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := l.runner.Run(ctx, cypher, map[string]any{"batch": rows[start:end]}); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
