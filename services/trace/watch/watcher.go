// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch reruns an analysis when source files under a project root
// change.
//
// Events are collected until the debounce window passes without new ones,
// deduplicated per path and filtered to source files. A batch that still has
// changes triggers the run callback, at most once per MinInterval. Every run
// is a full analysis; nothing is carried between runs.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("watcher already started")

// Op is the kind of file change.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

// String returns the string representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is one observed file event.
type Change struct {
	Path string
	Op   Op
	Time time.Time
}

// RunFunc is called with each debounced batch of source changes. An error
// is logged and watching continues.
type RunFunc func(ctx context.Context, changes []Change) error

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the watcher waits for quiet before flushing.
	Debounce time.Duration

	// MinInterval is the minimum time between two runs. 0 disables the limit.
	MinInterval time.Duration

	// IgnorePatterns are base-name globs or path fragments to skip.
	IgnorePatterns []string

	// Extension selects source files, including the dot.
	Extension string

	// BufferSize is the event channel capacity.
	BufferSize int

	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Debounce:       500 * time.Millisecond,
		MinInterval:    2 * time.Second,
		IgnorePatterns: []string{".git", ".idea", "build", "target", "*.swp", "*.tmp"},
		Extension:      ".java",
		BufferSize:     1000,
		Logger:         slog.Default(),
	}
}

// Option is a functional option for Watcher.
type Option func(*Options)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Debounce = d
		}
	}
}

// WithMinInterval sets the minimum time between runs.
func WithMinInterval(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.MinInterval = d
		}
	}
}

// WithIgnorePatterns replaces the ignore patterns. nil keeps the defaults.
func WithIgnorePatterns(patterns []string) Option {
	return func(o *Options) {
		if patterns != nil {
			o.IgnorePatterns = patterns
		}
	}
}

// WithExtension sets the source file extension.
func WithExtension(ext string) Option {
	return func(o *Options) {
		if ext != "" {
			o.Extension = ext
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

// Watcher watches a project tree and calls a RunFunc on source changes.
//
// Thread Safety: Start, Stop and Runs are safe for concurrent use. The
// RunFunc is only ever called from one goroutine.
type Watcher struct {
	root    string
	run     RunFunc
	opts    Options
	fsw     *fsnotify.Watcher
	limiter *rate.Limiter
	changes chan Change

	mu       sync.Mutex
	started  bool
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	runs     int
}

// New creates a watcher for root. Call Start to begin watching.
func New(root string, run RunFunc, opts ...Option) (*Watcher, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	limit := rate.Inf
	if o.MinInterval > 0 {
		limit = rate.Every(o.MinInterval)
	}

	return &Watcher{
		root:    root,
		run:     run,
		opts:    o,
		fsw:     fsw,
		limiter: rate.NewLimiter(limit, 1),
		changes: make(chan Change, o.BufferSize),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}, nil
}

// Start registers every non-ignored directory under the root and starts
// the event and debounce goroutines. They exit when ctx is cancelled or
// Stop is called; Wait blocks until then.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	w.opts.Logger.Info("watching for changes",
		slog.String("root", w.root),
		slog.Duration("debounce", w.opts.Debounce),
		slog.Duration("min_interval", w.opts.MinInterval),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.processEvents(ctx)
	}()
	go func() {
		defer wg.Done()
		w.debounceLoop(ctx)
	}()
	go func() {
		wg.Wait()
		w.Stop()
		close(w.done)
	}()
	return nil
}

// Run starts the watcher and blocks until ctx is cancelled or Stop is
// called.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	w.Wait()
	return nil
}

// Wait blocks until the watcher goroutines have exited.
func (w *Watcher) Wait() {
	<-w.done
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.fsw.Close()
	})
}

// Runs returns how many times the RunFunc has been called.
func (w *Watcher) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// shouldIgnore matches base-name globs, and path segments for plain names.
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for _, pattern := range w.opts.IgnorePatterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		for _, seg := range segments {
			if seg == pattern {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.opts.Logger.Warn("failed to watch new directory",
							slog.String("path", event.Name),
							slog.String("error", err.Error()),
						)
					}
				}
			}
			select {
			case w.changes <- Change{Path: event.Name, Op: convertOp(event.Op), Time: time.Now()}:
			default:
				w.opts.Logger.Warn("change buffer full, dropping event", slog.String("path", event.Name))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case c := <-w.changes:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			relevant := filterSource(dedupe(batch), w.opts.Extension)
			batch = batch[:0]
			if len(relevant) == 0 {
				continue
			}
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			w.fire(ctx, relevant)
		}
	}
}

func (w *Watcher) fire(ctx context.Context, changes []Change) {
	w.mu.Lock()
	w.runs++
	w.mu.Unlock()

	w.opts.Logger.Info("source changes detected, rerunning analysis", slog.Int("files", len(changes)))
	start := time.Now()
	if err := w.run(ctx, changes); err != nil {
		w.opts.Logger.Error("analysis rerun failed", slog.String("error", err.Error()))
		return
	}
	w.opts.Logger.Debug("analysis rerun finished", slog.Duration("duration", time.Since(start)))
}

// dedupe keeps the latest change per path, in first-seen order.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			out[i] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}

// filterSource keeps changes to files with ext. Removals and renames of
// directories are kept too, since they can take classes with them.
func filterSource(changes []Change, ext string) []Change {
	out := changes[:0:0]
	for _, c := range changes {
		if strings.EqualFold(filepath.Ext(c.Path), ext) {
			out = append(out, c)
			continue
		}
		if (c.Op == OpRemove || c.Op == OpRename) && filepath.Ext(c.Path) == "" {
			out = append(out, c)
		}
	}
	return out
}
