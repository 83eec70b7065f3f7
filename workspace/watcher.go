// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/moduleforge/pkg/logging"
)

// DefaultExpectGrace is how long a gateway-originated write stays
// expected before the watcher treats matching events as foreign again.
const DefaultExpectGrace = 2 * time.Second

// defaultIgnorePatterns are workspace paths the watcher never reports.
var defaultIgnorePatterns = []string{
	".git",
	"__pycache__",
	".idea",
	"*.swp",
	"*.tmp",
	"*.pyc",
}

// Event is one observed file mutation that did not come through the
// tool gateway.
type Event struct {
	// Path is the mutated file, workspace-relative.
	Path string

	// Op names the mutation: create, write, remove, or rename.
	Op string

	// At is when the event was observed.
	At time.Time
}

// EventHandler receives foreign mutations. Handlers run on the watch
// goroutine and must not block.
type EventHandler func(Event)

// WatcherOptions tune a Watcher.
type WatcherOptions struct {
	// Grace overrides DefaultExpectGrace.
	Grace time.Duration

	// Ignore adds patterns to the built-in ignore list.
	Ignore []string

	// Logger defaults to logging.Default().
	Logger *logging.Logger
}

// Watcher observes the workspace tree recursively and reports file
// mutations that were not announced via Expect. It is observational
// only; enforcement stays with the policy guard.
type Watcher struct {
	root    string
	handler EventHandler
	fw      *fsnotify.Watcher
	grace   time.Duration
	ignore  []string
	logger  *logging.Logger

	mu       sync.Mutex
	expected map[string]time.Time

	closeOnce sync.Once
	closeErr  error
}

// NewWatcher creates a watcher for the workspace root. Run starts it.
func NewWatcher(root string, handler EventHandler, opts *WatcherOptions) (*Watcher, error) {
	if root == "" {
		return nil, errors.New("workspace: watcher root is required")
	}
	if handler == nil {
		return nil, errors.New("workspace: watcher handler is required")
	}
	if opts == nil {
		opts = &WatcherOptions{}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	grace := opts.Grace
	if grace <= 0 {
		grace = DefaultExpectGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Watcher{
		root:     root,
		handler:  handler,
		fw:       fw,
		grace:    grace,
		ignore:   append(append([]string{}, defaultIgnorePatterns...), opts.Ignore...),
		logger:   logger,
		expected: make(map[string]time.Time),
	}, nil
}

// Expect marks a workspace-relative path as about to be mutated by the
// tool gateway. Events for it within the grace window are suppressed.
func (w *Watcher) Expect(relPath string) {
	key := filepath.Clean(relPath)
	w.mu.Lock()
	w.expected[key] = time.Now().Add(w.grace)
	w.mu.Unlock()
}

// Run watches until ctx is done. It returns nil on cancellation and an
// error only when the initial watch registration fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("workspace watch error", "error", err)
		}
	}
}

// Close releases the underlying watch handles. Run calls it on exit.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.fw.Close()
	})
	return w.closeErr
}

// handleEvent filters one raw event and reports it when foreign.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.shouldIgnore(event.Name) {
		return
	}

	// New directories extend the watch but are not mutations
	// themselves; the files written inside them are.
	if event.Has(fsnotify.Create) && isDir(event.Name) {
		if err := w.addRecursive(event.Name); err != nil {
			w.logger.Warn("failed to watch new directory",
				"path", event.Name, "error", err)
		}
		return
	}

	op := opName(event.Op)
	if op == "" {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	if w.expectedHit(rel) {
		return
	}

	w.logger.Warn("workspace mutated outside the tool gateway",
		"path", rel, "op", op)
	w.handler(Event{Path: rel, Op: op, At: time.Now()})
}

// expectedHit reports whether rel is inside an active expectation
// window and consumes the expired entries it walks over.
func (w *Watcher) expectedHit(rel string) bool {
	key := filepath.Clean(rel)
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	deadline, ok := w.expected[key]
	if !ok {
		return false
	}
	if now.After(deadline) {
		delete(w.expected, key)
		return false
	}
	return true
}

// addRecursive registers root and every non-ignored directory under it.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnore(path) && path != root {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

// shouldIgnore checks a path against the ignore patterns.
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.ignore {
		if base == pattern {
			return true
		}
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
		if strings.Contains(path, string(filepath.Separator)+pattern+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// opName maps raw ops to reported names. Chmod is dropped as noise.
func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}

// isDir reports whether path exists and is a directory.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
