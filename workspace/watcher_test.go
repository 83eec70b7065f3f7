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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/moduleforge/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Quiet: true})
}

// startWatcher runs w until the test ends and waits for the watch
// registration to settle before returning.
func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	time.Sleep(200 * time.Millisecond)
}

// waitEvent blocks for one event or fails the test.
func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no watcher event arrived")
		return Event{}
	}
}

func TestNewWatcher_Validation(t *testing.T) {
	if _, err := NewWatcher("", func(Event) {}, nil); err == nil {
		t.Fatal("expected error for empty root")
	}
	if _, err := NewWatcher(t.TempDir(), nil, nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestWatcher_ReportsForeignWrite(t *testing.T) {
	root := t.TempDir()
	events := make(chan Event, 16)
	w, err := NewWatcher(root, func(ev Event) { events <- ev }, &WatcherOptions{
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	startWatcher(t, w)

	if err := os.WriteFile(filepath.Join(root, "note.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev := waitEvent(t, events)
	if ev.Path != "note.txt" {
		t.Fatalf("Path = %q, want note.txt", ev.Path)
	}
	if ev.Op != "create" && ev.Op != "write" {
		t.Fatalf("Op = %q, want create or write", ev.Op)
	}
	if ev.At.IsZero() {
		t.Fatal("At not stamped")
	}
}

func TestWatcher_ExpectSuppressesGatewayWrites(t *testing.T) {
	root := t.TempDir()
	events := make(chan Event, 16)
	w, err := NewWatcher(root, func(ev Event) { events <- ev }, &WatcherOptions{
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	startWatcher(t, w)

	w.Expect("expected.txt")
	if err := os.WriteFile(filepath.Join(root, "expected.txt"), []byte("ok"), 0o644); err != nil {
		t.Fatalf("write expected: %v", err)
	}

	// The suppressed write produces nothing, so the next event must be
	// the foreign one.
	time.Sleep(300 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(root, "foreign.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write foreign: %v", err)
	}

	ev := waitEvent(t, events)
	if ev.Path != "foreign.txt" {
		t.Fatalf("first reported path = %q, want foreign.txt", ev.Path)
	}
}

func TestWatcher_WatchesCreatedDirectories(t *testing.T) {
	root := t.TempDir()
	events := make(chan Event, 16)
	w, err := NewWatcher(root, func(ev Event) { events <- ev }, &WatcherOptions{
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	startWatcher(t, w)

	sub := filepath.Join(root, "newmod")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Give the watcher time to pick up the new directory.
	time.Sleep(300 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "impl.py"), []byte("pass\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev := waitEvent(t, events)
	if ev.Path != filepath.Join("newmod", "impl.py") {
		t.Fatalf("Path = %q, want newmod/impl.py", ev.Path)
	}
}

func TestWatcher_IgnoredPathsNotReported(t *testing.T) {
	root := t.TempDir()
	cache := filepath.Join(root, "__pycache__")
	if err := os.Mkdir(cache, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	events := make(chan Event, 16)
	w, err := NewWatcher(root, func(ev Event) { events <- ev }, &WatcherOptions{
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	startWatcher(t, w)

	if err := os.WriteFile(filepath.Join(cache, "mod.cpython-312.pyc"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "scratch.swp"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(root, "visible.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev := waitEvent(t, events)
	if ev.Path != "visible.txt" {
		t.Fatalf("first reported path = %q, want visible.txt", ev.Path)
	}
}

func TestWatcher_ExpectWindowExpires(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), func(Event) {}, &WatcherOptions{
		Grace:  20 * time.Millisecond,
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	w.Expect("mod/file.py")
	if !w.expectedHit("mod/file.py") {
		t.Fatal("fresh expectation did not suppress")
	}
	// Repeated events inside the window stay suppressed.
	if !w.expectedHit("mod/file.py") {
		t.Fatal("expectation consumed too early")
	}

	time.Sleep(40 * time.Millisecond)
	if w.expectedHit("mod/file.py") {
		t.Fatal("expired expectation still suppressing")
	}
	if w.expectedHit("mod/other.py") {
		t.Fatal("unexpected path suppressed")
	}
}

func TestWatcher_ShouldIgnore(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), func(Event) {}, &WatcherOptions{
		Ignore: []string{"vendor"},
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	tests := []struct {
		path string
		want bool
	}{
		{"/ws/.git", true},
		{"/ws/a/__pycache__", true},
		{"/ws/a/__pycache__/mod.pyc", true},
		{"/ws/notes.swp", true},
		{"/ws/build.tmp", true},
		{"/ws/vendor", true},
		{"/ws/vendor/lib/x.go", true},
		{"/ws/sample_project/calculator/implementation.py", false},
		{"/ws/README.md", false},
	}
	for _, tt := range tests {
		if got := w.shouldIgnore(tt.path); got != tt.want {
			t.Errorf("shouldIgnore(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
