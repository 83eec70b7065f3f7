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
	"os"
	"path/filepath"
	"testing"
)

// makeModule creates rel under root with a test_spec.py inside it.
func makeModule(t *testing.T, root, rel string) {
	t.Helper()
	dir := filepath.Join(root, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	spec := filepath.Join(dir, "test_spec.py")
	if err := os.WriteFile(spec, []byte("def test_placeholder():\n    pass\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", spec, err)
	}
}

func TestNewLocator_Validation(t *testing.T) {
	if _, err := NewLocator("", "test_spec.py"); err == nil {
		t.Fatal("expected error for empty root")
	}
	if _, err := NewLocator(t.TempDir(), ""); err == nil {
		t.Fatal("expected error for empty test-spec filename")
	}
}

func TestLocator_Locate(t *testing.T) {
	root := t.TempDir()
	makeModule(t, root, "sample_project/calculator")
	makeModule(t, root, "sample_project/strings")
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatalf("mkdir docs: %v", err)
	}

	loc, err := NewLocator(root, "test_spec.py")
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantHit bool
	}{
		{
			name:    "plain instruction",
			input:   "Please implement sample_project/calculator now",
			want:    "sample_project/calculator",
			wantHit: true,
		},
		{
			name:    "first matching token wins",
			input:   "build sample_project/strings before sample_project/calculator",
			want:    "sample_project/strings",
			wantHit: true,
		},
		{
			name:    "tokens without a test spec are skipped",
			input:   "see docs then build sample_project/calculator",
			want:    "sample_project/calculator",
			wantHit: true,
		},
		{
			name:    "punctuation delimits tokens",
			input:   "implement sample_project/calculator, please",
			want:    "sample_project/calculator",
			wantHit: true,
		},
		{
			name:    "absolute path inside the workspace",
			input:   "work on " + filepath.Join(root, "sample_project", "calculator"),
			want:    "sample_project/calculator",
			wantHit: true,
		},
		{
			name:  "no path-like token matches",
			input: "what should I build next",
		},
		{
			name:  "empty input",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := loc.Locate(tt.input)
			if ok != tt.wantHit {
				t.Fatalf("Locate(%q) hit = %v, want %v", tt.input, ok, tt.wantHit)
			}
			if got != tt.want {
				t.Fatalf("Locate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLocator_SkipsPathsOutsideWorkspace(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "ws")
	makeModule(t, parent, "outside/widget")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}

	loc, err := NewLocator(root, "test_spec.py")
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}

	// Both the relative escape and the absolute path resolve to a real
	// module directory, just not one inside the workspace.
	for _, input := range []string{
		"build ../outside/widget",
		"build " + filepath.Join(parent, "outside", "widget"),
	} {
		if got, ok := loc.Locate(input); ok {
			t.Fatalf("Locate(%q) = %q, want no match", input, got)
		}
	}
}

func TestLocator_SkipsInvalidModuleNames(t *testing.T) {
	root := t.TempDir()
	// A real module whose name would parse as a flag on a command line.
	makeModule(t, root, "-flags")

	loc, err := NewLocator(root, "test_spec.py")
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}

	if got, ok := loc.Locate("build -flags now"); ok {
		t.Fatalf("Locate = %q, want no match for invalid module name", got)
	}
}

func TestLocator_CustomTestSpecName(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pkg/parser")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "spec_test.py"), []byte("pass\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loc, err := NewLocator(root, "spec_test.py")
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}
	got, ok := loc.Locate("implement pkg/parser")
	if !ok || got != "pkg/parser" {
		t.Fatalf("Locate = %q, %v; want pkg/parser, true", got, ok)
	}

	// The default name does not mark modules for this locator.
	makeModule(t, root, "pkg/lexer")
	if got, ok := loc.Locate("implement pkg/lexer"); ok {
		t.Fatalf("Locate = %q, want no match for default spec name", got)
	}
}
