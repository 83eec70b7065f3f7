// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"context"
	"strings"
	"testing"
)

func TestSyntaxScreener_Screen(t *testing.T) {
	screener := NewSyntaxScreener()
	ctx := context.Background()

	tests := []struct {
		name        string
		path        string
		content     string
		wantWarning bool
	}{
		{
			name:        "valid python",
			path:        "game_loop.py",
			content:     "def tick(state):\n    return state + 1\n",
			wantWarning: false,
		},
		{
			name:        "broken python",
			path:        "game_loop.py",
			content:     "def tick(state:\n    return state + 1\n",
			wantWarning: true,
		},
		{
			name:        "valid go",
			path:        "main.go",
			content:     "package main\n\nfunc main() {}\n",
			wantWarning: false,
		},
		{
			name:        "unclosed go block",
			path:        "main.go",
			content:     "package main\n\nfunc main() {\n",
			wantWarning: true,
		},
		{
			name:        "unknown extension skipped",
			path:        "notes.txt",
			content:     "def broken(:\n",
			wantWarning: false,
		},
		{
			name:        "markdown skipped",
			path:        "PROMPT.md",
			content:     "# Module contract\n",
			wantWarning: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := screener.Screen(ctx, tt.path, []byte(tt.content))
			if tt.wantWarning && len(warnings) == 0 {
				t.Error("expected a warning, got none")
			}
			if !tt.wantWarning && len(warnings) > 0 {
				t.Errorf("expected no warnings, got %v", warnings)
			}
			if tt.wantWarning && len(warnings) > 0 {
				if warnings[0].File != tt.path {
					t.Errorf("expected file %q, got %q", tt.path, warnings[0].File)
				}
				if warnings[0].Line < 1 {
					t.Errorf("expected a 1-based line, got %d", warnings[0].Line)
				}
			}
		})
	}
}

func TestWarning_String(t *testing.T) {
	w := Warning{File: "a.py", Line: 3, Message: "file does not parse"}
	got := w.String()
	if !strings.Contains(got, "a.py:3:") {
		t.Errorf("expected file:line prefix, got %q", got)
	}

	w = Warning{File: "a.py", Message: "screen unavailable"}
	if got := w.String(); strings.Contains(got, ":0:") {
		t.Errorf("zero line must not be printed, got %q", got)
	}
}
