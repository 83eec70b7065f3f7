// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package approval

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestIsAffirmative(t *testing.T) {
	tokens := DefaultAffirmatives()

	tests := []struct {
		input string
		want  bool
	}{
		{"y", true},
		{"Y", true},
		{"yes", true},
		{"YES", true},
		{"Yes", true},
		{"  y  ", true},
		{"y\n", true},
		{"n", false},
		{"no", false},
		{"", false},
		{"   ", false},
		{"yeah", false},
		{"y e s", false},
		{"approve", false},
	}

	for _, tt := range tests {
		if got := IsAffirmative(tt.input, tokens); got != tt.want {
			t.Errorf("IsAffirmative(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestConsoleApprover_Decide(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Outcome
	}{
		{"affirmative y", "y\n", Approved},
		{"affirmative yes mixed case", "YeS\n", Approved},
		{"explicit denial", "n\n", Denied},
		{"empty line denies", "\n", Denied},
		{"garbage denies", "sure why not\n", Denied},
		{"eof denies", "", Denied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			approver := NewConsoleApprover(strings.NewReader(tt.input), &out, nil)

			decision, err := approver.Decide(context.Background(), Request{
				ToolCallID: "call-1",
				Command:    "rm -rf /",
			})
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if decision.Outcome != tt.want {
				t.Errorf("outcome = %s, want %s", decision.Outcome, tt.want)
			}
			if decision.ToolCallID != "call-1" {
				t.Errorf("tool call id = %s, want call-1", decision.ToolCallID)
			}
			if !strings.Contains(out.String(), "[SECURITY WARNING]") {
				t.Error("prompt must carry the security warning banner")
			}
			if !strings.Contains(out.String(), "rm -rf /") {
				t.Error("prompt must show the exact command")
			}
		})
	}
}

func TestConsoleApprover_CustomPrompt(t *testing.T) {
	var out bytes.Buffer
	approver := NewConsoleApprover(strings.NewReader("y\n"), &out, &Options{
		Prompt: func(command string) string {
			return "DANGER " + command + " ? "
		},
	})

	decision, err := approver.Decide(context.Background(), Request{Command: "echo hi"})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Outcome != Approved {
		t.Errorf("outcome = %s, want %s", decision.Outcome, Approved)
	}
	if out.String() != "DANGER echo hi ? " {
		t.Errorf("prompt = %q, want custom rendering only", out.String())
	}
}

func TestConsoleApprover_Timeout(t *testing.T) {
	var out bytes.Buffer
	// A reader that never produces a line.
	blocked, _ := newBlockedReader()
	approver := NewConsoleApprover(blocked, &out, &Options{
		Timeout:      20 * time.Millisecond,
		Affirmatives: DefaultAffirmatives(),
	})

	decision, err := approver.Decide(context.Background(), Request{Command: "sleep 100"})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Outcome != TimedOut {
		t.Errorf("outcome = %s, want %s", decision.Outcome, TimedOut)
	}
}

func TestConsoleApprover_ContextCanceled(t *testing.T) {
	var out bytes.Buffer
	blocked, _ := newBlockedReader()
	approver := NewConsoleApprover(blocked, &out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if _, err := approver.Decide(ctx, Request{Command: "true"}); err == nil {
		t.Fatal("expected context error")
	}
}

// newBlockedReader returns a reader whose Read blocks until the returned
// close func is called.
func newBlockedReader() (*blockedReader, func()) {
	ch := make(chan struct{})
	return &blockedReader{ch: ch}, func() { close(ch) }
}

type blockedReader struct{ ch chan struct{} }

func (r *blockedReader) Read(p []byte) (int, error) {
	<-r.ch
	return 0, nil
}

func TestScriptedApprover(t *testing.T) {
	approver := NewScriptedApprover("y", "n", "yes")

	want := []Outcome{Approved, Denied, Approved, Denied}
	for i, expected := range want {
		decision, err := approver.Decide(context.Background(), Request{Command: "true"})
		if err != nil {
			t.Fatalf("Decide %d: %v", i, err)
		}
		if decision.Outcome != expected {
			t.Errorf("decision %d = %s, want %s", i, decision.Outcome, expected)
		}
	}

	if approver.CallCount() != 4 {
		t.Errorf("expected 4 recorded calls, got %d", approver.CallCount())
	}
}

func TestStaticApprover(t *testing.T) {
	t.Run("always approve", func(t *testing.T) {
		approver := NewStaticApprover(Approved)
		for i := 0; i < 3; i++ {
			decision, err := approver.Decide(context.Background(), Request{Command: "pytest"})
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if decision.Outcome != Approved {
				t.Errorf("outcome = %s, want APPROVED", decision.Outcome)
			}
		}
	})

	t.Run("always deny", func(t *testing.T) {
		approver := NewStaticApprover(Denied)
		decision, err := approver.Decide(context.Background(), Request{Command: "pytest"})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if decision.Outcome != Denied {
			t.Errorf("outcome = %s, want DENIED", decision.Outcome)
		}
	})
}
