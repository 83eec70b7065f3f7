// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Header Tests
// =============================================================================

func TestSessionUI_Header_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityMachine)

	ui.Header(HeaderConfig{
		Mode:      "coder",
		Workspace: "/work",
		Backend:   "openai",
		Model:     "gpt-4o",
		SessionID: "sess-1",
	})

	want := "SESSION_START: mode=coder workspace=/work backend=openai model=gpt-4o session=sess-1\n"
	if buf.String() != want {
		t.Errorf("machine header = %q, want %q", buf.String(), want)
	}
}

func TestSessionUI_Header_MachineMode_SparseConfig(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityMachine)

	ui.Header(HeaderConfig{Mode: "builder"})

	want := "SESSION_START: mode=builder\n"
	if buf.String() != want {
		t.Errorf("machine header = %q, want %q", buf.String(), want)
	}
}

func TestSessionUI_Header_MinimalMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityMinimal)

	ui.Header(HeaderConfig{
		Mode:      "architect",
		Workspace: "/work",
		Backend:   "openai",
		Model:     "gpt-4o",
	})

	output := buf.String()
	if !strings.Contains(output, "moduleforge (architect mode)") {
		t.Errorf("expected mode line, got %q", output)
	}
	if !strings.Contains(output, "Workspace: /work") {
		t.Errorf("expected workspace line, got %q", output)
	}
	if !strings.Contains(output, "Reasoner: openai (gpt-4o)") {
		t.Errorf("expected reasoner line, got %q", output)
	}
	if !strings.Contains(output, "Type 'exit' to leave.") {
		t.Errorf("expected exit hint, got %q", output)
	}
}

func TestSessionUI_Header_MinimalMode_NoModel(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityMinimal)

	ui.Header(HeaderConfig{Mode: "coder", Backend: "openai"})

	output := buf.String()
	if !strings.Contains(output, "Reasoner: openai\n") {
		t.Errorf("expected bare backend line, got %q", output)
	}
}

func TestSessionUI_Header_FullMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityFull)

	ui.Header(HeaderConfig{
		Mode:      "pure_architect",
		Workspace: "/work",
		SessionID: "sess-9",
	})

	output := buf.String()
	if !strings.Contains(output, "moduleforge") {
		t.Errorf("expected banner name, got %q", output)
	}
	if !strings.Contains(output, "pure_architect") {
		t.Errorf("expected mode, got %q", output)
	}
	if !strings.Contains(output, "sess-9") {
		t.Errorf("expected session id, got %q", output)
	}
	if !strings.Contains(output, "Type 'exit' to leave.") {
		t.Errorf("expected exit hint, got %q", output)
	}
}

// =============================================================================
// Prompt Tests
// =============================================================================

func TestSessionUI_Prompt_MachineMode(t *testing.T) {
	ui := NewSessionUIWithWriter(&bytes.Buffer{}, PersonalityMachine)

	if got := ui.Prompt(); got != "> " {
		t.Errorf("machine prompt = %q, want '> '", got)
	}
}

func TestSessionUI_Prompt_FullMode(t *testing.T) {
	ui := NewSessionUIWithWriter(&bytes.Buffer{}, PersonalityFull)

	got := ui.Prompt()
	if !strings.Contains(got, "❯") {
		t.Errorf("expected styled prompt glyph, got %q", got)
	}
	if !strings.HasSuffix(got, " ") {
		t.Errorf("expected trailing space, got %q", got)
	}
}

// =============================================================================
// Response Tests
// =============================================================================

func TestSessionUI_Response_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityMachine)

	ui.Response("line one\nline two")

	want := "RESPONSE: line one\\nline two\n"
	if buf.String() != want {
		t.Errorf("machine response = %q, want %q", buf.String(), want)
	}
}

func TestSessionUI_Response_FullMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityFull)

	ui.Response("The interface needs a subtract method.")

	if buf.String() != "The interface needs a subtract method.\n" {
		t.Errorf("unexpected response output %q", buf.String())
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestSessionUI_Error_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityMachine)

	ui.Error(errors.New("reasoner unreachable"))

	want := "ERROR: reasoner unreachable\n"
	if buf.String() != want {
		t.Errorf("machine error = %q, want %q", buf.String(), want)
	}
}

func TestSessionUI_Error_FullMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityFull)

	ui.Error(errors.New("reasoner unreachable"))

	if !strings.Contains(buf.String(), "reasoner unreachable") {
		t.Errorf("expected error text, got %q", buf.String())
	}
}

// =============================================================================
// SessionEnd Tests
// =============================================================================

func TestSessionUI_SessionEnd_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityMachine)

	ui.SessionEnd(EndSummary{
		SessionID:  "sess-1",
		Status:     "COMPLETED",
		Module:     "calculator",
		Iterations: 3,
		Duration:   2 * time.Second,
	})

	want := "SESSION_END: status=COMPLETED module=calculator iterations=3 session=sess-1 duration=2s\n"
	if buf.String() != want {
		t.Errorf("machine end = %q, want %q", buf.String(), want)
	}
}

func TestSessionUI_SessionEnd_MachineMode_NoModule(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityMachine)

	ui.SessionEnd(EndSummary{
		Status:   "FAILED",
		Duration: 1500 * time.Millisecond,
	})

	want := "SESSION_END: status=FAILED duration=1.5s\n"
	if buf.String() != want {
		t.Errorf("machine end = %q, want %q", buf.String(), want)
	}
}

func TestSessionUI_SessionEnd_Completed(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityFull)

	ui.SessionEnd(EndSummary{
		Status:     "COMPLETED",
		Module:     "calculator",
		Iterations: 2,
		Duration:   90 * time.Second,
	})

	output := buf.String()
	if !strings.Contains(output, "session completed") {
		t.Errorf("expected completion line, got %q", output)
	}
	if !strings.Contains(output, "calculator") {
		t.Errorf("expected module name, got %q", output)
	}
}

func TestSessionUI_SessionEnd_Failed(t *testing.T) {
	var buf bytes.Buffer
	ui := NewSessionUIWithWriter(&buf, PersonalityMinimal)

	ui.SessionEnd(EndSummary{
		Status:   "FAILED",
		Duration: time.Minute,
	})

	if !strings.Contains(buf.String(), "session failed") {
		t.Errorf("expected failure line, got %q", buf.String())
	}
}
