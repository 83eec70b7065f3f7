// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// Terminal Renderer Tests (Machine Mode)
// =============================================================================

func TestTerminalSessionRenderer_Machine_Dispatch(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMachine)
	defer r.Finalize()

	r.OnDispatch("write_file", "ok")

	want := "DISPATCH: tool=write_file verdict=ok\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTerminalSessionRenderer_Machine_Approval(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMachine)
	defer r.Finalize()

	r.OnApproval("run_command", "DENIED")

	want := "APPROVAL: tool=run_command outcome=DENIED\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTerminalSessionRenderer_Machine_Transition(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMachine)
	defer r.Finalize()

	r.OnTransition("IMPLEMENTING", "TESTING", 2)

	want := "TRANSITION: IMPLEMENTING->TESTING iteration=2\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTerminalSessionRenderer_Machine_ModuleLocked(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMachine)
	defer r.Finalize()

	r.OnModuleLocked("calculator")

	want := "MODULE_LOCKED: calculator\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTerminalSessionRenderer_Machine_GenerationRetired(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMachine)
	defer r.Finalize()

	r.OnGenerationRetired(3)

	want := "GENERATION_RETIRED: 3\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTerminalSessionRenderer_Machine_WorkspaceChange(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMachine)
	defer r.Finalize()

	r.OnWorkspaceChange("WRITE calculator/implementation.py")

	want := "WORKSPACE_CHANGE: WRITE calculator/implementation.py\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTerminalSessionRenderer_Machine_Status(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMachine)
	defer r.Finalize()

	r.OnStatus("ACTIVE", "")

	want := "STATUS: ACTIVE\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTerminalSessionRenderer_Machine_StatusWithDetail(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMachine)
	defer r.Finalize()

	r.OnStatus("FAILED", "fault budget exhausted")

	want := "STATUS: FAILED detail=fault budget exhausted\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

// =============================================================================
// Terminal Renderer Tests (Interactive Modes)
// =============================================================================

func TestTerminalSessionRenderer_Full_ShowsOkDispatch(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityFull)
	defer r.Finalize()

	r.OnDispatch("write_file", "ok")

	if !strings.Contains(buf.String(), "write_file") {
		t.Errorf("expected tool name in output, got %q", buf.String())
	}
}

func TestTerminalSessionRenderer_Minimal_HidesRoutineEvents(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMinimal)
	defer r.Finalize()

	r.OnDispatch("write_file", "ok")
	r.OnTransition("IMPLEMENTING", "TESTING", 1)
	r.OnGenerationRetired(1)
	r.OnStatus("ACTIVE", "")

	if buf.String() != "" {
		t.Errorf("expected no output for routine events in minimal mode, got %q", buf.String())
	}
}

func TestTerminalSessionRenderer_Minimal_ShowsConsequentialEvents(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMinimal)
	defer r.Finalize()

	r.OnDispatch("run_command", "denied")
	r.OnWorkspaceChange("REMOVE calculator/test_spec.py")
	r.OnStatus("COMPLETED", "build of calculator succeeded")

	output := buf.String()
	if !strings.Contains(output, "denied") {
		t.Errorf("expected denial line, got %q", output)
	}
	if !strings.Contains(output, "test_spec.py") {
		t.Errorf("expected workspace change line, got %q", output)
	}
	if !strings.Contains(output, "session completed") {
		t.Errorf("expected completion line, got %q", output)
	}
}

func TestTerminalSessionRenderer_Full_TransitionLowercased(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityFull)
	defer r.Finalize()

	r.OnTransition("TESTING", "REPAIRING", 2)

	output := buf.String()
	if !strings.Contains(output, "repairing") {
		t.Errorf("expected lowercased target state, got %q", output)
	}
	if !strings.Contains(output, "iteration 2") {
		t.Errorf("expected iteration, got %q", output)
	}
}

func TestTerminalSessionRenderer_ModuleLocked_AllLevels(t *testing.T) {
	for _, level := range []PersonalityLevel{PersonalityFull, PersonalityStandard, PersonalityMinimal} {
		var buf bytes.Buffer
		r := NewTerminalSessionRenderer(&buf, level)

		r.OnModuleLocked("calculator")
		r.Finalize()

		if !strings.Contains(buf.String(), "calculator") {
			t.Errorf("level %v: expected module name, got %q", level, buf.String())
		}
	}
}

func TestTerminalSessionRenderer_Failed_AllLevels(t *testing.T) {
	for _, level := range []PersonalityLevel{PersonalityFull, PersonalityStandard, PersonalityMinimal} {
		var buf bytes.Buffer
		r := NewTerminalSessionRenderer(&buf, level)

		r.OnStatus("FAILED", "dispatch fault")
		r.Finalize()

		if !strings.Contains(buf.String(), "session failed") {
			t.Errorf("level %v: expected failure line, got %q", level, buf.String())
		}
	}
}

// =============================================================================
// Finalize Tests
// =============================================================================

func TestTerminalSessionRenderer_Finalize_StopsOutput(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalSessionRenderer(&buf, PersonalityMachine)

	r.Finalize()
	r.OnDispatch("write_file", "ok")
	r.OnStatus("COMPLETED", "")

	if buf.String() != "" {
		t.Errorf("expected no output after Finalize, got %q", buf.String())
	}
}

func TestTerminalSessionRenderer_Finalize_Idempotent(t *testing.T) {
	r := NewTerminalSessionRenderer(&bytes.Buffer{}, PersonalityMachine)

	r.Finalize()
	r.Finalize() // Should not panic
}

func TestTerminalSessionRenderer_NilWriterDefaults(t *testing.T) {
	r := NewTerminalSessionRenderer(nil, PersonalityMachine)
	if r == nil {
		t.Fatal("expected renderer with defaulted writer")
	}
}

// =============================================================================
// Buffer Renderer Tests
// =============================================================================

func TestBufferSessionRenderer_CapturesInOrder(t *testing.T) {
	r := NewBufferSessionRenderer()
	defer r.Finalize()

	r.OnStatus("ACTIVE", "")
	r.OnModuleLocked("calculator")
	r.OnTransition("IMPLEMENTING", "TESTING", 1)
	r.OnDispatch("run_command", "ok")
	r.OnApproval("run_command", "APPROVED")
	r.OnGenerationRetired(1)
	r.OnWorkspaceChange("WRITE notes.txt")
	r.OnStatus("COMPLETED", "build of calculator succeeded")

	events := r.Events()
	if len(events) != 8 {
		t.Fatalf("expected 8 events, got %d", len(events))
	}

	kinds := []string{
		"status", "module_locked", "transition", "dispatch",
		"approval", "generation_retired", "workspace_change", "status",
	}
	for i, want := range kinds {
		if events[i].Kind != want {
			t.Errorf("event %d kind = %q, want %q", i, events[i].Kind, want)
		}
	}

	if events[1].Module != "calculator" {
		t.Errorf("expected module calculator, got %q", events[1].Module)
	}
	if events[2].From != "IMPLEMENTING" || events[2].To != "TESTING" || events[2].Iteration != 1 {
		t.Errorf("unexpected transition record %+v", events[2])
	}
	if events[4].Verdict != "APPROVED" {
		t.Errorf("expected approval outcome, got %q", events[4].Verdict)
	}
	if events[7].Detail != "build of calculator succeeded" {
		t.Errorf("expected status detail, got %q", events[7].Detail)
	}
}

func TestBufferSessionRenderer_EventsReturnsCopy(t *testing.T) {
	r := NewBufferSessionRenderer()
	defer r.Finalize()

	r.OnDispatch("write_file", "ok")

	events := r.Events()
	events[0].Tool = "mutated"

	if r.Events()[0].Tool != "write_file" {
		t.Error("Events must return a copy")
	}
}

func TestBufferSessionRenderer_FinalizeStopsCapture(t *testing.T) {
	r := NewBufferSessionRenderer()

	r.OnDispatch("write_file", "ok")
	r.Finalize()
	r.OnDispatch("edit_file", "ok")

	if got := len(r.Events()); got != 1 {
		t.Errorf("expected 1 event after Finalize, got %d", got)
	}
}

func TestBufferSessionRenderer_ConcurrentUse(t *testing.T) {
	r := NewBufferSessionRenderer()
	defer r.Finalize()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				r.OnDispatch(fmt.Sprintf("tool-%d", w), "ok")
			}
		}(w)
	}
	wg.Wait()

	if got := len(r.Events()); got != workers*perWorker {
		t.Errorf("expected %d events, got %d", workers*perWorker, got)
	}
}
