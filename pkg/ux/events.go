// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// SessionRenderer renders session lifecycle events to an output
// destination.
//
// Each method handles exactly one event kind. The renderer owns all
// output state; callers invoke methods in the order events arrive and
// call Finalize when the stream ends.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent calls. Events arrive
//	on a subscriber goroutine while the interactive loop owns stdout.
//
// Lifecycle:
//
//  1. Create a renderer with NewTerminalSessionRenderer or
//     NewBufferSessionRenderer.
//  2. Call On* methods as events arrive.
//  3. Call Finalize when the event stream closes (always, even on
//     error). Safe to call more than once.
type SessionRenderer interface {
	// OnDispatch renders one executed tool call. Verdict is one of
	// "ok", "denied", "refused", or "error".
	OnDispatch(tool, verdict string)

	// OnApproval renders a human approval decision. Outcome is one of
	// "APPROVED", "DENIED", or "TIMED_OUT".
	OnApproval(tool, outcome string)

	// OnTransition renders one repair loop state transition, e.g.
	// "IMPLEMENTING" to "TESTING" on iteration 2.
	OnTransition(from, to string, iteration int)

	// OnModuleLocked renders the Builder locking onto a module.
	OnModuleLocked(module string)

	// OnGenerationRetired renders a conversation generation reset.
	OnGenerationRetired(generation int)

	// OnWorkspaceChange renders a workspace mutation observed outside
	// the tool gateway.
	OnWorkspaceChange(detail string)

	// OnStatus renders a session lifecycle change. Status is one of
	// "ACTIVE", "COMPLETED", or "FAILED"; detail may carry the reason.
	OnStatus(status, detail string)

	// Finalize performs cleanup. Safe to call multiple times.
	Finalize()
}

// terminalSessionRenderer renders session events to a terminal.
//
// Personality modes:
//
//   - PersonalityFull/PersonalityStandard: every event, styled.
//   - PersonalityMinimal: consequential events only. Routine progress
//     (successful dispatches, loop transitions, generation resets) is
//     suppressed.
//   - PersonalityMachine: one stable "KEY: value" line per event.
type terminalSessionRenderer struct {
	writer      io.Writer
	personality PersonalityLevel
	mu          sync.Mutex
	finalized   bool
}

// NewTerminalSessionRenderer creates a renderer for terminal output.
//
// If w is nil, output goes to os.Stdout. Pass GetPersonality().Level
// for the user's configured personality, or hardcode a level for
// specific behavior.
func NewTerminalSessionRenderer(w io.Writer, personality PersonalityLevel) SessionRenderer {
	if w == nil {
		w = os.Stdout
	}
	return &terminalSessionRenderer{
		writer:      w,
		personality: personality,
	}
}

// verbose reports whether routine progress events should be shown.
func (r *terminalSessionRenderer) verbose() bool {
	return r.personality == PersonalityFull || r.personality == PersonalityStandard
}

func (r *terminalSessionRenderer) OnDispatch(tool, verdict string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "DISPATCH: tool=%s verdict=%s\n", tool, verdict)
		return
	}

	switch verdict {
	case "ok":
		// Routine progress. Noise in minimal mode.
		if r.verbose() {
			fmt.Fprintln(r.writer, Styles.Muted.Render(fmt.Sprintf("  %s %s", IconSuccess, tool)))
		}
	case "denied", "refused":
		fmt.Fprintf(r.writer, "  %s %s\n", IconWarning.Render(), Styles.Warning.Render(fmt.Sprintf("%s %s", tool, verdict)))
	default:
		fmt.Fprintf(r.writer, "  %s %s\n", IconError.Render(), Styles.Error.Render(fmt.Sprintf("%s failed", tool)))
	}
}

func (r *terminalSessionRenderer) OnApproval(tool, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "APPROVAL: tool=%s outcome=%s\n", tool, outcome)
		return
	}

	switch outcome {
	case "APPROVED":
		fmt.Fprintf(r.writer, "  %s %s\n", IconSuccess.Render(), Styles.Success.Render("execution approved"))
	case "TIMED_OUT":
		fmt.Fprintf(r.writer, "  %s %s\n", IconWarning.Render(), Styles.Warning.Render("approval timed out"))
	default:
		fmt.Fprintf(r.writer, "  %s %s\n", IconError.Render(), Styles.Error.Render("execution denied"))
	}
}

func (r *terminalSessionRenderer) OnTransition(from, to string, iteration int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "TRANSITION: %s->%s iteration=%d\n", from, to, iteration)
		return
	}

	if !r.verbose() {
		return
	}
	line := fmt.Sprintf("  %s %s (iteration %d)", IconArrow, strings.ToLower(to), iteration)
	fmt.Fprintln(r.writer, Styles.Muted.Render(line))
}

func (r *terminalSessionRenderer) OnModuleLocked(module string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "MODULE_LOCKED: %s\n", module)
		return
	}

	fmt.Fprintf(r.writer, "%s Building module %s\n", IconBullet.Render(), Styles.Highlight.Render(module))
}

func (r *terminalSessionRenderer) OnGenerationRetired(generation int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "GENERATION_RETIRED: %d\n", generation)
		return
	}

	if !r.verbose() {
		return
	}
	fmt.Fprintln(r.writer, Styles.Muted.Render(fmt.Sprintf("  conversation reset (generation %d retired)", generation)))
}

func (r *terminalSessionRenderer) OnWorkspaceChange(detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "WORKSPACE_CHANGE: %s\n", detail)
		return
	}

	fmt.Fprintf(r.writer, "  %s %s\n", IconWarning.Render(), Styles.Warning.Render("workspace changed outside the agent: "+detail))
}

func (r *terminalSessionRenderer) OnStatus(status, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	if r.personality == PersonalityMachine {
		if detail != "" {
			fmt.Fprintf(r.writer, "STATUS: %s detail=%s\n", status, detail)
		} else {
			fmt.Fprintf(r.writer, "STATUS: %s\n", status)
		}
		return
	}

	switch status {
	case "COMPLETED":
		fmt.Fprintf(r.writer, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(statusLine(status, detail)))
	case "FAILED":
		fmt.Fprintf(r.writer, "%s %s\n", IconError.Render(), Styles.Error.Render(statusLine(status, detail)))
	default:
		if r.verbose() {
			fmt.Fprintln(r.writer, Styles.Muted.Render("  session "+strings.ToLower(status)))
		}
	}
}

func (r *terminalSessionRenderer) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}
	r.finalized = true
}

// statusLine formats a terminal status with its optional reason.
func statusLine(status, detail string) string {
	if detail == "" {
		return "session " + strings.ToLower(status)
	}
	return fmt.Sprintf("session %s: %s", strings.ToLower(status), detail)
}

// SessionEventRecord is one captured event, for test inspection.
type SessionEventRecord struct {
	Kind       string
	Tool       string
	Verdict    string
	From       string
	To         string
	Iteration  int
	Module     string
	Generation int
	Status     string
	Detail     string
}

// bufferSessionRenderer captures events in memory for testing.
//
// No terminal output is produced. Events are recorded in arrival
// order and can be inspected with Events().
type bufferSessionRenderer struct {
	mu        sync.Mutex
	events    []SessionEventRecord
	finalized bool
}

// NewBufferSessionRenderer creates a renderer that captures events to
// memory. Intended for tests.
func NewBufferSessionRenderer() *bufferSessionRenderer {
	return &bufferSessionRenderer{
		events: make([]SessionEventRecord, 0),
	}
}

func (r *bufferSessionRenderer) append(rec SessionEventRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}
	r.events = append(r.events, rec)
}

func (r *bufferSessionRenderer) OnDispatch(tool, verdict string) {
	r.append(SessionEventRecord{Kind: "dispatch", Tool: tool, Verdict: verdict})
}

func (r *bufferSessionRenderer) OnApproval(tool, outcome string) {
	r.append(SessionEventRecord{Kind: "approval", Tool: tool, Verdict: outcome})
}

func (r *bufferSessionRenderer) OnTransition(from, to string, iteration int) {
	r.append(SessionEventRecord{Kind: "transition", From: from, To: to, Iteration: iteration})
}

func (r *bufferSessionRenderer) OnModuleLocked(module string) {
	r.append(SessionEventRecord{Kind: "module_locked", Module: module})
}

func (r *bufferSessionRenderer) OnGenerationRetired(generation int) {
	r.append(SessionEventRecord{Kind: "generation_retired", Generation: generation})
}

func (r *bufferSessionRenderer) OnWorkspaceChange(detail string) {
	r.append(SessionEventRecord{Kind: "workspace_change", Detail: detail})
}

func (r *bufferSessionRenderer) OnStatus(status, detail string) {
	r.append(SessionEventRecord{Kind: "status", Status: status, Detail: detail})
}

func (r *bufferSessionRenderer) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = true
}

// Events returns a copy of the captured events.
func (r *bufferSessionRenderer) Events() []SessionEventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SessionEventRecord, len(r.events))
	copy(out, r.events)
	return out
}

var (
	_ SessionRenderer = (*terminalSessionRenderer)(nil)
	_ SessionRenderer = (*bufferSessionRenderer)(nil)
)
