// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/AleutianAI/moduleforge/agent"
	"github.com/AleutianAI/moduleforge/pkg/ux"
)

// SessionRunnerConfig groups the collaborators of a SessionRunner.
type SessionRunnerConfig struct {
	// Controller owns the agent session. Required.
	Controller *agent.Controller

	// Events is the broadcaster the controller publishes to. Optional;
	// without it no progress events are rendered.
	Events *agent.Broadcaster

	// Header describes the session for the banner.
	Header ux.HeaderConfig

	// Input supplies user lines. Nil means an interactive reader with
	// history on a TTY, plain stdin otherwise.
	Input InputReader

	// UI renders prompts, responses, and the end summary. Nil means
	// the terminal UI at the active personality level.
	UI ux.SessionUI

	// Renderer receives translated session events. Nil means the
	// terminal renderer at the active personality level.
	Renderer ux.SessionRenderer
}

// SessionRunner drives one interactive agent session: it subscribes to
// the controller's event stream, loops on user input, and renders
// responses until the user leaves or the session reaches a terminal
// status.
//
// The runner is single use. Close is idempotent and safe from any
// goroutine; Run is not.
type SessionRunner struct {
	controller *agent.Controller
	events     *agent.Broadcaster
	header     ux.HeaderConfig
	input      InputReader
	ui         ux.SessionUI
	renderer   ux.SessionRenderer

	start       time.Time
	unsubscribe func()
	renderDone  chan struct{}

	closed bool
	mu     sync.Mutex
}

// historyLimit bounds the interactive reader's recall.
const historyLimit = 50

// NewSessionRunner creates a runner, filling nil collaborators with
// production defaults.
func NewSessionRunner(cfg SessionRunnerConfig) *SessionRunner {
	input := cfg.Input
	if input == nil {
		input = NewInteractiveInputReader(historyLimit)
	}
	ui := cfg.UI
	if ui == nil {
		ui = ux.NewSessionUI()
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = ux.NewTerminalSessionRenderer(nil, ux.GetPersonality().Level)
	}

	return &SessionRunner{
		controller: cfg.Controller,
		events:     cfg.Events,
		header:     cfg.Header,
		input:      input,
		ui:         ui,
		renderer:   renderer,
		renderDone: make(chan struct{}),
	}
}

// Run executes the session loop until exit, EOF, a terminal session
// status, or context cancellation.
//
// Description:
//
//	Each non-empty input line runs one agent turn; "exit" and "quit"
//	leave. In builder mode an input naming a module starts the locked
//	build, after which the session is over and the loop ends. The
//	final status line is rendered before returning, so the caller only
//	maps status to exit code.
//
// Outputs:
//
//	error - Non-nil only for input failures or cancellation. A failed
//	        session with a clean loop exit returns nil; the status
//	        carries the failure.
func (r *SessionRunner) Run(ctx context.Context) error {
	r.start = time.Now()
	r.subscribeEvents()

	r.ui.Header(r.header)

	for {
		// Check for cancellation before blocking on input
		select {
		case <-ctx.Done():
			r.finish()
			return ctx.Err()
		default:
		}

		// Readers that render their own prompt get it via SetPrompt;
		// printing it here too would show it twice.
		if p, ok := r.input.(PromptingInputReader); ok {
			p.SetPrompt(r.ui.Prompt())
		} else {
			fmt.Print(r.ui.Prompt())
		}

		input, err := r.input.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Piped input ran out; end cleanly.
				r.finish()
				return nil
			}
			r.finish()
			return fmt.Errorf("read input: %w", err)
		}

		if input == "" {
			continue
		}
		if isExitCommand(input) {
			r.finish()
			return nil
		}

		texts, err := r.controller.HandleInput(ctx, input)
		for _, text := range texts {
			r.ui.Response(text)
		}
		if err != nil {
			if ctx.Err() != nil {
				r.finish()
				return ctx.Err()
			}
			if errors.Is(err, agent.ErrSessionEnded) {
				r.finish()
				return nil
			}
			// Turn-level fault: show it and keep the session going
			// unless it ended the session.
			r.ui.Error(err)
		}

		if r.controller.Snapshot().Status.IsTerminal() {
			r.finish()
			return nil
		}
	}
}

// subscribeEvents starts the goroutine that translates controller
// events into renderer calls. Rendering must not block the agent, so
// the broadcaster's drop-on-slow-subscriber behavior is acceptable
// here.
func (r *SessionRunner) subscribeEvents() {
	if r.events == nil {
		close(r.renderDone)
		return
	}

	ch, cancel := r.events.Subscribe()
	r.unsubscribe = cancel

	go func() {
		defer close(r.renderDone)
		for ev := range ch {
			r.renderEvent(ev)
		}
	}()
}

// renderEvent maps one session event onto the renderer. Terminal
// status events are skipped: the end summary covers them and a second
// "session completed" line would be noise.
func (r *SessionRunner) renderEvent(ev agent.SessionEvent) {
	switch ev.Type {
	case agent.EventToolDispatch:
		r.renderer.OnDispatch(ev.Tool, ev.Verdict)
	case agent.EventApproval:
		r.renderer.OnApproval(ev.Tool, ev.Verdict)
	case agent.EventLoopTransition:
		r.renderer.OnTransition(ev.From, ev.To, ev.Iteration)
	case agent.EventModuleLocked:
		r.renderer.OnModuleLocked(ev.Module)
	case agent.EventGenerationRetired:
		r.renderer.OnGenerationRetired(ev.Generation)
	case agent.EventWorkspaceChange:
		r.renderer.OnWorkspaceChange(ev.Detail)
	case agent.EventStatus:
		if !ev.Status.IsTerminal() {
			r.renderer.OnStatus(string(ev.Status), ev.Detail)
		}
	}
}

// finish closes out the session exactly once: terminal status, event
// stream drained, end summary rendered.
func (r *SessionRunner) finish() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	status := r.controller.Finish()
	snap := r.controller.Snapshot()

	// Unsubscribe closes the event channel, which ends the render
	// goroutine after it drains buffered events.
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	select {
	case <-r.renderDone:
	case <-time.After(2 * time.Second):
	}
	r.renderer.Finalize()

	r.ui.SessionEnd(ux.EndSummary{
		SessionID:  snap.ID,
		Status:     string(status),
		Module:     snap.Module,
		Iterations: snap.Iteration,
		Duration:   time.Since(r.start),
	})
}

// Close releases the runner without rendering a summary if Run never
// started, and is a no-op after a completed Run.
func (r *SessionRunner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if r.unsubscribe != nil {
		r.unsubscribe()
		select {
		case <-r.renderDone:
		case <-time.After(2 * time.Second):
		}
	}
	r.renderer.Finalize()
	return nil
}

// Status reports the controller's current session status.
func (r *SessionRunner) Status() agent.Status {
	return r.controller.Snapshot().Status
}
