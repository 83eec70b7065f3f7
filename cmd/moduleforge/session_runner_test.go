// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/moduleforge/agent"
	"github.com/AleutianAI/moduleforge/agent/approval"
	"github.com/AleutianAI/moduleforge/agent/llm"
	"github.com/AleutianAI/moduleforge/agent/policy"
	"github.com/AleutianAI/moduleforge/agent/tools"
	"github.com/AleutianAI/moduleforge/pkg/logging"
	"github.com/AleutianAI/moduleforge/pkg/ux"
)

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Quiet: true})
}

// sessionFixture wires a real controller with mocked edges behind a
// SessionRunner that writes machine-readable output to out.
type sessionFixture struct {
	client *llm.MockClient
	events *agent.Broadcaster
	ctrl   *agent.Controller
	out    bytes.Buffer
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	root := t.TempDir()
	f := &sessionFixture{client: llm.NewMockClient()}

	guard, err := policy.NewGuard(root, nil)
	require.NoError(t, err)
	gateway, err := tools.NewGateway(guard, approval.NewStaticApprover(approval.Approved),
		&tools.MockRunner{}, &tools.GatewayOptions{Logger: quietLogger()})
	require.NoError(t, err)

	f.events = agent.NewBroadcaster()
	t.Cleanup(func() { f.events.Close() })

	f.ctrl, err = agent.NewController(agent.ControllerConfig{
		Mode:          agent.ModeCoder,
		WorkspaceRoot: root,
		Client:        f.client,
		Gateway:       gateway,
		Events:        f.events,
		Logger:        quietLogger(),
	})
	require.NoError(t, err)

	return f
}

// runner builds a SessionRunner over the fixture replaying inputs.
func (f *sessionFixture) runner(inputs []string, renderer ux.SessionRenderer) *SessionRunner {
	if renderer == nil {
		renderer = ux.NewTerminalSessionRenderer(&f.out, ux.PersonalityMachine)
	}
	return NewSessionRunner(SessionRunnerConfig{
		Controller: f.ctrl,
		Events:     f.events,
		Header:     ux.HeaderConfig{Mode: "coder", Backend: "mock"},
		Input:      NewMockInputReader(inputs),
		UI:         ux.NewSessionUIWithWriter(&f.out, ux.PersonalityMachine),
		Renderer:   renderer,
	})
}

func TestSessionRunner_ExitCommand(t *testing.T) {
	f := newSessionFixture(t)
	runner := f.runner([]string{"exit"}, nil)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, f.client.CallCount())
	assert.Contains(t, f.out.String(), "SESSION_START: mode=coder")
	assert.Contains(t, f.out.String(), "SESSION_END: status=COMPLETED")
}

func TestSessionRunner_QuitCommand(t *testing.T) {
	f := newSessionFixture(t)
	runner := f.runner([]string{"quit"}, nil)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, f.client.CallCount())
	assert.Equal(t, agent.StatusCompleted, runner.Status())
}

func TestSessionRunner_RendersResponses(t *testing.T) {
	f := newSessionFixture(t)
	f.client.QueueFinalResponse("The calculator module is ready.")
	runner := f.runner([]string{"how is the build going?", "exit"}, nil)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, f.client.CallCount())
	assert.Contains(t, f.out.String(), "RESPONSE: The calculator module is ready.")
}

func TestSessionRunner_SkipsEmptyInput(t *testing.T) {
	f := newSessionFixture(t)
	runner := f.runner([]string{"", "", "exit"}, nil)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, f.client.CallCount())
}

func TestSessionRunner_EOFEndsCleanly(t *testing.T) {
	f := newSessionFixture(t)
	runner := f.runner(nil, nil)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, runner.Status())
	assert.Contains(t, f.out.String(), "SESSION_END: status=COMPLETED")
}

func TestSessionRunner_TurnErrorContinuesLoop(t *testing.T) {
	f := newSessionFixture(t)
	f.client.WithError(errors.New("connection refused"))
	runner := f.runner([]string{"hello", "exit"}, nil)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	out := f.out.String()
	assert.Contains(t, out, "ERROR:")
	assert.Contains(t, out, "SESSION_END: status=COMPLETED")
}

func TestSessionRunner_SessionEndedBeforeInput(t *testing.T) {
	f := newSessionFixture(t)
	f.ctrl.Finish()
	runner := f.runner([]string{"hello"}, nil)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, f.client.CallCount())
	assert.Contains(t, f.out.String(), "SESSION_END: status=COMPLETED")
}

func TestSessionRunner_ContextCancelled(t *testing.T) {
	f := newSessionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := f.runner([]string{"hello", "exit"}, nil)

	err := runner.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	// finish still ran: the summary is rendered even on cancellation.
	assert.Contains(t, f.out.String(), "SESSION_END:")
}

func TestSessionRunner_ForwardsEventsToRenderer(t *testing.T) {
	f := newSessionFixture(t)
	f.client.
		QueueToolCall("write_file", map[string]any{"path": "notes.txt", "content": "draft\n"}).
		QueueFinalResponse("Wrote notes.txt.")
	renderer := ux.NewBufferSessionRenderer()
	runner := f.runner([]string{"jot that down", "exit"}, renderer)

	err := runner.Run(context.Background())
	require.NoError(t, err)

	var sawDispatch bool
	for _, rec := range renderer.Events() {
		if rec.Kind == "dispatch" && rec.Tool == "write_file" {
			sawDispatch = true
		}
	}
	assert.True(t, sawDispatch, "expected a dispatch event for write_file, got %v", renderer.Events())
}

func TestSessionRunner_CloseIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	runner := f.runner(nil, nil)

	require.NoError(t, runner.Close())
	require.NoError(t, runner.Close())
	// No summary is rendered when Run never started.
	assert.NotContains(t, f.out.String(), "SESSION_END:")
}

func TestSessionRunner_RunAfterCloseRendersNoSummary(t *testing.T) {
	f := newSessionFixture(t)
	runner := f.runner([]string{"exit"}, nil)
	require.NoError(t, runner.Close())

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.NotContains(t, f.out.String(), "SESSION_END:")
}
