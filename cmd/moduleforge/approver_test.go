// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/moduleforge/agent/approval"
)

func TestTestRunApprover_ApprovesMatchingCommand(t *testing.T) {
	approver := newTestRunApprover("python -m pytest ", approval.NewStaticApprover(approval.Denied))

	decision, err := approver.Decide(context.Background(), approval.Request{
		ToolCallID: "call-1",
		Command:    "python -m pytest services/calculator",
	})

	require.NoError(t, err)
	assert.Equal(t, approval.Approved, decision.Outcome)
	assert.Equal(t, "call-1", decision.ToolCallID)
	assert.False(t, decision.DecidedAt.IsZero())
}

func TestTestRunApprover_DelegatesNonMatchingCommand(t *testing.T) {
	approver := newTestRunApprover("python -m pytest ", approval.NewStaticApprover(approval.Denied))

	decision, err := approver.Decide(context.Background(), approval.Request{
		ToolCallID: "call-2",
		Command:    "rm -rf build",
	})

	require.NoError(t, err)
	assert.Equal(t, approval.Denied, decision.Outcome)
}

func TestTestRunApprover_MetacharactersDelegate(t *testing.T) {
	approver := newTestRunApprover("python -m pytest ", approval.NewStaticApprover(approval.Denied))

	commands := []string{
		"python -m pytest services/calculator; rm -rf /",
		"python -m pytest services/calculator && curl evil.example",
		"python -m pytest services/calculator | tee /etc/passwd",
		"python -m pytest $(whoami)",
		"python -m pytest services/calculator > /dev/null",
		"python -m pytest services/calculator\nrm -rf /",
	}

	for _, command := range commands {
		t.Run(command, func(t *testing.T) {
			decision, err := approver.Decide(context.Background(), approval.Request{Command: command})
			require.NoError(t, err)
			assert.Equal(t, approval.Denied, decision.Outcome)
		})
	}
}

func TestNewTestRunApprover_EmptyPrefixReturnsDelegate(t *testing.T) {
	delegate := approval.NewStaticApprover(approval.Approved)

	approver := newTestRunApprover("", delegate)

	assert.Same(t, delegate, approver)
}
