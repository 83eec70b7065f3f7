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
	"strings"
	"time"

	"github.com/AleutianAI/moduleforge/agent/approval"
)

// testRunApprover approves commands matching the configured test
// command template without prompting and delegates everything else to
// the wrapped approver.
//
// The repair loop runs the same pytest invocation up to MaxIterations
// times per module; prompting for each rerun teaches the operator to
// hit "y" reflexively, which is worse for the approval gate than
// whitelisting the one command shape the loop is allowed to run.
type testRunApprover struct {
	prefix   string
	delegate approval.Approver
}

// newTestRunApprover wraps delegate. An empty prefix disables the
// shortcut entirely: no command auto-approves on a blank match.
func newTestRunApprover(prefix string, delegate approval.Approver) approval.Approver {
	if prefix == "" {
		return delegate
	}
	return &testRunApprover{prefix: prefix, delegate: delegate}
}

// Decide implements approval.Approver.
func (a *testRunApprover) Decide(ctx context.Context, req approval.Request) (approval.Decision, error) {
	if a.matches(req.Command) {
		return approval.Decision{
			ToolCallID: req.ToolCallID,
			Outcome:    approval.Approved,
			DecidedAt:  time.Now().UTC(),
		}, nil
	}
	return a.delegate.Decide(ctx, req)
}

// matches accepts only single commands that start with the test
// template prefix. Shell metacharacters disqualify the command so
// "python -m pytest x; rm -rf /" still reaches the human.
func (a *testRunApprover) matches(command string) bool {
	if !strings.HasPrefix(command, a.prefix) {
		return false
	}
	return !strings.ContainsAny(command, ";|&$`><\n")
}
