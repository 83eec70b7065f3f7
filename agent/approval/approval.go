// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package approval gates command execution behind an explicit human
// decision.
//
// Every command the agent proposes passes through an Approver before a
// process is spawned. There is no allow-list of safe commands and no
// bypass. The design is fail-closed: only an exact affirmative token
// (case-folded "y" or "yes" by default) approves; any other input,
// including an empty line or a read error, denies.
//
// The Approver interface exists so tests and unattended runs can
// substitute a scripted or static implementation without touching
// console I/O.
//
// Thread Safety:
//
//	All implementations in this package are safe for concurrent use,
//	though the agent loop issues at most one request at a time.
package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Outcome is the result of an approval request.
type Outcome string

const (
	// Approved means the human explicitly allowed the command.
	Approved Outcome = "APPROVED"

	// Denied means the input was anything other than an affirmative token.
	Denied Outcome = "DENIED"

	// TimedOut means no decision arrived within the configured timeout.
	TimedOut Outcome = "TIMED_OUT"
)

// Request identifies the command awaiting a decision.
type Request struct {
	// ToolCallID links the decision back to the tool call.
	ToolCallID string `json:"tool_call_id"`

	// Command is the exact command text that would be executed.
	Command string `json:"command"`
}

// Decision records the outcome of one approval request.
type Decision struct {
	// ToolCallID links back to the requesting tool call.
	ToolCallID string `json:"tool_call_id"`

	// Outcome is Approved, Denied, or TimedOut.
	Outcome Outcome `json:"outcome"`

	// DecidedAt is when the decision was made.
	DecidedAt time.Time `json:"decided_at"`
}

// Approver is the synchronous approval boundary.
//
// Decide blocks until a decision is available, the configured timeout
// elapses, or ctx is canceled.
type Approver interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// DefaultAffirmatives are the tokens that approve a command.
func DefaultAffirmatives() []string {
	return []string{"y", "yes"}
}

// IsAffirmative reports whether input, trimmed and case-folded, is
// exactly one of the affirmative tokens.
func IsAffirmative(input string, tokens []string) bool {
	folded := strings.ToLower(strings.TrimSpace(input))
	if folded == "" {
		return false
	}
	for _, tok := range tokens {
		if folded == strings.ToLower(tok) {
			return true
		}
	}
	return false
}

// Options configures a ConsoleApprover.
type Options struct {
	// Timeout bounds how long Decide waits for input. Zero means block
	// indefinitely.
	Timeout time.Duration

	// Affirmatives are the tokens that approve. Defaults to
	// DefaultAffirmatives when empty.
	Affirmatives []string

	// Prompt renders the warning and prompt text for a command. When
	// nil the plain default format is used. The rendered text must end
	// with the input prompt; nothing is appended after it.
	Prompt func(command string) string
}

// DefaultOptions returns the fail-closed defaults: no timeout, "y"/"yes".
func DefaultOptions() Options {
	return Options{Affirmatives: DefaultAffirmatives()}
}

// ConsoleApprover prompts a human on the console and reads one line.
//
// The prompt format is:
//
//	[SECURITY WARNING] Agent wants to execute: <command>
//	Allow execution? (y/n):
//
// Thread Safety:
//
//	ConsoleApprover serializes requests internally.
type ConsoleApprover struct {
	mu      sync.Mutex
	out     io.Writer
	in      *bufio.Reader
	options Options
}

// NewConsoleApprover creates an approver reading from in and prompting
// on out.
//
// Inputs:
//
//	in - Source of decision lines (normally os.Stdin)
//	out - Destination for the prompt (normally os.Stderr)
//	opts - Approval options (uses DefaultOptions if nil)
//
// Outputs:
//
//	*ConsoleApprover - The configured approver
func NewConsoleApprover(in io.Reader, out io.Writer, opts *Options) *ConsoleApprover {
	options := DefaultOptions()
	if opts != nil {
		options = *opts
	}
	if len(options.Affirmatives) == 0 {
		options.Affirmatives = DefaultAffirmatives()
	}
	return &ConsoleApprover{
		out:     out,
		in:      bufio.NewReader(in),
		options: options,
	}
}

// Decide implements Approver.
//
// Description:
//
//	Prints the security warning, reads one line, and maps it to an
//	outcome. A read error or EOF denies. When a timeout is configured
//	and elapses first, the outcome is TimedOut. Context cancellation
//	aborts with ctx.Err because the session is going away, not the
//	decision.
func (a *ConsoleApprover) Decide(ctx context.Context, req Request) (Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.options.Prompt != nil {
		fmt.Fprint(a.out, a.options.Prompt(req.Command))
	} else {
		fmt.Fprintf(a.out, "\n[SECURITY WARNING] Agent wants to execute: %s\n", req.Command)
		fmt.Fprint(a.out, "Allow execution? (y/n): ")
	}

	type lineResult struct {
		text string
		err  error
	}
	lineCh := make(chan lineResult, 1)
	go func() {
		text, err := a.in.ReadString('\n')
		lineCh <- lineResult{text: text, err: err}
	}()

	var timeoutCh <-chan time.Time
	if a.options.Timeout > 0 {
		timer := time.NewTimer(a.options.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case <-timeoutCh:
		fmt.Fprintln(a.out)
		return a.decision(req, TimedOut), nil
	case line := <-lineCh:
		if line.err != nil && line.text == "" {
			// EOF or closed input: fail closed.
			return a.decision(req, Denied), nil
		}
		if IsAffirmative(line.text, a.options.Affirmatives) {
			return a.decision(req, Approved), nil
		}
		return a.decision(req, Denied), nil
	}
}

func (a *ConsoleApprover) decision(req Request, outcome Outcome) Decision {
	return Decision{
		ToolCallID: req.ToolCallID,
		Outcome:    outcome,
		DecidedAt:  time.Now(),
	}
}

// Ensure implementations satisfy Approver.
var (
	_ Approver = (*ConsoleApprover)(nil)
	_ Approver = (*ScriptedApprover)(nil)
	_ Approver = (*StaticApprover)(nil)
)

// ScriptedApprover answers requests from a canned list of inputs.
//
// Each Decide consumes the next input and evaluates it exactly as the
// console would. When the script is exhausted, everything is denied.
//
// Thread Safety:
//
//	ScriptedApprover is safe for concurrent use.
type ScriptedApprover struct {
	mu     sync.Mutex
	inputs []string
	tokens []string

	// Calls records every request in order.
	Calls []Request
}

// NewScriptedApprover creates an approver with the given scripted inputs.
func NewScriptedApprover(inputs ...string) *ScriptedApprover {
	return &ScriptedApprover{
		inputs: inputs,
		tokens: DefaultAffirmatives(),
	}
}

// Decide implements Approver.
func (a *ScriptedApprover) Decide(ctx context.Context, req Request) (Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	a.Calls = append(a.Calls, req)

	outcome := Denied
	if len(a.inputs) > 0 {
		input := a.inputs[0]
		a.inputs = a.inputs[1:]
		if IsAffirmative(input, a.tokens) {
			outcome = Approved
		}
	}

	return Decision{
		ToolCallID: req.ToolCallID,
		Outcome:    outcome,
		DecidedAt:  time.Now(),
	}, nil
}

// CallCount returns the number of requests seen.
func (a *ScriptedApprover) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Calls)
}

// StaticApprover returns the same outcome for every request.
//
// An always-approve instance drives unattended Builder runs where the
// test invocation must proceed without a human at the console. The
// chokepoint stays: the command still passes through Decide and the
// decision is still recorded.
type StaticApprover struct {
	mu      sync.Mutex
	outcome Outcome

	// Calls records every request in order.
	Calls []Request
}

// NewStaticApprover creates an approver with a fixed outcome.
func NewStaticApprover(outcome Outcome) *StaticApprover {
	return &StaticApprover{outcome: outcome}
}

// Decide implements Approver.
func (a *StaticApprover) Decide(ctx context.Context, req Request) (Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	a.Calls = append(a.Calls, req)
	return Decision{
		ToolCallID: req.ToolCallID,
		Outcome:    a.outcome,
		DecidedAt:  time.Now(),
	}, nil
}

// CallCount returns the number of requests seen.
func (a *StaticApprover) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Calls)
}
