// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/moduleforge/agent/approval"
	"github.com/AleutianAI/moduleforge/agent/policy"
	"github.com/AleutianAI/moduleforge/pkg/logging"
	"github.com/AleutianAI/moduleforge/validate"
)

// Screener inspects written content and returns non-blocking findings.
// Satisfied by validate.SyntaxScreener.
type Screener interface {
	Screen(ctx context.Context, path string, content []byte) []validate.Warning
}

// Invocation binds a call to the session conditions it executes under.
//
// The capability set comes from the active session mode; the scope is
// the module boundary for Builder sessions and nil otherwise.
type Invocation struct {
	Call  Call
	Caps  Capabilities
	Scope *policy.ModuleScope
}

// Result is what a tool call produced.
//
// A Result with a non-nil Err is a feedback fault: Output carries the
// error text the reasoner sees and the session continues. Session-fatal
// conditions are returned as errors from Execute instead.
type Result struct {
	// CallID correlates the result with the proposing call.
	CallID string `json:"call_id"`

	// Tool is the wire tool name.
	Tool string `json:"tool"`

	// Output is the text returned to the reasoner.
	Output string `json:"output"`

	// Err classifies a failed call. Nil on success.
	Err error `json:"-"`

	// Warnings are post-write screen findings, already folded into
	// Output.
	Warnings []validate.Warning `json:"warnings,omitempty"`

	// Command is set for run_command calls that were approved and ran.
	Command *CommandOutcome `json:"command,omitempty"`

	// Approval is set for run_command calls, whatever the outcome.
	Approval *approval.Decision `json:"approval,omitempty"`

	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the call produced a feedback fault.
func (r Result) Failed() bool {
	return r.Err != nil
}

// GatewayOptions configures optional gateway behavior.
type GatewayOptions struct {
	// Screener runs after write-class calls. Nil disables screening.
	Screener Screener

	// MaxFileSize caps read_file content in bytes. <=0 means 1 MiB.
	MaxFileSize int64

	// Logger receives execution telemetry. Nil means quiet.
	Logger *logging.Logger
}

// Gateway executes tool calls. It is the only component that touches
// the filesystem or spawns processes on the agent's behalf.
//
// Description:
//
//	Every call is screened before it acts: read-class calls against the
//	workspace boundary, write-class calls against the active module
//	scope, and run_command through the human approval gate. The gateway
//	operates on the canonical path the guard resolved, so the path
//	checked and the path touched are the same path.
//
// Thread Safety:
//
//	Gateway is safe for concurrent use. The session loop issues calls
//	sequentially.
type Gateway struct {
	guard       *policy.Guard
	approver    approval.Approver
	runner      CommandRunner
	screener    Screener
	maxFileSize int64
	logger      *logging.Logger
}

// NewGateway creates a gateway.
//
// Inputs:
//
//	guard - The path policy guard. Required.
//	approver - The human approval gate for commands. Required.
//	runner - The command runner. Required.
//	opts - Optional behavior, may be nil.
//
// Outputs:
//
//	*Gateway - The configured gateway
//	error - Non-nil if a required collaborator is missing
func NewGateway(guard *policy.Guard, approver approval.Approver, runner CommandRunner, opts *GatewayOptions) (*Gateway, error) {
	if guard == nil {
		return nil, fmt.Errorf("gateway requires a policy guard")
	}
	if approver == nil {
		return nil, fmt.Errorf("gateway requires an approver")
	}
	if runner == nil {
		return nil, fmt.Errorf("gateway requires a command runner")
	}

	g := &Gateway{
		guard:       guard,
		approver:    approver,
		runner:      runner,
		maxFileSize: 1 << 20,
	}
	if opts != nil {
		g.screener = opts.Screener
		if opts.MaxFileSize > 0 {
			g.maxFileSize = opts.MaxFileSize
		}
		g.logger = opts.Logger
	}
	if g.logger == nil {
		g.logger = logging.New(logging.Config{Quiet: true})
	}
	return g, nil
}

// Execute performs one tool call.
//
// Description:
//
//	Dispatches on the concrete call type after checking the mode's
//	capability set. Policy denials, approval denials, bad arguments,
//	and IO failures are folded into the Result as feedback faults; the
//	returned error is reserved for session-fatal conditions such as
//	context cancellation while waiting for approval.
//
// Inputs:
//
//	ctx - Context for cancellation
//	inv - The call plus its capability set and module scope
//
// Outputs:
//
//	Result - The tool result, including feedback faults
//	error - Non-nil only when the session must stop
func (g *Gateway) Execute(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Call == nil {
		return Result{}, fmt.Errorf("nil tool call")
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	start := time.Now()
	res := Result{CallID: inv.Call.CallID(), Tool: inv.Call.Name()}

	if !inv.Caps.Permits(inv.Call.Class()) {
		g.deny(&res, fmt.Errorf("%w: the current mode does not permit %s", ErrCapabilityDenied, inv.Call.Name()))
		res.Duration = time.Since(start)
		return res, nil
	}

	var fatal error
	switch c := inv.Call.(type) {
	case ReadFileCall:
		g.readFile(&res, c, inv.Scope)
	case ListFilesCall:
		g.listFiles(&res, c, inv.Scope)
	case WriteFileCall:
		g.writeFile(ctx, &res, c, inv.Scope)
	case AppendFileCall:
		g.appendFile(ctx, &res, c, inv.Scope)
	case EditFileCall:
		g.editFile(ctx, &res, c, inv.Scope)
	case ApplyPatchCall:
		g.applyPatch(ctx, &res, c, inv.Scope)
	case RunCommandCall:
		fatal = g.runCommand(ctx, &res, c)
	default:
		g.deny(&res, fmt.Errorf("%w: %T", ErrUnknownTool, inv.Call))
	}
	res.Duration = time.Since(start)
	if fatal != nil {
		return res, fatal
	}

	g.logger.Debug("tool call executed",
		"tool", res.Tool,
		"call_id", res.CallID,
		"ok", res.Err == nil,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// deny records a feedback fault on the result.
func (g *Gateway) deny(res *Result, err error) {
	res.Err = err
	res.Output = "Error: " + err.Error()
	g.logger.Warn("tool call refused",
		"tool", res.Tool,
		"call_id", res.CallID,
		"reason", err.Error(),
	)
}

// checkPath evaluates a path under the given scope. Read-class calls
// pass a nil scope so every mode may read the whole workspace.
func (g *Gateway) checkPath(res *Result, path string, scope *policy.ModuleScope) (string, bool) {
	verdict := g.guard.Evaluate(path, scope)
	if !verdict.Allowed {
		g.deny(res, fmt.Errorf("%w: %s", ErrPermissionDenied, verdict.Reason))
		return "", false
	}
	return verdict.Path, true
}

func (g *Gateway) readFile(res *Result, call ReadFileCall, _ *policy.ModuleScope) {
	target, ok := g.checkPath(res, call.Path, nil)
	if !ok {
		return
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			g.deny(res, fmt.Errorf("%w: %s does not exist", ErrIO, call.Path))
		} else {
			g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
		}
		return
	}
	if info.IsDir() {
		g.deny(res, fmt.Errorf("%w: %s is a directory, use list_files", ErrIO, call.Path))
		return
	}
	if info.Size() > g.maxFileSize {
		g.deny(res, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrIO, call.Path, info.Size(), g.maxFileSize))
		return
	}

	content, err := os.ReadFile(target)
	if err != nil {
		g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
		return
	}
	res.Output = string(content)
}

func (g *Gateway) listFiles(res *Result, call ListFilesCall, _ *policy.ModuleScope) {
	target, ok := g.checkPath(res, call.Path, nil)
	if !ok {
		return
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		if os.IsNotExist(err) {
			g.deny(res, fmt.Errorf("%w: %s does not exist", ErrIO, call.Path))
		} else {
			g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
		}
		return
	}

	if len(entries) == 0 {
		res.Output = "(empty directory)"
		return
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	res.Output = strings.Join(names, "\n")
}

func (g *Gateway) writeFile(ctx context.Context, res *Result, call WriteFileCall, scope *policy.ModuleScope) {
	target, ok := g.checkPath(res, call.Path, scope)
	if !ok {
		return
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
		return
	}
	if err := os.WriteFile(target, []byte(call.Content), 0o644); err != nil {
		g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
		return
	}

	res.Output = fmt.Sprintf("Successfully wrote %d bytes to %s", len(call.Content), call.Path)
	g.screen(ctx, res, call.Path, target)
}

func (g *Gateway) appendFile(ctx context.Context, res *Result, call AppendFileCall, scope *policy.ModuleScope) {
	target, ok := g.checkPath(res, call.Path, scope)
	if !ok {
		return
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			g.deny(res, fmt.Errorf("%w: %s does not exist, use write_file to create it", ErrIO, call.Path))
		} else {
			g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
		}
		return
	}
	if info.IsDir() {
		g.deny(res, fmt.Errorf("%w: %s is a directory", ErrIO, call.Path))
		return
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
		return
	}
	_, writeErr := f.WriteString(call.Content)
	closeErr := f.Close()
	if writeErr != nil {
		g.deny(res, fmt.Errorf("%w: %v", ErrIO, writeErr))
		return
	}
	if closeErr != nil {
		g.deny(res, fmt.Errorf("%w: %v", ErrIO, closeErr))
		return
	}

	res.Output = fmt.Sprintf("Successfully appended %d bytes to %s", len(call.Content), call.Path)
	g.screen(ctx, res, call.Path, target)
}

func (g *Gateway) editFile(ctx context.Context, res *Result, call EditFileCall, scope *policy.ModuleScope) {
	target, ok := g.checkPath(res, call.Path, scope)
	if !ok {
		return
	}

	raw, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			g.deny(res, fmt.Errorf("%w: %s does not exist", ErrIO, call.Path))
		} else {
			g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
		}
		return
	}

	content := string(raw)
	switch count := strings.Count(content, call.OldString); count {
	case 0:
		g.deny(res, fmt.Errorf("%w: old_string not found in %s", ErrInvalidArguments, call.Path))
		return
	case 1:
	default:
		g.deny(res, fmt.Errorf("%w: old_string appears %d times in %s, it must be unique", ErrInvalidArguments, count, call.Path))
		return
	}

	edited := strings.Replace(content, call.OldString, call.NewString, 1)
	if err := os.WriteFile(target, []byte(edited), 0o644); err != nil {
		g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
		return
	}

	res.Output = fmt.Sprintf("Successfully edited %s", call.Path)
	g.screen(ctx, res, call.Path, target)
}

func (g *Gateway) applyPatch(ctx context.Context, res *Result, call ApplyPatchCall, scope *policy.ModuleScope) {
	fileDiffs, err := validate.ParsePatch(call.Patch)
	if err != nil {
		g.deny(res, fmt.Errorf("%w: %v", ErrInvalidArguments, err))
		return
	}

	// Resolve and apply everything before writing anything, so a patch
	// that fails on its second file leaves the first untouched.
	type pendingWrite struct {
		display string
		target  string
		content []byte
	}
	writes := make([]pendingWrite, 0, len(fileDiffs))

	for _, fd := range fileDiffs {
		if validate.IsDeletion(fd) {
			g.deny(res, fmt.Errorf("%w: patch deletes %s, deletion is not supported", ErrInvalidArguments, validate.TargetPath(fd)))
			return
		}
		display := validate.TargetPath(fd)
		target, ok := g.checkPath(res, display, scope)
		if !ok {
			return
		}

		var original []byte
		if raw, readErr := os.ReadFile(target); readErr == nil {
			original = raw
		} else if !os.IsNotExist(readErr) {
			g.deny(res, fmt.Errorf("%w: %v", ErrIO, readErr))
			return
		} else if !validate.IsCreation(fd) {
			g.deny(res, fmt.Errorf("%w: patch modifies %s, which does not exist", ErrInvalidArguments, display))
			return
		}

		patched, applyErr := validate.ApplyFileDiff(original, fd)
		if applyErr != nil {
			g.deny(res, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, display, applyErr))
			return
		}
		writes = append(writes, pendingWrite{display: display, target: target, content: patched})
	}

	applied := make([]string, 0, len(writes))
	for _, w := range writes {
		if err := os.MkdirAll(filepath.Dir(w.target), 0o755); err != nil {
			g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
			return
		}
		if err := os.WriteFile(w.target, w.content, 0o644); err != nil {
			g.deny(res, fmt.Errorf("%w: %v", ErrIO, err))
			return
		}
		applied = append(applied, w.display)
	}

	res.Output = fmt.Sprintf("Applied patch to %d file(s): %s", len(applied), strings.Join(applied, ", "))
	for _, w := range writes {
		g.screen(ctx, res, w.display, w.target)
	}
}

// runCommand routes a command through the approval gate and, when
// approved, the runner. The returned error is session-fatal.
func (g *Gateway) runCommand(ctx context.Context, res *Result, call RunCommandCall) error {
	decision, err := g.approver.Decide(ctx, approval.Request{
		ToolCallID: call.ID,
		Command:    call.Command,
	})
	if err != nil {
		return fmt.Errorf("approval gate: %w", err)
	}
	res.Approval = &decision

	switch decision.Outcome {
	case approval.Approved:
	case approval.TimedOut:
		res.Err = fmt.Errorf("%w: %q", ErrApprovalTimedOut, call.Command)
		res.Output = "Command approval timed out; treating as denied."
		g.logger.Warn("command approval timed out", "call_id", call.ID)
		return nil
	default:
		res.Err = fmt.Errorf("%w: %q", ErrApprovalDenied, call.Command)
		res.Output = "Command execution denied by user."
		g.logger.Info("command denied by user", "call_id", call.ID)
		return nil
	}

	outcome, err := g.runner.Run(ctx, call.Command)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.deny(res, err)
		return nil
	}

	res.Command = &outcome
	res.Output = shapeCommandOutput(outcome)
	return nil
}

// shapeCommandOutput renders a command outcome for the reasoner.
func shapeCommandOutput(outcome CommandOutcome) string {
	var b strings.Builder
	b.WriteString(outcome.Output)
	if outcome.Truncated {
		b.WriteString("\n[output truncated]")
	}
	if outcome.TimedOut {
		b.WriteString("\n[command killed by timeout]")
	}
	if outcome.ExitCode != 0 {
		fmt.Fprintf(&b, "\n[exit code %d]", outcome.ExitCode)
	}
	if b.Len() == 0 {
		return "(no output)"
	}
	return b.String()
}

// screen runs the post-write syntax screen and folds findings into the
// result. Findings never fail the call.
func (g *Gateway) screen(ctx context.Context, res *Result, display, target string) {
	if g.screener == nil {
		return
	}
	content, err := os.ReadFile(target)
	if err != nil {
		return
	}
	warnings := g.screener.Screen(ctx, display, content)
	if len(warnings) == 0 {
		return
	}
	res.Warnings = append(res.Warnings, warnings...)
	for _, w := range warnings {
		res.Output += "\nWarning: " + w.String()
	}
	g.logger.Warn("written artifact has syntax findings",
		"file", display,
		"findings", len(warnings),
	)
}
