// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/moduleforge/agent/llm"
	"github.com/AleutianAI/moduleforge/agent/memory"
	"github.com/AleutianAI/moduleforge/agent/policy"
	"github.com/AleutianAI/moduleforge/agent/prompts"
	"github.com/AleutianAI/moduleforge/agent/ralph"
	"github.com/AleutianAI/moduleforge/agent/tools"
	"github.com/AleutianAI/moduleforge/audit"
	"github.com/AleutianAI/moduleforge/pkg/logging"
	"github.com/AleutianAI/moduleforge/telemetry"
	"github.com/AleutianAI/moduleforge/validate"
	"github.com/AleutianAI/moduleforge/workspace"
)

// ControllerConfig assembles a session controller.
type ControllerConfig struct {
	// Mode selects the session's capability and prompting profile.
	Mode Mode

	// WorkspaceRoot is the absolute project directory.
	WorkspaceRoot string

	// Client is the reasoner backend.
	Client llm.Client

	// Gateway executes tool calls.
	Gateway Dispatcher

	// Artifacts names the per-module files referenced in prompts and
	// scopes. Zero value means prompts.DefaultArtifacts.
	Artifacts prompts.Artifacts

	// PromptContext is appended to the system prompt when non-empty,
	// typically the workspace go.mod summary.
	PromptContext string

	// Audit receives the session's audit trail. Nil disables auditing.
	Audit audit.Store

	// Events receives session events for streaming. Optional.
	Events *Broadcaster

	// Locator finds buildable modules in Builder inputs. Optional; a
	// Builder session without one never locks.
	Locator *workspace.Locator

	// MaxTokens bounds each completion. Zero means provider default.
	MaxTokens int

	// Temperature is passed through to the reasoner.
	Temperature float64

	// FaultBudget overrides DefaultFaultBudget when positive.
	FaultBudget int

	// MaxIterations caps repair attempts per locked build.
	// ralph.DefaultMaxIterations when <= 0.
	MaxIterations int

	// ExcerptBudget bounds the failure excerpt carried between repair
	// generations. ralph.DefaultExcerptBudget when <= 0.
	ExcerptBudget int

	// TestCommand renders the test invocation for a locked module.
	// Defaults to ralph.DefaultTestCommand.
	TestCommand func(module string) string

	// Logger defaults to logging.Default.
	Logger *logging.Logger

	// Metrics records session instruments when set.
	Metrics *telemetry.Metrics
}

// Controller owns one agent session end to end: the conversation, the
// turn engine, module locking, and the audit and event trail around
// them.
//
// Thread Safety:
//
//	HandleInput and Finish must be called from a single goroutine.
//	Snapshot, AttachWatcher, and HandleWorkspaceEvent are safe to call
//	concurrently with them.
type Controller struct {
	mode          Mode
	workspaceRoot string
	artifacts     prompts.Artifacts
	system        string
	gateway       Dispatcher
	auditStore    audit.Store
	events        *Broadcaster
	locator       *workspace.Locator
	maxIterations int
	excerptBudget int
	testCommand   func(module string) string
	logger        *logging.Logger
	metrics       *telemetry.Metrics

	session *Session
	memory  *memory.Memory
	engine  *Engine

	mu      sync.RWMutex
	watcher *workspace.Watcher
}

// NewController creates a session controller and starts its session.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, string(cfg.Mode))
	}
	if cfg.WorkspaceRoot == "" {
		return nil, errors.New("agent: workspace root is required")
	}
	if cfg.Client == nil {
		return nil, errors.New("agent: reasoner client is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("agent: gateway is required")
	}

	artifacts := cfg.Artifacts
	if artifacts == (prompts.Artifacts{}) {
		artifacts = prompts.DefaultArtifacts()
	}
	auditStore := cfg.Audit
	if auditStore == nil {
		auditStore = audit.NopStore{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	testCommand := cfg.TestCommand
	if testCommand == nil {
		testCommand = ralph.DefaultTestCommand
	}

	system := cfg.Mode.SystemPrompt(artifacts)
	if cfg.PromptContext != "" {
		system = system + "\n\n" + cfg.PromptContext
	}

	c := &Controller{
		mode:          cfg.Mode,
		workspaceRoot: cfg.WorkspaceRoot,
		artifacts:     artifacts,
		system:        system,
		gateway:       cfg.Gateway,
		auditStore:    auditStore,
		events:        cfg.Events,
		locator:       cfg.Locator,
		maxIterations: cfg.MaxIterations,
		excerptBudget: cfg.ExcerptBudget,
		testCommand:   testCommand,
		logger:        logger,
		metrics:       cfg.Metrics,
		session:       NewSession(cfg.Mode),
	}
	c.memory = memory.New([]memory.Turn{memory.SystemTurn(system)}, c.onGenerationRetired)

	engine, err := NewEngine(EngineConfig{
		Client:         cfg.Client,
		Memory:         c.memory,
		Dispatch:       cfg.Gateway,
		Caps:           cfg.Mode.Capabilities(),
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		FaultBudget:    cfg.FaultBudget,
		Logger:         logger,
		Metrics:        cfg.Metrics,
		BeforeDispatch: c.expectWrites,
		AfterDispatch:  c.afterDispatch,
	})
	if err != nil {
		return nil, err
	}
	c.engine = engine

	logger.Info("session started",
		"session_id", c.session.ID,
		"mode", cfg.Mode.String(),
		"workspace", cfg.WorkspaceRoot,
	)
	c.record(audit.Record{
		Kind:    audit.KindSession,
		Summary: "session started in " + cfg.Mode.String() + " mode",
		Verdict: "active",
	})
	c.publish(SessionEvent{Type: EventStatus, Status: StatusActive})
	return c, nil
}

// AttachWatcher installs the workspace watcher used to separate gateway
// writes from foreign mutations. Call before the first turn.
func (c *Controller) AttachWatcher(w *workspace.Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watcher = w
}

func (c *Controller) watcherRef() *workspace.Watcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watcher
}

// Snapshot returns the session's observable state.
func (c *Controller) Snapshot() Snapshot {
	snap := c.session.snapshot()
	snap.Generation = c.memory.Generation()
	return snap
}

// HandleInput runs one user input to completion.
//
// Description:
//
//	In builder mode an input naming a buildable module locks it and
//	runs the bounded repair loop; the session ends when the build
//	does. Every other input runs one guarded conversational turn.
//
// Inputs:
//
//	ctx - Cancels the work
//	input - The user input
//
// Outputs:
//
//	[]string - Assistant texts produced, in order
//	error - Non-nil when the turn or build aborted. ErrSessionEnded
//	        when the session no longer accepts input.
func (c *Controller) HandleInput(ctx context.Context, input string) ([]string, error) {
	status := c.session.Status()
	if status.IsTerminal() {
		return nil, fmt.Errorf("%w: session is %s", ErrSessionEnded, status)
	}
	c.session.Touch()

	if c.mode == ModeBuilder && c.locator != nil {
		if module, ok := c.locator.Locate(input); ok {
			return c.runBuild(ctx, module, input)
		}
		c.logger.Debug("input names no buildable module, running unscoped turn")
	}

	texts, err := c.engine.RunTurn(ctx, input)
	if err != nil {
		return texts, c.classifyTurnError(err)
	}
	return texts, nil
}

// classifyTurnError decides whether a failed turn ends the session.
//
// Reasoner transport failures and empty tool-use responses abort the
// turn only. Cancellation belongs to the caller. Everything else means
// the dispatch path itself is broken and the session cannot continue.
func (c *Controller) classifyTurnError(err error) error {
	switch {
	case errors.Is(err, ErrReasonerCommunication), errors.Is(err, tools.ErrNoToolCalls):
		c.logger.Warn("turn aborted", "session_id", c.session.ID, "error", err.Error())
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		c.endSession(StatusFailed, "session failed: "+err.Error())
		return err
	}
}

// runBuild locks the module and drives the repair loop over it. The
// session ends with the build, whatever the outcome.
func (c *Controller) runBuild(ctx context.Context, module, input string) ([]string, error) {
	c.logger.Info("module locked for build",
		"session_id", c.session.ID,
		"module", module,
	)
	c.session.SetModule(module)
	c.record(audit.Record{
		Kind:    audit.KindSession,
		Summary: "module locked: " + module,
	})
	c.publish(SessionEvent{Type: EventModuleLocked, Module: module})

	scope, err := policy.NewModuleScope(c.workspaceRoot, policy.ScopeSpec{
		RootPath:     module,
		TestSpecFile: c.artifacts.TestSpec,
		Forbidden:    []string{c.artifacts.Prompt, c.artifacts.Interface},
	})
	if err != nil {
		err = fmt.Errorf("scope module %s: %w", module, err)
		c.endSession(StatusFailed, "session failed: "+err.Error())
		return nil, err
	}

	c.engine.SetScope(scope)
	defer c.engine.SetScope(nil)

	loop, err := ralph.New(ralph.Config{
		Module:        module,
		TestCommand:   c.testCommand(module),
		System:        c.system,
		Artifacts:     c.artifacts,
		MaxIterations: c.maxIterations,
		ExcerptBudget: c.excerptBudget,
		Caps:          c.mode.Capabilities(),
		Scope:         scope,
		Memory:        c.memory,
		Turns:         c.engine,
		Dispatch:      auditedDispatch{c},
		Logger:        c.logger,
		Observer:      c.onLoopTransition,
	})
	if err != nil {
		c.endSession(StatusFailed, "session failed: "+err.Error())
		return nil, err
	}

	// The build starts from a clean generation; whatever conversation
	// preceded the lock is retired to the audit trail.
	c.memory.Reset([]memory.Turn{memory.SystemTurn(c.system)})

	outcome, runErr := loop.Run(ctx, input)
	if outcome != nil {
		c.session.SetIteration(outcome.Iterations)
	}

	if runErr != nil {
		c.endSession(StatusFailed, fmt.Sprintf("build of %s failed: %v", module, runErr))
		return nil, runErr
	}

	msg := fmt.Sprintf("Module %s built: tests passed on iteration %d.",
		module, outcome.Iterations)
	c.endSession(StatusCompleted, fmt.Sprintf("build of %s succeeded after %d iteration(s)",
		module, outcome.Iterations))
	return []string{msg}, nil
}

// Finish ends an interactive session that is still active and returns
// the final status.
func (c *Controller) Finish() Status {
	c.endSession(StatusCompleted, "session closed")
	return c.session.Status()
}

// endSession moves the session to a terminal status exactly once.
func (c *Controller) endSession(status Status, reason string) {
	if c.session.Status().IsTerminal() {
		return
	}
	if status == StatusCompleted {
		c.session.Complete()
	} else {
		c.session.Fail()
	}

	c.logger.Info("session ended",
		"session_id", c.session.ID,
		"status", string(status),
		"reason", reason,
	)
	c.record(audit.Record{
		Kind:    audit.KindSession,
		Summary: reason,
		Verdict: strings.ToLower(string(status)),
	})
	c.publish(SessionEvent{Type: EventStatus, Status: status, Detail: reason})
	if c.metrics != nil {
		c.metrics.SessionsEndedTotal.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("status", string(status)),
		))
	}
}

// onLoopTransition streams repair loop progress.
func (c *Controller) onLoopTransition(from, to ralph.State, iteration int) {
	c.session.SetIteration(iteration)
	c.publish(SessionEvent{
		Type:      EventLoopTransition,
		From:      from.String(),
		To:        to.String(),
		Iteration: iteration,
	})
	if c.metrics != nil && from == ralph.StateRepairing && to == ralph.StateImplementing {
		c.metrics.RepairIterationsTotal.Add(context.Background(), 1)
	}
}

// onGenerationRetired archives a retired conversation generation.
func (c *Controller) onGenerationRetired(gen memory.Generation) {
	detail, err := json.Marshal(gen)
	if err != nil {
		c.logger.Warn("generation not serializable", "error", err.Error())
		detail = nil
	}
	c.record(audit.Record{
		Kind:    audit.KindGeneration,
		At:      gen.RetiredAt,
		Summary: fmt.Sprintf("generation %d retired with %d turns", gen.Number, len(gen.Turns)),
		Detail:  detail,
	})
	c.publish(SessionEvent{
		Type:       EventGenerationRetired,
		Generation: gen.Number,
		Detail:     fmt.Sprintf("%d turns", len(gen.Turns)),
	})
	if c.metrics != nil {
		c.metrics.GenerationsRetiredTotal.Add(context.Background(), 1)
	}
}

// expectWrites arms the watcher for the paths a call is about to touch,
// so gateway writes are not reported as foreign mutations.
func (c *Controller) expectWrites(call tools.Call) {
	w := c.watcherRef()
	if w == nil {
		return
	}
	switch v := call.(type) {
	case tools.WriteFileCall:
		w.Expect(c.relToRoot(v.Path))
	case tools.AppendFileCall:
		w.Expect(c.relToRoot(v.Path))
	case tools.EditFileCall:
		w.Expect(c.relToRoot(v.Path))
	case tools.ApplyPatchCall:
		fds, err := validate.ParsePatch(v.Patch)
		if err != nil {
			return
		}
		for _, fd := range fds {
			if p := validate.TargetPath(fd); p != "" {
				w.Expect(c.relToRoot(p))
			}
		}
	}
}

// relToRoot maps an absolute path under the workspace to the
// root-relative form the watcher keys on.
func (c *Controller) relToRoot(path string) string {
	if !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(c.workspaceRoot, path)
	if err != nil {
		return path
	}
	return rel
}

// afterDispatch records every executed tool call.
func (c *Controller) afterDispatch(inv tools.Invocation, res tools.Result) {
	c.session.Touch()

	verdict := dispatchVerdict(res)
	c.record(audit.Record{
		Kind:     audit.KindToolDispatch,
		Tool:     res.Tool,
		Summary:  callSummary(inv.Call),
		Verdict:  verdict,
		Duration: res.Duration,
	})
	c.publish(SessionEvent{Type: EventToolDispatch, Tool: res.Tool, Verdict: verdict})

	if res.Approval != nil {
		c.record(audit.Record{
			Kind:    audit.KindApproval,
			Tool:    res.Tool,
			Summary: callSummary(inv.Call),
			Verdict: strings.ToLower(string(res.Approval.Outcome)),
		})
		c.publish(SessionEvent{
			Type:    EventApproval,
			Tool:    res.Tool,
			Verdict: string(res.Approval.Outcome),
		})
	}
}

// HandleWorkspaceEvent records a mutation the watcher saw outside the
// tool gateway. Wire it as the watcher's handler.
func (c *Controller) HandleWorkspaceEvent(ev workspace.Event) {
	detail := ev.Op + " " + ev.Path
	c.record(audit.Record{
		Kind:    audit.KindWorkspace,
		At:      ev.At,
		Summary: "workspace mutated outside the tool gateway: " + detail,
		Verdict: "foreign",
	})
	c.publish(SessionEvent{Type: EventWorkspaceChange, Detail: detail})
	if c.metrics != nil {
		c.metrics.WorkspaceMutationsTotal.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("op", ev.Op),
		))
	}
}

// auditedDispatch routes loop-initiated dispatches through the same
// bookkeeping as engine-initiated ones. Test invocations come from the
// repair loop, not the reasoner, so the engine hooks never see them.
type auditedDispatch struct {
	c *Controller
}

func (d auditedDispatch) Execute(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	res, err := d.c.gateway.Execute(ctx, inv)
	if err != nil {
		return res, err
	}
	d.c.engine.recordDispatchMetrics(ctx, res)
	d.c.afterDispatch(inv, res)
	return res, nil
}

// record appends an audit record, tolerating store failures.
func (c *Controller) record(rec audit.Record) {
	rec.SessionID = c.session.ID
	if err := c.auditStore.Append(context.Background(), rec); err != nil {
		c.logger.Warn("audit append failed",
			"kind", string(rec.Kind),
			"error", err.Error(),
		)
	}
}

// publish emits a session event when a broadcaster is attached.
func (c *Controller) publish(ev SessionEvent) {
	if c.events == nil {
		return
	}
	ev.SessionID = c.session.ID
	c.events.Publish(ev)
}

// callSummary renders a one-line audit summary for a call.
func callSummary(call tools.Call) string {
	switch v := call.(type) {
	case tools.ReadFileCall:
		return "read_file " + v.Path
	case tools.ListFilesCall:
		if v.Path == "" {
			return "list_files ."
		}
		return "list_files " + v.Path
	case tools.WriteFileCall:
		return "write_file " + v.Path
	case tools.AppendFileCall:
		return "append_file " + v.Path
	case tools.EditFileCall:
		return "edit_file " + v.Path
	case tools.ApplyPatchCall:
		return "apply_patch"
	case tools.RunCommandCall:
		return "run_command " + v.Command
	default:
		return call.Name()
	}
}

// dispatchVerdict classifies a dispatch result for audit and metrics.
func dispatchVerdict(res tools.Result) string {
	if res.Err == nil {
		return "ok"
	}
	switch {
	case errors.Is(res.Err, tools.ErrPermissionDenied),
		errors.Is(res.Err, tools.ErrCapabilityDenied):
		return "denied"
	case errors.Is(res.Err, tools.ErrApprovalDenied),
		errors.Is(res.Err, tools.ErrApprovalTimedOut):
		return "refused"
	default:
		return "error"
	}
}
