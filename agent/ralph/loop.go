// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ralph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/moduleforge/agent/memory"
	"github.com/AleutianAI/moduleforge/agent/policy"
	"github.com/AleutianAI/moduleforge/agent/prompts"
	"github.com/AleutianAI/moduleforge/agent/tools"
	"github.com/AleutianAI/moduleforge/pkg/logging"
)

// DefaultMaxIterations is the repair budget when none is configured.
const DefaultMaxIterations = 5

// DefaultTestCommand returns the test invocation for a module directory.
func DefaultTestCommand(module string) string {
	return "python -m pytest " + module
}

// TurnRunner drives one full reasoner exchange: it appends the input as
// a user turn, dispatches any tool calls the reasoner proposes, and
// returns once the reasoner stops calling tools.
//
// The returned slice holds the assistant texts produced during the
// exchange, in order. An error means the exchange could not complete
// (reasoner transport failure or a session-fatal tool dispatch) and the
// workspace state for this attempt is undefined.
type TurnRunner interface {
	RunTurn(ctx context.Context, input string) ([]string, error)
}

// Dispatcher executes a tool call. Satisfied by tools.Gateway.
type Dispatcher interface {
	Execute(ctx context.Context, inv tools.Invocation) (tools.Result, error)
}

// TestRunResult is the loop's view of one executed test invocation.
type TestRunResult struct {
	// Passed is true when the test process exited zero.
	Passed bool `json:"passed"`

	// ExitCode is the test process exit code, -1 when it did not run
	// to completion.
	ExitCode int `json:"exit_code"`

	// Output is the captured stdout followed by stderr.
	Output string `json:"output"`

	// TimedOut is true when the run was killed by the command timeout.
	TimedOut bool `json:"timed_out,omitempty"`
}

// Outcome describes how a repair loop ended.
type Outcome struct {
	// State is the loop state when Run returned: SUCCESS or EXHAUSTED
	// for loops that ran to completion, IMPLEMENTING when an
	// escalation signal aborted the run.
	State State `json:"state"`

	// Iterations is the 1-based attempt number the loop ended on.
	Iterations int `json:"iterations"`

	// Fault is the escalation signal that aborted the loop, if any.
	Fault prompts.Signal `json:"fault,omitempty"`

	// FaultReason is the reasoner's text after the signal marker.
	FaultReason string `json:"fault_reason,omitempty"`

	// Excerpt is the trimmed failure output of the final test run.
	// Empty on success.
	Excerpt string `json:"excerpt,omitempty"`

	// LastResult is the final test run, nil if the loop aborted before
	// any test executed.
	LastResult *TestRunResult `json:"last_result,omitempty"`
}

// Config assembles a repair loop.
type Config struct {
	// Module is the locked module directory, workspace-relative.
	Module string

	// TestCommand overrides the pytest invocation for the module.
	TestCommand string

	// System is the rendered builder system prompt. Retired
	// generations are reseeded with it.
	System string

	// Artifacts names the per-module files referenced in repair seeds.
	Artifacts prompts.Artifacts

	// MaxIterations caps test runs. DefaultMaxIterations when <= 0.
	MaxIterations int

	// ExcerptBudget bounds the failure excerpt carried between
	// generations. DefaultExcerptBudget when <= 0.
	ExcerptBudget int

	// Caps is the capability set test invocations execute under.
	Caps tools.Capabilities

	// Scope is the module boundary test invocations execute under.
	Scope *policy.ModuleScope

	// Memory is the conversation the loop retires and reseeds.
	Memory *memory.Memory

	// Turns drives the reasoner exchanges.
	Turns TurnRunner

	// Dispatch executes the test invocation.
	Dispatch Dispatcher

	// Logger defaults to logging.Default.
	Logger *logging.Logger

	// Observer, when set, receives every state transition. It runs on
	// the loop goroutine and must not block.
	Observer func(from, to State, iteration int)
}

// Loop is one bounded repair loop over a locked module.
//
// A Loop runs once; construct a new one per module lock.
//
// Thread Safety:
//
//	Run must be called from a single goroutine. State and Iteration
//	are safe to call concurrently with Run.
type Loop struct {
	mu        sync.RWMutex
	state     State
	iteration int

	machine       *StateMachine
	module        string
	testCommand   string
	system        string
	artifacts     prompts.Artifacts
	maxIterations int
	excerptBudget int
	caps          tools.Capabilities
	scope         *policy.ModuleScope
	memory        *memory.Memory
	turns         TurnRunner
	dispatch      Dispatcher
	logger        *logging.Logger
	observer      func(from, to State, iteration int)
}

// New creates a repair loop from the config.
func New(cfg Config) (*Loop, error) {
	if cfg.Module == "" {
		return nil, errors.New("ralph: module is required")
	}
	if cfg.System == "" {
		return nil, errors.New("ralph: system prompt is required")
	}
	if cfg.Memory == nil {
		return nil, errors.New("ralph: memory is required")
	}
	if cfg.Turns == nil {
		return nil, errors.New("ralph: turn runner is required")
	}
	if cfg.Dispatch == nil {
		return nil, errors.New("ralph: dispatcher is required")
	}

	testCommand := cfg.TestCommand
	if testCommand == "" {
		testCommand = DefaultTestCommand(cfg.Module)
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Loop{
		state:         StateImplementing,
		iteration:     1,
		machine:       DefaultStateMachine,
		module:        cfg.Module,
		testCommand:   testCommand,
		system:        cfg.System,
		artifacts:     cfg.Artifacts,
		maxIterations: maxIterations,
		excerptBudget: cfg.ExcerptBudget,
		caps:          cfg.Caps,
		scope:         cfg.Scope,
		memory:        cfg.Memory,
		turns:         cfg.Turns,
		dispatch:      cfg.Dispatch,
		logger:        logger,
		observer:      cfg.Observer,
	}, nil
}

// State returns the current loop state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Iteration returns the 1-based attempt number currently underway.
func (l *Loop) Iteration() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.iteration
}

func (l *Loop) setState(to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = to
}

func (l *Loop) bumpIteration() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.iteration++
}

// Run drives the loop to completion.
//
// Description:
//
//	Each attempt lets the reasoner work until it stops calling tools,
//	then runs the module's tests through the dispatcher. A pass ends
//	the loop; a failure inside budget retires the conversation and
//	reseeds it with the trimmed failure excerpt; a failure on the last
//	budgeted attempt ends the loop as EXHAUSTED. A reasoner turn
//	carrying an escalation signal aborts immediately: the fault lies
//	outside the locked module and repairing cannot fix it.
//
// Inputs:
//
//	ctx - Cancels the run
//	instruction - The user task seeding the first attempt
//
// Outputs:
//
//	*Outcome - How the loop ended; nil only on session-fatal errors
//	error - Nil exactly when the tests passed. Wraps
//	        ErrMaxIterationsExceeded, ErrArchitectFault, or
//	        ErrDependencyFault for diagnosed endings; other errors are
//	        session-fatal (transport, cancellation, refused test runs).
func (l *Loop) Run(ctx context.Context, instruction string) (*Outcome, error) {
	input := instruction
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		texts, err := l.turns.RunTurn(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("attempt %d: %w", l.Iteration(), err)
		}

		if sig, reason := firstSignal(texts); sig != prompts.SignalNone {
			return l.abort(sig, reason)
		}

		if err := l.advance(StateTesting); err != nil {
			return nil, err
		}

		result, err := l.runTests(ctx)
		if err != nil {
			return nil, err
		}

		if result.Passed {
			if err := l.advance(StateSuccess); err != nil {
				return nil, err
			}
			l.logger.Info("module tests passed",
				"module", l.module,
				"iteration", l.Iteration())
			return &Outcome{
				State:      StateSuccess,
				Iterations: l.Iteration(),
				LastResult: result,
			}, nil
		}

		excerpt := TrimExcerpt(result.Output, l.excerptBudget)

		if l.Iteration() >= l.maxIterations {
			if err := l.advance(StateExhausted); err != nil {
				return nil, err
			}
			l.logger.Warn("repair budget spent",
				"module", l.module,
				"iterations", l.Iteration(),
				"exit_code", result.ExitCode)
			out := &Outcome{
				State:      StateExhausted,
				Iterations: l.Iteration(),
				Excerpt:    excerpt,
				LastResult: result,
			}
			return out, fmt.Errorf("module %s: %w after %d iterations",
				l.module, ErrMaxIterationsExceeded, l.Iteration())
		}

		if err := l.advance(StateRepairing); err != nil {
			return nil, err
		}

		l.memory.Reset([]memory.Turn{memory.SystemTurn(l.system)})
		input = prompts.RepairSeed(l.module, excerpt, l.artifacts)
		l.bumpIteration()

		if err := l.advance(StateImplementing); err != nil {
			return nil, err
		}
		l.logger.Info("repair generation seeded",
			"module", l.module,
			"iteration", l.Iteration(),
			"generation", l.memory.Generation(),
			"excerpt_size", len(excerpt))
	}
}

// runTests dispatches the test invocation and shapes the outcome.
//
// A result with no command outcome means the run was refused before it
// executed (policy, capability, or approval). The loop cannot verify
// anything without tests, so that is fatal rather than a repair round.
func (l *Loop) runTests(ctx context.Context) (*TestRunResult, error) {
	call := tools.RunCommandCall{
		ID:      fmt.Sprintf("test-run-%d", l.Iteration()),
		Command: l.testCommand,
	}

	res, err := l.dispatch.Execute(ctx, tools.Invocation{
		Call:  call,
		Caps:  l.caps,
		Scope: l.scope,
	})
	if err != nil {
		return nil, fmt.Errorf("test invocation: %w", err)
	}
	if res.Command == nil {
		if res.Err != nil {
			return nil, fmt.Errorf("test invocation %q: %w", l.testCommand, res.Err)
		}
		return nil, fmt.Errorf("test invocation %q produced no run result", l.testCommand)
	}

	return &TestRunResult{
		Passed:   res.Command.ExitCode == 0,
		ExitCode: res.Command.ExitCode,
		Output:   res.Command.Output,
		TimedOut: res.Command.TimedOut,
	}, nil
}

// abort ends the loop on an escalation signal.
func (l *Loop) abort(sig prompts.Signal, reason string) (*Outcome, error) {
	l.logger.Warn("repair loop aborted by escalation signal",
		"module", l.module,
		"signal", sig.String(),
		"reason", reason)

	out := &Outcome{
		State:       l.State(),
		Iterations:  l.Iteration(),
		Fault:       sig,
		FaultReason: reason,
	}

	base := ErrArchitectFault
	if sig == prompts.SignalDependencyFault {
		base = ErrDependencyFault
	}
	if reason == "" {
		return out, fmt.Errorf("module %s: %w", l.module, base)
	}
	return out, fmt.Errorf("module %s: %w: %s", l.module, base, reason)
}

// advance moves the loop to the target state and logs the transition.
func (l *Loop) advance(to State) error {
	from := l.State()
	if err := l.machine.Transition(l, to); err != nil {
		return err
	}
	l.logger.Debug("repair loop transition",
		"module", l.module,
		"from", from.String(),
		"to", to.String(),
		"reason", l.machine.TransitionReason(from, to))
	if l.observer != nil {
		l.observer(from, to, l.Iteration())
	}
	return nil
}

// firstSignal scans assistant texts for the first escalation signal.
func firstSignal(texts []string) (prompts.Signal, string) {
	for _, text := range texts {
		if sig, reason := prompts.DetectSignal(text); sig != prompts.SignalNone {
			return sig, reason
		}
	}
	return prompts.SignalNone, ""
}
