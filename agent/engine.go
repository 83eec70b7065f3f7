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
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/moduleforge/agent/llm"
	"github.com/AleutianAI/moduleforge/agent/memory"
	"github.com/AleutianAI/moduleforge/agent/policy"
	"github.com/AleutianAI/moduleforge/agent/tools"
	"github.com/AleutianAI/moduleforge/pkg/logging"
	"github.com/AleutianAI/moduleforge/telemetry"
)

// tracerName identifies this package's spans.
const tracerName = "moduleforge/agent"

// DefaultFaultBudget is how many I/O or command faults a session
// absorbs as reasoner feedback before failing.
const DefaultFaultBudget = 3

// Dispatcher executes parsed tool calls. Satisfied by tools.Gateway.
type Dispatcher interface {
	Execute(ctx context.Context, inv tools.Invocation) (tools.Result, error)
}

// EngineConfig assembles a turn engine.
type EngineConfig struct {
	// Client is the reasoner backend.
	Client llm.Client

	// Memory is the session conversation.
	Memory *memory.Memory

	// Dispatch executes tool calls.
	Dispatch Dispatcher

	// Caps is the session capability profile. The advertised tool
	// catalog is filtered by it.
	Caps tools.Capabilities

	// MaxTokens bounds each completion. Zero means provider default.
	MaxTokens int

	// Temperature is passed through to the reasoner.
	Temperature float64

	// FaultBudget overrides DefaultFaultBudget when positive.
	FaultBudget int

	// Logger defaults to logging.Default.
	Logger *logging.Logger

	// Metrics records dispatch and reasoner instruments when set.
	Metrics *telemetry.Metrics

	// BeforeDispatch runs after parsing, before execution. The
	// controller uses it to arm the workspace watcher.
	BeforeDispatch func(call tools.Call)

	// AfterDispatch runs after every executed call. The controller uses
	// it for audit records and event publication.
	AfterDispatch func(inv tools.Invocation, res tools.Result)
}

// Engine drives one reasoner turn: completion, tool dispatch, and the
// feedback turns carrying results back, until the reasoner stops
// calling tools.
//
// The engine never mutates the workspace itself; every side effect goes
// through the dispatcher.
//
// Thread Safety:
//
//	RunTurn must be called from a single goroutine. SetScope and Scope
//	are safe to call concurrently with it.
type Engine struct {
	client      llm.Client
	memory      *memory.Memory
	dispatch    Dispatcher
	caps        tools.Capabilities
	defs        []tools.Definition
	maxTokens   int
	temperature float64
	faultBudget int
	faults      int
	logger      *logging.Logger
	metrics     *telemetry.Metrics

	beforeDispatch func(call tools.Call)
	afterDispatch  func(inv tools.Invocation, res tools.Result)

	mu    sync.RWMutex
	scope *policy.ModuleScope
}

// NewEngine creates a turn engine from the config.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Client == nil {
		return nil, errors.New("agent: reasoner client is required")
	}
	if cfg.Memory == nil {
		return nil, errors.New("agent: memory is required")
	}
	if cfg.Dispatch == nil {
		return nil, errors.New("agent: dispatcher is required")
	}

	faultBudget := cfg.FaultBudget
	if faultBudget <= 0 {
		faultBudget = DefaultFaultBudget
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Engine{
		client:         cfg.Client,
		memory:         cfg.Memory,
		dispatch:       cfg.Dispatch,
		caps:           cfg.Caps,
		defs:           tools.Definitions(cfg.Caps),
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
		faultBudget:    faultBudget,
		logger:         logger,
		metrics:        cfg.Metrics,
		beforeDispatch: cfg.BeforeDispatch,
		afterDispatch:  cfg.AfterDispatch,
	}, nil
}

// SetScope installs the module boundary for subsequent dispatches. Nil
// restores the workspace boundary.
func (e *Engine) SetScope(scope *policy.ModuleScope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scope = scope
}

// Scope returns the active module boundary, nil for unscoped sessions.
func (e *Engine) Scope() *policy.ModuleScope {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scope
}

// RunTurn feeds one user input through the agent loop.
//
// Description:
//
//	Appends the input, then alternates reasoner completions and tool
//	dispatches until a completion carries no tool calls. Parse
//	failures and guard denials become tool-result feedback; transport
//	errors abort the turn before any dispatch.
//
// Inputs:
//
//	ctx - Cancels the turn
//	input - The user input seeding the turn
//
// Outputs:
//
//	[]string - Assistant texts produced during the turn, in order
//	error - Non-nil when the turn aborted; wraps
//	        ErrReasonerCommunication, tools.ErrNoToolCalls, or
//	        ErrFaultBudgetExhausted for diagnosed aborts
func (e *Engine) RunTurn(ctx context.Context, input string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Engine.RunTurn")
	defer span.End()

	e.memory.Append(memory.UserTurn(input))

	var texts []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := e.complete(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		e.memory.Append(memory.AssistantTurn(resp.Content, resp.ToolCalls...))
		if resp.Content != "" {
			texts = append(texts, resp.Content)
		}

		if len(resp.ToolCalls) == 0 {
			if resp.StopReason == llm.StopToolUse {
				err := fmt.Errorf("reasoner stopped for tool use with none attached: %w",
					tools.ErrNoToolCalls)
				telemetry.RecordError(span, err)
				return nil, err
			}
			return texts, nil
		}

		for _, tc := range resp.ToolCalls {
			if err := e.dispatchCall(ctx, tc); err != nil {
				telemetry.RecordError(span, err)
				return nil, err
			}
		}
	}
}

// complete sends the live conversation to the reasoner.
func (e *Engine) complete(ctx context.Context) (*llm.Response, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Engine.Complete",
		trace.WithAttributes(
			attribute.String("provider", e.client.Name()),
			attribute.String("model", e.client.Model()),
		))
	defer span.End()

	resp, err := e.client.Complete(ctx, &llm.Request{
		Turns:       e.memory.Current(),
		Tools:       e.defs,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})

	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.ReasonerRequestsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", e.client.Name()),
			attribute.String("status", status),
		))
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: %v", ErrReasonerCommunication, err)
	}

	if e.metrics != nil {
		e.metrics.ReasonerRequestDuration.Record(ctx, resp.Duration.Seconds(),
			metric.WithAttributes(attribute.String("provider", e.client.Name())))
		if resp.InputTokens > 0 {
			e.metrics.ReasonerTokensTotal.Add(ctx, int64(resp.InputTokens),
				metric.WithAttributes(attribute.String("direction", "input")))
		}
		if resp.OutputTokens > 0 {
			e.metrics.ReasonerTokensTotal.Add(ctx, int64(resp.OutputTokens),
				metric.WithAttributes(attribute.String("direction", "output")))
		}
	}

	e.logger.Debug("reasoner completion",
		"provider", e.client.Name(),
		"stop_reason", resp.StopReason,
		"tool_calls", len(resp.ToolCalls),
		"duration_ms", resp.Duration.Milliseconds(),
	)
	return resp, nil
}

// dispatchCall parses and executes one tool call, appending the
// result turn.
func (e *Engine) dispatchCall(ctx context.Context, tc memory.ToolCall) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Engine.Dispatch",
		trace.WithAttributes(attribute.String("tool", tc.Name)))
	defer span.End()

	call, perr := tools.Parse(tc.ID, tc.Name, tc.Arguments)
	if perr != nil {
		e.logger.Warn("tool call rejected",
			"tool", tc.Name,
			"call_id", tc.ID,
			"reason", perr.Error(),
		)
		e.memory.Append(memory.ToolTurn(tc.ID, tc.Name, "Error: "+perr.Error()))
		return nil
	}

	if e.beforeDispatch != nil {
		e.beforeDispatch(call)
	}

	inv := tools.Invocation{Call: call, Caps: e.caps, Scope: e.Scope()}
	res, err := e.dispatch.Execute(ctx, inv)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("dispatch %s: %w", call.Name(), err)
	}

	e.recordDispatchMetrics(ctx, res)
	if e.afterDispatch != nil {
		e.afterDispatch(inv, res)
	}

	e.memory.Append(memory.ToolTurn(res.CallID, res.Tool, res.Output))

	if res.Err != nil &&
		(errors.Is(res.Err, tools.ErrIO) || errors.Is(res.Err, tools.ErrCommandExecution)) {
		e.faults++
		if e.faults > e.faultBudget {
			return fmt.Errorf("%w: %d faults over budget %d",
				ErrFaultBudgetExhausted, e.faults, e.faultBudget)
		}
	}
	return nil
}

// recordDispatchMetrics updates the dispatch instruments.
func (e *Engine) recordDispatchMetrics(ctx context.Context, res tools.Result) {
	if e.metrics == nil {
		return
	}

	verdict := dispatchVerdict(res)
	e.metrics.ToolDispatchesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", res.Tool),
		attribute.String("verdict", verdict),
	))
	e.metrics.ToolDispatchDuration.Record(ctx, res.Duration.Seconds(),
		metric.WithAttributes(attribute.String("tool", res.Tool)))

	if res.Command != nil {
		e.metrics.CommandDuration.Record(ctx, res.Command.Duration.Seconds())
	}
	if res.Approval != nil {
		e.metrics.ApprovalsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(res.Approval.Outcome)),
		))
	}
}
