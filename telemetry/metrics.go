// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined instruments for the agent.
//
// Description:
//
//	Standard counters and histograms for tool dispatches, approvals,
//	reasoner traffic, and the repair loop. All metrics use the
//	"moduleforge_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Tool gateway ---

	// ToolDispatchesTotal counts tool dispatches by tool and verdict.
	ToolDispatchesTotal metric.Int64Counter

	// ToolDispatchDuration records tool dispatch duration in seconds.
	ToolDispatchDuration metric.Float64Histogram

	// CommandDuration records subprocess wall time in seconds.
	CommandDuration metric.Float64Histogram

	// ApprovalsTotal counts approval decisions by outcome.
	ApprovalsTotal metric.Int64Counter

	// --- Reasoner ---

	// ReasonerRequestsTotal counts reasoner completions by provider and
	// status.
	ReasonerRequestsTotal metric.Int64Counter

	// ReasonerRequestDuration records reasoner round-trip time in seconds.
	ReasonerRequestDuration metric.Float64Histogram

	// ReasonerTokensTotal counts prompt and completion tokens by direction.
	ReasonerTokensTotal metric.Int64Counter

	// --- Repair loop ---

	// RepairIterationsTotal counts repair generations seeded, by module.
	RepairIterationsTotal metric.Int64Counter

	// GenerationsRetiredTotal counts conversation generations retired.
	GenerationsRetiredTotal metric.Int64Counter

	// --- Sessions and workspace ---

	// SessionsEndedTotal counts session terminations by mode and status.
	SessionsEndedTotal metric.Int64Counter

	// WorkspaceMutationsTotal counts file mutations observed outside the
	// tool gateway.
	WorkspaceMutationsTotal metric.Int64Counter
}

// NewMetrics creates a Metrics instance with all instruments registered
// on the given meter.
//
// Example:
//
//	meter := otel.Meter("moduleforge")
//	metrics, err := telemetry.NewMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.ToolDispatchesTotal.Add(ctx, 1, ...)
//
// Thread Safety: Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ToolDispatchesTotal, err = meter.Int64Counter(
		"moduleforge_tool_dispatches_total",
		metric.WithDescription("Total tool dispatches"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tool_dispatches_total: %w", err)
	}

	m.ToolDispatchDuration, err = meter.Float64Histogram(
		"moduleforge_tool_dispatch_duration_seconds",
		metric.WithDescription("Tool dispatch duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60),
	)
	if err != nil {
		return nil, fmt.Errorf("create tool_dispatch_duration: %w", err)
	}

	m.CommandDuration, err = meter.Float64Histogram(
		"moduleforge_command_duration_seconds",
		metric.WithDescription("Subprocess wall time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, fmt.Errorf("create command_duration: %w", err)
	}

	m.ApprovalsTotal, err = meter.Int64Counter(
		"moduleforge_approvals_total",
		metric.WithDescription("Approval decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create approvals_total: %w", err)
	}

	m.ReasonerRequestsTotal, err = meter.Int64Counter(
		"moduleforge_reasoner_requests_total",
		metric.WithDescription("Total reasoner completion requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reasoner_requests_total: %w", err)
	}

	m.ReasonerRequestDuration, err = meter.Float64Histogram(
		"moduleforge_reasoner_request_duration_seconds",
		metric.WithDescription("Reasoner round-trip time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create reasoner_request_duration: %w", err)
	}

	m.ReasonerTokensTotal, err = meter.Int64Counter(
		"moduleforge_reasoner_tokens_total",
		metric.WithDescription("Prompt and completion tokens by direction"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reasoner_tokens_total: %w", err)
	}

	m.RepairIterationsTotal, err = meter.Int64Counter(
		"moduleforge_repair_iterations_total",
		metric.WithDescription("Repair generations seeded"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create repair_iterations_total: %w", err)
	}

	m.GenerationsRetiredTotal, err = meter.Int64Counter(
		"moduleforge_generations_retired_total",
		metric.WithDescription("Conversation generations retired"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create generations_retired_total: %w", err)
	}

	m.SessionsEndedTotal, err = meter.Int64Counter(
		"moduleforge_sessions_ended_total",
		metric.WithDescription("Session terminations by mode and status"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sessions_ended_total: %w", err)
	}

	m.WorkspaceMutationsTotal, err = meter.Int64Counter(
		"moduleforge_workspace_mutations_total",
		metric.WithDescription("File mutations observed outside the tool gateway"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create workspace_mutations_total: %w", err)
	}

	return m, nil
}
