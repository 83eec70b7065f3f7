// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists the append-only session audit trail.
//
// Every externally visible act of a session lands here: tool dispatches
// with their verdicts, approval decisions, retired conversation
// generations, session lifecycle events, and workspace mutations seen by
// the watcher. Records are keyed {sessionID}/{seq} with a per-session
// monotonic sequence, so listing a session returns its history in
// insertion order.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Kind classifies an audit record.
type Kind string

const (
	// KindToolDispatch records a tool call executed by the gateway.
	KindToolDispatch Kind = "tool_dispatch"

	// KindApproval records a human approval decision.
	KindApproval Kind = "approval"

	// KindGeneration records a retired conversation generation.
	KindGeneration Kind = "generation_retired"

	// KindSession records a session lifecycle event.
	KindSession Kind = "session_event"

	// KindWorkspace records a workspace mutation observed outside the
	// tool gateway.
	KindWorkspace Kind = "workspace_change"
)

// Record is one append-only audit entry.
type Record struct {
	// SessionID groups records belonging to one session.
	SessionID string `json:"session_id"`

	// Seq is the per-session sequence number, assigned by the store.
	Seq uint64 `json:"seq"`

	// Kind classifies the record.
	Kind Kind `json:"kind"`

	// At is the event time. The store stamps it when zero.
	At time.Time `json:"at"`

	// Tool is the wire tool name for dispatch records.
	Tool string `json:"tool,omitempty"`

	// Summary is a short human-readable description.
	Summary string `json:"summary"`

	// Verdict is the outcome: ok, denied, error, approved, and so on.
	Verdict string `json:"verdict,omitempty"`

	// Duration is the wall-clock time of the recorded operation.
	Duration time.Duration `json:"duration_ns,omitempty"`

	// Detail carries structured payload, such as the full turn
	// sequence of a retired generation.
	Detail json.RawMessage `json:"detail,omitempty"`
}

// Store appends and lists audit records.
//
// Append assigns the sequence number; callers never set Seq themselves.
type Store interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, sessionID string) ([]Record, error)
	Close() error
}

// NopStore discards every record. Used when auditing is disabled.
type NopStore struct{}

// Append discards the record.
func (NopStore) Append(ctx context.Context, rec Record) error { return nil }

// List returns no records.
func (NopStore) List(ctx context.Context, sessionID string) ([]Record, error) {
	return nil, nil
}

// Close does nothing.
func (NopStore) Close() error { return nil }

var _ Store = NopStore{}
