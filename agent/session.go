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
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive means the session accepts input.
	StatusActive Status = "ACTIVE"

	// StatusCompleted means the session ended successfully. The process
	// exits zero exactly when the session ends here.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed means the session ended on an unrecoverable fault,
	// an exhausted repair budget, or an escalation signal.
	StatusFailed Status = "FAILED"
)

// IsTerminal reports whether the status accepts no further input.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is one agent session: a mode fixed at start, a lifecycle
// status, and bookkeeping for the status surface.
//
// Thread Safety:
//
//	Session is safe for concurrent use.
type Session struct {
	// ID uniquely identifies the session in audit records and events.
	ID string

	// Mode is fixed at session start.
	Mode Mode

	// StartedAt is when the session was created.
	StartedAt time.Time

	mu          sync.RWMutex
	status      Status
	module      string
	iteration   int
	lastEventAt time.Time
}

// NewSession creates an active session in the given mode.
func NewSession(mode Mode) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          uuid.NewString(),
		Mode:        mode,
		StartedAt:   now,
		status:      StatusActive,
		lastEventAt: now,
	}
}

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Complete moves the session to COMPLETED. Terminal statuses are
// sticky; completing an already-ended session is a no-op.
func (s *Session) Complete() {
	s.end(StatusCompleted)
}

// Fail moves the session to FAILED.
func (s *Session) Fail() {
	s.end(StatusFailed)
}

func (s *Session) end(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return
	}
	s.status = status
	s.lastEventAt = time.Now().UTC()
}

// SetModule records the module a Builder session is locked to. Empty
// clears the lock.
func (s *Session) SetModule(module string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.module = module
}

// SetIteration records the repair loop attempt currently underway.
func (s *Session) SetIteration(iteration int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration = iteration
}

// Touch stamps the last-event time.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEventAt = time.Now().UTC()
}

// Snapshot is a point-in-time view of a session for the status surface.
type Snapshot struct {
	ID          string    `json:"id"`
	Mode        Mode      `json:"mode"`
	Status      Status    `json:"status"`
	Module      string    `json:"module,omitempty"`
	Generation  int       `json:"generation"`
	Iteration   int       `json:"iteration,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	LastEventAt time.Time `json:"last_event_at"`
}

// snapshot assembles the session-owned part of a Snapshot; the
// controller fills in the conversation generation.
func (s *Session) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:          s.ID,
		Mode:        s.Mode,
		Status:      s.status,
		Module:      s.module,
		Iteration:   s.iteration,
		StartedAt:   s.StartedAt,
		LastEventAt: s.lastEventAt,
	}
}
