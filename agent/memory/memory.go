// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory holds the conversation transcript sent to the reasoner.
//
// The transcript is append-only within a generation. A reset retires the
// whole live sequence and replaces it with a fresh seed, incrementing a
// monotonic generation counter. Retired generations are handed to an
// optional retirement hook (normally the audit log) and are never
// replayed to the reasoner. This is what bounds context growth across
// repair iterations: each repair attempt reasons from the task statement
// plus the latest failure excerpt, not from the transcript of its failed
// predecessors.
//
// Thread Safety:
//
//	Memory is safe for concurrent use. The agent loop is sequential, but
//	observers (status server, audit) may read concurrently.
package memory

import (
	"sync"
	"time"
)

// Turn roles, matching the reasoner wire protocol.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a tool invocation recorded on an assistant turn.
type ToolCall struct {
	// ID is the reasoner-assigned call identifier.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments is the raw JSON argument payload.
	Arguments string `json:"arguments"`
}

// Turn is one role-tagged unit of conversation content.
type Turn struct {
	// Role is system, user, assistant, or tool.
	Role string `json:"role"`

	// Content is the text content.
	Content string `json:"content"`

	// ToolCalls are the calls proposed by an assistant turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool turn back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on a tool turn.
	Name string `json:"name,omitempty"`
}

// SystemTurn builds a system turn.
func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// UserTurn builds a user turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds an assistant turn with optional tool calls.
func AssistantTurn(content string, calls ...ToolCall) Turn {
	return Turn{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolTurn builds a tool-result turn answering a call.
func ToolTurn(callID, toolName, content string) Turn {
	return Turn{Role: RoleTool, Content: content, ToolCallID: callID, Name: toolName}
}

// Generation is a retired transcript snapshot.
type Generation struct {
	// Number is the generation counter value at retirement.
	Number int `json:"number"`

	// Turns is the full retired sequence.
	Turns []Turn `json:"turns"`

	// RetiredAt is when the reset happened.
	RetiredAt time.Time `json:"retired_at"`
}

// RetirementHook receives a retired generation on reset.
//
// The hook runs synchronously under the reset; implementations should be
// quick and must not call back into the Memory.
type RetirementHook func(gen Generation)

// Memory is the generation-counted conversation transcript.
//
// Thread Safety:
//
//	Memory is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	turns      []Turn
	generation int
	retire     RetirementHook
}

// New creates a memory seeded with the given turns at generation 1.
//
// Inputs:
//
//	seed - Initial turns (normally the mode system prompt)
//	retire - Optional hook receiving retired generations (may be nil)
//
// Outputs:
//
//	*Memory - The seeded memory
func New(seed []Turn, retire RetirementHook) *Memory {
	m := &Memory{
		turns:      make([]Turn, len(seed)),
		generation: 1,
		retire:     retire,
	}
	copy(m.turns, seed)
	return m
}

// Append adds a turn to the live generation.
func (m *Memory) Append(turn Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
}

// Reset retires the live generation and starts a new one holding exactly
// the seed.
//
// Description:
//
//	The retired turns are passed to the retirement hook before the new
//	generation becomes visible. After Reset returns, Current contains
//	the seed content and nothing else; no turn from the prior
//	generation leaks through.
//
// Inputs:
//
//	seed - The turns the new generation starts with
func (m *Memory) Reset(seed []Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.retire != nil {
		retired := make([]Turn, len(m.turns))
		copy(retired, m.turns)
		m.retire(Generation{
			Number:    m.generation,
			Turns:     retired,
			RetiredAt: time.Now(),
		})
	}

	m.generation++
	m.turns = make([]Turn, len(seed))
	copy(m.turns, seed)
}

// Current returns a copy of the live generation's turns.
func (m *Memory) Current() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Generation returns the live generation number. Starts at 1 and
// increments on every Reset.
func (m *Memory) Generation() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Len returns the number of turns in the live generation.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}
