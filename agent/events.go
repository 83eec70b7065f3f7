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
)

// EventType classifies session events.
type EventType string

const (
	// EventToolDispatch is one tool call executed by the gateway.
	EventToolDispatch EventType = "tool_dispatch"

	// EventApproval is a human approval decision.
	EventApproval EventType = "approval"

	// EventLoopTransition is one repair loop state transition.
	EventLoopTransition EventType = "loop_transition"

	// EventGenerationRetired is a conversation generation reset.
	EventGenerationRetired EventType = "generation_retired"

	// EventStatus is a session lifecycle change.
	EventStatus EventType = "status"

	// EventModuleLocked is a Builder module lock.
	EventModuleLocked EventType = "module_locked"

	// EventWorkspaceChange is a workspace mutation observed outside the
	// tool gateway.
	EventWorkspaceChange EventType = "workspace_change"
)

// SessionEvent is one observable session occurrence, shaped for JSON
// streaming.
type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`

	// Tool and Verdict describe tool_dispatch and approval events.
	Tool    string `json:"tool,omitempty"`
	Verdict string `json:"verdict,omitempty"`

	// Module names the locked module for builder events.
	Module string `json:"module,omitempty"`

	// From and To describe loop transitions.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Iteration is the repair attempt for loop events.
	Iteration int `json:"iteration,omitempty"`

	// Generation is the conversation generation for retirement events.
	Generation int `json:"generation,omitempty"`

	// Status carries the new lifecycle status for status events.
	Status Status `json:"status,omitempty"`

	// Detail is a short free-form summary.
	Detail string `json:"detail,omitempty"`
}

// Broadcaster fans session events out to subscribers.
//
// Publishing never blocks: a subscriber that falls behind loses events
// rather than stalling the agent path.
//
// Thread Safety: safe for concurrent use.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan SessionEvent
	nextID int
	closed bool
}

// subscriberBuffer is the per-subscriber channel depth.
const subscriberBuffer = 64

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan SessionEvent)}
}

// Subscribe registers a subscriber. The cancel func must be called when
// the subscriber is done; it closes the channel.
func (b *Broadcaster) Subscribe() (<-chan SessionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan SessionEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers the event to every subscriber, dropping it for any
// whose buffer is full.
func (b *Broadcaster) Publish(ev SessionEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
