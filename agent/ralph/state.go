// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ralph drives the bounded repair loop for Builder sessions.
//
// The loop alternates between letting the reasoner work on the locked
// module and running the module's tests. A failed test run retires the
// conversation and reseeds it with the failure excerpt; a passed run
// ends the loop. The iteration budget guarantees termination.
package ralph

import (
	"fmt"
	"sync"
)

// State is a repair loop state.
type State string

const (
	// StateImplementing is the reasoner working on the implementation
	// artifact. Initial state of every loop and of every repair
	// generation.
	StateImplementing State = "IMPLEMENTING"

	// StateTesting is the test invocation running through the tool
	// gateway.
	StateTesting State = "TESTING"

	// StateRepairing is the conversation being retired and reseeded
	// with the failure excerpt after a failed test run.
	StateRepairing State = "REPAIRING"

	// StateSuccess indicates the tests passed.
	StateSuccess State = "SUCCESS"

	// StateExhausted indicates the tests still failed after the last
	// budgeted iteration.
	StateExhausted State = "EXHAUSTED"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if the state is a terminal state (SUCCESS or
// EXHAUSTED).
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateExhausted
}

// AllStates returns all valid repair loop states.
func AllStates() []State {
	return []State{
		StateImplementing,
		StateTesting,
		StateRepairing,
		StateSuccess,
		StateExhausted,
	}
}

// StateMachine manages valid state transitions for the repair loop.
//
// The state machine enforces the following transition graph:
//
//	IMPLEMENTING → TESTING       : Reasoner turn ended with no tool calls
//	TESTING → SUCCESS            : Test run passed
//	TESTING → REPAIRING          : Test run failed, budget remaining
//	TESTING → EXHAUSTED          : Test run failed, budget spent
//	REPAIRING → IMPLEMENTING     : Conversation reseeded with failure excerpt
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[State]map[State]bool
}

// NewStateMachine creates a new state machine with all valid transitions.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[State]map[State]bool),
	}

	for _, state := range AllStates() {
		sm.transitions[state] = make(map[State]bool)
	}

	sm.addTransition(StateImplementing, StateTesting)

	sm.addTransition(StateTesting, StateSuccess)
	sm.addTransition(StateTesting, StateRepairing)
	sm.addTransition(StateTesting, StateExhausted)

	sm.addTransition(StateRepairing, StateImplementing)

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to State) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one state to another is valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to State) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition attempts to transition a loop from its current state to a
// target state.
//
// Description:
//
//	Validates the transition and updates the loop state if valid.
//	Returns an error if the transition is not allowed.
//
// Inputs:
//
//	loop - The loop to transition
//	to - Target state
//
// Outputs:
//
//	error - ErrInvalidTransition if transition not allowed
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Transition(loop *Loop, to State) error {
	from := loop.State()

	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	loop.setState(to)
	return nil
}

// ValidTransitionsFrom returns all valid transitions from a given state.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) ValidTransitionsFrom(from State) []State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []State
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}

// TransitionReason provides a human-readable description of a transition.
func (sm *StateMachine) TransitionReason(from, to State) string {
	key := from.String() + "->" + to.String()

	reasons := map[string]string{
		"IMPLEMENTING->TESTING":   "Reasoner turn ended with no tool calls",
		"TESTING->SUCCESS":        "Test run passed",
		"TESTING->REPAIRING":      "Test run failed, repair budget remaining",
		"TESTING->EXHAUSTED":      "Test run failed, repair budget spent",
		"REPAIRING->IMPLEMENTING": "Conversation reseeded with failure excerpt",
	}

	if reason, ok := reasons[key]; ok {
		return reason
	}
	return "Unknown transition"
}

// DefaultStateMachine is the shared state machine instance.
var DefaultStateMachine = NewStateMachine()
