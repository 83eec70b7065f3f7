// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompts

import "strings"

// Escalation prefixes the Builder prompt instructs the reasoner to emit
// when it is blocked by faults it is not allowed to fix.
const (
	// ArchitectErrorPrefix marks a fault in read-only architect artifacts.
	ArchitectErrorPrefix = "ARCHITECT_ERROR:"

	// DependencyErrorPrefix marks a fault in a module this one depends on.
	DependencyErrorPrefix = "DEPENDENCY_ERROR:"
)

// Signal classifies an escalation found in assistant output.
type Signal int

const (
	// SignalNone means the output carries no escalation.
	SignalNone Signal = iota

	// SignalArchitectFault means the builder is blocked by a read-only
	// architect artifact.
	SignalArchitectFault

	// SignalDependencyFault means the builder is blocked by a foreign
	// module it depends on.
	SignalDependencyFault
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case SignalArchitectFault:
		return "architect_fault"
	case SignalDependencyFault:
		return "dependency_fault"
	default:
		return "none"
	}
}

// DetectSignal scans assistant content for an escalation line.
//
// Description:
//
//	A line beginning with one of the escalation prefixes (after whitespace
//	trimming) is an escalation; the remainder of that line is the reason.
//	The first matching line wins. Retrying a build past an escalation
//	cannot succeed, so callers abort the repair loop on any hit.
//
// Inputs:
//
//	content - The assistant turn content.
//
// Outputs:
//
//	Signal - The escalation kind, SignalNone if absent.
//	string - The reason text, empty if absent.
func DetectSignal(content string) (Signal, string) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if reason, ok := strings.CutPrefix(trimmed, ArchitectErrorPrefix); ok {
			return SignalArchitectFault, strings.TrimSpace(reason)
		}
		if reason, ok := strings.CutPrefix(trimmed, DependencyErrorPrefix); ok {
			return SignalDependencyFault, strings.TrimSpace(reason)
		}
	}
	return SignalNone, ""
}
