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
	"fmt"
	"strings"

	"github.com/AleutianAI/moduleforge/agent/prompts"
	"github.com/AleutianAI/moduleforge/agent/tools"
)

// Mode selects a session's capability profile at start time.
type Mode string

const (
	// ModeCoder is a general tool-using coding assistant bounded by the
	// workspace root.
	ModeCoder Mode = "coder"

	// ModeArchitect designs module interfaces and specs and may also
	// write implementation code.
	ModeArchitect Mode = "architect"

	// ModePureArchitect produces interfaces, specs, and tests only. It
	// never runs commands.
	ModePureArchitect Mode = "pure_architect"

	// ModeBuilder implements one module at a time inside a locked
	// module scope, driven by the repair loop.
	ModeBuilder Mode = "builder"
)

// AllModes returns every valid mode.
func AllModes() []Mode {
	return []Mode{ModeCoder, ModeArchitect, ModePureArchitect, ModeBuilder}
}

// ParseMode maps a CLI mode name onto the closed set.
func ParseMode(name string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(name))) {
	case ModeCoder:
		return ModeCoder, nil
	case ModeArchitect:
		return ModeArchitect, nil
	case ModePureArchitect:
		return ModePureArchitect, nil
	case ModeBuilder:
		return ModeBuilder, nil
	default:
		return "", fmt.Errorf("%w: %q (valid: coder, architect, pure_architect, builder)",
			ErrUnknownMode, name)
	}
}

// String returns the mode name.
func (m Mode) String() string {
	return string(m)
}

// Valid reports whether the mode is in the closed set.
func (m Mode) Valid() bool {
	switch m {
	case ModeCoder, ModeArchitect, ModePureArchitect, ModeBuilder:
		return true
	}
	return false
}

// Capabilities returns the policy classes the mode grants. The tool
// catalog advertised to the reasoner is filtered by the same set.
func (m Mode) Capabilities() tools.Capabilities {
	if m == ModePureArchitect {
		return tools.Capabilities{Read: true, Write: true}
	}
	return tools.Capabilities{Read: true, Write: true, Execute: true}
}

// UsesRepairLoop reports whether the mode wires the repair loop into
// the turn cycle.
func (m Mode) UsesRepairLoop() bool {
	return m == ModeBuilder
}

// SystemPrompt renders the mode's system prompt over the configured
// artifact names.
func (m Mode) SystemPrompt(a prompts.Artifacts) string {
	switch m {
	case ModeArchitect:
		return prompts.Architect(a)
	case ModePureArchitect:
		return prompts.PureArchitect(a)
	case ModeBuilder:
		return prompts.Builder(a)
	default:
		return prompts.Coder(a)
	}
}
