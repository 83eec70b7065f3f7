// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// HeaderConfig groups the fields shown in the session header.
//
// Grouping them in a struct lets the header grow new fields without
// breaking callers.
type HeaderConfig struct {
	// Mode is the agent mode, e.g. "coder" or "builder".
	Mode string

	// Workspace is the workspace root directory.
	Workspace string

	// Backend names the reasoner backend, e.g. "openai".
	Backend string

	// Model is the reasoner model identifier. May be empty.
	Model string

	// SessionID identifies the session. May be empty before start.
	SessionID string
}

// EndSummary groups the fields shown when a session ends.
type EndSummary struct {
	// SessionID identifies the session.
	SessionID string

	// Status is the terminal session status, e.g. "COMPLETED".
	Status string

	// Module is the last locked module. Empty when no build happened.
	Module string

	// Iterations is the last build's repair iteration count.
	Iterations int

	// Duration is the total session duration.
	Duration time.Duration
}

// SessionUI renders the interactive session surface.
//
// Implementations adapt to the personality level; the machine level
// prints stable KEY: value lines for scripting.
type SessionUI interface {
	// Header displays the session header with mode and configuration.
	Header(config HeaderConfig)

	// Prompt returns the styled input prompt string.
	Prompt() string

	// Response displays one of the agent's textual answers.
	Response(text string)

	// Error displays a turn error.
	Error(err error)

	// SessionEnd displays the terminal status and totals.
	SessionEnd(summary EndSummary)
}

// terminalSessionUI implements SessionUI for terminal output
type terminalSessionUI struct {
	writer      io.Writer
	personality PersonalityLevel
}

// NewSessionUI creates a terminal-based SessionUI on stdout
func NewSessionUI() SessionUI {
	return &terminalSessionUI{
		writer:      os.Stdout,
		personality: GetPersonality().Level,
	}
}

// NewSessionUIWithWriter creates a SessionUI with a custom writer (for testing)
func NewSessionUIWithWriter(w io.Writer, personality PersonalityLevel) SessionUI {
	return &terminalSessionUI{
		writer:      w,
		personality: personality,
	}
}

// write is a helper that writes formatted output and handles errors.
// Errors are silently ignored as there's no meaningful recovery for terminal output.
func (u *terminalSessionUI) write(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(u.writer, format, args...); err != nil {
		return
	}
}

// writeln is a helper that writes a line and handles errors.
func (u *terminalSessionUI) writeln(args ...interface{}) {
	if _, err := fmt.Fprintln(u.writer, args...); err != nil {
		return
	}
}

// Header displays the session header.
func (u *terminalSessionUI) Header(config HeaderConfig) {
	switch u.personality {
	case PersonalityMachine:
		u.headerMachine(config)
	case PersonalityMinimal:
		u.headerMinimal(config)
	default:
		u.headerFull(config)
	}
}

// headerMachine renders the header in machine-readable format.
func (u *terminalSessionUI) headerMachine(config HeaderConfig) {
	parts := []string{fmt.Sprintf("mode=%s", config.Mode)}
	if config.Workspace != "" {
		parts = append(parts, fmt.Sprintf("workspace=%s", config.Workspace))
	}
	if config.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", config.Backend))
	}
	if config.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", config.Model))
	}
	if config.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", config.SessionID))
	}
	u.write("SESSION_START: %s\n", strings.Join(parts, " "))
}

// headerMinimal renders the header in minimal format.
func (u *terminalSessionUI) headerMinimal(config HeaderConfig) {
	u.write("moduleforge (%s mode)\n", config.Mode)
	if config.Workspace != "" {
		u.write("Workspace: %s\n", config.Workspace)
	}
	if config.Backend != "" {
		if config.Model != "" {
			u.write("Reasoner: %s (%s)\n", config.Backend, config.Model)
		} else {
			u.write("Reasoner: %s\n", config.Backend)
		}
	}
	u.writeln("Type 'exit' to leave.")
}

// headerFull renders the header with full styling.
func (u *terminalSessionUI) headerFull(config HeaderConfig) {
	var content strings.Builder
	content.WriteString(Styles.Highlight.Render("moduleforge"))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("Mode: %s", Styles.Success.Render(config.Mode)))
	if config.Workspace != "" {
		content.WriteString(fmt.Sprintf("\nWorkspace: %s", config.Workspace))
	}
	if config.Backend != "" {
		reasoner := config.Backend
		if config.Model != "" {
			reasoner = fmt.Sprintf("%s (%s)", config.Backend, config.Model)
		}
		content.WriteString(fmt.Sprintf("\nReasoner: %s", reasoner))
	}
	if config.SessionID != "" {
		content.WriteString("\n")
		content.WriteString(Styles.Muted.Render(fmt.Sprintf("Session: %s", config.SessionID)))
	}

	boxStyle := Styles.Box.Width(60)
	u.writeln(boxStyle.Render(content.String()))
	u.writeln(Styles.Muted.Render("Type 'exit' to leave."))
}

// Prompt returns the styled input prompt.
func (u *terminalSessionUI) Prompt() string {
	if u.personality == PersonalityMachine {
		return "> "
	}
	return Styles.Highlight.Render("❯") + " "
}

// Response displays one of the agent's textual answers.
func (u *terminalSessionUI) Response(text string) {
	if u.personality == PersonalityMachine {
		u.write("RESPONSE: %s\n", strings.ReplaceAll(text, "\n", "\\n"))
		return
	}
	u.writeln(text)
}

// Error displays a turn error.
func (u *terminalSessionUI) Error(err error) {
	if u.personality == PersonalityMachine {
		u.write("ERROR: %v\n", err)
		return
	}
	u.write("%s %s\n", IconError.Render(), Styles.Error.Render(err.Error()))
}

// SessionEnd displays the terminal status and totals.
func (u *terminalSessionUI) SessionEnd(summary EndSummary) {
	if u.personality == PersonalityMachine {
		parts := []string{fmt.Sprintf("status=%s", summary.Status)}
		if summary.Module != "" {
			parts = append(parts, fmt.Sprintf("module=%s", summary.Module))
			parts = append(parts, fmt.Sprintf("iterations=%d", summary.Iterations))
		}
		if summary.SessionID != "" {
			parts = append(parts, fmt.Sprintf("session=%s", summary.SessionID))
		}
		parts = append(parts, fmt.Sprintf("duration=%s", summary.Duration.Round(time.Millisecond)))
		u.write("SESSION_END: %s\n", strings.Join(parts, " "))
		return
	}

	icon := IconSuccess
	style := Styles.Success
	if summary.Status != "COMPLETED" {
		icon = IconError
		style = Styles.Error
	}
	u.write("\n%s %s\n", icon.Render(), style.Render(fmt.Sprintf("Session %s", strings.ToLower(summary.Status))))
	if summary.Module != "" {
		u.write("%s %s\n", Styles.Muted.Render("Module:"), summary.Module)
		u.write("%s %d\n", Styles.Muted.Render("Iterations:"), summary.Iterations)
	}
	u.write("%s %s\n", Styles.Muted.Render("Duration:"), summary.Duration.Round(time.Second))
}

// Ensure implementation satisfies SessionUI
var _ SessionUI = (*terminalSessionUI)(nil)
