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
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
)

// ErrNonInteractive is returned by prompts that require a terminal
// when the session runs in machine mode or without one.
var ErrNonInteractive = errors.New("interactive prompt unavailable")

// PromptOption is one selectable choice in a select prompt.
type PromptOption struct {
	// Label is the display text for the option.
	Label string

	// Description gives extra context shown below the label.
	Description string

	// Value is returned when the option is chosen.
	Value string

	// Recommended marks the default choice. It is annotated in the
	// list and used as the answer in non-interactive contexts.
	Recommended bool
}

// aleutianTheme returns the huh form theme in the Aleutian palette.
func aleutianTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = t.Focused.Title.Foreground(ColorTealBright).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(ColorSlate)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(ColorTealPrimary)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(ColorTealBright)
	t.Focused.FocusedButton = t.Focused.FocusedButton.Background(ColorTealPrimary)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(ColorError)

	t.Blurred.Title = t.Blurred.Title.Foreground(ColorSlate)

	return t
}

// truncate shortens s to maxLen runes of ASCII, ellipsized.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// recommendedValue returns the recommended option's value, falling
// back to the first option.
func recommendedValue(options []PromptOption) string {
	for _, opt := range options {
		if opt.Recommended {
			return opt.Value
		}
	}
	if len(options) > 0 {
		return options[0].Value
	}
	return ""
}

// SelectPrompt asks the user to pick one of the options.
//
// In non-interactive contexts the recommended option is returned
// without prompting, so scripted runs never block on a form.
func SelectPrompt(title, description string, options []PromptOption) (string, error) {
	if len(options) == 0 {
		return "", errors.New("select prompt needs at least one option")
	}
	if !IsInteractive() {
		return recommendedValue(options), nil
	}

	huhOptions := make([]huh.Option[string], 0, len(options))
	for _, opt := range options {
		label := opt.Label
		if opt.Recommended {
			label += " (recommended)"
		}
		if opt.Description != "" {
			label = fmt.Sprintf("%s - %s", label, truncate(opt.Description, 60))
		}
		huhOptions = append(huhOptions, huh.NewOption(label, opt.Value))
	}

	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(title).
			Description(description).
			Options(huhOptions...).
			Value(&value),
	)).WithTheme(aleutianTheme())

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("select prompt: %w", err)
	}
	return value, nil
}

// ConfirmPrompt asks a yes/no question.
//
// Non-interactive contexts answer no, matching the fail-closed
// posture of the approval gate.
func ConfirmPrompt(title, description string) (bool, error) {
	if !IsInteractive() {
		return false, nil
	}

	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Affirmative("Yes").
			Negative("No").
			Value(&confirmed),
	)).WithTheme(aleutianTheme())

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirm prompt: %w", err)
	}
	return confirmed, nil
}

// InputPrompt asks for a line of text, optionally validated.
//
// There is no sensible scripted answer for free-form input, so
// non-interactive contexts get ErrNonInteractive.
func InputPrompt(title, placeholder string, validate func(string) error) (string, error) {
	if !IsInteractive() {
		return "", ErrNonInteractive
	}

	input := huh.NewInput().
		Title(title).
		Placeholder(placeholder)
	if validate != nil {
		input = input.Validate(validate)
	}

	var value string
	form := huh.NewForm(huh.NewGroup(input.Value(&value))).WithTheme(aleutianTheme())

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("input prompt: %w", err)
	}
	return value, nil
}
