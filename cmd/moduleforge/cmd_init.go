// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/moduleforge/cmd/moduleforge/config"
	"github.com/AleutianAI/moduleforge/pkg/ux"
	"github.com/AleutianAI/moduleforge/pkg/validation"
)

func runInitCommand(cmd *cobra.Command, args []string) {
	if err := runInitWizard(); err != nil {
		ux.Error(err.Error())
		os.Exit(exitConfig)
	}
}

// runInitWizard walks through the choices that matter on first contact
// and writes a starter config. Everything else keeps its default and is
// documented by the written file itself.
func runInitWizard() error {
	if _, err := os.Stat(initOutput); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", initOutput)
	}

	cfg := config.DefaultConfig()

	// Piped or machine-mode runs get the defaults without a dialog;
	// the wizard only makes sense on a terminal.
	if !ux.IsInteractive() {
		if err := config.Write(&cfg, initOutput); err != nil {
			return err
		}
		ux.Info("Wrote default config to " + initOutput)
		return nil
	}

	ux.Title("moduleforge setup")

	backend, err := ux.SelectPrompt("Reasoner backend",
		"Where completions come from",
		[]ux.PromptOption{
			{Label: "Ollama", Description: "Local models, no API key needed", Value: "ollama", Recommended: true},
			{Label: "OpenAI-compatible", Description: "OpenAI, DeepSeek, vLLM, llama.cpp server", Value: "openai"},
		})
	if err != nil {
		return err
	}
	cfg.Reasoner.Backend = backend

	switch backend {
	case "ollama":
		model, err := ux.InputPrompt("Model", cfg.Reasoner.Model, nil)
		if err != nil {
			return err
		}
		if model != "" {
			cfg.Reasoner.Model = model
		}

	case "openai":
		cfg.Reasoner.BaseURL = ""
		cfg.Reasoner.Model = "gpt-4o"
		model, err := ux.InputPrompt("Model", cfg.Reasoner.Model, nil)
		if err != nil {
			return err
		}
		if model != "" {
			cfg.Reasoner.Model = model
		}

		baseURL, err := ux.InputPrompt("Endpoint (empty for api.openai.com)", "https://", nil)
		if err != nil {
			return err
		}
		cfg.Reasoner.BaseURL = strings.TrimSpace(baseURL)

		keyEnv, err := ux.InputPrompt("API key environment variable", "OPENAI_API_KEY", func(s string) error {
			if s == "" {
				return errors.New("required for the openai backend")
			}
			return validation.ValidateEnvName(s)
		})
		if err != nil {
			return err
		}
		cfg.Reasoner.KeyEnv = keyEnv
	}

	workspaceRoot, err := ux.InputPrompt("Workspace directory", cfg.Session.Workspace, nil)
	if err != nil {
		return err
	}
	if workspaceRoot != "" {
		cfg.Session.Workspace = workspaceRoot
	}

	mode, err := ux.SelectPrompt("Default mode",
		"Changeable per run with --mode",
		[]ux.PromptOption{
			{Label: "Coder", Description: "General coding assistant inside the workspace", Value: "coder", Recommended: true},
			{Label: "Architect", Description: "Designs interfaces, tests, and the dependency graph", Value: "architect"},
			{Label: "Pure architect", Description: "Architect without implementation files", Value: "pure_architect"},
			{Label: "Builder", Description: "Locks one module and repairs it until tests pass", Value: "builder"},
		})
	if err != nil {
		return err
	}
	cfg.Session.Mode = mode

	iterations, err := ux.InputPrompt("Repair iteration budget",
		strconv.Itoa(cfg.Builder.MaxIterations),
		func(s string) error {
			if s == "" {
				return nil
			}
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > 50 {
				return errors.New("enter a number between 1 and 50")
			}
			return nil
		})
	if err != nil {
		return err
	}
	if iterations != "" {
		cfg.Builder.MaxIterations, _ = strconv.Atoi(iterations)
	}

	autoApprove, err := ux.ConfirmPrompt("Auto-approve test runs?",
		"Skips the security prompt for the configured pytest command only")
	if err != nil {
		return err
	}
	cfg.Builder.AutoApproveTests = autoApprove

	if err := config.Write(&cfg, initOutput); err != nil {
		return err
	}

	ux.Success("Wrote " + initOutput)
	next := "moduleforge run"
	if cfg.Reasoner.KeyEnv != "" {
		next = "export " + cfg.Reasoner.KeyEnv + "=...  # then: " + next
	}
	ux.Box("Next", next)
	return nil
}
