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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/moduleforge/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath       string
	workspaceDir     string
	sessionMode      string
	logLevel         string
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	backendOverride string // CLI override for reasoner.backend
	modelOverride   string // CLI override for reasoner.model
	baseURLOverride string // CLI override for reasoner.base_url
	maxIterOverride int    // CLI override for builder.max_iterations

	initOutput string
	initForce  bool

	rootCmd = &cobra.Command{
		Use:   "moduleforge",
		Short: "A governed coding agent that builds one module at a time",
		Long: `Moduleforge runs an LLM coding agent inside a policy boundary:
				every file it touches is checked against the workspace root,
				every command it runs needs your explicit approval, and in
				builder mode it locks onto a single module and repairs it
				against a frozen test spec until the tests pass or the
				iteration budget runs out.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
		Run: runRunCommand, // Bare "moduleforge" starts a session
	}

	// --- Session ---
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start an interactive agent session",
		Run:   runRunCommand, // Defined in cmd_run.go
	}

	// --- Setup ---
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create a starter moduleforge.yaml interactively",
		Run:   runInitCommand, // Defined in cmd_init.go
	}

	// --- Inspection ---
	auditCmd = &cobra.Command{
		Use:   "audit [session-id]",
		Short: "Inspect the recorded audit trail",
		Long: `Audit lists the sessions recorded in the audit store, or with a
				session id, prints that session's full trail: tool dispatches,
				approval decisions, retired conversation generations, and
				workspace changes, in the order they happened.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runAuditCommand, // Defined in cmd_audit.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show build version information",
		Run:   runVersionCommand, // Defined in cmd_version.go
	}
)

// init runs when the Go program starts
func init() {
	// Global flags shared by every command
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (default: ./moduleforge.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "dir", "",
		"Workspace root the agent may touch (default: from config)")
	rootCmd.PersistentFlags().StringVar(&sessionMode, "mode", "",
		"Agent mode: coder, architect, pure_architect, or builder")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(runCmd)
	registerRunFlags(rootCmd)
	registerRunFlags(runCmd)

	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "moduleforge.yaml",
		"Where to write the generated config")
	initCmd.Flags().BoolVar(&initForce, "force", false,
		"Overwrite an existing config file")

	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

// registerRunFlags adds the session override flags. They are registered
// on both the root and run commands so that "moduleforge --backend" and
// "moduleforge run --backend" behave the same.
func registerRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&backendOverride, "backend", "",
		"Reasoner backend override (ollama, openai)")
	cmd.Flags().StringVar(&modelOverride, "model", "",
		"Reasoner model override")
	cmd.Flags().StringVar(&baseURLOverride, "base-url", "",
		"Reasoner endpoint override")
	cmd.Flags().IntVar(&maxIterOverride, "max-iterations", 0,
		"Repair iteration budget override (builder mode)")
}
