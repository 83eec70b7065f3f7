// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file assembles and runs one agent session: config, logging,
// telemetry, secrets, the reasoner client, the policy guard, the tool
// gateway, the session controller, and the observers around them.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/moduleforge/agent"
	"github.com/AleutianAI/moduleforge/agent/approval"
	"github.com/AleutianAI/moduleforge/agent/llm"
	"github.com/AleutianAI/moduleforge/agent/policy"
	"github.com/AleutianAI/moduleforge/agent/tools"
	"github.com/AleutianAI/moduleforge/audit"
	"github.com/AleutianAI/moduleforge/cmd/moduleforge/config"
	"github.com/AleutianAI/moduleforge/pkg/logging"
	"github.com/AleutianAI/moduleforge/pkg/ux"
	"github.com/AleutianAI/moduleforge/secrets"
	"github.com/AleutianAI/moduleforge/server"
	"github.com/AleutianAI/moduleforge/telemetry"
	"github.com/AleutianAI/moduleforge/validate"
	"github.com/AleutianAI/moduleforge/workspace"
)

// Exit codes. Session outcome maps to 0 or 1; startup problems that
// never reached a session exit with 2.
const (
	exitCompleted = 0
	exitFailed    = 1
	exitConfig    = 2
)

func runRunCommand(cmd *cobra.Command, args []string) {
	os.Exit(runSession())
}

// runSession assembles the stack, runs the REPL, and maps the final
// session status to an exit code. Kept separate from the cobra handler
// so deferred cleanup runs before os.Exit.
func runSession() int {
	cfg, err := resolveConfig()
	if err != nil {
		ux.Error("Invalid configuration: " + err.Error())
		return exitConfig
	}
	applyConfigPersonality(cfg)

	mode, err := agent.ParseMode(cfg.Session.Mode)
	if err != nil {
		ux.Error(err.Error())
		return exitConfig
	}
	root, err := filepath.Abs(cfg.Session.Workspace)
	if err != nil {
		ux.Error("Cannot resolve workspace: " + err.Error())
		return exitConfig
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		ux.Error(err.Error())
		return exitConfig
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "moduleforge",
		JSON:    cfg.Logging.JSON,
	})

	// Ctrl+C cancels the session context; the loop finishes the
	// in-flight turn boundary and shuts down cleanly.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	metrics, telemetryCleanup, err := initTelemetry(ctx, cfg, logger)
	if err != nil {
		ux.Error("Telemetry initialization failed: " + err.Error())
		return exitConfig
	}
	defer telemetryCleanup()

	client, reasonerCleanup, err := buildReasoner(cfg, logger)
	if err != nil {
		ux.Error("Reasoner setup failed: " + err.Error())
		return exitConfig
	}
	defer reasonerCleanup()

	guard, err := policy.NewGuard(root, cfg.Policy.Deny)
	if err != nil {
		ux.Error("Workspace rejected: " + err.Error())
		return exitConfig
	}

	gateway, err := tools.NewGateway(guard, buildApprover(cfg), buildRunner(cfg, root), &tools.GatewayOptions{
		Screener: validate.NewSyntaxScreener(),
		Logger:   logger,
	})
	if err != nil {
		ux.Error("Gateway setup failed: " + err.Error())
		return exitConfig
	}

	store, auditCleanup := openAuditStore(cfg, logger)
	defer auditCleanup()

	events := agent.NewBroadcaster()
	defer events.Close()

	var locator *workspace.Locator
	if mode == agent.ModeBuilder {
		locator, err = workspace.NewLocator(root, cfg.Builder.Artifacts.TestSpec)
		if err != nil {
			ux.Error("Builder setup failed: " + err.Error())
			return exitConfig
		}
	}

	promptCtx := ""
	if gomod, ok, probeErr := workspace.ProbeGoModule(root); probeErr == nil && ok {
		promptCtx = gomod.PromptContext()
	}

	ctrl, err := agent.NewController(agent.ControllerConfig{
		Mode:          mode,
		WorkspaceRoot: root,
		Client:        client,
		Gateway:       gateway,
		Artifacts:     cfg.Artifacts(),
		PromptContext: promptCtx,
		Audit:         store,
		Events:        events,
		Locator:       locator,
		MaxTokens:     cfg.Reasoner.MaxTokens,
		Temperature:   cfg.Reasoner.Temperature,
		MaxIterations: cfg.Builder.MaxIterations,
		ExcerptBudget: cfg.Builder.ExcerptBytes,
		TestCommand:   cfg.TestCommandFunc(),
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		ux.Error("Session setup failed: " + err.Error())
		return exitConfig
	}

	stopObservers := startObservers(ctx, cfg, root, ctrl, events, logger)
	defer stopObservers()

	runner := NewSessionRunner(SessionRunnerConfig{
		Controller: ctrl,
		Events:     events,
		Header: ux.HeaderConfig{
			Mode:      mode.String(),
			Workspace: root,
			Backend:   cfg.Reasoner.Backend,
			Model:     cfg.Reasoner.Model,
			SessionID: ctrl.Snapshot().ID,
		},
	})
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("session loop failed", "error", err)
	}

	if ctrl.Finish() == agent.StatusCompleted {
		return exitCompleted
	}
	return exitFailed
}

// resolveConfig loads the config file and layers the CLI overrides on
// top, then re-validates so an override cannot smuggle in an invalid
// value.
func resolveConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadOrDefault(config.DefaultPath)
	}
	if err != nil {
		return nil, err
	}

	if workspaceDir != "" {
		cfg.Session.Workspace = workspaceDir
	}
	if sessionMode != "" {
		cfg.Session.Mode = sessionMode
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if backendOverride != "" {
		cfg.Reasoner.Backend = backendOverride
	}
	if modelOverride != "" {
		cfg.Reasoner.Model = modelOverride
	}
	if baseURLOverride != "" {
		cfg.Reasoner.BaseURL = baseURLOverride
	}
	if maxIterOverride > 0 {
		cfg.Builder.MaxIterations = maxIterOverride
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyConfigPersonality applies the config file's personality, losing
// to the --personality flag and the environment variable, both already
// applied in PersistentPreRun.
func applyConfigPersonality(cfg *config.Config) {
	if personalityLevel != "" || os.Getenv("MODULEFORGE_PERSONALITY") != "" {
		return
	}
	if cfg.Personality != "" {
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(cfg.Personality))
	}
}

// initTelemetry installs the tracer and meter providers when telemetry
// is enabled. Init failure is fatal by contract: an operator who turned
// telemetry on is owed the signal, not a silent no-op.
func initTelemetry(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*telemetry.Metrics, func(), error) {
	if !cfg.Telemetry.Enabled {
		return nil, func() {}, nil
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.Config)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		if err := shutdown(shCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}

	metrics, err := telemetry.NewMetrics(otel.Meter("moduleforge"))
	if err != nil {
		logger.Warn("metrics registration failed", "error", err)
		return nil, cleanup, nil
	}
	return metrics, cleanup, nil
}

// buildReasoner creates the configured LLM client. For the openai
// backend the API key is held in a locked vault and wiped on exit; the
// client reads it per request through the KeySource seam.
func buildReasoner(cfg *config.Config, logger *logging.Logger) (llm.Client, func(), error) {
	cleanup := func() {}

	var client llm.Client
	switch cfg.Reasoner.Backend {
	case "ollama":
		c, err := llm.NewOllamaClient(llm.OllamaConfig{
			ServerURL: cfg.Reasoner.BaseURL,
			Model:     cfg.Reasoner.Model,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		client = c

	case "openai":
		vault, err := secrets.FromEnv(cfg.Reasoner.KeyEnv)
		if err != nil {
			return nil, nil, fmt.Errorf("load API key from %s: %w", cfg.Reasoner.KeyEnv, err)
		}
		cleanup = func() {
			vault.Destroy()
			secrets.Purge()
		}
		c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL: cfg.Reasoner.BaseURL,
			Model:   cfg.Reasoner.Model,
			Keys:    vault,
			Logger:  logger,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		client = c

	default:
		return nil, nil, fmt.Errorf("unknown reasoner backend %q", cfg.Reasoner.Backend)
	}

	if rpm := cfg.Reasoner.RequestsPerMinute; rpm > 0 {
		client = llm.NewThrottled(client, rpm, cfg.Reasoner.Burst)
	}
	return client, cleanup, nil
}

// buildApprover wires the console approval gate, styled through the
// active personality, optionally short-circuited for sanctioned test
// runs.
func buildApprover(cfg *config.Config) approval.Approver {
	console := approval.NewConsoleApprover(os.Stdin, os.Stdout, &approval.Options{
		Timeout:      time.Duration(cfg.Approval.TimeoutSeconds) * time.Second,
		Affirmatives: cfg.Approval.Affirmatives,
		Prompt:       ux.SecurityPrompt,
	})
	if cfg.Builder.AutoApproveTests {
		return newTestRunApprover(cfg.TestCommandPrefix(), console)
	}
	return console
}

func buildRunner(cfg *config.Config, root string) *tools.ShellRunner {
	timeout := time.Duration(cfg.Builder.CommandTimeoutSeconds) * time.Second
	return tools.NewShellRunner(root, timeout, 0)
}

// openAuditStore opens the badger-backed trail, degrading to the no-op
// store with a warning when the database cannot be opened. Losing the
// trail should not take the session down with it.
func openAuditStore(cfg *config.Config, logger *logging.Logger) (audit.Store, func()) {
	if !cfg.Audit.Enabled {
		return audit.NopStore{}, func() {}
	}

	store, err := audit.Open(audit.Config{
		Dir:        config.ExpandHome(cfg.Audit.Dir),
		SyncWrites: true,
		Logger:     logger,
	})
	if err != nil {
		logger.Warn("audit store unavailable, continuing without persistence",
			"dir", cfg.Audit.Dir,
			"error", err,
		)
		return audit.NopStore{}, func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("audit store close failed", "error", err)
		}
	}
}

// startObservers launches the workspace watcher and the status server.
// Both are observational; their failures log warnings and never end
// the session. The returned stop function cancels them and waits.
func startObservers(ctx context.Context, cfg *config.Config, root string, ctrl *agent.Controller, events *agent.Broadcaster, logger *logging.Logger) func() {
	obsCtx, obsCancel := context.WithCancel(ctx)
	var group errgroup.Group

	if cfg.Watcher.Enabled {
		watcher, err := workspace.NewWatcher(root, ctrl.HandleWorkspaceEvent, &workspace.WatcherOptions{
			Logger: logger,
		})
		if err != nil {
			logger.Warn("workspace watcher unavailable", "error", err)
		} else {
			ctrl.AttachWatcher(watcher)
			group.Go(func() error {
				if err := watcher.Run(obsCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("workspace watcher stopped", "error", err)
				}
				return nil
			})
		}
	}

	if cfg.Server.Enabled {
		srv, err := server.New(server.Config{
			Addr:    cfg.Server.Addr,
			Session: ctrl,
			Events:  events,
			Metrics: telemetry.MetricsHandler(),
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("status server unavailable", "error", err)
		} else {
			group.Go(func() error {
				if err := srv.Run(obsCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("status server stopped", "error", err)
				}
				return nil
			})
		}
	}

	return func() {
		obsCancel()
		_ = group.Wait()
	}
}
