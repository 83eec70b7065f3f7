// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the moduleforge YAML configuration.
//
// The configuration is loaded once by the CLI layer and passed by value
// to the constructors that need it. Nothing in this package is a global;
// a Config travels explicitly or not at all.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/moduleforge/agent/prompts"
	"github.com/AleutianAI/moduleforge/pkg/validation"
	"github.com/AleutianAI/moduleforge/telemetry"
)

// ModulePlaceholder is the token in a test command template that the
// locked module path replaces.
const ModulePlaceholder = "{module}"

// configValidate is the validator instance for config structs.
// Initialized in init() with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	_ = configValidate.RegisterValidation("artifact", validateArtifact)
	_ = configValidate.RegisterValidation("envname", validateEnvName)
	_ = configValidate.RegisterValidation("testcmd", validateTestCommand)
}

// validateArtifact accepts artifact filenames that are plain basenames,
// no separators and no traversal.
func validateArtifact(fl validator.FieldLevel) bool {
	return validation.ValidateArtifactName(fl.Field().String()) == nil
}

// validateEnvName accepts POSIX-style environment variable names.
func validateEnvName(fl validator.FieldLevel) bool {
	return validation.ValidateEnvName(fl.Field().String()) == nil
}

// validateTestCommand accepts templates that reference the module
// placeholder exactly once.
func validateTestCommand(fl validator.FieldLevel) bool {
	return strings.Count(fl.Field().String(), ModulePlaceholder) == 1
}

// Config is the root moduleforge configuration.
type Config struct {
	// Reasoner selects and parameterizes the LLM backend.
	Reasoner ReasonerConfig `yaml:"reasoner" validate:"required"`

	// Session holds the defaults applied when flags are absent.
	Session SessionConfig `yaml:"session"`

	// Builder tunes the repair loop and the per-module artifact names.
	Builder BuilderConfig `yaml:"builder"`

	// Approval configures the human approval gate for run_command.
	Approval ApprovalConfig `yaml:"approval"`

	// Policy adds workspace paths the guard denies even for reads.
	Policy PolicyConfig `yaml:"policy"`

	// Audit controls the persistent audit trail.
	Audit AuditConfig `yaml:"audit"`

	// Watcher toggles workspace mutation observation.
	Watcher WatcherConfig `yaml:"watcher"`

	// Server configures the read-only status server.
	Server ServerConfig `yaml:"server"`

	// Telemetry configures traces and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Personality overrides the output style: full, standard, minimal,
	// or machine. Empty defers to MODULEFORGE_PERSONALITY and the TTY
	// check.
	Personality string `yaml:"personality" validate:"omitempty,oneof=full standard minimal machine"`
}

// ReasonerConfig selects the LLM backend.
type ReasonerConfig struct {
	// Backend can be "ollama" or "openai". The openai backend speaks to
	// any OpenAI-compatible endpoint (DeepSeek, vLLM, llama.cpp).
	Backend string `yaml:"backend" validate:"required,oneof=ollama openai"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`

	// Model is the model name sent with every request.
	Model string `yaml:"model" validate:"required"`

	// Temperature is passed through to the reasoner.
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`

	// MaxTokens bounds each completion. Zero means provider default.
	MaxTokens int `yaml:"max_tokens" validate:"gte=0"`

	// KeyEnv names the environment variable holding the API key.
	// Required for the openai backend; the key itself never appears in
	// this file.
	KeyEnv string `yaml:"key_env,omitempty" validate:"omitempty,envname"`

	// RequestsPerMinute rate-limits reasoner calls. Zero disables the
	// limiter.
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gte=0"`

	// Burst is the limiter burst size. Zero means RequestsPerMinute.
	Burst int `yaml:"burst" validate:"gte=0"`
}

// SessionConfig holds session defaults.
type SessionConfig struct {
	// Mode is the default agent mode when --mode is absent.
	Mode string `yaml:"mode" validate:"required,oneof=coder architect pure_architect builder"`

	// Workspace is the default workspace root when --dir is absent.
	Workspace string `yaml:"workspace" validate:"required"`
}

// BuilderConfig tunes the repair loop.
type BuilderConfig struct {
	// MaxIterations caps repair attempts per locked module.
	MaxIterations int `yaml:"max_iterations" validate:"gte=1,lte=50"`

	// ExcerptBytes bounds the failure excerpt carried between repair
	// generations. Zero means the built-in default.
	ExcerptBytes int `yaml:"excerpt_bytes" validate:"gte=0"`

	// TestCommand is the test invocation template. {module} is replaced
	// with the locked module path.
	TestCommand string `yaml:"test_command" validate:"required,testcmd"`

	// CommandTimeoutSeconds bounds each run_command subprocess. Zero
	// means no limit.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds" validate:"gte=0"`

	// AutoApproveTests approves commands matching the test command
	// template without prompting. Everything else still goes through
	// the gate.
	AutoApproveTests bool `yaml:"auto_approve_tests"`

	// Artifacts names the per-module files.
	Artifacts ArtifactConfig `yaml:"artifacts"`
}

// ArtifactConfig names the per-module artifact files.
type ArtifactConfig struct {
	Interface       string `yaml:"interface" validate:"required,artifact"`
	TestSpec        string `yaml:"test_spec" validate:"required,artifact"`
	Prompt          string `yaml:"prompt" validate:"required,artifact"`
	Implementation  string `yaml:"implementation" validate:"required,artifact"`
	DependencyGraph string `yaml:"dependency_graph" validate:"required,artifact"`
}

// ApprovalConfig configures the human approval gate.
type ApprovalConfig struct {
	// TimeoutSeconds bounds how long a prompt waits before denying.
	// Zero blocks indefinitely.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gte=0"`

	// Affirmatives are the tokens that approve. Empty means "y"/"yes".
	Affirmatives []string `yaml:"affirmatives,omitempty"`
}

// PolicyConfig extends the guard's deny list.
type PolicyConfig struct {
	// Deny lists path basenames or workspace-relative paths that are
	// off-limits even inside the workspace.
	Deny []string `yaml:"deny,omitempty"`
}

// AuditConfig controls the persistent audit trail.
type AuditConfig struct {
	// Enabled turns the badger-backed store on.
	Enabled bool `yaml:"enabled"`

	// Dir is the database directory. Supports ~ expansion.
	Dir string `yaml:"dir,omitempty"`
}

// WatcherConfig toggles workspace observation.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Addr is the listen address.
	Addr string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

// TelemetryConfig wraps the telemetry settings with an enable switch.
// When disabled, no providers are installed and init failures cannot
// occur.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	telemetry.Config `yaml:",inline"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string `yaml:"level" validate:"required,oneof=debug info warn error"`

	// Dir enables file logging when set. Supports ~ expansion.
	Dir string `yaml:"dir,omitempty"`

	// JSON switches stderr output to JSON objects.
	JSON bool `yaml:"json"`
}

// DefaultConfig returns a configuration that works against a local
// Ollama server with no further setup.
func DefaultConfig() Config {
	defaults := prompts.DefaultArtifacts()
	return Config{
		Reasoner: ReasonerConfig{
			Backend:     "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "qwen2.5-coder:14b",
			Temperature: 0.2,
		},
		Session: SessionConfig{
			Mode:      "coder",
			Workspace: ".",
		},
		Builder: BuilderConfig{
			MaxIterations:         5,
			ExcerptBytes:          4096,
			TestCommand:           "python -m pytest " + ModulePlaceholder,
			CommandTimeoutSeconds: 300,
			Artifacts: ArtifactConfig{
				Interface:       defaults.Interface,
				TestSpec:        defaults.TestSpec,
				Prompt:          defaults.Prompt,
				Implementation:  defaults.Implementation,
				DependencyGraph: defaults.DependencyGraph,
			},
		},
		Approval: ApprovalConfig{
			TimeoutSeconds: 0,
		},
		Audit: AuditConfig{
			Enabled: true,
			Dir:     "~/.moduleforge/audit",
		},
		Watcher: WatcherConfig{Enabled: true},
		Server: ServerConfig{
			Enabled: false,
			Addr:    "127.0.0.1:12270",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Config:  telemetry.DefaultConfig(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration against its constraints.
//
// Outputs:
//
//	error - Non-nil naming the first offending field
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return err
	}
	if c.Reasoner.Backend == "openai" && c.Reasoner.KeyEnv == "" {
		return fmt.Errorf("config: reasoner.key_env is required for the openai backend")
	}
	if c.Audit.Enabled && c.Audit.Dir == "" {
		return fmt.Errorf("config: audit.dir is required when audit is enabled")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required when the server is enabled")
	}
	return nil
}

// Artifacts converts the configured names to the prompt catalog form.
func (c *Config) Artifacts() prompts.Artifacts {
	return prompts.Artifacts{
		Interface:       c.Builder.Artifacts.Interface,
		TestSpec:        c.Builder.Artifacts.TestSpec,
		Prompt:          c.Builder.Artifacts.Prompt,
		Implementation:  c.Builder.Artifacts.Implementation,
		DependencyGraph: c.Builder.Artifacts.DependencyGraph,
	}
}

// TestCommandFunc renders the test command template for a module.
func (c *Config) TestCommandFunc() func(module string) string {
	template := c.Builder.TestCommand
	return func(module string) string {
		return strings.ReplaceAll(template, ModulePlaceholder, module)
	}
}

// TestCommandPrefix returns the template text before the module
// placeholder. Used to recognize sanctioned test invocations.
func (c *Config) TestCommandPrefix() string {
	prefix, _, found := strings.Cut(c.Builder.TestCommand, ModulePlaceholder)
	if !found {
		return ""
	}
	return prefix
}
