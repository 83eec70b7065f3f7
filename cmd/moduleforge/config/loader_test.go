// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moduleforge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
reasoner:
  backend: openai
  base_url: https://api.deepseek.com
  model: deepseek-chat
  key_env: DEEPSEEK_API_KEY
builder:
  max_iterations: 8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Reasoner.Backend != "openai" {
		t.Errorf("Reasoner.Backend = %q, want %q", cfg.Reasoner.Backend, "openai")
	}
	if cfg.Builder.MaxIterations != 8 {
		t.Errorf("Builder.MaxIterations = %d, want 8", cfg.Builder.MaxIterations)
	}
	// Omitted keys keep their defaults.
	if cfg.Builder.TestCommand != "python -m pytest {module}" {
		t.Errorf("Builder.TestCommand = %q, want default", cfg.Builder.TestCommand)
	}
	if cfg.Session.Mode != "coder" {
		t.Errorf("Session.Mode = %q, want default coder", cfg.Session.Mode)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeTempConfig(t, `
builder:
  max_iteration: 8
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() accepted an unknown key")
	}
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := writeTempConfig(t, `
session:
  mode: reviewer
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() accepted an invalid mode")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Error("Load() succeeded on a missing file")
	}
}

func TestLoadOrDefault_MissingFallsBack(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() failed: %v", err)
	}
	if cfg.Reasoner.Backend != "ollama" {
		t.Errorf("fallback Backend = %q, want default ollama", cfg.Reasoner.Backend)
	}
}

func TestLoadOrDefault_ExistingFileWins(t *testing.T) {
	path := writeTempConfig(t, `
session:
  mode: architect
`)

	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault() failed: %v", err)
	}
	if cfg.Session.Mode != "architect" {
		t.Errorf("Session.Mode = %q, want architect", cfg.Session.Mode)
	}
}

func TestParse_EmptyDocumentKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) failed: %v", err)
	}
	if cfg.Builder.MaxIterations != 5 {
		t.Errorf("Builder.MaxIterations = %d, want 5", cfg.Builder.MaxIterations)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "moduleforge.yaml")

	cfg := DefaultConfig()
	cfg.Session.Mode = "builder"
	cfg.Builder.AutoApproveTests = true

	if err := Write(&cfg, path); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after Write() failed: %v", err)
	}
	if loaded.Session.Mode != "builder" {
		t.Errorf("round-trip Mode = %q, want builder", loaded.Session.Mode)
	}
	if !loaded.Builder.AutoApproveTests {
		t.Error("round-trip lost AutoApproveTests")
	}
}

func TestWrite_RejectsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Mode = "nonsense"

	err := Write(&cfg, filepath.Join(t.TempDir(), "moduleforge.yaml"))
	if err == nil {
		t.Error("Write() accepted an invalid config")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	got := ExpandHome("~/.moduleforge/audit")
	want := filepath.Join(home, ".moduleforge", "audit")
	if got != want {
		t.Errorf("ExpandHome() = %q, want %q", got, want)
	}

	if got := ExpandHome("/var/lib/moduleforge"); got != "/var/lib/moduleforge" {
		t.Errorf("ExpandHome() rewrote an absolute path: %q", got)
	}
	if got := ExpandHome("~"); got != home {
		t.Errorf("ExpandHome(~) = %q, want %q", got, home)
	}
	if !strings.HasPrefix(ExpandHome("~/x"), home) {
		t.Error("ExpandHome(~/x) did not expand")
	}
}
