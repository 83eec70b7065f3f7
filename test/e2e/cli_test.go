// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeSessionConfig writes a config whose workspace and audit trail
// live under dir, with the network-facing observers turned off.
func writeSessionConfig(t *testing.T, dir string) string {
	t.Helper()

	workspace := filepath.Join(dir, "ws")
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		t.Fatal(err)
	}

	config := fmt.Sprintf(`session:
  workspace: %s
audit:
  enabled: true
  dir: %s
watcher:
  enabled: false
server:
  enabled: false
telemetry:
  enabled: false
`, workspace, filepath.Join(dir, "audit"))

	path := filepath.Join(dir, "moduleforge.yaml")
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// runCLI executes the built binary with a kill timer and returns its
// combined output and exit code.
func runCLI(t *testing.T, stdin string, args ...string) (string, int) {
	t.Helper()

	cmd := exec.Command(cliBinary, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	timer := time.AfterFunc(60*time.Second, func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	})
	defer timer.Stop()

	out, err := cmd.CombinedOutput()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		t.Fatalf("run %v: %v\n%s", args, err, out)
	}
	return string(out), exitCode
}

func TestVersionCommand(t *testing.T) {
	out, code := runCLI(t, "", "version")

	if code != 0 {
		t.Fatalf("version exited %d, want 0\n%s", code, out)
	}
	if !strings.Contains(out, "moduleforge") {
		t.Errorf("version output missing binary name:\n%s", out)
	}
}

func TestInitCommand_NonInteractive(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "moduleforge.yaml")

	out, code := runCLI(t, "", "init", "--output", target)

	if code != 0 {
		t.Fatalf("init exited %d, want 0\n%s", code, out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("init wrote no config: %v", err)
	}
	if !strings.Contains(string(data), "reasoner:") {
		t.Errorf("generated config missing reasoner section:\n%s", data)
	}
}

func TestInitCommand_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "moduleforge.yaml")
	if err := os.WriteFile(target, []byte("# existing\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, code := runCLI(t, "", "init", "--output", target)

	if code == 0 {
		t.Errorf("init overwrote an existing config without --force\n%s", out)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "# existing\n" {
		t.Errorf("existing config was modified:\n%s", data)
	}
}

func TestRunCommand_ExitLeavesCleanly(t *testing.T) {
	dir := t.TempDir()
	configPath := writeSessionConfig(t, dir)

	// Piped stdin selects machine personality, so the session frame
	// lines are stable to assert on.
	out, code := runCLI(t, "exit\n", "run", "--config", configPath)

	if code != 0 {
		t.Fatalf("run exited %d, want 0\n%s", code, out)
	}
	if !strings.Contains(out, "SESSION_START: mode=coder") {
		t.Errorf("missing session start frame:\n%s", out)
	}
	if !strings.Contains(out, "SESSION_END: status=COMPLETED") {
		t.Errorf("missing completed session end frame:\n%s", out)
	}
}

func TestRunCommand_EOFLeavesCleanly(t *testing.T) {
	dir := t.TempDir()
	configPath := writeSessionConfig(t, dir)

	// No stdin wired up means the session sees EOF on its first read.
	out, code := runCLI(t, "", "run", "--config", configPath)

	if code != 0 {
		t.Fatalf("run exited %d, want 0\n%s", code, out)
	}
	if !strings.Contains(out, "SESSION_END: status=COMPLETED") {
		t.Errorf("missing session end frame:\n%s", out)
	}
}

func TestRunCommand_RejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	configPath := writeSessionConfig(t, dir)

	out, code := runCLI(t, "", "run", "--config", configPath, "--mode", "yolo")

	if code != 2 {
		t.Errorf("run with unknown mode exited %d, want 2\n%s", code, out)
	}
}

func TestAuditCommand_ListsRecordedSession(t *testing.T) {
	dir := t.TempDir()
	configPath := writeSessionConfig(t, dir)

	// One clean session leaves a trail.
	out, code := runCLI(t, "exit\n", "run", "--config", configPath)
	if code != 0 {
		t.Fatalf("run exited %d, want 0\n%s", code, out)
	}

	out, code = runCLI(t, "", "audit", "--config", configPath)
	if code != 0 {
		t.Fatalf("audit exited %d, want 0\n%s", code, out)
	}
	sessionID := strings.TrimSpace(out)
	if sessionID == "" {
		t.Fatalf("audit listed no sessions:\n%s", out)
	}

	out, code = runCLI(t, "", "audit", "--config", configPath, sessionID)
	if code != 0 {
		t.Fatalf("audit %s exited %d, want 0\n%s", sessionID, code, out)
	}
	if !strings.Contains(out, "session_event") {
		t.Errorf("audit trail missing session events:\n%s", out)
	}
}
