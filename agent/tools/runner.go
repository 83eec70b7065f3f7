// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// CommandOutcome is the observable result of an executed command.
type CommandOutcome struct {
	// Command is the shell command that ran.
	Command string `json:"command"`

	// ExitCode is the process exit code, -1 when the process did not
	// run to completion.
	ExitCode int `json:"exit_code"`

	// Output is the captured stdout followed by stderr.
	Output string `json:"output"`

	// Truncated is true when the output hit the capture limit.
	Truncated bool `json:"truncated,omitempty"`

	// TimedOut is true when the command was killed by its timeout.
	TimedOut bool `json:"timed_out,omitempty"`

	// Duration is the wall-clock run time.
	Duration time.Duration `json:"duration"`
}

// CommandRunner executes an approved shell command.
type CommandRunner interface {
	// Run executes the command and returns its outcome. A non-zero exit
	// code is not an error; errors are reserved for the process failing
	// to start or being killed.
	Run(ctx context.Context, command string) (CommandOutcome, error)
}

// Compile-time interface checks.
var (
	_ CommandRunner = (*ShellRunner)(nil)
	_ CommandRunner = (*MockRunner)(nil)
)

// ShellRunner runs commands through /bin/sh in a fixed directory.
//
// Thread Safety: Safe for concurrent use; all state is immutable.
type ShellRunner struct {
	dir       string
	timeout   time.Duration
	maxOutput int
}

// NewShellRunner creates a runner rooted in dir.
//
// Inputs:
//
//	dir - Working directory for every command, normally the workspace root
//	timeout - Per-command wall clock limit, 0 for none
//	maxOutput - Capture limit in bytes per stream, <=0 for 1 MiB
func NewShellRunner(dir string, timeout time.Duration, maxOutput int) *ShellRunner {
	if maxOutput <= 0 {
		maxOutput = 1 << 20
	}
	return &ShellRunner{dir: dir, timeout: timeout, maxOutput: maxOutput}
}

// Run executes the command.
//
// Description:
//
//	The command runs under /bin/sh -c with stdout and stderr captured
//	separately up to the output limit, then concatenated. A timeout
//	kills the process group and reports TimedOut with exit code -1
//	rather than returning an error, so the reasoner sees the partial
//	output. Context cancellation aborts with ctx.Err().
func (r *ShellRunner) Run(ctx context.Context, command string) (CommandOutcome, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: r.maxOutput}
	stderrLimited := &limitedWriter{w: &stderr, limit: r.maxOutput}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	start := time.Now()
	err := cmd.Run()

	outcome := CommandOutcome{
		Command:   command,
		Output:    stdout.String() + stderr.String(),
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
		Duration:  time.Since(start),
	}

	if ctx.Err() != nil {
		// The session is going away, not the command.
		return outcome, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		outcome.TimedOut = true
		outcome.ExitCode = -1
		return outcome, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
			return outcome, nil
		}
		outcome.ExitCode = -1
		return outcome, fmt.Errorf("%w: %v", ErrCommandExecution, err)
	}

	outcome.ExitCode = 0
	return outcome, nil
}

// MockRunner is a CommandRunner for tests.
//
// Thread Safety: Safe for concurrent use.
type MockRunner struct {
	mu sync.Mutex

	// RunFunc handles calls when set. When nil, Run returns a zero exit
	// outcome echoing the command.
	RunFunc func(ctx context.Context, command string) (CommandOutcome, error)

	// Calls records every command in order.
	Calls []string
}

// Run records the command and delegates to RunFunc.
func (m *MockRunner) Run(ctx context.Context, command string) (CommandOutcome, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, command)
	fn := m.RunFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, command)
	}
	return CommandOutcome{Command: command, ExitCode: 0}, nil
}

// CallCount returns the number of recorded calls.
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// limitedWriter caps captured output, silently discarding the excess.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	origLen := len(p)
	if lw.written >= lw.limit {
		lw.truncated = true
		return origLen, nil
	}

	remaining := lw.limit - lw.written
	if len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}

	n, err := lw.w.Write(p)
	lw.written += n
	if err != nil {
		return n, err
	}
	// Report the original length so the copier does not see a short write.
	return origLen, nil
}
