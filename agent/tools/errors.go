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

import "errors"

// Sentinel errors for tool parsing and execution. All of these are
// feedback faults: the gateway folds them into the tool result returned
// to the reasoner and the session continues. Session-fatal conditions
// (context cancellation, approval reader gone) surface as ordinary
// errors from Gateway.Execute instead.
var (
	// ErrUnknownTool indicates the reasoner named a tool outside the
	// closed set.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments indicates a tool call's arguments were
	// missing, malformed, or failed validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrNoToolCalls indicates the reasoner stopped for tool use but
	// supplied no calls to dispatch.
	ErrNoToolCalls = errors.New("no tool calls in response")

	// ErrPermissionDenied indicates the policy guard denied the path.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCapabilityDenied indicates the session mode does not grant the
	// call's policy class at all.
	ErrCapabilityDenied = errors.New("capability not granted")

	// ErrApprovalDenied indicates the human declined a command.
	ErrApprovalDenied = errors.New("command execution denied")

	// ErrApprovalTimedOut indicates the approval prompt expired.
	ErrApprovalTimedOut = errors.New("command approval timed out")

	// ErrIO indicates a filesystem operation failed.
	ErrIO = errors.New("file operation failed")

	// ErrCommandExecution indicates a command could not be started or
	// was killed by its timeout. A command that runs and exits non-zero
	// is not an error; its exit code is part of the result.
	ErrCommandExecution = errors.New("command execution failed")
)
