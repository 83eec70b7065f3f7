// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import "errors"

var (
	// ErrReasonerCommunication indicates the reasoner transport failed.
	// The current turn aborts before any dispatch; the session survives.
	ErrReasonerCommunication = errors.New("reasoner communication failed")

	// ErrUnknownMode indicates a mode name outside the closed set.
	ErrUnknownMode = errors.New("unknown session mode")

	// ErrSessionEnded indicates input arrived after the session reached
	// a terminal status.
	ErrSessionEnded = errors.New("session has ended")

	// ErrFaultBudgetExhausted indicates repeated I/O or command faults
	// crossed the session retry budget.
	ErrFaultBudgetExhausted = errors.New("tool fault budget exhausted")
)
