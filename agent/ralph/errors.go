// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ralph

import "errors"

// Sentinel errors for the repair loop.
var (
	// ErrInvalidTransition indicates an invalid state transition was attempted.
	ErrInvalidTransition = errors.New("invalid repair state transition")

	// ErrMaxIterationsExceeded indicates the tests still failed after the
	// last budgeted repair iteration.
	ErrMaxIterationsExceeded = errors.New("maximum repair iterations exceeded")

	// ErrArchitectFault indicates the reasoner reported a defect in the
	// read-only architect artifacts. Repairing the implementation cannot
	// fix it.
	ErrArchitectFault = errors.New("architect artifacts faulted")

	// ErrDependencyFault indicates the reasoner reported a defect in a
	// dependency module outside the locked scope.
	ErrDependencyFault = errors.New("dependency module faulted")
)
