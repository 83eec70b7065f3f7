// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import "errors"

// Sentinel errors for the policy package.
var (
	// ErrInvalidScope indicates a scope could not be constructed from the
	// given inputs.
	ErrInvalidScope = errors.New("invalid module scope")

	// ErrOutsideWorkspace indicates a scope root resolves outside the
	// workspace root.
	ErrOutsideWorkspace = errors.New("scope root outside workspace")

	// ErrInvalidWorkspace indicates the workspace root is missing or not a
	// directory.
	ErrInvalidWorkspace = errors.New("invalid workspace root")
)
