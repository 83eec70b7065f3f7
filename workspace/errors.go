// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycleDetected indicates the dependency graph contains a cycle.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrUnknownDependency indicates a module depends on a name the
	// graph does not declare.
	ErrUnknownDependency = errors.New("unknown dependency")
)

// CycleError reports a dependency cycle with the path that forms it.
// The first and last elements are the same module.
type CycleError struct {
	Path []string
}

// Error returns the cycle as a readable chain.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Unwrap allows errors.Is(err, ErrCycleDetected) to match.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
