// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for security-critical
// values.
//
// Module paths and artifact filenames originate in user input and
// configuration, then flow into filesystem paths and subprocess
// argument lists. Validating them here prevents path traversal and
// argument injection before those values reach the policy layer.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// maxModulePathLen bounds a workspace-relative module path.
const maxModulePathLen = 255

// maxArtifactNameLen bounds a single artifact filename.
const maxArtifactNameLen = 128

// moduleSegment matches one path segment of a module directory.
// The first character may not be a hyphen or dot: a segment like "-rf"
// would read as a flag once the module path lands in a test command.
var moduleSegment = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-]*$`)

// artifactName matches a bare artifact filename such as "test_spec.py".
var artifactName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)

// envName matches a conventional environment variable name.
var envName = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// ValidateModulePath validates a workspace-relative module path.
//
// Valid paths:
//   - 1-255 characters
//   - relative, one or more segments separated by "/"
//   - each segment starts with a letter, digit, or underscore and
//     continues with letters, digits, underscores, or hyphens
//
// Dot segments, empty segments, backslashes, and leading hyphens are
// rejected.
//
// Example:
//
//	if err := validation.ValidateModulePath(module); err != nil {
//	    return fmt.Errorf("invalid module: %w", err)
//	}
//	// Safe to join under the workspace root and place in a command
func ValidateModulePath(path string) error {
	if path == "" {
		return fmt.Errorf("module path cannot be empty")
	}
	if len(path) > maxModulePathLen {
		return fmt.Errorf("module path exceeds %d characters", maxModulePathLen)
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("module path must be relative: %q", path)
	}
	if strings.ContainsRune(path, '\\') {
		return fmt.Errorf("module path must use forward slashes: %q", path)
	}

	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			return fmt.Errorf("module path has an empty segment: %q", path)
		}
		if segment == "." || segment == ".." {
			return fmt.Errorf("module path has a dot segment: %q", path)
		}
		if !moduleSegment.MatchString(segment) {
			return fmt.Errorf("invalid module path segment %q (segments are alphanumeric with underscores and hyphens, not starting with a hyphen)", segment)
		}
	}

	return nil
}

// ValidateArtifactName validates a per-module artifact filename.
//
// The name must be a bare filename: no separators, no dot segments, no
// leading hyphen or dot, at most 128 characters.
//
// Example:
//
//	if err := validation.ValidateArtifactName(cfg.TestSpec); err != nil {
//	    return fmt.Errorf("invalid test spec name: %w", err)
//	}
func ValidateArtifactName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}
	if len(name) > maxArtifactNameLen {
		return fmt.Errorf("artifact name exceeds %d characters", maxArtifactNameLen)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("artifact name must not contain path separators: %q", name)
	}
	if !artifactName.MatchString(name) {
		return fmt.Errorf("invalid artifact name: %q", name)
	}
	return nil
}

// ValidateEnvName validates an environment variable name from
// configuration, such as the variable naming the reasoner API key.
//
// Valid names are uppercase letters, digits, and underscores, not
// starting with a digit.
func ValidateEnvName(name string) error {
	if name == "" {
		return fmt.Errorf("environment variable name cannot be empty")
	}
	if len(name) > maxArtifactNameLen {
		return fmt.Errorf("environment variable name exceeds %d characters", maxArtifactNameLen)
	}
	if !envName.MatchString(name) {
		return fmt.Errorf("invalid environment variable name: %q", name)
	}
	return nil
}
