// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace locates buildable modules in the workspace, loads
// the dependency graph that drives multi-module builds, probes Go
// module metadata for prompt context, and watches the tree for
// mutations that bypass the tool gateway.
package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AleutianAI/moduleforge/pkg/validation"
)

// pathToken matches path-like runs in free-form text.
var pathToken = regexp.MustCompile(`[\w\-./\\]+`)

// Locator finds the module a user instruction refers to.
//
// A module is any directory containing the configured test-spec file.
// Tokens are tried in order of appearance; the first that resolves to a
// module wins.
type Locator struct {
	root     string
	testSpec string
}

// NewLocator creates a locator rooted at the workspace.
//
// Inputs:
//
//	root - Absolute workspace root
//	testSpec - The test-spec filename marking a module directory
func NewLocator(root, testSpec string) (*Locator, error) {
	if root == "" {
		return nil, errors.New("workspace: locator root is required")
	}
	if testSpec == "" {
		return nil, errors.New("workspace: test-spec filename is required")
	}
	return &Locator{root: root, testSpec: testSpec}, nil
}

// Locate extracts a module directory from free-form input.
//
// Description:
//
//	Scans the input for path-like tokens and resolves each against the
//	workspace root. A token whose directory holds the test-spec file
//	locates the module. Candidates resolving outside the workspace are
//	skipped, since no scope could be built for them, and so are paths
//	that fail module-name validation; the located name later lands in
//	filesystem joins and the test command line.
//
// Inputs:
//
//	input - The user instruction
//
// Outputs:
//
//	string - The module directory, workspace-relative
//	bool - False when no token locates a module
func (l *Locator) Locate(input string) (string, bool) {
	for _, token := range pathToken.FindAllString(input, -1) {
		candidate := token
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(l.root, candidate)
		}
		candidate = filepath.Clean(candidate)

		info, err := os.Stat(filepath.Join(candidate, l.testSpec))
		if err != nil || info.IsDir() {
			continue
		}

		rel, err := filepath.Rel(l.root, candidate)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if validation.ValidateModulePath(filepath.ToSlash(rel)) != nil {
			continue
		}
		return rel, true
	}
	return "", false
}
