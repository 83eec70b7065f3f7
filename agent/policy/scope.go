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

import (
	"fmt"
	"path/filepath"
	"sort"
)

// ScopeSpec describes the write boundary for a module build.
type ScopeSpec struct {
	// RootPath is the module directory. Absolute, or relative to the
	// workspace root.
	RootPath string

	// Label is a short human-readable name for the module (used in deny
	// reasons and logs). Defaults to the root path's basename.
	Label string

	// TestSpecFile is the module's test-specification filename. It is
	// always part of the forbidden set, whatever Forbidden contains.
	TestSpecFile string

	// Forbidden lists additional read-only entries, as basenames or as
	// paths relative to RootPath.
	Forbidden []string
}

// ModuleScope is the immutable write boundary attached to a Builder
// session: a canonical module root plus the file names the session must
// never write, the test specification always among them.
//
// Thread Safety:
//
//	ModuleScope is immutable after construction and safe for concurrent
//	use.
type ModuleScope struct {
	rootPath  string
	label     string
	forbidden map[string]struct{}
}

// NewModuleScope builds a scope from a spec.
//
// Description:
//
//	Canonicalizes spec.RootPath (cleans dot segments and resolves
//	symlinks) and verifies it is a descendant of workspaceRoot. The
//	test-spec filename is forced into the forbidden set so no caller can
//	construct a scope that permits overwriting it.
//
// Inputs:
//
//	workspaceRoot - Canonical absolute workspace root
//	spec - The scope description
//
// Outputs:
//
//	*ModuleScope - The immutable scope
//	error - ErrInvalidScope or ErrOutsideWorkspace
func NewModuleScope(workspaceRoot string, spec ScopeSpec) (*ModuleScope, error) {
	if spec.RootPath == "" {
		return nil, fmt.Errorf("%w: RootPath must not be empty", ErrInvalidScope)
	}
	if spec.TestSpecFile == "" {
		return nil, fmt.Errorf("%w: TestSpecFile must not be empty", ErrInvalidScope)
	}

	root := spec.RootPath
	if !filepath.IsAbs(root) {
		root = filepath.Join(workspaceRoot, root)
	}
	root, err := canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", ErrInvalidScope, spec.RootPath, err)
	}
	if !isDescendant(workspaceRoot, root) {
		return nil, fmt.Errorf("%w: %q resolves to %q", ErrOutsideWorkspace, spec.RootPath, root)
	}

	label := spec.Label
	if label == "" {
		label = filepath.Base(root)
	}

	forbidden := make(map[string]struct{}, len(spec.Forbidden)+1)
	forbidden[spec.TestSpecFile] = struct{}{}
	for _, f := range spec.Forbidden {
		if f != "" {
			forbidden[filepath.Clean(f)] = struct{}{}
		}
	}

	return &ModuleScope{
		rootPath:  root,
		label:     label,
		forbidden: forbidden,
	}, nil
}

// RootPath returns the canonical module root.
func (s *ModuleScope) RootPath() string {
	return s.rootPath
}

// Label returns the module label.
func (s *ModuleScope) Label() string {
	return s.label
}

// Forbidden returns the forbidden entries in sorted order.
func (s *ModuleScope) Forbidden() []string {
	out := make([]string, 0, len(s.forbidden))
	for f := range s.forbidden {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// forbiddenMatch reports whether a canonical path inside the scope matches
// a forbidden entry, by basename or by path relative to the scope root.
func (s *ModuleScope) forbiddenMatch(canonical string) (string, bool) {
	base := filepath.Base(canonical)
	if _, ok := s.forbidden[base]; ok {
		return base, true
	}
	rel, err := filepath.Rel(s.rootPath, canonical)
	if err != nil {
		return "", false
	}
	if _, ok := s.forbidden[rel]; ok {
		return rel, true
	}
	return "", false
}
