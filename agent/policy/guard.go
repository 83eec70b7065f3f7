// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy decides which filesystem paths an agent session may
// touch.
//
// The guard is a pure decision function: given a requested path and the
// active module scope it returns an allow or deny verdict and never
// performs the operation itself. Enforcement happens in the tool gateway,
// which consults the guard before every read and write.
//
// Two boundaries exist. Without a module scope (Coder, Architect,
// PureArchitect) the workspace root is the boundary, minus an optional
// infrastructure deny-list. With a module scope (Builder) the module root
// is the boundary and the scope's forbidden entries are denied
// unconditionally, even inside the module.
//
// Thread Safety:
//
//	Guard and ModuleScope are immutable after construction and safe for
//	concurrent use.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Verdict is the outcome of a policy evaluation.
type Verdict struct {
	// Allowed is true when the operation may proceed.
	Allowed bool `json:"allowed"`

	// Path is the canonical absolute path the decision applies to. The
	// gateway operates on this path, not the requested one, so the path
	// checked and the path touched cannot diverge. Empty when the
	// request could not be resolved.
	Path string `json:"path,omitempty"`

	// Reason explains a denial. Empty when Allowed.
	Reason string `json:"reason,omitempty"`
}

// Allow returns an allowing verdict for a canonical path.
func Allow(path string) Verdict {
	return Verdict{Allowed: true, Path: path}
}

// Deny returns a denying verdict with the given reason.
func Deny(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Guard evaluates paths against the workspace boundary and an optional
// module scope.
//
// Thread Safety:
//
//	Guard is immutable after construction and safe for concurrent use.
type Guard struct {
	workspaceRoot string
	denyList      map[string]struct{}
}

// NewGuard creates a guard for a workspace.
//
// Description:
//
//	Canonicalizes the workspace root and records the infrastructure
//	deny-list applied to unscoped sessions. The deny-list is empty by
//	default; entries are basenames or workspace-relative paths.
//
// Inputs:
//
//	workspaceRoot - The workspace directory. Must exist.
//	denyList - Infrastructure entries denied even inside the workspace.
//
// Outputs:
//
//	*Guard - The configured guard
//	error - ErrInvalidWorkspace if the root is missing or not a directory
func NewGuard(workspaceRoot string, denyList []string) (*Guard, error) {
	if workspaceRoot == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidWorkspace)
	}

	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkspace, err)
	}
	root, err := canonicalize(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkspace, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkspace, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidWorkspace, root)
	}

	deny := make(map[string]struct{}, len(denyList))
	for _, d := range denyList {
		if d != "" {
			deny[filepath.Clean(d)] = struct{}{}
		}
	}

	return &Guard{workspaceRoot: root, denyList: deny}, nil
}

// WorkspaceRoot returns the canonical workspace root.
func (g *Guard) WorkspaceRoot() string {
	return g.workspaceRoot
}

// Evaluate decides whether a path may be touched under the given scope.
//
// Description:
//
//	Canonicalizes the path (relative paths resolve against the workspace
//	root; dot segments are cleaned and symlinks resolved) and checks it
//	against the active boundary. With a nil scope the boundary is the
//	workspace root plus the infrastructure deny-list. With a scope the
//	boundary is the scope root, and the scope's forbidden entries are
//	denied unconditionally even when the path is inside the scope.
//
//	Deterministic for identical inputs on an unchanged filesystem; never
//	mutates anything.
//
// Inputs:
//
//	path - The requested path, absolute or workspace-relative
//	scope - The active module scope, or nil for unscoped sessions
//
// Outputs:
//
//	Verdict - Allow, or Deny with a stable reason string
func (g *Guard) Evaluate(path string, scope *ModuleScope) Verdict {
	if strings.TrimSpace(path) == "" {
		return Deny("empty path")
	}

	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.workspaceRoot, p)
	}
	canonical, err := canonicalize(p)
	if err != nil {
		return Deny(fmt.Sprintf("cannot resolve %q: %v", path, err))
	}

	if !isDescendant(g.workspaceRoot, canonical) {
		return Deny(fmt.Sprintf("%q resolves outside the workspace %s", path, g.workspaceRoot))
	}

	if scope == nil {
		if hit, ok := g.denyListMatch(canonical); ok {
			return Deny(fmt.Sprintf("%s is protected infrastructure", hit))
		}
		return Allow(canonical)
	}

	if !isDescendant(scope.RootPath(), canonical) {
		return Deny(fmt.Sprintf("%q is outside module %s (%s)", path, scope.Label(), scope.RootPath()))
	}
	if hit, ok := scope.forbiddenMatch(canonical); ok {
		return Deny(fmt.Sprintf("%s is read-only in module %s", hit, scope.Label()))
	}
	return Allow(canonical)
}

// denyListMatch reports whether a canonical path matches a deny-list
// entry, by basename or by workspace-relative path.
func (g *Guard) denyListMatch(canonical string) (string, bool) {
	if len(g.denyList) == 0 {
		return "", false
	}
	base := filepath.Base(canonical)
	if _, ok := g.denyList[base]; ok {
		return base, true
	}
	rel, err := filepath.Rel(g.workspaceRoot, canonical)
	if err != nil {
		return "", false
	}
	if _, ok := g.denyList[rel]; ok {
		return rel, true
	}
	return "", false
}

// canonicalize cleans a path and resolves symlinks.
//
// Description:
//
//	filepath.EvalSymlinks fails for paths that do not exist yet, but the
//	guard must canonicalize paths about to be created. The deepest
//	existing ancestor is resolved and the missing tail is re-joined, so
//	a symlinked parent cannot smuggle a write outside the boundary.
//
// Inputs:
//
//	path - An absolute path
//
// Outputs:
//
//	string - The canonical path
//	error - Non-nil when an existing ancestor cannot be resolved
func canonicalize(path string) (string, error) {
	p := filepath.Clean(path)
	tail := ""
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(resolved, tail), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		tail = filepath.Join(filepath.Base(p), tail)
		p = parent
	}
}

// isDescendant reports whether path is root itself or inside it. Both
// arguments must already be canonical.
func isDescendant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	sep := string(filepath.Separator)
	return rel != ".." && !strings.HasPrefix(rel, ".."+sep)
}
