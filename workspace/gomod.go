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
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// GoModule describes the Go module rooted at the workspace, when the
// workspace is one.
type GoModule struct {
	// Path is the module path from the module directive.
	Path string

	// Requires lists the direct requirements, in go.mod order.
	Requires []Requirement
}

// Requirement is one direct module requirement.
type Requirement struct {
	Path    string
	Version string
}

// ProbeGoModule inspects root for a go.mod file.
//
// Description:
//
//	Workspaces holding a Go module get its path and direct
//	requirements surfaced to the reasoner as environment context.
//	Indirect requirements are noise at prompt scale and are dropped.
//
// Outputs:
//
//	*GoModule - The parsed module, nil when absent
//	bool - Whether a go.mod was found
//	error - Read or parse failure
func ProbeGoModule(root string) (*GoModule, bool, error) {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read go.mod: %w", err)
	}

	f, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("parse go.mod: %w", err)
	}

	mod := &GoModule{}
	if f.Module != nil {
		mod.Path = f.Module.Mod.Path
	}
	for _, req := range f.Require {
		if req.Indirect {
			continue
		}
		mod.Requires = append(mod.Requires, Requirement{
			Path:    req.Mod.Path,
			Version: req.Mod.Version,
		})
	}
	return mod, true, nil
}

// PromptContext renders the module as a short block of prompt context.
func (m *GoModule) PromptContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "The workspace is Go module %s.\n", m.Path)
	if len(m.Requires) == 0 {
		b.WriteString("It has no direct dependencies.\n")
		return b.String()
	}
	b.WriteString("Direct dependencies:\n")
	for _, req := range m.Requires {
		fmt.Fprintf(&b, "  - %s %s\n", req.Path, req.Version)
	}
	return b.String()
}
