// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate checks artifacts the agent is about to place in the
// workspace.
//
// Two concerns live here. The syntax screener parses written file content
// with tree-sitter and reports parse errors as warnings; it never blocks
// a write, it only gives the session something to surface back to the
// reasoner and the operator. The patch functions parse and apply unified
// diffs for the apply_patch tool; application is strict, a hunk whose
// context does not match the file on disk is rejected rather than
// guessed at.
//
// Thread Safety: All functions and the SyntaxScreener are safe for
// concurrent use. Tree-sitter parsers are created per-call.
package validate

import (
	"path/filepath"
	"strings"
)

// detectLanguage maps a file extension to a screener language name.
// Returns "" for files the screener does not understand.
func detectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".go":
		return "go"
	case ".py", ".pyi":
		return "python"
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".tsx", ".mts", ".cts":
		return "typescript"
	case ".sh", ".bash":
		return "bash"
	default:
		return ""
	}
}
