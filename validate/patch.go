// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// ParsePatch parses unified diff text into per-file diffs.
//
// Inputs:
//
//	patch - Unified diff text, possibly covering multiple files
//
// Outputs:
//
//	[]*diff.FileDiff - One entry per file in the patch
//	error - Non-nil if the text is not a well-formed unified diff
func ParsePatch(patch string) ([]*diff.FileDiff, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parsing unified diff: %w", err)
	}
	if len(fileDiffs) == 0 {
		return nil, fmt.Errorf("patch contains no file diffs")
	}
	return fileDiffs, nil
}

// TargetPath returns the workspace-relative path a file diff touches,
// with git-style a/ and b/ prefixes stripped.
func TargetPath(fd *diff.FileDiff) string {
	path := fd.NewName
	if path == "" || path == "/dev/null" {
		path = fd.OrigName
	}
	path = strings.TrimPrefix(path, "a/")
	path = strings.TrimPrefix(path, "b/")
	return path
}

// IsCreation reports whether the diff creates a new file.
func IsCreation(fd *diff.FileDiff) bool {
	return fd.OrigName == "/dev/null"
}

// IsDeletion reports whether the diff deletes a file.
func IsDeletion(fd *diff.FileDiff) bool {
	return fd.NewName == "/dev/null"
}

// ApplyFileDiff applies a single file diff to the original content.
//
// Description:
//
//	Application is strict. Every context and deletion line in a hunk
//	must match the original at the position the hunk names; the first
//	mismatch aborts with an error describing the expected and actual
//	line. Hunks must be in order and non-overlapping. For a creation
//	diff the original must be empty.
//
// Inputs:
//
//	original - Current file content, nil or empty for a new file
//	fd - The parsed file diff
//
// Outputs:
//
//	[]byte - The patched content
//	error - Non-nil if the diff does not apply cleanly
func ApplyFileDiff(original []byte, fd *diff.FileDiff) ([]byte, error) {
	if IsDeletion(fd) {
		return nil, fmt.Errorf("patch deletes %s, deletion is not supported", TargetPath(fd))
	}

	if IsCreation(fd) || len(original) == 0 {
		return applyCreation(fd)
	}

	origLines := strings.Split(string(original), "\n")
	newLines := make([]string, 0, len(origLines))
	origIdx := 0

	for hunkNum, hunk := range fd.Hunks {
		hunkStart := int(hunk.OrigStartLine) - 1
		if hunkStart < origIdx {
			return nil, fmt.Errorf("hunk %d starts at line %d, overlapping the previous hunk", hunkNum+1, hunk.OrigStartLine)
		}
		if hunkStart > len(origLines) {
			return nil, fmt.Errorf("hunk %d starts at line %d, past end of file (%d lines)", hunkNum+1, hunk.OrigStartLine, len(origLines))
		}

		// Copy untouched lines up to the hunk.
		for origIdx < hunkStart {
			newLines = append(newLines, origLines[origIdx])
			origIdx++
		}

		for _, line := range hunkLines(hunk.Body) {
			switch {
			case strings.HasPrefix(line, "+"):
				newLines = append(newLines, line[1:])
			case strings.HasPrefix(line, "-"):
				if err := matchOriginal(origLines, origIdx, line[1:], hunkNum); err != nil {
					return nil, err
				}
				origIdx++
			default:
				// Context line. Most generators prefix with a space,
				// some emit blank context lines bare.
				want := strings.TrimPrefix(line, " ")
				if err := matchOriginal(origLines, origIdx, want, hunkNum); err != nil {
					return nil, err
				}
				newLines = append(newLines, origLines[origIdx])
				origIdx++
			}
		}
	}

	for origIdx < len(origLines) {
		newLines = append(newLines, origLines[origIdx])
		origIdx++
	}

	return []byte(strings.Join(newLines, "\n")), nil
}

// applyCreation builds content for a new file from the added lines.
func applyCreation(fd *diff.FileDiff) ([]byte, error) {
	var lines []string
	for hunkNum, hunk := range fd.Hunks {
		for _, line := range hunkLines(hunk.Body) {
			switch {
			case strings.HasPrefix(line, "+"):
				lines = append(lines, line[1:])
			case strings.HasPrefix(line, "-"):
				return nil, fmt.Errorf("hunk %d deletes from %s, which does not exist", hunkNum+1, TargetPath(fd))
			}
		}
	}
	if len(lines) == 0 {
		return []byte{}, nil
	}
	return []byte(strings.Join(lines, "\n") + "\n"), nil
}

// hunkLines splits a hunk body into its prefixed lines, dropping the
// trailing empty segment a newline-terminated body produces.
func hunkLines(body []byte) []string {
	lines := strings.Split(string(body), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// matchOriginal verifies the original holds the expected line at idx.
func matchOriginal(origLines []string, idx int, want string, hunkNum int) error {
	if idx >= len(origLines) {
		return fmt.Errorf("hunk %d expects %q at line %d, past end of file", hunkNum+1, want, idx+1)
	}
	if origLines[idx] != want {
		return fmt.Errorf("hunk %d does not apply: line %d is %q, patch expects %q", hunkNum+1, idx+1, origLines[idx], want)
	}
	return nil
}
