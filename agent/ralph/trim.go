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

import (
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultExcerptBudget bounds the failure excerpt carried into a repair
// generation.
const DefaultExcerptBudget = 4096

// TrimExcerpt reduces a test run's combined output to an excerpt that
// fits the budget.
//
// Description:
//
//	The output is split on newline-first separators into budget-sized
//	chunks and the final chunk is kept, so the excerpt always ends with
//	the most recent lines. Test runners print the failure summary last;
//	the head of a long run is scaffolding the reasoner does not need.
//
// Inputs:
//
//	output - Combined stdout and stderr of the test run
//	budget - Maximum excerpt size; DefaultExcerptBudget when <= 0
//
// Outputs:
//
//	string - The trimmed excerpt, or the output unchanged if it fits
func TrimExcerpt(output string, budget int) string {
	if budget <= 0 {
		budget = DefaultExcerptBudget
	}
	if len(output) <= budget {
		return output
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(budget),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
	)

	chunks, err := splitter.SplitText(output)
	if err != nil || len(chunks) == 0 {
		return tailBytes(output, budget)
	}
	return chunks[len(chunks)-1]
}

// tailBytes returns the last budget bytes of s, advanced to the next
// rune boundary.
func tailBytes(s string, budget int) string {
	cut := len(s) - budget
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}
