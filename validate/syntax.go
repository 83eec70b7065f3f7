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
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Warning is a non-blocking finding about a written artifact.
type Warning struct {
	// File is the path the finding concerns.
	File string `json:"file"`

	// Line is the 1-based line of the finding, 0 when unknown.
	Line int `json:"line,omitempty"`

	// Message describes the finding.
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", w.File, w.Line, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.File, w.Message)
}

// SyntaxScreener parses written content with tree-sitter and reports
// syntax errors as warnings.
//
// Description:
//
//	The screener runs after every successful write-class tool call. It
//	supports Go, Python, JavaScript, TypeScript, and Bash; files with
//	other extensions are skipped. Findings never block the write, they
//	are appended to the tool result so the reasoner can self-correct
//	without waiting for a test run.
//
// Thread Safety: Safe for concurrent use. A parser is created per call.
type SyntaxScreener struct{}

// NewSyntaxScreener creates a syntax screener.
func NewSyntaxScreener() *SyntaxScreener {
	return &SyntaxScreener{}
}

// Screen parses content and returns syntax warnings.
//
// Inputs:
//
//	ctx - Context for cancellation
//	path - Path the content was written to, used for language detection
//	content - The written bytes
//
// Outputs:
//
//	[]Warning - Nil when the content parses cleanly or the language is
//	            not supported
func (s *SyntaxScreener) Screen(ctx context.Context, path string, content []byte) []Warning {
	var lang *sitter.Language
	switch detectLanguage(path) {
	case "go":
		lang = golang.GetLanguage()
	case "python":
		lang = python.GetLanguage()
	case "javascript":
		lang = javascript.GetLanguage()
	case "typescript":
		lang = typescript.GetLanguage()
	case "bash":
		lang = bash.GetLanguage()
	default:
		return nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return []Warning{{File: path, Message: fmt.Sprintf("syntax screen unavailable: %v", err)}}
	}
	defer tree.Close()

	errNode := firstErrorNode(tree.RootNode())
	if errNode == nil {
		return nil
	}
	return []Warning{{
		File:    path,
		Line:    int(errNode.StartPoint().Row) + 1,
		Message: "file does not parse, the reported line is the first point the parser could not recover from",
	}}
}

// firstErrorNode walks the AST and returns the first error or missing
// node, or nil when the tree is clean.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		if found := firstErrorNode(node.Child(int(i))); found != nil {
			return found
		}
	}
	return nil
}
