// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// generate_tool_docs renders the agent tool catalog as a markdown reference.
//
// Usage:
//
//	go run scripts/generate_tool_docs.go > docs/TOOLS.md
//
// The generated documentation includes:
//   - Quick reference table with policy classes
//   - Per-mode tool availability matrix
//   - Parameter details for every tool
package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/moduleforge/agent"
	"github.com/AleutianAI/moduleforge/agent/tools"
)

func main() {
	// The full capability set sees every catalog entry.
	all := tools.Definitions(tools.Capabilities{Read: true, Write: true, Execute: true})
	modes := agent.AllModes()

	fmt.Println("# Tool Reference")
	fmt.Println()
	fmt.Printf("Generated %s from the tool catalog. Do not edit by hand.\n",
		time.Now().Format("2006-01-02"))
	fmt.Println()
	fmt.Println("Every tool call the reasoner proposes is screened by the policy")
	fmt.Println("guard before it executes, and EXECUTE-class tools additionally")
	fmt.Println("require explicit human approval per invocation.")
	fmt.Println()

	// Quick reference
	fmt.Println("## Quick Reference")
	fmt.Println()
	fmt.Println("| Tool | Class | Description |")
	fmt.Println("|------|-------|-------------|")
	for _, def := range all {
		class, _ := tools.ClassOf(def.Name)
		fmt.Printf("| `%s` | %s | %s |\n", def.Name, class, def.Description)
	}
	fmt.Println()

	// Mode availability matrix
	fmt.Println("## Mode Availability")
	fmt.Println()
	fmt.Println("Tools a mode does not hold are never advertised to the reasoner.")
	fmt.Println()

	header := "| Tool |"
	divider := "|------|"
	for _, mode := range modes {
		header += fmt.Sprintf(" %s |", mode)
		divider += "------|"
	}
	fmt.Println(header)
	fmt.Println(divider)

	for _, def := range all {
		row := fmt.Sprintf("| `%s` |", def.Name)
		for _, mode := range modes {
			cell := " "
			if modePermits(mode, def.Name) {
				cell = "yes"
			}
			row += fmt.Sprintf(" %s |", cell)
		}
		fmt.Println(row)
	}
	fmt.Println()

	// Detailed sections
	fmt.Println("---")
	fmt.Println()
	for _, def := range all {
		printToolDetails(def)
	}
}

// modePermits reports whether a mode's capability set includes the tool.
func modePermits(mode agent.Mode, toolName string) bool {
	for _, def := range tools.Definitions(mode.Capabilities()) {
		if def.Name == toolName {
			return true
		}
	}
	return false
}

// printToolDetails renders one tool's section with its parameter table.
func printToolDetails(def tools.Definition) {
	class, _ := tools.ClassOf(def.Name)

	fmt.Printf("## `%s`\n", def.Name)
	fmt.Println()
	fmt.Printf("**Class:** %s\n", class)
	fmt.Println()
	fmt.Println(def.Description)
	fmt.Println()

	props, required := schemaParameters(def.Parameters)
	if len(props) == 0 {
		fmt.Println("No parameters.")
		fmt.Println()
		return
	}

	fmt.Println("| Parameter | Required | Description |")
	fmt.Println("|-----------|----------|-------------|")
	for _, name := range props {
		requiredStr := "No"
		if required[name] {
			requiredStr = "Yes"
		}
		fmt.Printf("| `%s` | %s | %s |\n", name, requiredStr, propDescription(def.Parameters, name))
	}
	fmt.Println()
}

// schemaParameters extracts the sorted property names and the required
// set from a JSON-schema parameters object.
func schemaParameters(schema map[string]any) ([]string, map[string]bool) {
	required := make(map[string]bool)
	if list, ok := schema["required"].([]string); ok {
		for _, name := range list {
			required[name] = true
		}
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil, required
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, required
}

// propDescription pulls the description string of one schema property.
func propDescription(schema map[string]any, name string) string {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return ""
	}
	prop, ok := props[name].(map[string]any)
	if !ok {
		return ""
	}
	desc, _ := prop["description"].(string)
	return strings.TrimSpace(desc)
}
