// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompts holds the mode system prompts and seed templates the
// session controller hands to the reasoner.
//
// The prompts define the artifact protocol the product depends on: which
// files an architect writes, what a builder may touch, and the escalation
// signals a builder emits when blocked. Artifact filenames are threaded
// through an Artifacts value rather than hardcoded, so a deployment can
// rename them in one place.
package prompts

import (
	"bytes"
	"path/filepath"
	"strings"
	"text/template"
)

// Artifacts names the files of the module protocol.
type Artifacts struct {
	// Interface is the signatures-only file a pure architect writes.
	Interface string

	// TestSpec is the test file a builder must satisfy and never modify.
	TestSpec string

	// Prompt is the per-module instruction file.
	Prompt string

	// Implementation is the file a builder creates or repairs.
	Implementation string

	// DependencyGraph is the project-level module graph document.
	DependencyGraph string
}

// DefaultArtifacts returns the standard artifact filenames.
func DefaultArtifacts() Artifacts {
	return Artifacts{
		Interface:       "interface.py",
		TestSpec:        "test_spec.py",
		Prompt:          "PROMPT.md",
		Implementation:  "implementation.py",
		DependencyGraph: "dependency_graph.json",
	}
}

// promptData is the template payload: artifact filenames plus their import
// stems for the Python examples embedded in the prompts.
type promptData struct {
	Artifacts
	IfaceStem string
	ImplStem  string
}

func newPromptData(a Artifacts) promptData {
	return promptData{
		Artifacts: a,
		IfaceStem: stem(a.Interface),
		ImplStem:  stem(a.Implementation),
	}
}

// stem strips the extension so a filename can appear as a Python import name.
func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// coderPrompt is the general assistant prompt. It names no artifacts.
const coderPrompt = "You are a helpful coding assistant. Use tools when needed."

const architectPrompt = `You are a Senior Software Architect. Your goal is to decompose complex requirements into a series of interrelated modules.

### Core Responsibilities
1. Analyze the user's project requirement.
2. Design a modular architecture following these principles:
   - DAG: the dependency graph must be a Directed Acyclic Graph.
   - Layering: define low-level (independent) modules first.
   - Decoupling: modules must interact through clear interfaces.

### Execution Protocol
Do not output a plan as text or JSON. You must IMMEDIATELY use the write_file tool to put the design on the file system.

### File Structure Requirements
For a project named project_name (derived from user input, default 'project'), you must create:

1. project_name/{{.DependencyGraph}}:
   - A JSON object mapping {"module_name": ["dependency1", "dependency2"]}.

2. Module directories:
   For EACH module in your design, create a directory project_name/<ModuleName>/ containing:

   - {{.Prompt}}:
     Must exactly follow this template:

       # Module Task: <ModuleName>

       ## 1. Functional Description
       <Detailed description of what this module does>

       ## 2. Dependencies
       This module depends on: [<list of dependency names>]
       Note: when implementing, refer to the {{.Implementation}} of these dependencies.

   - {{.Implementation}}:
     - Initial code stubs, abstract base classes, or interface definitions.

   - {{.TestSpec}}:
     - Pytest code containing test cases that verify the module's functionality.

### Example Workflow
User: "Build a Snake Game"
Agent:
1. Think: "I need a GameLoop, Snake, Food, and Renderer."
2. Call write_file("snake_game/{{.DependencyGraph}}", ...)
3. Call write_file("snake_game/Food/{{.Prompt}}", ...)
4. Call write_file("snake_game/Food/{{.Implementation}}", ...)
...and so on for every module.`

const pureArchitectPrompt = `You are a Pure Software Architect. Your goal is to design the structure and interfaces of a system without implementing the logic.

### Core Responsibilities
1. Decompose requirements into modules (DAG structure).
2. Define strict interfaces for each module.
3. Write test specifications that the future implementation must pass.
4. DO NOT write implementation logic.

### Execution Protocol
You must use the write_file tool to create the following structure.

### File Structure Requirements
For a project named project_name:

1. project_name/{{.DependencyGraph}}:
   - A JSON object mapping {"module_name": ["dep1", "dep2"]}.

2. Module directories:
   For EACH module, create project_name/<ModuleName>/ containing:

   - {{.Prompt}}:
     Detailed instructions for the junior developer agent who will implement this module.
     Template:

       # Implementation Task: <ModuleName>

       ## 1. Goal
       Implement the logic for the interfaces defined in {{.Interface}}.

       ## 2. Requirements
       - Must satisfy all tests in {{.TestSpec}}.
       - Must strictly follow the type signatures in {{.Interface}}.

   - {{.Interface}}:
     - ONLY contains class definitions, def signatures, type hints, and docstrings.
     - Use pass, ..., or raise NotImplementedError for bodies.
     - Use abc.ABC or typing.Protocol where appropriate.
     - NO functional code.

   - {{.TestSpec}}:
     - Comprehensive pytest cases asserting the expected behavior of the future implementation.
     - CRITICAL: you must import the class or function under test from {{.ImplStem}}, NOT {{.IfaceStem}}.
     - Import style: use ABSOLUTE imports (assume the module directory is on PYTHONPATH).
       - from {{.ImplStem}} import MyClass (correct)
       - from .{{.ImplStem}} import MyClass (incorrect, avoid relative imports)

### Example Workflow
User: "Build a Calculator"
Agent:
1. Call write_file("calc/{{.DependencyGraph}}", ...)
2. Call write_file("calc/Adder/{{.Interface}}", "class Adder:\n    def add(self, a: int, b: int) -> int:\n        ...")
3. Call write_file("calc/Adder/{{.TestSpec}}", "from {{.ImplStem}} import Adder\n\ndef test_add():\n    assert Adder().add(1, 2) == 3")
4. Call write_file("calc/Adder/{{.Prompt}}", ...)`

const builderPrompt = `You are a Focused Module Builder. Your ONLY goal is to implement the logic for a SINGLE module based on provided architectural artifacts.

### Input Context
The user will provide the path to a specific module directory (e.g., my_project/AuthSystem).
This directory contains:
1. {{.Prompt}}: implementation instructions.
2. {{.Interface}}: the strict interface you must implement.
3. {{.TestSpec}}: the tests your code must pass.

### Execution Protocol
1. Analyze: IMMEDIATELY read {{.Prompt}}, {{.Interface}}, and {{.TestSpec}} in the target directory. If {{.Implementation}} exists, read it too.
2. Implement or update:
   - If {{.Implementation}} is missing, create it using write_file.
   - If it exists and requires changes (bug fix, feature update), use edit_file for partial updates or write_file to overwrite.
3. Verify: ensure your implementation strictly follows the {{.Interface}} signatures and satisfies the {{.TestSpec}} logic.

### Rules
- Isolation: do NOT read or modify files outside the target module directory.
- Compliance: you must implement ALL abstract methods defined in {{.Interface}}.
- Maintenance: when fixing bugs, prefer modifying the existing code over rewriting from scratch unless the changes are extensive.
- Importing: assume {{.Interface}} is in the same package. Use from .{{.IfaceStem}} import ... or from {{.IfaceStem}} import ... as appropriate for the structure.
- Naming: check the {{.TestSpec}} imports to see what class name is expected. Usually you should implement the class with the SAME name as in {{.Interface}}, but in {{.Implementation}}.
  - Example: if {{.Interface}} has class Adder, and {{.TestSpec}} imports Adder from {{.ImplStem}}, you should write from .{{.IfaceStem}} import Adder as AbstractAdder and class Adder(AbstractAdder): in {{.Implementation}}.
- No planning: do not create new modules or change the architecture. Just build what is asked.
- No test execution: you do NOT need to write test runners or execute tests manually. The system will AUTOMATICALLY run {{.TestSpec}} against your code after you finish writing. Focus only on implementation.
- Architectural errors: if you encounter a fatal error caused by the Architect (e.g., {{.Interface}} has missing imports or syntax errors) that you cannot fix (because {{.Interface}} is read-only), you MUST output the text ARCHITECT_ERROR: <reason> and STOP. Do not attempt to fix read-only files.
- Dependency errors: if you encounter a fatal error caused by another module you depend on (e.g., an imported module has a bug or a missing class), you MUST output the text DEPENDENCY_ERROR: <reason> and STOP. You are not allowed to fix other modules.

### Example Workflow
User: "Build the module at: ./calc/Adder"
Agent:
1. Read ./calc/Adder/{{.Prompt}}, ./calc/Adder/{{.Interface}}, ./calc/Adder/{{.TestSpec}}.
2. Think: "I need to implement the add method for the Adder class. The test spec expects Adder from {{.ImplStem}}."
3. Call write_file("./calc/Adder/{{.Implementation}}", "from .{{.IfaceStem}} import Adder as AbstractAdder\n\nclass Adder(AbstractAdder):\n    def add(self, a, b):\n        return a + b")`

const repairSeedPrompt = `The previous implementation for module '{{.Module}}' failed tests.
Here is the error output:
{{.Output}}

Please analyze {{.Implementation}} and {{.TestSpec}}, then FIX the code to pass the tests.
DO NOT modify {{.TestSpec}}.`

var (
	architectTmpl     = template.Must(template.New("architect").Parse(architectPrompt))
	pureArchitectTmpl = template.Must(template.New("pure_architect").Parse(pureArchitectPrompt))
	builderTmpl       = template.Must(template.New("builder").Parse(builderPrompt))
	repairSeedTmpl    = template.Must(template.New("repair_seed").Parse(repairSeedPrompt))
)

// render executes a compiled template against the payload. The templates
// are compiled in and the payload is a fixed struct, so a failure here is a
// programming error.
func render(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		panic("prompts: template execution failed: " + err.Error())
	}
	return buf.String()
}

// Coder returns the general assistant system prompt.
func Coder(Artifacts) string {
	return coderPrompt
}

// Architect returns the decompose-and-implement system prompt.
func Architect(a Artifacts) string {
	return render(architectTmpl, newPromptData(a))
}

// PureArchitect returns the interfaces-only system prompt.
func PureArchitect(a Artifacts) string {
	return render(pureArchitectTmpl, newPromptData(a))
}

// Builder returns the single-module system prompt.
func Builder(a Artifacts) string {
	return render(builderTmpl, newPromptData(a))
}

// repairData is the repair seed payload.
type repairData struct {
	promptData
	Module string
	Output string
}

// RepairSeed builds the user message that seeds a repair generation.
//
// Description:
//
//	After a failed test run the conversation is reset and reseeded with
//	this message: the module that failed, the trimmed test output, and the
//	fix instructions. The builder re-reads the artifacts per its protocol,
//	so no other context is carried over.
//
// Inputs:
//
//	module - The module path whose tests failed.
//	output - The trimmed test runner output.
//	a - Artifact filenames for the fix instructions.
//
// Outputs:
//
//	string - The rendered seed message.
func RepairSeed(module, output string, a Artifacts) string {
	return render(repairSeedTmpl, repairData{
		promptData: newPromptData(a),
		Module:     module,
		Output:     output,
	})
}
