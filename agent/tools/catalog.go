// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

// Definition is a tool schema published to the reasoner.
type Definition struct {
	// Name is the wire tool name.
	Name string `json:"name"`

	// Description tells the reasoner when to use the tool.
	Description string `json:"description"`

	// Parameters is the JSON Schema for the arguments object.
	Parameters map[string]any `json:"parameters"`
}

// catalog holds the closed tool set in publication order.
var catalog = []struct {
	class Class
	def   Definition
}{
	{
		class: ClassRead,
		def: Definition{
			Name:        NameReadFile,
			Description: "Read the content of a file. The path is relative to the workspace root.",
			Parameters: objectSchema([]string{"path"}, map[string]any{
				"path": stringProp("Path of the file to read."),
			}),
		},
	},
	{
		class: ClassRead,
		def: Definition{
			Name:        NameListFiles,
			Description: "List the entries of a directory. Directories are suffixed with '/'. Defaults to the workspace root.",
			Parameters: objectSchema(nil, map[string]any{
				"path": stringProp("Directory to list. Defaults to '.'."),
			}),
		},
	},
	{
		class: ClassWrite,
		def: Definition{
			Name:        NameWriteFile,
			Description: "Create or overwrite a file with the given content. Parent directories are created as needed.",
			Parameters: objectSchema([]string{"path", "content"}, map[string]any{
				"path":    stringProp("Path of the file to write."),
				"content": stringProp("Full content of the file."),
			}),
		},
	},
	{
		class: ClassWrite,
		def: Definition{
			Name:        NameAppendFile,
			Description: "Append content to an existing file. Fails if the file does not exist, use write_file to create it first.",
			Parameters: objectSchema([]string{"path", "content"}, map[string]any{
				"path":    stringProp("Path of the file to append to."),
				"content": stringProp("Content to append."),
			}),
		},
	},
	{
		class: ClassWrite,
		def: Definition{
			Name:        NameEditFile,
			Description: "Replace one occurrence of old_string with new_string in a file. old_string must appear exactly once; include surrounding lines to disambiguate.",
			Parameters: objectSchema([]string{"path", "old_string", "new_string"}, map[string]any{
				"path":       stringProp("Path of the file to edit."),
				"old_string": stringProp("Exact text to replace. Must be unique in the file."),
				"new_string": stringProp("Replacement text. May be empty to delete old_string."),
			}),
		},
	},
	{
		class: ClassWrite,
		def: Definition{
			Name:        NameApplyPatch,
			Description: "Apply a unified diff to one or more files. Hunks must match the files on disk exactly; use read_file first if unsure.",
			Parameters: objectSchema([]string{"patch"}, map[string]any{
				"patch": stringProp("Unified diff text, as produced by 'diff -u'."),
			}),
		},
	},
	{
		class: ClassExecute,
		def: Definition{
			Name:        NameRunCommand,
			Description: "Execute a shell command in the workspace root. Every command requires explicit human approval before it runs.",
			Parameters: objectSchema([]string{"command"}, map[string]any{
				"command": stringProp("The shell command to execute."),
			}),
		},
	},
}

// Definitions returns the tool schemas the given capability set may use,
// in stable publication order.
//
// Inputs:
//
//	caps - The active session mode's capabilities
//
// Outputs:
//
//	[]Definition - Schemas for the permitted tools
func Definitions(caps Capabilities) []Definition {
	defs := make([]Definition, 0, len(catalog))
	for _, entry := range catalog {
		if caps.Permits(entry.class) {
			defs = append(defs, entry.def)
		}
	}
	return defs
}

// ClassOf returns the policy class for a wire tool name.
//
// Outputs:
//
//	Class - The class, valid only when found
//	bool - False when the name is outside the closed set
func ClassOf(name string) (Class, bool) {
	for _, entry := range catalog {
		if entry.def.Name == name {
			return entry.class, true
		}
	}
	return "", false
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}
