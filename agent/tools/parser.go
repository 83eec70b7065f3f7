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

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Parse types a raw reasoner tool call into a Call variant.
//
// Description:
//
//	The reasoner proposes calls as (id, name, JSON arguments). Parse
//	validates the name against the closed set and the arguments against
//	the tool's schema. A missing id gets a generated one so tool results
//	can always be correlated. Parse never touches the filesystem; path
//	arguments are validated by the policy guard at execution time.
//
// Inputs:
//
//	id - Reasoner-assigned call identifier, may be empty
//	name - The wire tool name
//	arguments - Raw JSON argument payload
//
// Outputs:
//
//	Call - The typed call
//	error - ErrUnknownTool or ErrInvalidArguments, both feedback faults
func Parse(id, name, arguments string) (Call, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if arguments == "" {
		arguments = "{}"
	}

	switch name {
	case NameReadFile:
		var args struct {
			Path string `json:"path"`
		}
		if err := decodeArgs(name, arguments, &args); err != nil {
			return nil, err
		}
		if args.Path == "" {
			return nil, missingArg(name, "path")
		}
		return ReadFileCall{ID: id, Path: args.Path}, nil

	case NameListFiles:
		var args struct {
			Path string `json:"path"`
		}
		if err := decodeArgs(name, arguments, &args); err != nil {
			return nil, err
		}
		if args.Path == "" {
			args.Path = "."
		}
		return ListFilesCall{ID: id, Path: args.Path}, nil

	case NameWriteFile:
		var args struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := decodeArgs(name, arguments, &args); err != nil {
			return nil, err
		}
		if args.Path == "" {
			return nil, missingArg(name, "path")
		}
		return WriteFileCall{ID: id, Path: args.Path, Content: args.Content}, nil

	case NameAppendFile:
		var args struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := decodeArgs(name, arguments, &args); err != nil {
			return nil, err
		}
		if args.Path == "" {
			return nil, missingArg(name, "path")
		}
		return AppendFileCall{ID: id, Path: args.Path, Content: args.Content}, nil

	case NameEditFile:
		var args struct {
			Path      string `json:"path"`
			OldString string `json:"old_string"`
			NewString string `json:"new_string"`
		}
		if err := decodeArgs(name, arguments, &args); err != nil {
			return nil, err
		}
		if args.Path == "" {
			return nil, missingArg(name, "path")
		}
		if args.OldString == "" {
			return nil, missingArg(name, "old_string")
		}
		return EditFileCall{ID: id, Path: args.Path, OldString: args.OldString, NewString: args.NewString}, nil

	case NameApplyPatch:
		var args struct {
			Patch string `json:"patch"`
		}
		if err := decodeArgs(name, arguments, &args); err != nil {
			return nil, err
		}
		if args.Patch == "" {
			return nil, missingArg(name, "patch")
		}
		return ApplyPatchCall{ID: id, Patch: args.Patch}, nil

	case NameRunCommand:
		var args struct {
			Command string `json:"command"`
		}
		if err := decodeArgs(name, arguments, &args); err != nil {
			return nil, err
		}
		if args.Command == "" {
			return nil, missingArg(name, "command")
		}
		return RunCommandCall{ID: id, Command: args.Command}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
}

// decodeArgs unmarshals the argument payload, tolerating fields the
// schema does not name.
func decodeArgs(name, arguments string, into any) error {
	if !json.Valid([]byte(arguments)) {
		return fmt.Errorf("%w: %s arguments are not valid JSON", ErrInvalidArguments, name)
	}
	if err := json.Unmarshal([]byte(arguments), into); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	return nil
}

func missingArg(name, field string) error {
	return fmt.Errorf("%w: %s requires %q", ErrInvalidArguments, name, field)
}
