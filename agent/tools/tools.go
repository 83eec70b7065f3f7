// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools defines the agent's tool surface and the gateway that
// executes it.
//
// The tool set is closed: every side effect the agent can cause is one
// of the Call variants defined here, and the Gateway is the only place
// any of them touches the filesystem or spawns a process. Read-class
// calls are screened against the workspace boundary, write-class calls
// against the active module scope, and command execution goes through
// the human approval gate. Nothing else in the codebase performs agent
// side effects.
//
// Thread Safety: Call values are immutable. The Gateway is safe for
// concurrent use, though the session loop issues calls sequentially.
package tools

// Tool names as they appear on the reasoner wire.
const (
	NameReadFile   = "read_file"
	NameListFiles  = "list_files"
	NameWriteFile  = "write_file"
	NameAppendFile = "append_file"
	NameEditFile   = "edit_file"
	NameApplyPatch = "apply_patch"
	NameRunCommand = "run_command"
)

// Class is the policy class a tool call is screened under.
type Class string

const (
	// ClassRead covers calls that inspect the workspace.
	ClassRead Class = "READ"

	// ClassWrite covers calls that mutate files.
	ClassWrite Class = "WRITE"

	// ClassExecute covers calls that spawn processes.
	ClassExecute Class = "EXECUTE"
)

// Capabilities is the set of policy classes a session mode may use.
// The session controller derives it from the active mode; the catalog
// filters tool definitions with it and the gateway re-checks it before
// dispatch.
type Capabilities struct {
	Read    bool
	Write   bool
	Execute bool
}

// Permits reports whether the capability set allows a policy class.
func (c Capabilities) Permits(class Class) bool {
	switch class {
	case ClassRead:
		return c.Read
	case ClassWrite:
		return c.Write
	case ClassExecute:
		return c.Execute
	default:
		return false
	}
}

// Call is one tool invocation proposed by the reasoner.
//
// The set of implementations is closed; the gateway dispatches on the
// concrete type and treats anything else as a programming error.
type Call interface {
	// CallID returns the reasoner-assigned call identifier.
	CallID() string

	// Name returns the wire name of the tool.
	Name() string

	// Class returns the policy class the call is screened under.
	Class() Class

	isCall()
}

// ReadFileCall returns a file's content.
type ReadFileCall struct {
	ID   string
	Path string
}

func (c ReadFileCall) CallID() string { return c.ID }
func (c ReadFileCall) Name() string   { return NameReadFile }
func (c ReadFileCall) Class() Class   { return ClassRead }
func (c ReadFileCall) isCall()        {}

// ListFilesCall lists a directory.
type ListFilesCall struct {
	ID   string
	Path string
}

func (c ListFilesCall) CallID() string { return c.ID }
func (c ListFilesCall) Name() string   { return NameListFiles }
func (c ListFilesCall) Class() Class   { return ClassRead }
func (c ListFilesCall) isCall()        {}

// WriteFileCall creates or overwrites a file, creating parent
// directories as needed.
type WriteFileCall struct {
	ID      string
	Path    string
	Content string
}

func (c WriteFileCall) CallID() string { return c.ID }
func (c WriteFileCall) Name() string   { return NameWriteFile }
func (c WriteFileCall) Class() Class   { return ClassWrite }
func (c WriteFileCall) isCall()        {}

// AppendFileCall appends to an existing file. The file must exist.
type AppendFileCall struct {
	ID      string
	Path    string
	Content string
}

func (c AppendFileCall) CallID() string { return c.ID }
func (c AppendFileCall) Name() string   { return NameAppendFile }
func (c AppendFileCall) Class() Class   { return ClassWrite }
func (c AppendFileCall) isCall()        {}

// EditFileCall replaces one unique occurrence of OldString with
// NewString in an existing file.
type EditFileCall struct {
	ID        string
	Path      string
	OldString string
	NewString string
}

func (c EditFileCall) CallID() string { return c.ID }
func (c EditFileCall) Name() string   { return NameEditFile }
func (c EditFileCall) Class() Class   { return ClassWrite }
func (c EditFileCall) isCall()        {}

// ApplyPatchCall applies a unified diff to one or more files.
type ApplyPatchCall struct {
	ID    string
	Patch string
}

func (c ApplyPatchCall) CallID() string { return c.ID }
func (c ApplyPatchCall) Name() string   { return NameApplyPatch }
func (c ApplyPatchCall) Class() Class   { return ClassWrite }
func (c ApplyPatchCall) isCall()        {}

// RunCommandCall executes a shell command in the workspace root after
// human approval.
type RunCommandCall struct {
	ID      string
	Command string
}

func (c RunCommandCall) CallID() string { return c.ID }
func (c RunCommandCall) Name() string   { return NameRunCommand }
func (c RunCommandCall) Class() Class   { return ClassExecute }
func (c RunCommandCall) isCall()        {}
