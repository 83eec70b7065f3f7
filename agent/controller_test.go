// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/moduleforge/agent/approval"
	"github.com/AleutianAI/moduleforge/agent/llm"
	"github.com/AleutianAI/moduleforge/agent/policy"
	"github.com/AleutianAI/moduleforge/agent/prompts"
	"github.com/AleutianAI/moduleforge/agent/ralph"
	"github.com/AleutianAI/moduleforge/agent/tools"
	"github.com/AleutianAI/moduleforge/audit"
	"github.com/AleutianAI/moduleforge/workspace"
)

// captureStore keeps audit records in memory for assertions.
type captureStore struct {
	mu   sync.Mutex
	recs []audit.Record
}

func (s *captureStore) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *captureStore) List(_ context.Context, sessionID string) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for _, rec := range s.recs {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *captureStore) Close() error { return nil }

// byKind returns the captured records of one kind, in order.
func (s *captureStore) byKind(kind audit.Kind) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for _, rec := range s.recs {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

type controllerFixture struct {
	root    string
	client  *llm.MockClient
	runner  *tools.MockRunner
	store   *captureStore
	events  *Broadcaster
	eventCh <-chan SessionEvent
	ctrl    *Controller
}

func newFixture(t *testing.T, mode Mode) *controllerFixture {
	t.Helper()

	root := t.TempDir()
	client := llm.NewMockClient()
	runner := &tools.MockRunner{}
	store := &captureStore{}

	events := NewBroadcaster()
	t.Cleanup(func() { events.Close() })
	eventCh, cancel := events.Subscribe()
	t.Cleanup(cancel)

	guard, err := policy.NewGuard(root, nil)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	gateway, err := tools.NewGateway(guard, approval.NewStaticApprover(approval.Approved),
		runner, &tools.GatewayOptions{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	var locator *workspace.Locator
	if mode == ModeBuilder {
		locator, err = workspace.NewLocator(root, prompts.DefaultArtifacts().TestSpec)
		if err != nil {
			t.Fatalf("NewLocator: %v", err)
		}
	}

	ctrl, err := NewController(ControllerConfig{
		Mode:          mode,
		WorkspaceRoot: root,
		Client:        client,
		Gateway:       gateway,
		Audit:         store,
		Events:        events,
		Locator:       locator,
		MaxIterations: 2,
		Logger:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	return &controllerFixture{
		root:    root,
		client:  client,
		runner:  runner,
		store:   store,
		events:  events,
		eventCh: eventCh,
		ctrl:    ctrl,
	}
}

// addModule seeds a buildable module directory under the workspace.
func (f *controllerFixture) addModule(t *testing.T, name string) {
	t.Helper()
	a := prompts.DefaultArtifacts()
	dir := filepath.Join(f.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		a.TestSpec:  "def test_ok():\n    assert True\n",
		a.Prompt:    "# Build this module\n",
		a.Interface: "class Thing: ...\n",
	}
	for file, content := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// drainEvents collects everything published so far.
func (f *controllerFixture) drainEvents() []SessionEvent {
	var out []SessionEvent
	for {
		select {
		case ev := <-f.eventCh:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []SessionEvent) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func hasEvent(events []SessionEvent, match func(SessionEvent) bool) bool {
	for _, ev := range events {
		if match(ev) {
			return true
		}
	}
	return false
}

func TestNewController_Validation(t *testing.T) {
	root := t.TempDir()
	client := llm.NewMockClient()
	dispatch := &recordingDispatch{}

	tests := []struct {
		name string
		cfg  ControllerConfig
	}{
		{name: "bad mode", cfg: ControllerConfig{
			Mode: Mode("wizard"), WorkspaceRoot: root, Client: client, Gateway: dispatch,
		}},
		{name: "no workspace", cfg: ControllerConfig{
			Mode: ModeCoder, Client: client, Gateway: dispatch,
		}},
		{name: "no client", cfg: ControllerConfig{
			Mode: ModeCoder, WorkspaceRoot: root, Gateway: dispatch,
		}},
		{name: "no gateway", cfg: ControllerConfig{
			Mode: ModeCoder, WorkspaceRoot: root, Client: client,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewController(tt.cfg); err == nil {
				t.Error("NewController accepted an incomplete config")
			}
		})
	}
}

func TestController_Conversation_WritesThroughGateway(t *testing.T) {
	f := newFixture(t, ModeCoder)
	f.client.
		QueueToolCall("write_file", map[string]any{"path": "notes.txt", "content": "hello notes"}).
		QueueFinalResponse("wrote it")

	texts, err := f.ctrl.HandleInput(context.Background(), "please take a note")
	if err != nil {
		t.Fatalf("HandleInput: %v", err)
	}
	if len(texts) != 1 || texts[0] != "wrote it" {
		t.Errorf("texts = %v", texts)
	}

	data, err := os.ReadFile(filepath.Join(f.root, "notes.txt"))
	if err != nil {
		t.Fatalf("gateway write missing: %v", err)
	}
	if string(data) != "hello notes" {
		t.Errorf("file content = %q", data)
	}

	if got := f.ctrl.Snapshot(); got.Status != StatusActive || got.Generation != 1 {
		t.Errorf("snapshot = %+v, want active generation 1", got)
	}

	dispatches := f.store.byKind(audit.KindToolDispatch)
	if len(dispatches) != 1 {
		t.Fatalf("audit has %d dispatch records, want 1", len(dispatches))
	}
	rec := dispatches[0]
	if rec.Tool != "write_file" || rec.Verdict != "ok" {
		t.Errorf("dispatch record = %+v", rec)
	}
	if rec.Summary != "write_file notes.txt" {
		t.Errorf("dispatch summary = %q", rec.Summary)
	}
	if rec.SessionID == "" {
		t.Error("dispatch record has no session id")
	}

	events := f.drainEvents()
	if !hasEvent(events, func(ev SessionEvent) bool {
		return ev.Type == EventToolDispatch && ev.Tool == "write_file" && ev.Verdict == "ok"
	}) {
		t.Errorf("no dispatch event in %v", eventTypes(events))
	}
}

func TestController_CommandApprovalAudited(t *testing.T) {
	f := newFixture(t, ModeCoder)
	f.client.
		QueueToolCall("run_command", map[string]any{"command": "echo hi"}).
		QueueFinalResponse("ran it")

	if _, err := f.ctrl.HandleInput(context.Background(), "run echo"); err != nil {
		t.Fatalf("HandleInput: %v", err)
	}

	approvals := f.store.byKind(audit.KindApproval)
	if len(approvals) != 1 {
		t.Fatalf("audit has %d approval records, want 1", len(approvals))
	}
	if approvals[0].Verdict != "approved" {
		t.Errorf("approval verdict = %q", approvals[0].Verdict)
	}

	events := f.drainEvents()
	if !hasEvent(events, func(ev SessionEvent) bool {
		return ev.Type == EventApproval && ev.Verdict == string(approval.Approved)
	}) {
		t.Errorf("no approval event in %v", eventTypes(events))
	}
}

func TestController_HandleInput_AfterEnd(t *testing.T) {
	f := newFixture(t, ModeCoder)

	if got := f.ctrl.Finish(); got != StatusCompleted {
		t.Fatalf("Finish = %v, want %v", got, StatusCompleted)
	}

	_, err := f.ctrl.HandleInput(context.Background(), "anyone home?")
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("error = %v, want ErrSessionEnded", err)
	}
}

func TestController_Finish_Idempotent(t *testing.T) {
	f := newFixture(t, ModeCoder)

	f.ctrl.Finish()
	f.ctrl.Finish()

	ended := 0
	for _, rec := range f.store.byKind(audit.KindSession) {
		if rec.Verdict == "completed" {
			ended++
		}
	}
	if ended != 1 {
		t.Errorf("session recorded as ended %d times, want 1", ended)
	}
}

func TestController_TransportErrorKeepsSessionAlive(t *testing.T) {
	f := newFixture(t, ModeCoder)
	f.client.WithError(errors.New("connection reset"))

	_, err := f.ctrl.HandleInput(context.Background(), "hello?")
	if !errors.Is(err, ErrReasonerCommunication) {
		t.Fatalf("error = %v, want ErrReasonerCommunication", err)
	}
	if got := f.ctrl.Snapshot().Status; got != StatusActive {
		t.Fatalf("status = %v, want the session to survive", got)
	}

	// The next turn works once the backend recovers.
	f.client.WithError(nil).QueueFinalResponse("back online")
	texts, err := f.ctrl.HandleInput(context.Background(), "hello again")
	if err != nil {
		t.Fatalf("recovered turn: %v", err)
	}
	if len(texts) != 1 || texts[0] != "back online" {
		t.Errorf("texts = %v", texts)
	}
}

func TestController_Build_Success(t *testing.T) {
	f := newFixture(t, ModeBuilder)
	f.addModule(t, "geometry")

	f.runner.RunFunc = func(_ context.Context, command string) (tools.CommandOutcome, error) {
		return tools.CommandOutcome{Command: command, ExitCode: 0, Output: "2 passed"}, nil
	}
	f.client.QueueFinalResponse("implemented the module")

	texts, err := f.ctrl.HandleInput(context.Background(), "Build geometry please")
	if err != nil {
		t.Fatalf("HandleInput: %v", err)
	}
	if len(texts) != 1 || !strings.Contains(texts[0], "geometry") {
		t.Errorf("texts = %v", texts)
	}

	snap := f.ctrl.Snapshot()
	if snap.Status != StatusCompleted {
		t.Errorf("status = %v, want %v", snap.Status, StatusCompleted)
	}
	if snap.Module != "geometry" {
		t.Errorf("module = %q, want geometry", snap.Module)
	}
	if snap.Iteration != 1 {
		t.Errorf("iteration = %d, want 1", snap.Iteration)
	}
	if snap.Generation != 2 {
		t.Errorf("generation = %d, want 2 after the build reseed", snap.Generation)
	}

	if f.runner.CallCount() != 1 {
		t.Fatalf("test command ran %d times, want 1", f.runner.CallCount())
	}
	if got := f.runner.Calls[0]; got != ralph.DefaultTestCommand("geometry") {
		t.Errorf("test command = %q", got)
	}

	events := f.drainEvents()
	if !hasEvent(events, func(ev SessionEvent) bool {
		return ev.Type == EventModuleLocked && ev.Module == "geometry"
	}) {
		t.Errorf("no module_locked event in %v", eventTypes(events))
	}
	if !hasEvent(events, func(ev SessionEvent) bool {
		return ev.Type == EventLoopTransition && ev.To == ralph.StateSuccess.String()
	}) {
		t.Errorf("no success transition in %v", eventTypes(events))
	}
	if !hasEvent(events, func(ev SessionEvent) bool {
		return ev.Type == EventStatus && ev.Status == StatusCompleted
	}) {
		t.Errorf("no completed status event in %v", eventTypes(events))
	}

	// A build ends the session.
	if _, err := f.ctrl.HandleInput(context.Background(), "one more thing"); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("post-build input error = %v, want ErrSessionEnded", err)
	}
}

func TestController_Build_ExhaustedFailsSession(t *testing.T) {
	f := newFixture(t, ModeBuilder)
	f.addModule(t, "geometry")

	f.runner.RunFunc = func(_ context.Context, command string) (tools.CommandOutcome, error) {
		return tools.CommandOutcome{Command: command, ExitCode: 1, Output: "assert failed"}, nil
	}
	f.client.
		QueueFinalResponse("first attempt").
		QueueFinalResponse("second attempt")

	_, err := f.ctrl.HandleInput(context.Background(), "build geometry")
	if !errors.Is(err, ralph.ErrMaxIterationsExceeded) {
		t.Fatalf("error = %v, want ErrMaxIterationsExceeded", err)
	}

	snap := f.ctrl.Snapshot()
	if snap.Status != StatusFailed {
		t.Errorf("status = %v, want %v", snap.Status, StatusFailed)
	}
	if snap.Iteration != 2 {
		t.Errorf("iteration = %d, want 2", snap.Iteration)
	}
	if f.runner.CallCount() != 2 {
		t.Errorf("test command ran %d times, want 2", f.runner.CallCount())
	}

	// The repair reseed retired a generation beyond the pre-build one.
	if got := len(f.store.byKind(audit.KindGeneration)); got != 2 {
		t.Errorf("audit has %d generation records, want 2", got)
	}

	events := f.drainEvents()
	if !hasEvent(events, func(ev SessionEvent) bool {
		return ev.Type == EventLoopTransition &&
			ev.From == ralph.StateRepairing.String() && ev.Iteration == 2
	}) {
		t.Errorf("no repair transition in %v", eventTypes(events))
	}
	if !hasEvent(events, func(ev SessionEvent) bool {
		return ev.Type == EventStatus && ev.Status == StatusFailed
	}) {
		t.Errorf("no failed status event in %v", eventTypes(events))
	}
}

func TestController_Build_ScopeDeniesOutsideWrites(t *testing.T) {
	f := newFixture(t, ModeBuilder)
	f.addModule(t, "geometry")
	f.addModule(t, "algebra")

	f.runner.RunFunc = func(_ context.Context, command string) (tools.CommandOutcome, error) {
		return tools.CommandOutcome{Command: command, ExitCode: 0, Output: "1 passed"}, nil
	}
	// The reasoner strays into a sibling module before finishing.
	f.client.
		QueueToolCall("write_file", map[string]any{"path": "algebra/impl.py", "content": "x = 1"}).
		QueueFinalResponse("staying in my lane now")

	_, err := f.ctrl.HandleInput(context.Background(), "build the geometry module")
	if err != nil {
		t.Fatalf("HandleInput: %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(f.root, "algebra", "impl.py")); !os.IsNotExist(statErr) {
		t.Error("write outside the locked module reached the filesystem")
	}

	denied := false
	for _, rec := range f.store.byKind(audit.KindToolDispatch) {
		if rec.Tool == "write_file" && rec.Verdict == "denied" {
			denied = true
		}
	}
	if !denied {
		t.Error("no denied dispatch record for the out-of-scope write")
	}

	if got := f.ctrl.Snapshot().Status; got != StatusCompleted {
		t.Errorf("status = %v, want the build to succeed regardless", got)
	}
}

func TestController_Builder_NonModuleInputStaysConversational(t *testing.T) {
	f := newFixture(t, ModeBuilder)
	f.client.QueueFinalResponse("hello back")

	texts, err := f.ctrl.HandleInput(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("HandleInput: %v", err)
	}
	if len(texts) != 1 || texts[0] != "hello back" {
		t.Errorf("texts = %v", texts)
	}

	snap := f.ctrl.Snapshot()
	if snap.Status != StatusActive {
		t.Errorf("status = %v, want %v", snap.Status, StatusActive)
	}
	if snap.Module != "" {
		t.Errorf("module = %q, want none locked", snap.Module)
	}
	if f.runner.CallCount() != 0 {
		t.Error("no test command should run without a lock")
	}
}

func TestController_WorkspaceEventRecorded(t *testing.T) {
	f := newFixture(t, ModeCoder)

	f.ctrl.HandleWorkspaceEvent(workspace.Event{
		Path: "rogue.py",
		Op:   "write",
		At:   time.Now().UTC(),
	})

	foreign := f.store.byKind(audit.KindWorkspace)
	if len(foreign) != 1 {
		t.Fatalf("audit has %d workspace records, want 1", len(foreign))
	}
	if foreign[0].Verdict != "foreign" {
		t.Errorf("workspace verdict = %q", foreign[0].Verdict)
	}
	if !strings.Contains(foreign[0].Summary, "rogue.py") {
		t.Errorf("workspace summary = %q", foreign[0].Summary)
	}

	events := f.drainEvents()
	if !hasEvent(events, func(ev SessionEvent) bool {
		return ev.Type == EventWorkspaceChange && strings.Contains(ev.Detail, "rogue.py")
	}) {
		t.Errorf("no workspace event in %v", eventTypes(events))
	}
}

func TestController_RelToRoot(t *testing.T) {
	f := newFixture(t, ModeCoder)

	abs := filepath.Join(f.root, "pkg", "f.py")
	if got := f.ctrl.relToRoot(abs); got != filepath.Join("pkg", "f.py") {
		t.Errorf("relToRoot(%q) = %q", abs, got)
	}
	if got := f.ctrl.relToRoot("already/rel.py"); got != "already/rel.py" {
		t.Errorf("relToRoot kept = %q", got)
	}
}
