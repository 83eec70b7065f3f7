// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/moduleforge/agent/memory"
)

func TestMockClient_QueueOrder(t *testing.T) {
	mock := NewMockClient().
		QueueToolCall("read_file", map[string]any{"path": "main.py"}).
		QueueFinalResponse("All done.")

	if err := mock.Verify(); err == nil {
		t.Error("Verify() = nil before consuming queue, want error")
	}

	first, err := mock.Complete(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if first.StopReason != StopToolUse {
		t.Errorf("first.StopReason = %q, want %q", first.StopReason, StopToolUse)
	}
	if len(first.ToolCalls) != 1 || first.ToolCalls[0].Name != "read_file" {
		t.Errorf("first.ToolCalls = %+v, want read_file", first.ToolCalls)
	}

	second, err := mock.Complete(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if second.Content != "All done." {
		t.Errorf("second.Content = %q, want 'All done.'", second.Content)
	}
	if second.StopReason != StopEnd {
		t.Errorf("second.StopReason = %q, want %q", second.StopReason, StopEnd)
	}

	if err := mock.Verify(); err != nil {
		t.Errorf("Verify() = %v after consuming queue, want nil", err)
	}

	// Queue empty: the default response takes over.
	third, err := mock.Complete(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if third.Content != "Mock response" {
		t.Errorf("third.Content = %q, want default", third.Content)
	}
}

func TestMockClient_WithError(t *testing.T) {
	wantErr := errors.New("backend down")
	mock := NewMockClient().WithError(wantErr)

	_, err := mock.Complete(context.Background(), &Request{})
	if !errors.Is(err, wantErr) {
		t.Errorf("Complete() error = %v, want %v", err, wantErr)
	}
}

func TestMockClient_WithResponseFunc(t *testing.T) {
	mock := NewMockClient().WithResponseFunc(func(req *Request) (*Response, error) {
		return &Response{
			Content:    req.System,
			StopReason: StopEnd,
		}, nil
	})

	resp, err := mock.Complete(context.Background(), &Request{System: "echo me"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "echo me" {
		t.Errorf("resp.Content = %q, want 'echo me'", resp.Content)
	}
}

func TestMockClient_RecordsCalls(t *testing.T) {
	mock := NewMockClient()

	req := &Request{Turns: []memory.Turn{memory.UserTurn("hi")}}
	if _, err := mock.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if _, err := mock.Complete(context.Background(), &Request{}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if mock.CallCount() != 2 {
		t.Errorf("CallCount() = %d, want 2", mock.CallCount())
	}
	calls := mock.GetCalls()
	if len(calls) != 2 {
		t.Fatalf("len(GetCalls()) = %d, want 2", len(calls))
	}
	if calls[0].Request != req {
		t.Error("GetCalls()[0].Request is not the first request")
	}
	if mock.LastRequest() != calls[1].Request {
		t.Error("LastRequest() does not match the second call")
	}

	mock.Reset()
	if mock.CallCount() != 0 {
		t.Errorf("CallCount() = %d after Reset, want 0", mock.CallCount())
	}
	if mock.LastRequest() != nil {
		t.Error("LastRequest() != nil after Reset")
	}
}

func TestMockClient_ContextCanceled(t *testing.T) {
	mock := NewMockClient()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mock.Complete(ctx, &Request{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Complete() error = %v, want context.Canceled", err)
	}
	// The call is still recorded.
	if mock.CallCount() != 1 {
		t.Errorf("CallCount() = %d, want 1", mock.CallCount())
	}
}
