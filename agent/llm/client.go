// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the reasoner client interface for the agent loop.
//
// This package defines the interface that reasoner providers must implement
// to drive the agent. Concrete backends are injected at session start, so
// the loop never depends on a particular provider.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package llm

import (
	"context"
	"time"

	"github.com/AleutianAI/moduleforge/agent/memory"
	"github.com/AleutianAI/moduleforge/agent/tools"
)

// Client defines the interface for reasoner interactions.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends the conversation to the reasoner and returns a response.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   request - The completion request
	//
	// Outputs:
	//   *Response - The reasoner response
	//   error - Non-nil if the request failed
	Complete(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g., "openai", "ollama").
	Name() string

	// Model returns the model being used.
	Model() string
}

// Request represents a completion request to the reasoner.
type Request struct {
	// System is the system prompt, sent before the conversation.
	System string `json:"system,omitempty"`

	// Turns is the conversation history, oldest first.
	Turns []memory.Turn `json:"turns"`

	// Tools defines the tools the reasoner may call.
	Tools []tools.Definition `json:"tools,omitempty"`

	// MaxTokens limits the response length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `json:"temperature,omitempty"`

	// Stop defines sequences that stop generation.
	Stop []string `json:"stop,omitempty"`
}

// Stop reasons reported by Response.StopReason.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
	StopToolUse   = "tool_use"
)

// Response represents a reasoner response.
type Response struct {
	// Content is the assistant text. May be empty when tools are called.
	Content string `json:"content"`

	// ToolCalls contains any tool calls the reasoner wants to make.
	ToolCalls []memory.ToolCall `json:"tool_calls,omitempty"`

	// StopReason indicates why generation stopped.
	// Values: "end", "max_tokens", "tool_use".
	StopReason string `json:"stop_reason"`

	// InputTokens is the prompt token count.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the completion token count.
	OutputTokens int `json:"output_tokens"`

	// Duration is how long the request took.
	Duration time.Duration `json:"duration"`

	// Model is the model that generated this response.
	Model string `json:"model,omitempty"`
}

// HasToolCalls returns true if the response contains tool calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// KeySource provides an API key at request time.
//
// Implementations should read the key from protected memory on every call
// rather than caching it. Clients must not retain the returned string
// beyond the request that needed it.
type KeySource interface {
	APIKey() (string, error)
}

// StaticKey is a KeySource holding a plaintext key. Intended for tests and
// for deployments that accept a key from the environment.
type StaticKey string

// APIKey implements KeySource.
func (k StaticKey) APIKey() (string, error) {
	return string(k), nil
}
