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
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/AleutianAI/moduleforge/agent/memory"
	"github.com/AleutianAI/moduleforge/agent/tools"
	"github.com/AleutianAI/moduleforge/pkg/logging"
)

// OllamaConfig configures the local Ollama backend.
type OllamaConfig struct {
	// ServerURL is the Ollama endpoint. Empty means the library default
	// (http://localhost:11434).
	ServerURL string

	// Model is the model name (e.g., "qwen2.5-coder:14b").
	Model string

	// Logger receives request diagnostics. Nil means the process default.
	Logger *logging.Logger
}

// OllamaClient runs completions against a local Ollama server.
//
// Description:
//
//	OllamaClient implements Client for local models. No API key is
//	involved. Ollama does not report token usage through this path, so
//	token counts are estimated at ~4 characters per token.
//
// Thread Safety:
//
//	OllamaClient is safe for concurrent use.
type OllamaClient struct {
	llm    *ollama.LLM
	model  string
	logger *logging.Logger
}

// Compile-time interface check.
var _ Client = (*OllamaClient)(nil)

// NewOllamaClient creates a client for a local Ollama server.
//
// Inputs:
//
//	cfg - Backend configuration. Model is required.
//
// Outputs:
//
//	*OllamaClient - The configured client.
//	error - Non-nil if the configuration is incomplete or the server URL
//	        does not parse.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama client requires a model")
	}

	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}
	backend, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &OllamaClient{
		llm:    backend,
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Complete implements Client.
//
// Thread Safety: This method is safe for concurrent use.
func (c *OllamaClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	if request == nil {
		return nil, fmt.Errorf("nil request")
	}

	messages := toOllamaMessages(request)

	c.logger.Debug("sending ollama completion",
		"model", c.model,
		"messages", len(messages),
		"tools", len(request.Tools),
	)

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, messages, ollamaCallOptions(request)...)
	if err != nil {
		return nil, fmt.Errorf("ollama completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ollama completion returned no choices")
	}

	choice := resp.Choices[0]
	return &Response{
		Content:      choice.Content,
		ToolCalls:    fromOllamaToolCalls(choice.ToolCalls),
		StopReason:   ollamaStopReason(choice),
		InputTokens:  estimateTurnTokens(request.Turns),
		OutputTokens: estimateTokens(choice.Content),
		Duration:     time.Since(start),
		Model:        c.model,
	}, nil
}

// Name implements Client.
func (c *OllamaClient) Name() string {
	return "ollama"
}

// Model implements Client.
func (c *OllamaClient) Model() string {
	return c.model
}

// toOllamaMessages converts a request into langchaingo message contents.
func toOllamaMessages(request *Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(request.Turns)+1)
	if request.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, request.System))
	}
	for _, turn := range request.Turns {
		messages = append(messages, toOllamaMessage(turn))
	}
	return messages
}

// toOllamaMessage converts a single turn.
func toOllamaMessage(turn memory.Turn) llms.MessageContent {
	switch turn.Role {
	case memory.RoleSystem:
		return llms.TextParts(llms.ChatMessageTypeSystem, turn.Content)
	case memory.RoleAssistant:
		msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if turn.Content != "" {
			msg.Parts = append(msg.Parts, llms.TextContent{Text: turn.Content})
		}
		for _, call := range turn.ToolCalls {
			msg.Parts = append(msg.Parts, llms.ToolCall{
				ID:   call.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		return msg
	case memory.RoleTool:
		return llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: turn.ToolCallID,
				Name:       turn.Name,
				Content:    turn.Content,
			}},
		}
	default:
		return llms.TextParts(llms.ChatMessageTypeHuman, turn.Content)
	}
}

// ollamaCallOptions converts request parameters into call options.
func ollamaCallOptions(request *Request) []llms.CallOption {
	var opts []llms.CallOption
	if request.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(request.MaxTokens))
	}
	if request.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(request.Temperature))
	}
	if len(request.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(request.Stop))
	}
	if len(request.Tools) > 0 {
		opts = append(opts, llms.WithTools(toOllamaTools(request.Tools)))
	}
	return opts
}

// toOllamaTools converts tool definitions into the function tool format.
func toOllamaTools(defs []tools.Definition) []llms.Tool {
	out := make([]llms.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

// fromOllamaToolCalls converts langchaingo tool calls into the memory wire
// shape. Calls without a function payload are dropped.
func fromOllamaToolCalls(calls []llms.ToolCall) []memory.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]memory.ToolCall, 0, len(calls))
	for _, call := range calls {
		if call.FunctionCall == nil {
			continue
		}
		out = append(out, memory.ToolCall{
			ID:        call.ID,
			Name:      call.FunctionCall.Name,
			Arguments: call.FunctionCall.Arguments,
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ollamaStopReason derives a stop reason from the first choice.
func ollamaStopReason(choice *llms.ContentChoice) string {
	if len(choice.ToolCalls) > 0 {
		return StopToolUse
	}
	if choice.StopReason != "" {
		return choice.StopReason
	}
	return StopEnd
}

// estimateTokens provides a rough token estimate.
//
// Estimates token count as ~4 characters per token. This is a rough
// approximation; actual counts depend on the tokenizer.
func estimateTokens(content string) int {
	return len(content) / 4
}

// estimateTurnTokens estimates input tokens across the conversation.
func estimateTurnTokens(turns []memory.Turn) int {
	total := 0
	for _, turn := range turns {
		total += len(turn.Content)
	}
	return total / 4
}
