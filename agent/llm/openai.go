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
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/moduleforge/agent/memory"
	"github.com/AleutianAI/moduleforge/agent/tools"
	"github.com/AleutianAI/moduleforge/pkg/logging"
)

// DefaultRequestTimeout bounds a single completion round trip.
const DefaultRequestTimeout = 5 * time.Minute

// OpenAIConfig configures an OpenAI-compatible backend.
type OpenAIConfig struct {
	// BaseURL is the API endpoint. Empty means the public OpenAI endpoint.
	// Point this at any compatible server (DeepSeek, vLLM, llama.cpp).
	BaseURL string

	// Model is the model name sent with every request.
	Model string

	// Keys provides the API key per request. Required.
	Keys KeySource

	// HTTPClient overrides the transport. Nil means a client with
	// DefaultRequestTimeout.
	HTTPClient *http.Client

	// Logger receives request diagnostics. Nil means the process default.
	Logger *logging.Logger
}

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint.
//
// Description:
//
//	OpenAIClient implements Client over the chat completions API. The API
//	key is fetched from the configured KeySource on every request and the
//	SDK client is rebuilt around it, so the key never sits in a long-lived
//	struct field. The HTTP client is shared across requests to keep
//	connection pooling.
//
// Thread Safety:
//
//	OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	baseURL    string
	model      string
	keys       KeySource
	httpClient *http.Client
	logger     *logging.Logger
}

// Compile-time interface check.
var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
//
// Inputs:
//
//	cfg - Backend configuration. Model and Keys are required.
//
// Outputs:
//
//	*OpenAIClient - The configured client.
//	error - Non-nil if the configuration is incomplete.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai client requires a model")
	}
	if cfg.Keys == nil {
		return nil, fmt.Errorf("openai client requires a key source")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &OpenAIClient{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		keys:       cfg.Keys,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Complete implements Client.
//
// Description:
//
//	Sends the conversation as a chat completion request and maps the first
//	choice back into a Response. Transport and API failures are returned
//	wrapped; callers decide whether they are fatal.
//
// Thread Safety: This method is safe for concurrent use.
func (c *OpenAIClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	if request == nil {
		return nil, fmt.Errorf("nil request")
	}

	key, err := c.keys.APIKey()
	if err != nil {
		return nil, fmt.Errorf("api key: %w", err)
	}
	sdkCfg := openai.DefaultConfig(key)
	if c.baseURL != "" {
		sdkCfg.BaseURL = c.baseURL
	}
	sdkCfg.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(sdkCfg)

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(request),
		Tools:    toOpenAITools(request.Tools),
	}
	if request.Temperature > 0 {
		req.Temperature = float32(request.Temperature)
	}
	if request.MaxTokens > 0 {
		req.MaxCompletionTokens = request.MaxTokens
	}
	if len(request.Stop) > 0 {
		req.Stop = request.Stop
	}

	c.logger.Debug("sending chat completion",
		"model", c.model,
		"turns", len(request.Turns),
		"tools", len(request.Tools),
	)

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		ToolCalls:    fromOpenAIToolCalls(choice.Message.ToolCalls),
		StopReason:   fromFinishReason(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     time.Since(start),
		Model:        resp.Model,
	}

	c.logger.Debug("chat completion finished",
		"stop_reason", out.StopReason,
		"tool_calls", len(out.ToolCalls),
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"duration", out.Duration,
	)

	return out, nil
}

// Name implements Client.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Model implements Client.
func (c *OpenAIClient) Model() string {
	return c.model
}

// toOpenAIMessages converts a request into chat completion messages.
// The system prompt, when present, becomes the first message.
//
// The memory package shares the chat completions wire vocabulary, so roles
// map across without translation.
func toOpenAIMessages(request *Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(request.Turns)+1)
	if request.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.System,
		})
	}
	for _, turn := range request.Turns {
		messages = append(messages, toOpenAIMessage(turn))
	}
	return messages
}

// toOpenAIMessage converts a single turn.
func toOpenAIMessage(turn memory.Turn) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:    turn.Role,
		Content: turn.Content,
	}
	switch turn.Role {
	case memory.RoleAssistant:
		for _, call := range turn.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
	case memory.RoleTool:
		msg.ToolCallID = turn.ToolCallID
		msg.Name = turn.Name
	}
	return msg
}

// toOpenAITools converts tool definitions into the function tool format.
func toOpenAITools(defs []tools.Definition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

// fromOpenAIToolCalls converts SDK tool calls into the memory wire shape.
func fromOpenAIToolCalls(calls []openai.ToolCall) []memory.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]memory.ToolCall, 0, len(calls))
	for _, call := range calls {
		out = append(out, memory.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out
}

// fromFinishReason maps SDK finish reasons onto the client's stop reasons.
// Unrecognized reasons pass through verbatim.
func fromFinishReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonStop:
		return StopEnd
	case openai.FinishReasonLength:
		return StopMaxTokens
	case openai.FinishReasonToolCalls:
		return StopToolUse
	default:
		return string(reason)
	}
}
