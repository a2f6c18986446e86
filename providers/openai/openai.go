// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai provides an OpenAI-compatible chat-completions provider.
//
// Any endpoint speaking the chat-completions protocol works through
// WithBaseURL; the default points at Gemini's OpenAI-compatible surface.
package openai

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/llm"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	// DefaultModel is the model used when neither the request nor the provider names one.
	DefaultModel = "gemini-2.0-flash"
)

// Provider implements llm.Provider for OpenAI-compatible APIs.
type Provider struct {
	client  openai.Client
	model   string
	apiKey  string
	baseURL string
	extra   []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL sets a custom base URL (OpenAI, Azure OpenAI, proxies, Gemini).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = url
		}
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) {
		p.apiKey = apiKey
	}
}

// WithRequestOptions appends raw openai-go request options, e.g. a custom HTTP client.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(p *Provider) {
		p.extra = append(p.extra, opts...)
	}
}

// New creates a new OpenAI-compatible provider.
// The SDK's automatic retries are disabled: retry policy belongs to the caller.
func New(opts ...Option) *Provider {
	p := &Provider{
		model:   DefaultModel,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	reqOpts := []option.RequestOption{
		option.WithBaseURL(p.baseURL),
		option.WithMaxRetries(0),
	}
	if p.apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(p.apiKey))
	}
	reqOpts = append(reqOpts, p.extra...)
	p.client = openai.NewClient(reqOpts...)
	return p
}

// NewWithAPIKey creates a new provider with explicit API key.
func NewWithAPIKey(apiKey string, opts ...Option) *Provider {
	opts = append([]Option{WithAPIKey(apiKey)}, opts...)
	return New(opts...)
}

// Model returns the default model.
func (p *Provider) Model() string { return p.model }

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.apiKey == "" {
		return nil, errors.New(errors.CodeAuthenticationFailed, "completion provider API key is not set", nil)
	}

	completion, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, classifyError(err)
	}
	return convertResponse(completion), nil
}

func (p *Provider) buildParams(req llm.ChatRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, convertTool(tool))
		}
		params.Tools = tools
	}
	if rf := req.ResponseFormat; rf != nil {
		schema := openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   rf.Name,
			Schema: rf.Schema,
			Strict: openai.Bool(rf.Strict),
		}
		if rf.Description != "" {
			schema.Description = openai.String(rf.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schema},
		}
	}
	return params
}

// convertMessage converts an llm message to OpenAI format.
func convertMessage(msg llm.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case llm.RoleSystem:
		return openai.SystemMessage(msg.Content)
	case llm.RoleUser:
		return openai.UserMessage(msg.Content)
	case llm.RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			assistantMsg := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: toolCalls,
			}
			if msg.Content != "" {
				assistantMsg.Content.OfString = openai.String(msg.Content)
			}
			return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMsg}
		}
		return openai.AssistantMessage(msg.Content)
	case llm.RoleTool:
		return openai.ToolMessage(msg.Content, msg.ToolCallID)
	default:
		return openai.UserMessage(msg.Content)
	}
}

// convertTool converts an llm tool to OpenAI format.
func convertTool(tool llm.Tool) openai.ChatCompletionToolParam {
	paramsJSON, _ := json.Marshal(tool.Function.Parameters)
	var params openai.FunctionParameters
	_ = json.Unmarshal(paramsJSON, &params)

	return openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
			Parameters:  params,
		},
	}
}

// convertResponse converts an OpenAI response to llm format.
func convertResponse(completion *openai.ChatCompletion) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) == 0 {
		return resp
	}

	choice := completion.Choices[0]
	resp.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return resp
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		return llm.ClassifyHTTPStatus("openai", apiErr.StatusCode, err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.CodeProviderUnavailable, "completion provider unreachable", err).
			WithRecoverable(true)
	}
	return errors.New(errors.CodeProviderUnavailable, "openai chat completion failed", err)
}

var _ llm.Provider = (*Provider)(nil)
