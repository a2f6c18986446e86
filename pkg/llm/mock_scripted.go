// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"sync"

	"github.com/jllopis/skycast/pkg/errors"
)

// ScriptedMockProvider is a mock provider that returns a pre-defined sequence of responses.
// Useful for testing multi-turn interactions such as guardrail, hand-off and tool turns.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []ChatResponse
	Err       error
	// Requests records every request received, in call order.
	Requests []ChatRequest
	// CallCount tracks how many times Chat has been called
	CallCount int
}

// NewScriptedMockProvider creates a ScriptedMockProvider returning the given
// text responses in order.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	s := &ScriptedMockProvider{}
	for _, r := range responses {
		s.Responses = append(s.Responses, ChatResponse{Content: r})
	}
	return s
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if err := ctx.Err(); err != nil {
		return nil, errors.New(errors.CodeProviderUnavailable, "request cancelled", err)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, errors.New(errors.CodeProviderUnavailable, "scripted mock: no more responses available", nil)
	}

	resp := s.Responses[0]
	s.Responses = s.Responses[1:]
	resp.Usage = Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
	return &resp, nil
}

// AddResponse appends a text response to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) *ScriptedMockProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ChatResponse{Content: response})
	return s
}

// AddToolCall appends a response requesting a single function call.
func (s *ScriptedMockProvider) AddToolCall(id, name, arguments string) *ScriptedMockProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ChatResponse{
		ToolCalls: []ToolCall{{
			ID:       id,
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: name, Arguments: arguments},
		}},
	})
	return s
}

// Calls returns a snapshot of the recorded requests.
func (s *ScriptedMockProvider) Calls() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.Requests...)
}

// Remaining returns how many scripted responses have not been consumed.
func (s *ScriptedMockProvider) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Responses)
}
