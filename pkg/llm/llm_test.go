// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jllopis/skycast/pkg/errors"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
}

func TestCompletePrependsSystemPrompt(t *testing.T) {
	mock := NewScriptedMockProvider("ok")
	schema := &ResponseFormat{Name: "check", Schema: map[string]any{"type": "object"}}
	history := []Message{{Role: RoleUser, Content: "What is the weather in Lahore?"}}

	if _, err := Complete(context.Background(), mock, "test-model", "be brief", history, schema); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	req := calls[0]
	if req.Model != "test-model" {
		t.Errorf("expected model test-model, got %q", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[0].Content != "be brief" {
		t.Errorf("unexpected messages: %+v", req.Messages)
	}
	if req.ResponseFormat != schema {
		t.Error("expected response format to be forwarded")
	}
}

func TestCompleteWithoutProvider(t *testing.T) {
	_, err := Complete(context.Background(), nil, "", "", nil, nil)
	if !errors.Is(err, errors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
}

type classification struct {
	Response   string `json:"response"`
	IsInDomain bool   `json:"isInDomain"`
}

func TestDecodeStructured(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		want    classification
	}{
		{
			name:    "valid",
			content: `{"response":"Sure","isInDomain":true}`,
			want:    classification{Response: "Sure", IsInDomain: true},
		},
		{
			name:    "code fence",
			content: "```json\n{\"response\":\"No\",\"isInDomain\":false}\n```",
			want:    classification{Response: "No"},
		},
		{name: "empty", content: "   ", wantErr: true},
		{name: "free text", content: "I think it is about weather", wantErr: true},
		{name: "missing field", content: `{"response":"hi"}`, wantErr: true},
		{name: "null field", content: `{"response":"hi","isInDomain":null}`, wantErr: true},
		{name: "wrong type", content: `{"response":"hi","isInDomain":"yes"}`, wantErr: true},
		{name: "unknown field", content: `{"response":"hi","isInDomain":true,"extra":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got classification
			err := DecodeStructured(tt.content, &got, "response", "isInDomain")
			if tt.wantErr {
				if !errors.Is(err, errors.CodeSchemaViolation) {
					t.Fatalf("expected SCHEMA_VIOLATION, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestScriptedMockProviderExhausted(t *testing.T) {
	mock := NewScriptedMockProvider()
	_, err := mock.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, errors.CodeProviderUnavailable) {
		t.Fatalf("expected PROVIDER_UNAVAILABLE, got %v", err)
	}
	if mock.CallCount != 1 {
		t.Errorf("expected CallCount 1, got %d", mock.CallCount)
	}
}

func TestOllamaChat(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"fetch_weather","arguments":{"city":"Lahore"}}}]},"done":true,"prompt_eval_count":3,"eval_count":4}`))
	}))
	defer srv.Close()

	p := NewOllama(srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:          "llama3.1",
		Messages:       []Message{{Role: RoleUser, Content: "weather in Lahore"}},
		ResponseFormat: &ResponseFormat{Name: "x", Schema: map[string]any{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got.Format["type"] != "object" {
		t.Errorf("expected schema forwarded as format, got %v", got.Format)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "fetch_weather" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Function.Arguments != `{"city":"Lahore"}` {
		t.Errorf("unexpected arguments: %s", resp.ToolCalls[0].Function.Arguments)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("expected 7 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestOllamaStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		code   errors.ErrorCode
	}{
		{http.StatusUnauthorized, errors.CodeAuthenticationFailed},
		{http.StatusForbidden, errors.CodeAuthenticationFailed},
		{http.StatusServiceUnavailable, errors.CodeProviderUnavailable},
		{http.StatusBadRequest, errors.CodeProviderUnavailable},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{})
		srv.Close()
		if !errors.Is(err, tt.code) {
			t.Errorf("status %d: expected %s, got %v", tt.status, tt.code, err)
		}
	}
}
