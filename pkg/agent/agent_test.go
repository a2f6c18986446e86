// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"testing"

	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/guardrails"
	"github.com/jllopis/skycast/pkg/llm"
)

func TestNewValidates(t *testing.T) {
	target, err := New("Weather Agent")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts []Option
	}{
		{name: "", opts: nil},
		{name: "dup tools", opts: []Option{WithTools("a", "a")}},
		{name: "nil target", opts: []Option{WithHandoffs(nil)}},
		{name: "dup targets", opts: []Option{WithHandoffs(target, target)}},
		{name: "nil guardrail", opts: []Option{WithInputGuardrails(nil)}},
		{name: "bad temperature", opts: []Option{WithTemperature(3)}},
	}
	for _, tt := range tests {
		if _, err := New(tt.name, tt.opts...); !errors.Is(err, errors.CodeConfiguration) {
			t.Errorf("%q: expected CONFIGURATION_ERROR, got %v", tt.name, err)
		}
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	g := guardrails.NewPromptInjectionDetector()
	a, err := New("FirstAgent",
		WithInstructions("greet"),
		WithModel("m"),
		WithTools("fetch_weather"),
		WithHandoffDescription("desc"),
		WithInputGuardrails(g),
		WithOutputSchema(&llm.ResponseFormat{Name: "x"}),
	)
	if err != nil {
		t.Fatal(err)
	}
	tools := a.Tools()
	tools[0] = "changed"
	if a.Tools()[0] != "fetch_weather" {
		t.Error("Tools() exposed internal slice")
	}
	if a.Name() != "FirstAgent" || a.Instructions() != "greet" || a.Model() != "m" || a.HandoffDescription() != "desc" {
		t.Error("unexpected accessor values")
	}
	if len(a.InputGuardrails()) != 1 || a.OutputSchema().Name != "x" || len(a.Handoffs()) != 0 {
		t.Error("unexpected accessor values")
	}
}

func TestHandoffToolName(t *testing.T) {
	tests := map[string]string{
		"Weather Agent":  "transfer_to_weather_agent",
		"weather":        "transfer_to_weather",
		"  Billing--Bot": "transfer_to_billing_bot",
		"Agent 2!":       "transfer_to_agent_2",
	}
	for name, want := range tests {
		a, err := New(name)
		if err != nil {
			t.Fatal(err)
		}
		if got := HandoffToolName(a); got != want {
			t.Errorf("HandoffToolName(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	target, _ := New("Weather Agent")
	targets := map[string]*Agent{"transfer_to_weather_agent": target}

	if out, ok := classify(&llm.ChatResponse{Content: "hi"}, targets).(DirectReply); !ok || out.Text != "hi" {
		t.Errorf("expected DirectReply, got %#v", out)
	}

	resp := &llm.ChatResponse{ToolCalls: []llm.ToolCall{
		{ID: "1", Function: llm.FunctionCall{Name: "transfer_to_weather_agent", Arguments: "{}"}},
		{ID: "2", Function: llm.FunctionCall{Name: "fetch_weather", Arguments: "{}"}},
	}}
	if out, ok := classify(resp, targets).(Handoff); !ok || out.Target != target {
		t.Errorf("expected Handoff, got %#v", out)
	}
	if out, ok := classify(resp, nil).(ToolCall); !ok || out.Name != "transfer_to_weather_agent" {
		t.Errorf("expected ToolCall when hand-off is not offered, got %#v", out)
	}

	resp.ToolCalls = resp.ToolCalls[1:]
	if out, ok := classify(resp, targets).(ToolCall); !ok || out.ID != "2" || out.Name != "fetch_weather" {
		t.Errorf("expected ToolCall, got %#v", out)
	}
}
