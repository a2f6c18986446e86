// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent defines agents and runs the guarded hand-off loop.
package agent

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/guardrails"
	"github.com/jllopis/skycast/pkg/llm"
)

// Agent is a named bundle of instructions, tools, hand-off targets and input
// guardrails. It is immutable once built and may be shared between runs.
type Agent struct {
	name               string
	instructions       string
	model              string
	temperature        float64
	tools              []string
	handoffs           []*Agent
	handoffDescription string
	guardrails         []guardrails.Guardrail
	outputSchema       *llm.ResponseFormat
}

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates a new Agent with a required name and options.
func New(name string, opts ...Option) (*Agent, error) {
	a := &Agent{name: name}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(a.name) == "" {
		return nil, invalidAgent("agent name is required", "")
	}

	seenTools := make(map[string]bool, len(a.tools))
	for _, t := range a.tools {
		if t == "" || seenTools[t] {
			return nil, invalidAgent("agent tools must have unique non-empty names", a.name)
		}
		seenTools[t] = true
	}
	seenTargets := make(map[string]bool, len(a.handoffs))
	for _, h := range a.handoffs {
		if h == nil {
			return nil, invalidAgent("hand-off target is nil", a.name)
		}
		toolName := HandoffToolName(h)
		if seenTargets[toolName] || seenTools[toolName] {
			return nil, invalidAgent(fmt.Sprintf("hand-off tool %q is ambiguous", toolName), a.name)
		}
		seenTargets[toolName] = true
	}
	return a, nil
}

func invalidAgent(msg, name string) *errors.SkycastError {
	e := errors.New(errors.CodeConfiguration, msg, nil)
	if name != "" {
		e = e.WithContext("agent", name)
	}
	return e
}

// WithInstructions sets the agent's system prompt.
func WithInstructions(instructions string) Option {
	return func(a *Agent) error {
		a.instructions = instructions
		return nil
	}
}

// WithModel overrides the runner's default model for this agent.
func WithModel(model string) Option {
	return func(a *Agent) error {
		a.model = model
		return nil
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *Agent) error {
		if t < 0 || t > 2 {
			return invalidAgent(fmt.Sprintf("temperature %v out of range [0,2]", t), a.name)
		}
		a.temperature = t
		return nil
	}
}

// WithTools lists the registered tools the agent may call, in order.
func WithTools(names ...string) Option {
	return func(a *Agent) error {
		a.tools = append(a.tools, names...)
		return nil
	}
}

// WithHandoffs sets the agents this agent may transfer the turn to.
func WithHandoffs(targets ...*Agent) Option {
	return func(a *Agent) error {
		a.handoffs = append(a.handoffs, targets...)
		return nil
	}
}

// WithHandoffDescription describes the agent to models deciding whether to
// hand off to it.
func WithHandoffDescription(desc string) Option {
	return func(a *Agent) error {
		a.handoffDescription = desc
		return nil
	}
}

// WithInputGuardrails attaches guardrails evaluated, in order, before the
// agent's first turn when it starts a run.
func WithInputGuardrails(gs ...guardrails.Guardrail) Option {
	return func(a *Agent) error {
		for _, g := range gs {
			if g == nil {
				return invalidAgent("input guardrail is nil", a.name)
			}
		}
		a.guardrails = append(a.guardrails, gs...)
		return nil
	}
}

// WithOutputSchema constrains the agent's final reply to a JSON schema.
func WithOutputSchema(schema *llm.ResponseFormat) Option {
	return func(a *Agent) error {
		a.outputSchema = schema
		return nil
	}
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Instructions returns the system prompt.
func (a *Agent) Instructions() string { return a.instructions }

// Model returns the model override, if any.
func (a *Agent) Model() string { return a.model }

// Tools returns the agent's tool names.
func (a *Agent) Tools() []string {
	return append([]string(nil), a.tools...)
}

// Handoffs returns the hand-off targets.
func (a *Agent) Handoffs() []*Agent {
	return append([]*Agent(nil), a.handoffs...)
}

// HandoffDescription returns the description shown to delegating agents.
func (a *Agent) HandoffDescription() string { return a.handoffDescription }

// InputGuardrails returns the attached input guardrails.
func (a *Agent) InputGuardrails() []guardrails.Guardrail {
	return append([]guardrails.Guardrail(nil), a.guardrails...)
}

// OutputSchema returns the structured output schema, or nil for free text.
func (a *Agent) OutputSchema() *llm.ResponseFormat { return a.outputSchema }

func (a *Agent) hasTool(name string) bool {
	for _, t := range a.tools {
		if t == name {
			return true
		}
	}
	return false
}

// HandoffToolName is the synthetic tool a model calls to transfer to target,
// e.g. "transfer_to_weather_agent".
func HandoffToolName(target *Agent) string {
	var b strings.Builder
	b.WriteString("transfer_to_")
	lastUnderscore := true
	for _, r := range strings.ToLower(target.name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func handoffTool(target *Agent) llm.Tool {
	desc := target.handoffDescription
	if desc == "" {
		desc = fmt.Sprintf("Hand off to the %s to handle the request.", target.name)
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        HandoffToolName(target),
			Description: desc,
			Parameters: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
		},
	}
}
