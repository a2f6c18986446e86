// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package assistant assembles the default Skycast agent graph: a greeting
// agent, guarded by a weather-topic classifier, that hands off to a weather
// agent owning the fetch_weather tool.
package assistant

import (
	"github.com/jllopis/skycast/pkg/agent"
	"github.com/jllopis/skycast/pkg/guardrails"
	"github.com/jllopis/skycast/pkg/llm"
	"github.com/jllopis/skycast/pkg/telemetry"
	"github.com/jllopis/skycast/pkg/tool"
	"github.com/jllopis/skycast/pkg/weather"
)

const (
	EntryAgentName     = "FirstAgent"
	WeatherAgentName   = "Weather Agent"
	GuardrailAgentName = "Weather Guardrail Agent"
)

const entryInstructions = `You are a helpful assistant your task is to greet user and handsoff to weather agent
1. Welcome user politely.
2. Handoffs to the weather agent to answer the weather question.`

const weatherInstructions = "You are a weather agent your task is to give the current weather update"

const entryHandoffDescription = "You need to handsoff to weather agent after welcome message appears"

// Options tunes the graph.
type Options struct {
	// Model overrides the runner's default model for every agent.
	Model       string
	Temperature float64
	// PromptInjection puts the pattern detector ahead of the classifier.
	PromptInjection bool
}

// Agents builds the graph and returns its entry agent. The classifier uses
// provider for its own completion.
func Agents(provider llm.Provider, opts Options) (*agent.Agent, error) {
	weatherAgent, err := agent.New(WeatherAgentName,
		agent.WithInstructions(weatherInstructions),
		agent.WithModel(opts.Model),
		agent.WithTemperature(opts.Temperature),
		agent.WithTools(weather.ToolName),
		agent.WithHandoffDescription("Answers questions about the current weather in a city."),
	)
	if err != nil {
		return nil, err
	}

	var checks []guardrails.Guardrail
	if opts.PromptInjection {
		checks = append(checks, guardrails.NewPromptInjectionDetector())
	}
	checks = append(checks, guardrails.NewClassifier(GuardrailAgentName, provider, guardrails.WithModel(opts.Model)))

	return agent.New(EntryAgentName,
		agent.WithInstructions(entryInstructions),
		agent.WithModel(opts.Model),
		agent.WithTemperature(opts.Temperature),
		agent.WithHandoffs(weatherAgent),
		agent.WithHandoffDescription(entryHandoffDescription),
		agent.WithInputGuardrails(checks...),
	)
}

// Tools returns a registry holding fetch_weather backed by client.
func Tools(client *weather.Client, metrics *telemetry.RunMetrics) (*tool.Registry, error) {
	reg := tool.NewRegistry().WithMetrics(metrics)
	if err := weather.Register(reg, client); err != nil {
		return nil, err
	}
	return reg, nil
}
