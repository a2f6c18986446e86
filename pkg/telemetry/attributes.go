// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry and slog integration for the
// assistant: tracer/meter setup, span attributes and run metrics.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys. These follow OpenTelemetry naming conventions where applicable.
const (
	// Agent attributes
	AttrAgentName   = "skycast.agent.name"
	AttrAgentRunID  = "skycast.agent.run_id"
	AttrAgentState  = "skycast.agent.state"
	AttrHandoffFrom = "skycast.handoff.from"
	AttrHandoffTo   = "skycast.handoff.to"

	// Session attributes
	AttrSessionID    = "skycast.session.id"
	AttrSessionTurns = "skycast.session.turn_count"
	AttrSessionStore = "skycast.session.backend"

	// Guardrail attributes
	AttrGuardrailName     = "skycast.guardrail.name"
	AttrGuardrailTripwire = "skycast.guardrail.tripwire"
	AttrGuardrailInDomain = "skycast.guardrail.in_domain"

	// Tool attributes
	AttrToolName       = "skycast.tool.name"
	AttrToolCallID     = "skycast.tool.call_id"
	AttrToolDurationMs = "skycast.tool.duration_ms"
	AttrToolSuccess    = "skycast.tool.success"

	// LLM attributes (extending standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMToolCalls    = "gen_ai.tool_calls"

	// Weather provider attributes
	AttrWeatherCity   = "skycast.weather.city"
	AttrWeatherStatus = "skycast.weather.http_status"
)

// AgentAttributes returns common attributes for agent spans.
func AgentAttributes(agentName, runID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentName, agentName),
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(AttrAgentRunID, runID))
	}
	return attrs
}

// SessionAttributes returns attributes for session tracking.
func SessionAttributes(sessionID string, turnCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrSessionTurns, turnCount),
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrSessionID, sessionID))
	}
	return attrs
}

// GuardrailAttributes returns attributes describing a guardrail decision.
func GuardrailAttributes(name string, tripwire bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrGuardrailName, name),
		attribute.Bool(AttrGuardrailTripwire, tripwire),
		attribute.Bool(AttrGuardrailInDomain, !tripwire),
	}
}

// LLMAttributes returns attributes for completion spans.
func LLMAttributes(model string, msgCount, toolCallCount, inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	if toolCallCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCallCount))
	}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	return attrs
}
