// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails decides whether user input may reach a domain agent.
//
// Guardrails run before an agent's first completion turn. Each one inspects
// the raw input and reports a Result; a triggered tripwire ends the run with
// the guardrail's rejection message and nothing else happens for that turn.
//
// Example usage:
//
//	classifier := guardrails.NewClassifier("Weather Guardrail Agent", provider,
//	    guardrails.WithInstructions(guardrails.WeatherInstructions),
//	)
//
//	result, err := classifier.EvaluateInput(ctx, userMessage)
//	if err != nil {
//	    return err // fail closed
//	}
//	if result.TripwireTriggered {
//	    return result.Message
//	}
package guardrails

import "context"

// DefaultRejectionMessage is returned when a guardrail rejects input without
// supplying its own wording.
const DefaultRejectionMessage = "Sorry, I can only help with weather-related questions."

// Classification is the structured output of a classifier turn.
type Classification struct {
	// Response is the guardrail's own free-text rationale.
	Response string `json:"response"`

	// IsInDomain reports whether the input belongs to the assistant's topic.
	IsInDomain bool `json:"isInDomain"`
}

// Result is the outcome of evaluating one input.
type Result struct {
	// Guardrail names the guardrail that produced the result.
	Guardrail string

	// Output is the structured classification behind the decision.
	Output Classification

	// TripwireTriggered is set when the input must not proceed.
	TripwireTriggered bool

	// Message is the user-facing rejection text (empty when admitted).
	Message string

	// Metadata carries detector-specific detail such as matched patterns.
	Metadata map[string]any
}

// Guardrail evaluates raw input before an agent runs.
//
// An error means no decision could be made; callers must treat it as a
// failure of the turn, never as admission.
type Guardrail interface {
	Name() string
	EvaluateInput(ctx context.Context, input string) (Result, error)
}

func reject(name string, out Classification, fallback string, metadata map[string]any) Result {
	msg := out.Response
	if msg == "" {
		msg = fallback
	}
	return Result{
		Guardrail:         name,
		Output:            out,
		TripwireTriggered: true,
		Message:           msg,
		Metadata:          metadata,
	}
}

func admit(name string, out Classification) Result {
	return Result{Guardrail: name, Output: out}
}
