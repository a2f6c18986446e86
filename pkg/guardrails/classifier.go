// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"strings"

	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/llm"
)

// WeatherInstructions is the system prompt of the weather topic classifier.
const WeatherInstructions = `Role:
    Ensure safe, accurate, and factual weather responses only.
Rules:
    - Answer only weather or climate-related questions.
    - No medical, safety, or travel-risk advice.
    - Use verified data (no made-up forecasts).
    - If info unavailable, say:
        "Sorry, I can't access real-time data right now. Please check a trusted weather source."
    - Keep tone friendly and concise.
Output:
    Set isInDomain to true only when the message asks about weather or climate,
    or is a greeting that leads into such a question. Put a short friendly
    reply in response; when isInDomain is false it is shown to the user as the
    reason the request was declined.`

// ClassificationSchema constrains a classifier completion to
// {response: string, isInDomain: boolean}.
var ClassificationSchema = &llm.ResponseFormat{
	Name:        "guardrail_classification",
	Description: "Topic admission decision for the user's message",
	Strict:      true,
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"response":   map[string]any{"type": "string"},
			"isInDomain": map[string]any{"type": "boolean"},
		},
		"required":             []string{"response", "isInDomain"},
		"additionalProperties": false,
	},
}

// Classifier is a guardrail that runs its own completion turn to classify the
// input as in or out of domain.
type Classifier struct {
	name             string
	instructions     string
	model            string
	provider         llm.Provider
	rejectionMessage string
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithInstructions sets the classifier's system prompt.
func WithInstructions(instructions string) ClassifierOption {
	return func(c *Classifier) { c.instructions = instructions }
}

// WithModel sets the model identifier sent with each classification.
func WithModel(model string) ClassifierOption {
	return func(c *Classifier) { c.model = model }
}

// WithRejectionMessage sets the message used when the classifier rejects
// input without a response of its own.
func WithRejectionMessage(msg string) ClassifierOption {
	return func(c *Classifier) {
		if msg != "" {
			c.rejectionMessage = msg
		}
	}
}

// NewClassifier creates a classifier guardrail backed by provider.
func NewClassifier(name string, provider llm.Provider, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		name:             name,
		instructions:     WeatherInstructions,
		provider:         provider,
		rejectionMessage: DefaultRejectionMessage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the guardrail name.
func (c *Classifier) Name() string {
	return c.name
}

// EvaluateInput classifies input with one structured completion.
//
// Provider failures and malformed classifications are returned as errors.
// An empty classification counts as out of domain.
func (c *Classifier) EvaluateInput(ctx context.Context, input string) (Result, error) {
	history := []llm.Message{{Role: llm.RoleUser, Content: input}}
	resp, err := llm.Complete(ctx, c.provider, c.model, c.instructions, history, ClassificationSchema)
	if err != nil {
		return Result{}, errors.AsSkycastError(err).WithContext("guardrail", c.name)
	}

	if strings.TrimSpace(resp.Content) == "" {
		return reject(c.name, Classification{}, c.rejectionMessage, map[string]any{"reason": "empty classification"}), nil
	}

	var out Classification
	if err := llm.DecodeStructured(resp.Content, &out, "response", "isInDomain"); err != nil {
		return Result{}, errors.AsSkycastError(err).WithContext("guardrail", c.name)
	}
	if !out.IsInDomain {
		return reject(c.name, out, c.rejectionMessage, nil), nil
	}
	return admit(c.name, out), nil
}
