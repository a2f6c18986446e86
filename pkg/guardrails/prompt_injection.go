// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
	"strings"
)

// InjectionRejectionMessage is returned when input looks like an attempt to
// override the assistant's instructions.
const InjectionRejectionMessage = "Sorry, I can't help with that request. Please ask me about the weather."

// PromptInjectionDetector is a deterministic guardrail that rejects common
// prompt injection techniques without calling a model.
type PromptInjectionDetector struct {
	patterns   []*regexp.Regexp
	threshold  float64
	strictMode bool
}

// PromptInjectionOption configures the prompt injection detector.
type PromptInjectionOption func(*PromptInjectionDetector)

var defaultInjectionPatterns = []string{
	// Instruction override
	`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,
	`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,
	`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,
	`(?i)override\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,

	// Persona manipulation
	`(?i)you\s+are\s+now\s+(a|an)\s+`,
	`(?i)pretend\s+(you\s+are|to\s+be)\s+`,
	`(?i)roleplay\s+as\s+`,

	// System prompt extraction
	`(?i)(show|reveal|print|display)\s+(me\s+)?your\s+(system\s+)?(prompt|instructions?)`,
	`(?i)what\s+(is|are)\s+your\s+(system\s+)?(prompt|instructions?)`,

	// Jailbreaks and privileged modes
	`(?i)do\s+anything\s+now`,
	`(?i)\bDAN\s+mode`,
	`(?i)jailbreak`,
	`(?i)bypass\s+(safety|content|filter)`,
	`(?i)(developer|debug|sudo|admin)\s+mode`,

	// Chat template delimiters
	`(?i)\]\]\s*system\s*:`,
	`(?i)<\|.*\|>`,
	`(?i)\[/?INST\]`,
	`(?i)<</?SYS>>`,
}

// NewPromptInjectionDetector creates a new prompt injection detector.
// By default any single match rejects the input.
func NewPromptInjectionDetector(opts ...PromptInjectionOption) *PromptInjectionDetector {
	d := &PromptInjectionDetector{
		patterns: make([]*regexp.Regexp, 0, len(defaultInjectionPatterns)),
	}
	for _, pattern := range defaultInjectionPatterns {
		d.patterns = append(d.patterns, regexp.MustCompile(pattern))
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithInjectionPatterns adds custom patterns to detect. Invalid patterns are
// ignored.
func WithInjectionPatterns(patterns []string) PromptInjectionOption {
	return func(d *PromptInjectionDetector) {
		for _, pattern := range patterns {
			if re, err := regexp.Compile(pattern); err == nil {
				d.patterns = append(d.patterns, re)
			}
		}
	}
}

// WithInjectionThreshold sets the confidence needed to reject. A single
// match scores 0.7 and each further match adds 0.1.
func WithInjectionThreshold(threshold float64) PromptInjectionOption {
	return func(d *PromptInjectionDetector) {
		if threshold >= 0 && threshold <= 1 {
			d.threshold = threshold
		}
	}
}

// WithStrictMode rejects on the first match regardless of threshold.
func WithStrictMode(strict bool) PromptInjectionOption {
	return func(d *PromptInjectionDetector) {
		d.strictMode = strict
	}
}

// Name returns the guardrail identifier.
func (d *PromptInjectionDetector) Name() string {
	return "prompt-injection"
}

// EvaluateInput rejects input matching known injection patterns.
// A cancelled context is returned as an error.
func (d *PromptInjectionDetector) EvaluateInput(ctx context.Context, input string) (Result, error) {
	if strings.TrimSpace(input) == "" {
		return admit(d.Name(), Classification{IsInDomain: true}), nil
	}

	var matched []string
	for _, pattern := range d.patterns {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if !pattern.MatchString(input) {
			continue
		}
		matched = append(matched, pattern.String())
		if d.strictMode {
			break
		}
	}
	if len(matched) == 0 {
		return admit(d.Name(), Classification{IsInDomain: true}), nil
	}

	confidence := 0.7 + float64(len(matched)-1)*0.1
	if confidence > 1.0 {
		confidence = 1.0
	}
	if d.strictMode {
		confidence = 1.0
	}
	if confidence < d.threshold {
		return admit(d.Name(), Classification{IsInDomain: true}), nil
	}

	out := Classification{Response: InjectionRejectionMessage}
	return reject(d.Name(), out, InjectionRejectionMessage, map[string]any{
		"matched_patterns": matched,
		"confidence":       confidence,
	}), nil
}
