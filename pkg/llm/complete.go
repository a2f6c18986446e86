// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/skycast/pkg/errors"
)

// Complete sends systemPrompt followed by history to provider.
// When schema is non-nil the request is constrained to it; decoding the
// returned content into a typed value is left to DecodeStructured.
func Complete(ctx context.Context, provider Provider, model, systemPrompt string, history []Message, schema *ResponseFormat) (*ChatResponse, error) {
	if provider == nil {
		return nil, errors.New(errors.CodeConfiguration, "completion provider is not configured", nil)
	}
	messages := make([]Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, history...)

	return provider.Chat(ctx, ChatRequest{
		Model:          model,
		Messages:       messages,
		ResponseFormat: schema,
	})
}

// DecodeStructured decodes a structured completion into dst.
//
// The content must be a single JSON object (optionally wrapped in a markdown
// code fence), contain every key in required, and carry no keys unknown to
// dst. Any mismatch is a CodeSchemaViolation error.
func DecodeStructured(content string, dst any, required ...string) error {
	raw := stripCodeFence(content)
	if raw == "" {
		return errors.New(errors.CodeSchemaViolation, "structured completion is empty", nil)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return errors.New(errors.CodeSchemaViolation, "structured completion is not a JSON object", err).
			WithContext("content", truncate(raw, 200))
	}
	for _, key := range required {
		v, ok := keys[key]
		if !ok || string(v) == "null" {
			return errors.New(errors.CodeSchemaViolation, fmt.Sprintf("structured completion is missing %q", key), nil).
				WithContext("field", key)
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New(errors.CodeSchemaViolation, "structured completion does not match schema", err).
			WithContext("content", truncate(raw, 200))
	}
	return nil
}

func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
