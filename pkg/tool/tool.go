// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package tool registers typed functions an agent may call and executes them
// after validating the model-supplied arguments.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/llm"
	"github.com/jllopis/skycast/pkg/telemetry"
)

// Type is the JSON type of a tool parameter.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
)

// Parameter describes one typed field of a tool's arguments.
type Parameter struct {
	Name        string
	Type        Type
	Description string
	Required    bool
}

// ParameterSchema is the ordered list of fields a tool accepts.
type ParameterSchema []Parameter

// Args holds validated arguments keyed by parameter name.
// Values are string, float64, int64 or bool according to the parameter type.
type Args map[string]any

// String returns the named string argument, or "" if absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Executor maps validated arguments to a textual result.
type Executor func(ctx context.Context, args Args) (string, error)

// Tool is a registered callable.
type Tool struct {
	Name        string
	Description string
	Parameters  ParameterSchema
	Execute     Executor
}

// Definition renders the tool as an llm tool with a JSON schema.
func (t Tool) Definition() llm.Tool {
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters.JSONSchema(),
		},
	}
}

// JSONSchema renders the schema as a JSON Schema object.
func (s ParameterSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	required := make([]string, 0, len(s))
	for _, p := range s {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// Validate decodes raw JSON arguments and checks them against the schema.
func (s ParameterSchema) Validate(raw string) (Args, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, invalidArgs("arguments are not a JSON object", err)
	}
	if fields == nil {
		return nil, invalidArgs("arguments are not a JSON object", nil)
	}

	known := make(map[string]Parameter, len(s))
	for _, p := range s {
		known[p.Name] = p
	}
	unknown := make([]string, 0)
	for name := range fields {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, invalidArgs(fmt.Sprintf("unknown argument %q", unknown[0]), nil)
	}

	args := make(Args, len(s))
	for _, p := range s {
		v, ok := fields[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, invalidArgs(fmt.Sprintf("missing required argument %q", p.Name), nil)
			}
			continue
		}
		coerced, err := coerce(p, v)
		if err != nil {
			return nil, err
		}
		args[p.Name] = coerced
	}
	return args, nil
}

func coerce(p Parameter, v any) (any, error) {
	mismatch := func() error {
		return invalidArgs(fmt.Sprintf("argument %q must be of type %s", p.Name, p.Type), nil)
	}
	switch p.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch()
		}
		if p.Required && s == "" {
			return nil, invalidArgs(fmt.Sprintf("argument %q must not be empty", p.Name), nil)
		}
		return s, nil
	case TypeNumber:
		n, ok := v.(json.Number)
		if !ok {
			return nil, mismatch()
		}
		f, err := n.Float64()
		if err != nil {
			return nil, mismatch()
		}
		return f, nil
	case TypeInteger:
		n, ok := v.(json.Number)
		if !ok {
			return nil, mismatch()
		}
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return nil, mismatch()
		}
		return int64(f), nil
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch()
		}
		return b, nil
	default:
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("parameter %q has unsupported type %q", p.Name, p.Type), nil)
	}
}

func invalidArgs(msg string, cause error) *errors.SkycastError {
	return errors.New(errors.CodeInvalidToolArguments, msg, cause).WithRecoverable(false)
}

// Registry manages available tools. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	metrics *telemetry.RunMetrics
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// WithMetrics attaches run metrics used to count tool calls.
func (r *Registry) WithMetrics(m *telemetry.RunMetrics) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
	return r
}

// Register adds a tool to the registry, replacing any tool with the same name.
func (r *Registry) Register(name, description string, params ParameterSchema, exec Executor) error {
	if name == "" {
		return errors.New(errors.CodeInvalidInput, "tool name is required", nil)
	}
	if exec == nil {
		return errors.New(errors.CodeInvalidInput, "tool executor is required", nil).WithContext("tool_name", name)
	}
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" || seen[p.Name] {
			return errors.New(errors.CodeInvalidInput, "tool parameters must have unique non-empty names", nil).
				WithContext("tool_name", name)
		}
		seen[p.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = Tool{
		Name:        name,
		Description: description,
		Parameters:  append(ParameterSchema(nil), params...),
		Execute:     exec,
	}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns llm tool definitions for the named tools in the given
// order. Unknown names are reported as an error.
func (r *Registry) Definitions(names ...string) ([]llm.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("tool %q is not registered", name), nil)
		}
		defs = append(defs, t.Definition())
	}
	return defs, nil
}

// Invoke validates rawArguments against the tool schema and runs its executor.
// Validation failures never reach the executor. Executor failures are wrapped
// as CodeToolExecutionFailed with the original cause preserved.
func (r *Registry) Invoke(ctx context.Context, name, rawArguments string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", invalidArgs(fmt.Sprintf("unknown tool %q", name), nil).WithContext("tool_name", name)
	}

	ctx, span := otel.Tracer("skycast/tool").Start(ctx, "tool.invoke")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrToolName, name))

	args, err := t.Parameters.Validate(rawArguments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid arguments")
		r.record(ctx, name, false)
		return "", errors.AsSkycastError(err).WithContext("tool_name", name)
	}

	start := time.Now()
	out, err := t.Execute(ctx, args)
	span.SetAttributes(attribute.Int64(telemetry.AttrToolDurationMs, time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution failed")
		r.record(ctx, name, false)
		return "", WrapExecutionError(err, name)
	}
	span.SetAttributes(attribute.Bool(telemetry.AttrToolSuccess, true))
	r.record(ctx, name, true)
	return out, nil
}

func (r *Registry) record(ctx context.Context, name string, ok bool) {
	r.mu.RLock()
	m := r.metrics
	r.mu.RUnlock()
	m.RecordToolCall(ctx, name, ok)
}

// WrapExecutionError wraps an executor failure with tool context.
func WrapExecutionError(err error, toolName string) *errors.SkycastError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeToolExecutionFailed, "tool execution failed", err).
		WithContext("tool_name", toolName).
		WithAttribute(telemetry.AttrToolName, toolName).
		WithRecoverable(true)
}
