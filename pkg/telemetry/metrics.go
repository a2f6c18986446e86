// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/skycast/pkg/errors"
)

// Run outcomes recorded by RecordRun.
const (
	OutcomeReply    = "reply"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// RunMetrics counts runs, guardrail rejections, hand-offs, tool calls and
// errors. A nil *RunMetrics is valid and records nothing.
type RunMetrics struct {
	runs       metric.Int64Counter
	rejections metric.Int64Counter
	handoffs   metric.Int64Counter
	toolCalls  metric.Int64Counter
	errors     metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewRunMetrics creates run metrics on the global meter provider.
func NewRunMetrics() (*RunMetrics, error) {
	meter := otel.Meter("skycast/runtime")

	runs, err := meter.Int64Counter("skycast.runs.total",
		metric.WithDescription("Completed runs by outcome"))
	if err != nil {
		return nil, err
	}
	rejections, err := meter.Int64Counter("skycast.guardrail.rejections",
		metric.WithDescription("Inputs rejected by an input guardrail"))
	if err != nil {
		return nil, err
	}
	handoffs, err := meter.Int64Counter("skycast.handoffs.total",
		metric.WithDescription("Hand-offs between agents"))
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter("skycast.tool.calls",
		metric.WithDescription("Tool invocations by tool and success"))
	if err != nil {
		return nil, err
	}
	errorCounter, err := meter.Int64Counter("skycast.errors.total",
		metric.WithDescription("Errors by code and component"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("skycast.run.duration",
		metric.WithDescription("Run duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &RunMetrics{
		runs:       runs,
		rejections: rejections,
		handoffs:   handoffs,
		toolCalls:  toolCalls,
		errors:     errorCounter,
		duration:   duration,
	}, nil
}

// RecordRun records a finished run with its outcome and duration.
func (m *RunMetrics) RecordRun(ctx context.Context, agent, outcome string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("outcome", outcome),
	)
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, durationMs, attrs)
}

// RecordRejection records an input rejected by the named guardrail.
func (m *RunMetrics) RecordRejection(ctx context.Context, guardrail string) {
	if m == nil {
		return
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("guardrail", guardrail)))
}

// RecordHandoff records a hand-off between two agents.
func (m *RunMetrics) RecordHandoff(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.handoffs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordToolCall records one tool invocation.
func (m *RunMetrics) RecordToolCall(ctx context.Context, tool string, success bool) {
	if m == nil {
		return
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("success", strconv.FormatBool(success)),
	))
}

// RecordError increments the error counter for err's code and the component.
func (m *RunMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	se := errors.AsSkycastError(err)
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", string(se.Code)),
		attribute.String("component", component),
		attribute.String("recoverable", se.RecoverableString()),
	))
}
