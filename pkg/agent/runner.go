// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/guardrails"
	"github.com/jllopis/skycast/pkg/llm"
	"github.com/jllopis/skycast/pkg/telemetry"
	"github.com/jllopis/skycast/pkg/tool"
)

// State is a node of the run state machine.
type State string

const (
	StateAwaitingGuardrail    State = "AWAITING_GUARDRAIL"
	StateRejected             State = "REJECTED"
	StateAdmitted             State = "ADMITTED"
	StateActiveAgentTurn      State = "ACTIVE_AGENT_TURN"
	StateDirectReply          State = "DIRECT_REPLY"
	StateToolCall             State = "TOOL_CALL"
	StateToolResultIntegrated State = "TOOL_RESULT_INTEGRATED"
	StateHandoff              State = "HANDOFF"
	StateFinalReply           State = "FINAL_REPLY"
)

// StepKind identifies what a Step records.
type StepKind string

const (
	StepGuardrail  StepKind = "guardrail"
	StepCompletion StepKind = "completion"
	StepHandoff    StepKind = "handoff"
	StepToolCall   StepKind = "tool_call"
)

// Step is one intermediate action of a run.
type Step struct {
	Kind  StepKind
	Agent string

	// Guardrail is set for guardrail steps.
	Guardrail *guardrails.Result

	// Content is the completion text for completion steps.
	Content string

	// Target is the receiving agent for hand-off steps.
	Target string

	// Tool fields are set for tool call steps.
	ToolCallID string
	ToolName   string
	Arguments  string
	Output     string
}

// RunResult is the outcome of one run.
type RunResult struct {
	RunID string

	// FinalOutput is the reply text, or the rejection message when a
	// guardrail tripped.
	FinalOutput string

	// Structured holds the decoded reply when the producing agent declares an
	// output schema.
	Structured map[string]any

	// Agent names the agent that produced FinalOutput.
	Agent string

	Steps  []Step
	States []State

	// Rejection is set when an input guardrail tripped.
	Rejection *guardrails.Result

	HandoffOccurred bool
}

// Rejected reports whether an input guardrail ended the run.
func (r *RunResult) Rejected() bool {
	return r != nil && r.Rejection != nil
}

// ToolCalls returns the number of tool invocations made.
func (r *RunResult) ToolCalls() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, s := range r.Steps {
		if s.Kind == StepToolCall {
			n++
		}
	}
	return n
}

func (r *RunResult) enter(s State) {
	r.States = append(r.States, s)
}

// Runner executes agents against a completion provider and tool registry.
// It holds no per-run state and is safe for concurrent use.
type Runner struct {
	provider llm.Provider
	tools    *tool.Registry
	model    string
	logger   *slog.Logger
	metrics  *telemetry.RunMetrics
	tracer   trace.Tracer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDefaultModel sets the model used by agents without their own.
func WithDefaultModel(model string) RunnerOption {
	return func(r *Runner) { r.model = model }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records run outcomes to m.
func WithMetrics(m *telemetry.RunMetrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a runner. A nil registry means agents have no tools.
func NewRunner(provider llm.Provider, tools *tool.Registry, opts ...RunnerOption) *Runner {
	if tools == nil {
		tools = tool.NewRegistry()
	}
	r := &Runner{
		provider: provider,
		tools:    tools,
		logger:   slog.Default(),
		tracer:   otel.Tracer("skycast/agent"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one turn starting at start.
//
// The starting agent's input guardrails run first, in order; a tripwire ends
// the run with a rejection and nothing else executes. Otherwise the active
// agent completes against history plus input. A hand-off switches the active
// agent once; a tool call is executed and followed by one final completion
// from the same agent without tools.
func (r *Runner) Run(ctx context.Context, start *Agent, input string, history []llm.Message) (*RunResult, error) {
	if start == nil {
		return nil, errors.New(errors.CodeConfiguration, "starting agent is required", nil)
	}

	runID := uuid.NewString()
	ctx, span := r.tracer.Start(ctx, "agent.run")
	defer span.End()
	span.SetAttributes(telemetry.AgentAttributes(start.name, runID)...)

	begin := time.Now()
	log := r.logger.With(slog.String("run_id", runID))
	log.InfoContext(ctx, "agent.run.start",
		slog.String("agent", start.name),
		slog.Int("history", len(history)),
	)

	result, err := r.run(ctx, log, runID, start, input, history)
	durationMs := float64(time.Since(begin).Microseconds()) / 1000

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		r.metrics.RecordError(ctx, err, "agent")
		r.metrics.RecordRun(ctx, start.name, telemetry.OutcomeError, durationMs)
		log.ErrorContext(ctx, "agent.run.failed",
			slog.String("agent", start.name),
			slog.String("error_code", string(errors.CodeOf(err))),
			slog.String("error", err.Error()),
		)
		return nil, err
	case result.Rejected():
		r.metrics.RecordRun(ctx, start.name, telemetry.OutcomeRejected, durationMs)
	default:
		r.metrics.RecordRun(ctx, result.Agent, telemetry.OutcomeReply, durationMs)
	}

	span.SetAttributes(attribute.String(telemetry.AttrAgentState, string(result.States[len(result.States)-1])))
	log.InfoContext(ctx, "agent.run.completed",
		slog.String("agent", result.Agent),
		slog.Bool("rejected", result.Rejected()),
		slog.Bool("handoff", result.HandoffOccurred),
		slog.Int("tool_calls", result.ToolCalls()),
	)
	return result, nil
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, runID string, start *Agent, input string, history []llm.Message) (*RunResult, error) {
	result := &RunResult{RunID: runID, Agent: start.name}

	result.enter(StateAwaitingGuardrail)
	rejection, err := r.checkInput(ctx, log, start, input, result)
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		result.enter(StateRejected)
		result.Rejection = rejection
		result.FinalOutput = rejection.Message
		return result, nil
	}
	result.enter(StateAdmitted)

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})

	active := start
	for {
		result.enter(StateActiveAgentTurn)
		result.Agent = active.name

		handoffs := map[string]*Agent{}
		if !result.HandoffOccurred {
			for _, h := range active.handoffs {
				handoffs[HandoffToolName(h)] = h
			}
		}

		resp, err := r.complete(ctx, active, messages, true, handoffs)
		if err != nil {
			return nil, err
		}
		result.Steps = append(result.Steps, Step{Kind: StepCompletion, Agent: active.name, Content: resp.Content})

		switch out := classify(resp, handoffs).(type) {
		case DirectReply:
			result.enter(StateDirectReply)
			return r.finish(result, active, out.Text)

		case Handoff:
			result.enter(StateHandoff)
			result.HandoffOccurred = true
			result.Steps = append(result.Steps, Step{Kind: StepHandoff, Agent: active.name, Target: out.Target.name})
			r.metrics.RecordHandoff(ctx, active.name, out.Target.name)
			log.InfoContext(ctx, "agent.handoff",
				slog.String("from", active.name),
				slog.String("to", out.Target.name),
			)
			trace.SpanFromContext(ctx).SetAttributes(
				attribute.String(telemetry.AttrHandoffFrom, active.name),
				attribute.String(telemetry.AttrHandoffTo, out.Target.name),
			)
			active = out.Target

		case ToolCall:
			result.enter(StateToolCall)
			output, err := r.invokeTool(ctx, log, active, out)
			if err != nil {
				return nil, err
			}
			result.Steps = append(result.Steps, Step{
				Kind:       StepToolCall,
				Agent:      active.name,
				ToolCallID: out.ID,
				ToolName:   out.Name,
				Arguments:  out.Arguments,
				Output:     output,
			})

			messages = append(messages,
				llm.Message{
					Role: llm.RoleAssistant,
					ToolCalls: []llm.ToolCall{{
						ID:       out.ID,
						Type:     llm.ToolTypeFunction,
						Function: llm.FunctionCall{Name: out.Name, Arguments: out.Arguments},
					}},
				},
				llm.Message{Role: llm.RoleTool, Content: output, ToolCallID: out.ID},
			)
			result.enter(StateToolResultIntegrated)

			final, err := r.complete(ctx, active, messages, false, nil)
			if err != nil {
				return nil, err
			}
			result.Steps = append(result.Steps, Step{Kind: StepCompletion, Agent: active.name, Content: final.Content})
			return r.finish(result, active, final.Content)
		}
	}
}

func (r *Runner) finish(result *RunResult, active *Agent, text string) (*RunResult, error) {
	result.enter(StateFinalReply)
	result.Agent = active.name
	result.FinalOutput = text

	if active.outputSchema != nil {
		var structured map[string]any
		if err := llm.DecodeStructured(text, &structured, requiredKeys(active.outputSchema)...); err != nil {
			return nil, errors.AsSkycastError(err).WithContext("agent", active.name)
		}
		result.Structured = structured
	}
	return result, nil
}

func (r *Runner) checkInput(ctx context.Context, log *slog.Logger, start *Agent, input string, result *RunResult) (*guardrails.Result, error) {
	for _, g := range start.guardrails {
		gctx, span := r.tracer.Start(ctx, "agent.guardrail")
		res, err := g.EvaluateInput(gctx, input)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "guardrail failed")
			span.End()
			return nil, errors.AsSkycastError(err).WithContext("guardrail", g.Name())
		}
		span.SetAttributes(telemetry.GuardrailAttributes(g.Name(), res.TripwireTriggered)...)
		span.End()

		res.Guardrail = g.Name()
		result.Steps = append(result.Steps, Step{Kind: StepGuardrail, Agent: start.name, Guardrail: &res})
		if !res.TripwireTriggered {
			continue
		}

		r.metrics.RecordRejection(ctx, g.Name())
		log.WarnContext(ctx, "agent.guardrails.input_blocked",
			slog.String("agent", start.name),
			slog.String("guardrail", g.Name()),
			slog.String("reason", res.Output.Response),
		)
		return &res, nil
	}
	return nil, nil
}

func (r *Runner) complete(ctx context.Context, a *Agent, messages []llm.Message, withTools bool, handoffs map[string]*Agent) (*llm.ChatResponse, error) {
	ctx, span := r.tracer.Start(ctx, "agent.turn")
	defer span.End()

	req := llm.ChatRequest{
		Model:       a.model,
		Temperature: a.temperature,
	}
	if req.Model == "" {
		req.Model = r.model
	}
	req.Messages = make([]llm.Message, 0, len(messages)+1)
	if a.instructions != "" {
		req.Messages = append(req.Messages, llm.Message{Role: llm.RoleSystem, Content: a.instructions})
	}
	req.Messages = append(req.Messages, messages...)

	if withTools {
		defs, err := r.tools.Definitions(a.tools...)
		if err != nil {
			return nil, errors.AsSkycastError(err).WithContext("agent", a.name)
		}
		req.Tools = defs
		for _, h := range a.handoffs {
			if _, ok := handoffs[HandoffToolName(h)]; ok {
				req.Tools = append(req.Tools, handoffTool(h))
			}
		}
	}
	if len(req.Tools) == 0 {
		req.ResponseFormat = a.outputSchema
	}

	resp, err := r.provider.Chat(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, WrapTurnError(err, a.name, req.Model)
	}
	if resp == nil {
		return nil, errors.New(errors.CodeProviderUnavailable, "provider returned no completion", nil).
			WithContext("agent", a.name)
	}
	span.SetAttributes(telemetry.AgentAttributes(a.name, "")...)
	span.SetAttributes(telemetry.LLMAttributes(req.Model, len(req.Messages), len(resp.ToolCalls),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	return resp, nil
}

func (r *Runner) invokeTool(ctx context.Context, log *slog.Logger, a *Agent, call ToolCall) (string, error) {
	if !a.hasTool(call.Name) {
		return "", errors.New(errors.CodeInvalidToolArguments, fmt.Sprintf("tool %q is not available to agent", call.Name), nil).
			WithContext("agent", a.name).
			WithContext("tool_name", call.Name)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String(telemetry.AttrToolCallID, call.ID))

	output, err := r.tools.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		log.WarnContext(ctx, "tool.invoke.failed",
			slog.String("agent", a.name),
			slog.String("tool", call.Name),
			slog.String("tool_call_id", call.ID),
			slog.String("error", err.Error()),
		)
		return "", errors.AsSkycastError(err).WithContext("tool_call_id", call.ID)
	}
	log.DebugContext(ctx, "tool.invoke.completed",
		slog.String("agent", a.name),
		slog.String("tool", call.Name),
	)
	return output, nil
}

func requiredKeys(schema *llm.ResponseFormat) []string {
	switch req := schema.Schema["required"].(type) {
	case []string:
		return req
	case []any:
		keys := make([]string, 0, len(req))
		for _, k := range req {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	default:
		return nil
	}
}
