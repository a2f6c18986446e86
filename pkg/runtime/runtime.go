// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime composes the session store and the agent runner into the
// per-message entry point used by every transport.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/skycast/pkg/agent"
	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/llm"
	"github.com/jllopis/skycast/pkg/resilience"
	"github.com/jllopis/skycast/pkg/session"
	"github.com/jllopis/skycast/pkg/telemetry"
)

// ApologyMessage is what Reply returns when a run fails.
const ApologyMessage = "Sorry, something went wrong while handling your request. Please try again."

// Orchestrator runs one user message against an entry agent with the
// session's history and records the exchange.
type Orchestrator struct {
	runner  *agent.Runner
	entry   *agent.Agent
	store   session.Store
	window  session.WindowStrategy
	retry   resilience.RetryConfig
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
	locks   *keyedMutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWindow bounds the history passed to the agents.
func WithWindow(w session.WindowStrategy) Option {
	return func(o *Orchestrator) { o.window = w }
}

// WithRetry sets the caller-level retry policy for whole runs.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = rc }
}

// WithTimeout bounds each run attempt. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an orchestrator. runner, entry and store are required.
func New(runner *agent.Runner, entry *agent.Agent, store session.Store, opts ...Option) (*Orchestrator, error) {
	if runner == nil || entry == nil || store == nil {
		return nil, errors.New(errors.CodeConfiguration, "orchestrator requires a runner, an entry agent and a session store", nil)
	}
	o := &Orchestrator{
		runner: runner,
		entry:  entry,
		store:  store,
		retry:  resilience.NoRetry(),
		logger: slog.Default(),
		tracer: otel.Tracer("skycast/runtime"),
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Entry returns the entry agent.
func (o *Orchestrator) Entry() *agent.Agent { return o.entry }

// Run loads the session, runs the entry agent on input and appends the user
// message and the reply to the session. Guardrail rejections are recorded
// like any other reply. Nothing is appended when the run fails.
//
// Runs on the same session are serialised; different sessions run in
// parallel.
func (o *Orchestrator) Run(ctx context.Context, sessionID, input string) (*agent.RunResult, error) {
	ctx, span := o.tracer.Start(ctx, "runtime.run")
	defer span.End()

	unlock := o.locks.lock(sessionID)
	defer unlock()

	result, err := o.run(ctx, sessionID, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, sessionID, input string) (*agent.RunResult, error) {
	turns, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history := session.Messages(o.window.Apply(turns))
	trace.SpanFromContext(ctx).SetAttributes(telemetry.SessionAttributes(sessionID, len(turns))...)

	result, err := resilience.DoWithResult(ctx, o.retry, func() (*agent.RunResult, error) {
		return resilience.WithTimeout(ctx, o.timeout, func(ctx context.Context) (*agent.RunResult, error) {
			return o.runner.Run(ctx, o.entry, input, history)
		})
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	exchange := []session.Turn{
		{Role: llm.RoleUser, Content: input, Agent: o.entry.Name(), CreatedAt: now},
		{Role: llm.RoleAssistant, Content: result.FinalOutput, Agent: result.Agent, CreatedAt: now},
	}
	for _, turn := range exchange {
		if err := o.store.Append(ctx, sessionID, turn); err != nil {
			return nil, err
		}
	}
	o.logger.DebugContext(ctx, "session.append",
		slog.String("session_id", sessionID),
		slog.Int("turns", len(turns)+len(exchange)),
	)
	return result, nil
}

// Reply is Run for transports: failures become ApologyMessage and guardrail
// rejections are returned verbatim.
func (o *Orchestrator) Reply(ctx context.Context, sessionID, input string) string {
	result, err := o.Run(ctx, sessionID, input)
	if err != nil {
		se := errors.AsSkycastError(err)
		o.logger.ErrorContext(ctx, "runtime.reply.failed",
			slog.String("session_id", sessionID),
			slog.String("error_code", string(se.Code)),
			slog.Bool("recoverable", se.Recoverable),
			slog.String("error", err.Error()),
		)
		return ApologyMessage
	}
	return result.FinalOutput
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
