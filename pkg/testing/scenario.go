// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides declarative scenarios for testing agent runs.
//
// Example usage:
//
//	scenario := testing.NewScenario("off topic").
//	    WithInput("Tell me a joke").
//	    ExpectRejected().
//	    ExpectNoToolCalls()
//
//	result := scenario.Run(t, runner)
//	result.Assert(t, scenario)
package testing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/skycast/pkg/agent"
	"github.com/jllopis/skycast/pkg/errors"
)

// Scenario defines one input and the expectations on its run.
type Scenario struct {
	name         string
	input        string
	context      context.Context
	timeout      time.Duration
	expectations []Expectation
}

// Expectation defines a condition to verify after running a scenario.
type Expectation interface {
	// Check verifies the expectation against the result.
	Check(result *ScenarioResult) error
	// Description returns a human-readable description of the expectation.
	Description() string
}

// ScenarioResult contains the outcome of running a scenario.
type ScenarioResult struct {
	Output   string
	Error    error
	Run      *agent.RunResult
	Duration time.Duration
}

// AgentRunner runs one input. RunnerFunc adapts closures over an
// agent.Runner or a runtime.Orchestrator.
type AgentRunner interface {
	Run(ctx context.Context, input string) (*agent.RunResult, error)
}

// RunnerFunc adapts a function to AgentRunner.
type RunnerFunc func(ctx context.Context, input string) (*agent.RunResult, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, input string) (*agent.RunResult, error) {
	return f(ctx, input)
}

// NewScenario creates a new test scenario with the given name.
func NewScenario(name string) *Scenario {
	return &Scenario{
		name:    name,
		timeout: 30 * time.Second,
		context: context.Background(),
	}
}

// WithInput sets the user message.
func (s *Scenario) WithInput(input string) *Scenario {
	s.input = input
	return s
}

// WithContext sets the parent context.
func (s *Scenario) WithContext(ctx context.Context) *Scenario {
	s.context = ctx
	return s
}

// WithTimeout bounds the run.
func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// Expect adds a custom expectation.
func (s *Scenario) Expect(exp Expectation) *Scenario {
	s.expectations = append(s.expectations, exp)
	return s
}

// ExpectOutput expects the final output to match.
func (s *Scenario) ExpectOutput(matcher StringMatcher) *Scenario {
	return s.Expect(&outputExpectation{matcher: matcher})
}

// ExpectNoError expects the run to succeed.
func (s *Scenario) ExpectNoError() *Scenario {
	return s.Expect(&noErrorExpectation{})
}

// ExpectErrorCode expects the run to fail with code.
func (s *Scenario) ExpectErrorCode(code errors.ErrorCode) *Scenario {
	return s.Expect(&errorCodeExpectation{code: code})
}

// ExpectToolCall expects at least one call to toolName.
func (s *Scenario) ExpectToolCall(toolName string) *Scenario {
	return s.Expect(&toolCallExpectation{name: toolName})
}

// ExpectNoToolCalls expects no tool to run.
func (s *Scenario) ExpectNoToolCalls() *Scenario {
	return s.Expect(&noToolCallsExpectation{})
}

// ExpectRejected expects an input guardrail to end the run without a
// hand-off.
func (s *Scenario) ExpectRejected() *Scenario {
	return s.Expect(&rejectedExpectation{})
}

// ExpectHandoff expects the turn to end with target.
func (s *Scenario) ExpectHandoff(target string) *Scenario {
	return s.Expect(&handoffExpectation{target: target})
}

// ExpectMaxDuration expects the scenario to complete within d.
func (s *Scenario) ExpectMaxDuration(d time.Duration) *Scenario {
	return s.Expect(&maxDurationExpectation{max: d})
}

// Run executes the scenario.
func (s *Scenario) Run(t *testing.T, runner AgentRunner) *ScenarioResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(s.context, s.timeout)
	defer cancel()

	start := time.Now()
	run, err := runner.Run(ctx, s.input)
	result := &ScenarioResult{Run: run, Error: err, Duration: time.Since(start)}
	if run != nil {
		result.Output = run.FinalOutput
	}
	return result
}

// Assert checks all expectations and reports failures to the test.
func (r *ScenarioResult) Assert(t *testing.T, scenario *Scenario) {
	t.Helper()

	for _, exp := range scenario.expectations {
		if err := exp.Check(r); err != nil {
			t.Errorf("%s: expectation %q failed: %v", scenario.name, exp.Description(), err)
		}
	}
}

// StringMatcher defines how to match strings in expectations.
type StringMatcher interface {
	Match(s string) bool
	Description() string
}

// Contains matches strings containing every substring.
func Contains(substrs ...string) StringMatcher {
	return &containsMatcher{substrs: substrs}
}

// Equals matches the exact string.
func Equals(expected string) StringMatcher {
	return &equalsMatcher{expected: expected}
}

// Regex matches a regular expression. It panics on an invalid pattern.
func Regex(pattern string) StringMatcher {
	return &regexMatcher{re: regexp.MustCompile(pattern)}
}

type containsMatcher struct {
	substrs []string
}

func (m *containsMatcher) Match(s string) bool {
	for _, sub := range m.substrs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func (m *containsMatcher) Description() string {
	return fmt.Sprintf("contains %q", m.substrs)
}

type equalsMatcher struct {
	expected string
}

func (m *equalsMatcher) Match(s string) bool { return s == m.expected }

func (m *equalsMatcher) Description() string {
	return fmt.Sprintf("equals %q", m.expected)
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m *regexMatcher) Match(s string) bool { return m.re.MatchString(s) }

func (m *regexMatcher) Description() string {
	return fmt.Sprintf("matches regex %q", m.re.String())
}

// Expectation implementations

type outputExpectation struct {
	matcher StringMatcher
}

func (e *outputExpectation) Check(r *ScenarioResult) error {
	if !e.matcher.Match(r.Output) {
		return fmt.Errorf("output %q does not match: %s", r.Output, e.matcher.Description())
	}
	return nil
}

func (e *outputExpectation) Description() string {
	return fmt.Sprintf("output %s", e.matcher.Description())
}

type noErrorExpectation struct{}

func (e *noErrorExpectation) Check(r *ScenarioResult) error {
	if r.Error != nil {
		return fmt.Errorf("expected no error, got: %v", r.Error)
	}
	return nil
}

func (e *noErrorExpectation) Description() string { return "no error" }

type errorCodeExpectation struct {
	code errors.ErrorCode
}

func (e *errorCodeExpectation) Check(r *ScenarioResult) error {
	if r.Error == nil {
		return fmt.Errorf("expected %s, got no error", e.code)
	}
	if !errors.Is(r.Error, e.code) {
		return fmt.Errorf("expected %s, got: %v", e.code, r.Error)
	}
	return nil
}

func (e *errorCodeExpectation) Description() string {
	return fmt.Sprintf("error %s", e.code)
}

type toolCallExpectation struct {
	name string
}

func (e *toolCallExpectation) Check(r *ScenarioResult) error {
	if r.Run == nil {
		return fmt.Errorf("no run result")
	}
	var called []string
	for _, step := range r.Run.Steps {
		if step.Kind != agent.StepToolCall {
			continue
		}
		if step.ToolName == e.name {
			return nil
		}
		called = append(called, step.ToolName)
	}
	return fmt.Errorf("tool %q not called, calls: %v", e.name, called)
}

func (e *toolCallExpectation) Description() string {
	return fmt.Sprintf("tool call %q", e.name)
}

type noToolCallsExpectation struct{}

func (e *noToolCallsExpectation) Check(r *ScenarioResult) error {
	if n := r.Run.ToolCalls(); n != 0 {
		return fmt.Errorf("expected no tool calls, got %d", n)
	}
	return nil
}

func (e *noToolCallsExpectation) Description() string { return "no tool calls" }

type rejectedExpectation struct{}

func (e *rejectedExpectation) Check(r *ScenarioResult) error {
	if !r.Run.Rejected() {
		return fmt.Errorf("input was admitted")
	}
	if r.Run.HandoffOccurred {
		return fmt.Errorf("rejected run handed off")
	}
	return nil
}

func (e *rejectedExpectation) Description() string { return "rejected by guardrail" }

type handoffExpectation struct {
	target string
}

func (e *handoffExpectation) Check(r *ScenarioResult) error {
	if r.Run == nil || !r.Run.HandoffOccurred {
		return fmt.Errorf("no hand-off occurred")
	}
	if r.Run.Agent != e.target {
		return fmt.Errorf("final agent %q, want %q", r.Run.Agent, e.target)
	}
	return nil
}

func (e *handoffExpectation) Description() string {
	return fmt.Sprintf("hand-off to %q", e.target)
}

type maxDurationExpectation struct {
	max time.Duration
}

func (e *maxDurationExpectation) Check(r *ScenarioResult) error {
	if r.Duration > e.max {
		return fmt.Errorf("took %v, max %v", r.Duration, e.max)
	}
	return nil
}

func (e *maxDurationExpectation) Description() string {
	return fmt.Sprintf("max duration %v", e.max)
}
