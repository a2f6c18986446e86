// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"testing"
	"time"

	"github.com/jllopis/skycast/pkg/agent"
	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/guardrails"
)

func fixed(run *agent.RunResult, err error) RunnerFunc {
	return func(ctx context.Context, input string) (*agent.RunResult, error) {
		return run, err
	}
}

func TestScenarioBasic(t *testing.T) {
	run := &agent.RunResult{
		FinalOutput:     "The weather in Lahore is 30°C and Sunny",
		Agent:           "Weather Agent",
		HandoffOccurred: true,
		Steps: []agent.Step{
			{Kind: agent.StepHandoff, Agent: "FirstAgent", Target: "Weather Agent"},
			{Kind: agent.StepToolCall, Agent: "Weather Agent", ToolName: "fetch_weather"},
		},
	}

	scenario := NewScenario("weather").
		WithInput("What is the weather in Lahore?").
		ExpectNoError().
		ExpectOutput(Contains("Lahore", "30", "Sunny")).
		ExpectHandoff("Weather Agent").
		ExpectToolCall("fetch_weather").
		ExpectMaxDuration(time.Second)

	result := scenario.Run(t, fixed(run, nil))
	result.Assert(t, scenario)
}

func TestScenarioRejected(t *testing.T) {
	run := &agent.RunResult{
		FinalOutput: "weather only",
		Rejection:   &guardrails.Result{Guardrail: "g", TripwireTriggered: true},
	}
	scenario := NewScenario("joke").
		WithInput("Tell me a joke").
		ExpectRejected().
		ExpectNoToolCalls().
		ExpectOutput(Equals("weather only"))

	scenario.Run(t, fixed(run, nil)).Assert(t, scenario)
}

func TestScenarioErrorCode(t *testing.T) {
	scenario := NewScenario("404").ExpectErrorCode(errors.CodeToolExecutionFailed)
	err := errors.New(errors.CodeToolExecutionFailed, "failed to fetch weather data: 404", nil)
	scenario.Run(t, fixed(nil, err)).Assert(t, scenario)
}

func TestScenarioTimeout(t *testing.T) {
	slow := RunnerFunc(func(ctx context.Context, input string) (*agent.RunResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	result := NewScenario("slow").WithTimeout(10 * time.Millisecond).Run(t, slow)
	if result.Error == nil {
		t.Error("expected the run to be cancelled")
	}
}

func TestExpectationsFail(t *testing.T) {
	admitted := &ScenarioResult{Run: &agent.RunResult{FinalOutput: "hi", Steps: []agent.Step{{Kind: agent.StepToolCall, ToolName: "other"}}}}

	tests := []struct {
		name string
		exp  Expectation
	}{
		{"rejected", &rejectedExpectation{}},
		{"no tool calls", &noToolCallsExpectation{}},
		{"tool call", &toolCallExpectation{name: "fetch_weather"}},
		{"handoff", &handoffExpectation{target: "Weather Agent"}},
		{"output", &outputExpectation{matcher: Regex(`^\d+$`)}},
		{"error code", &errorCodeExpectation{code: errors.CodeTimeout}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.exp.Check(admitted); err == nil {
				t.Errorf("%s should fail", tt.exp.Description())
			}
		})
	}
}

func TestStringMatchers(t *testing.T) {
	tests := []struct {
		name    string
		matcher StringMatcher
		input   string
		want    bool
	}{
		{"contains all", Contains("Lahore", "Sunny"), "Lahore is Sunny", true},
		{"contains missing", Contains("Lahore", "Rain"), "Lahore is Sunny", false},
		{"equals", Equals("ok"), "ok", true},
		{"equals mismatch", Equals("ok"), "OK", false},
		{"regex", Regex(`\d+°C`), "30°C", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.matcher.Match(tt.input); got != tt.want {
				t.Errorf("%s.Match(%q) = %v, want %v", tt.matcher.Description(), tt.input, got, tt.want)
			}
		})
	}
}
