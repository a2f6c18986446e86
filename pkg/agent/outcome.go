// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import "github.com/jllopis/skycast/pkg/llm"

// Outcome is the decision carried by one agent completion: exactly one of
// DirectReply, ToolCall or Handoff.
type Outcome interface {
	outcome()
}

// DirectReply ends the turn with text.
type DirectReply struct {
	Text string
}

// ToolCall asks the runner to invoke a tool and feed back its result.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Handoff transfers the turn to Target.
type Handoff struct {
	CallID string
	Target *Agent
}

func (DirectReply) outcome() {}
func (ToolCall) outcome()    {}
func (Handoff) outcome()     {}

// classify maps a completion to an Outcome. Only the first tool call is
// honoured. targets holds the hand-off tools offered on this turn; a call to
// any other name is a ToolCall.
func classify(resp *llm.ChatResponse, targets map[string]*Agent) Outcome {
	if len(resp.ToolCalls) == 0 {
		return DirectReply{Text: resp.Content}
	}
	call := resp.ToolCalls[0]
	if target, ok := targets[call.Function.Name]; ok {
		return Handoff{CallID: call.ID, Target: target}
	}
	return ToolCall{
		ID:        call.ID,
		Name:      call.Function.Name,
		Arguments: call.Function.Arguments,
	}
}
