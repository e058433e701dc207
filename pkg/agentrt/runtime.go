// Copyright 2025 MassGen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agentrt implements the Agent Runtime: it drives one Backend
// Session through a receive-event -> classify -> act loop, applying
// pre/post-tool hooks around every tool invocation and surfacing
// coordination tool calls (new_answer, vote, spawn_subagents) as
// structured events to the Orchestrator.
package agentrt

import (
	"context"
	"fmt"
	"iter"

	"github.com/massgen-ai/massgen/pkg/backend"
	"github.com/massgen-ai/massgen/pkg/coordination"
	"github.com/massgen-ai/massgen/pkg/hook"
)

// CoordinationKind distinguishes the coordination tool calls the
// Runtime surfaces structurally rather than dispatching as ordinary
// tools.
type CoordinationKind string

const (
	CoordinationNone          CoordinationKind = ""
	CoordinationNewAnswer     CoordinationKind = "new_answer"
	CoordinationVote          CoordinationKind = "vote"
	CoordinationSpawnSubagent CoordinationKind = "spawn_subagents"
)

var coordinationTools = map[string]CoordinationKind{
	"new_answer":      CoordinationNewAnswer,
	"vote":            CoordinationVote,
	"spawn_subagents": CoordinationSpawnSubagent,
}

// Event is what the Runtime yields to its caller (the Orchestrator) on
// every loop iteration worth reporting.
type Event struct {
	Kind         EventKind
	ContentDelta string
	Coordination CoordinationKind
	ToolCall     *backend.ToolCall
	Tokens       int
	Err          error
}

// EventKind classifies a Runtime Event.
type EventKind string

const (
	KindContentDelta EventKind = "content_delta"
	KindCoordination EventKind = "coordination_call"
	KindToolDenied   EventKind = "tool_denied"
	KindFinished     EventKind = "finished"
	KindError        EventKind = "error"
)

// ToolDispatcher executes a non-coordination tool call.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name string, input map[string]any) (map[string]any, error)
}

// Runtime drives a single backend.Session for one agent.
type Runtime struct {
	AgentID   string
	Session   backend.Session
	Hooks     *hook.Manager
	Tools     ToolDispatcher
	SessionID string // turn/attempt-scoped id used in HookEvent
}

// Run streams the session to completion, yielding structured Events.
// It consumes the session's event stream internally and is the sole
// place that applies hooks and dispatches non-coordination tools.
//
// A caller receiving a KindCoordination event owns the decision of
// whether/when to call DeliverToolResult; the Runtime does not resume
// the session on its own for coordination calls, since the Orchestrator
// must validate (novelty, vote target, ...) first.
func (rt *Runtime) Run(ctx context.Context, systemPrompt string, history []backend.Message, tools []backend.ToolDefinition) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		events, err := rt.Session.Start(ctx, systemPrompt, history, tools)
		if err != nil {
			yield(Event{Kind: KindError, Err: err}, err)
			return
		}

		for ev := range events {
			switch ev.Type {
			case backend.EventContentDelta:
				if !yield(Event{Kind: KindContentDelta, ContentDelta: ev.Content}, nil) {
					return
				}

			case backend.EventToolCall:
				if kind, ok := coordinationTools[ev.Call.Name]; ok {
					if !yield(Event{Kind: KindCoordination, Coordination: kind, ToolCall: ev.Call}, nil) {
						return
					}
					continue
				}
				if !rt.runTool(ctx, ev.Call, yield) {
					return
				}

			case backend.EventFinished:
				yield(Event{Kind: KindFinished, Tokens: ev.Tokens}, nil)
				return

			case backend.EventError:
				yield(Event{Kind: KindError, Err: ev.Err}, ev.Err)
				return
			}
		}
	}
}

// runTool applies pre-tool hooks, dispatches the tool (unless denied),
// applies post-tool hooks, and resumes the session with the result.
// Returns false if the caller asked to stop iterating.
func (rt *Runtime) runTool(ctx context.Context, call *backend.ToolCall, yield func(Event, error) bool) bool {
	pre := rt.Hooks.PreTool(ctx, coordination.HookEvent{
		EventType: coordination.HookPreTool,
		SessionID: rt.SessionID,
		AgentID:   rt.AgentID,
		ToolName:  call.Name,
		ToolInput: call.Arguments,
	})

	if !pre.Allowed {
		_ = rt.Session.DeliverToolResult(ctx, call.ID, map[string]any{
			"error": fmt.Sprintf("tool denied: %s", pre.Reason),
		}, false)
		return yield(Event{Kind: KindToolDenied, ToolCall: call}, nil)
	}

	input := call.Arguments
	if pre.UpdatedInput != nil {
		input = pre.UpdatedInput
	}

	output, toolErr := rt.Tools.Dispatch(ctx, call.Name, input)
	if toolErr != nil {
		output = map[string]any{"error": toolErr.Error()}
	}

	injections := rt.Hooks.PostTool(ctx, coordination.HookEvent{
		EventType:  coordination.HookPostTool,
		SessionID:  rt.SessionID,
		AgentID:    rt.AgentID,
		ToolName:   call.Name,
		ToolInput:  input,
		ToolOutput: output,
	})

	if err := rt.Session.DeliverToolResult(ctx, call.ID, output, false); err != nil {
		return yield(Event{Kind: KindError, Err: err}, err)
	}

	for _, inj := range injections {
		_ = rt.Session.Inject(ctx, inj.Content, backend.InjectStrategy(inj.Strategy))
	}

	return true
}

// Cancel delivers a cancellation notice for an in-flight tool call: the
// tool result channel still reports "cancelled" and post-tool hooks
// still run with a nil output, per spec.md §5.
func (rt *Runtime) Cancel(ctx context.Context, call *backend.ToolCall) {
	_ = rt.Session.DeliverToolResult(ctx, call.ID, nil, true)
	rt.Hooks.PostTool(ctx, coordination.HookEvent{
		EventType: coordination.HookPostTool,
		SessionID: rt.SessionID,
		AgentID:   rt.AgentID,
		ToolName:  call.Name,
		ToolInput: call.Arguments,
		ToolOutput: nil,
	})
	rt.Session.Cancel()
}
