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

// Package backend defines the Backend Session interface: an abstract
// streaming conversation with a language-model provider. The core
// passes only abstract messages and receives abstract events; provider
// specifics (Anthropic, OpenAI, Ollama, ...) live outside the core, per
// spec.md §6.
package backend

import "context"

// Message is the provider-agnostic conversation unit exchanged with a
// Backend Session.
type Message struct {
	Role       string // "user", "assistant", "system", "tool"
	Content    string
	ToolCallID string // set on role "tool"
	Name       string // tool name, set on role "tool"
}

// ToolDefinition describes one tool a session may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// EventType distinguishes the kinds of events a Session emits.
type EventType string

const (
	EventContentDelta        EventType = "content_delta"
	EventToolCall            EventType = "tool_call"
	EventToolResultDelivery  EventType = "tool_result_delivery"
	EventFinished            EventType = "finished"
	EventError               EventType = "error"
)

// Event is one item in a Session's event stream.
type Event struct {
	Type    EventType
	Content string    // for EventContentDelta
	Call    *ToolCall // for EventToolCall
	Tokens  int       // for EventFinished
	Err     error     // for EventError
}

// Session is a single streaming conversation with a language-model
// provider. Implementations are not required to be safe for concurrent
// use by more than one goroutine.
type Session interface {
	// Start begins the conversation and returns its event stream. The
	// channel is closed after a Finished or Error event.
	Start(ctx context.Context, systemPrompt string, history []Message, tools []ToolDefinition) (<-chan Event, error)

	// DeliverToolResult resumes the session after a tool call with the
	// (possibly hook-augmented) result, or a cancellation notice when
	// output is nil.
	DeliverToolResult(ctx context.Context, callID string, output map[string]any, cancelled bool) error

	// Inject delivers out-of-band content into the conversation, per
	// the Injection Engine's chosen strategy.
	Inject(ctx context.Context, content string, strategy InjectStrategy) error

	// Cancel stops the session at its next suspension point.
	Cancel()
}

// InjectStrategy mirrors coordination.InjectStrategy without importing
// the coordination package, so backend stays a leaf dependency.
type InjectStrategy string

const (
	StrategyToolResult  InjectStrategy = "tool_result"
	StrategyUserMessage InjectStrategy = "user_message"
)
