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

// Package fake provides a deterministic, scriptable Backend Session
// implementation for tests, in place of a real provider adapter.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/massgen-ai/massgen/pkg/backend"
)

// Step is one scripted action a Session performs after Start or after
// a tool result is delivered.
type Step struct {
	ContentDelta string         // emitted as EventContentDelta if non-empty
	ToolName     string         // if non-empty, emits EventToolCall after the delta
	ToolArgs     map[string]any
	Finish       bool  // if true (and ToolName empty), emits EventFinished
	Tokens       int   // token count reported on Finish
	Err          error // if set, emits EventError instead of anything else
}

// Script is an ordered list of Steps a Session plays back: one Step per
// Start call or per DeliverToolResult call, in order.
type Script []Step

// Session is a fake backend.Session driven entirely by a Script. It
// never calls a real provider; every event it emits is deterministic,
// making it suitable for orchestrator and agent-runtime tests.
type Session struct {
	mu        sync.Mutex
	script    Script
	cursor    int
	events    chan backend.Event
	cancelled bool
	closed    bool
	callSeq   int

	// Injected records every Inject call for test assertions.
	Injected []InjectedContent
}

// InjectedContent records one call to Inject for later assertion.
type InjectedContent struct {
	Content  string
	Strategy backend.InjectStrategy
}

// New returns a Session that will play back script in order.
func New(script Script) *Session {
	return &Session{script: script}
}

// Start begins playback. The returned channel receives events until
// the script is exhausted or a DeliverToolResult call advances it
// further; it is closed once a Finished or Error step is reached.
func (s *Session) Start(ctx context.Context, systemPrompt string, history []backend.Message, tools []backend.ToolDefinition) (<-chan backend.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(chan backend.Event, 8)
	s.playNextLocked()
	return s.events, nil
}

// DeliverToolResult advances the script past the prior tool call and
// plays the next step.
func (s *Session) DeliverToolResult(ctx context.Context, callID string, output map[string]any, cancelled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playNextLocked()
	return nil
}

// Inject records the injected content; the fake session does not alter
// its scripted behavior based on injections.
func (s *Session) Inject(ctx context.Context, content string, strategy backend.InjectStrategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Injected = append(s.Injected, InjectedContent{Content: content, Strategy: strategy})
	return nil
}

// Cancel marks the session cancelled; any step not yet played is
// skipped and a Finished event (zero tokens) is emitted if the
// channel is still open.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.events == nil || s.closed {
		return
	}
	s.cancelled = true
	s.emitLocked(backend.Event{Type: backend.EventFinished})
	s.closeLocked()
}

// playNextLocked emits the events for the next unplayed step, or
// closes the channel if the script is exhausted or cancelled.
func (s *Session) playNextLocked() {
	if s.cancelled {
		return
	}
	if s.cursor >= len(s.script) {
		s.emitLocked(backend.Event{Type: backend.EventFinished})
		s.closeLocked()
		return
	}
	step := s.script[s.cursor]
	s.cursor++

	if step.Err != nil {
		s.emitLocked(backend.Event{Type: backend.EventError, Err: step.Err})
		s.closeLocked()
		return
	}
	if step.ContentDelta != "" {
		s.emitLocked(backend.Event{Type: backend.EventContentDelta, Content: step.ContentDelta})
	}
	if step.ToolName != "" {
		s.callSeq++
		s.emitLocked(backend.Event{Type: backend.EventToolCall, Call: &backend.ToolCall{
			ID:        fmt.Sprintf("call-%d", s.callSeq),
			Name:      step.ToolName,
			Arguments: step.ToolArgs,
		}})
		return
	}
	if step.Finish {
		s.emitLocked(backend.Event{Type: backend.EventFinished, Tokens: step.Tokens})
		s.closeLocked()
		return
	}
	// A pure content-delta step (no tool call, no finish) only ever
	// occurs as the last scripted step before a pending DeliverToolResult
	// or Cancel; it does not recurse further on its own.
}

func (s *Session) emitLocked(ev backend.Event) {
	s.events <- ev
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

var _ backend.Session = (*Session)(nil)
