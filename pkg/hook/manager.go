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

// Package hook stores pre-tool and post-tool hook registrations (global
// and per-agent), matches them by tool-name glob, runs them in
// registration order, and aggregates their results.
//
// A hook handler is a closed variant, not a duck-typed interface: either
// an in-process HookFunc or an ExternalCommand reference (see external.go).
// This replaces the dynamic-dispatch hook registries common in scripting
// hosts with a small, exhaustive Go type.
package hook

import (
	"context"
	"path"
	"time"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

// HookFunc is an in-process hook handler.
type HookFunc func(ctx context.Context, event coordination.HookEvent) (coordination.HookResult, error)

// Registration is one entry in the Hook Manager's table.
type Registration struct {
	EventType coordination.HookEventType
	Matcher   string // glob matched against tool name
	Scope     coordination.HookScope
	FailClosed bool
	Timeout   time.Duration // zero means DefaultTimeout

	// Exactly one of Func or External should be set.
	Func     HookFunc
	External *ExternalCommand

	// override, set via WithOverride, means this per-agent registration
	// replaces (rather than extends) global hooks for its event type.
	override bool
}

// DefaultTimeout is used when a Registration doesn't specify one.
const DefaultTimeout = 5 * time.Second

func (r *Registration) matches(toolName string) bool {
	if r.Matcher == "" || r.Matcher == "*" {
		return true
	}
	ok, err := path.Match(r.Matcher, toolName)
	return err == nil && ok
}

func (r *Registration) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

// invoke runs the registration's handler with its timeout/fail-closed
// policy applied, never returning an error: timeout and runtime errors
// are folded into the HookResult per spec.md §4.3.
func (r *Registration) invoke(ctx context.Context, event coordination.HookEvent) coordination.HookResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	type outcome struct {
		result coordination.HookResult
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- outcome{err: errRuntime(rec)}
			}
		}()
		var res coordination.HookResult
		var err error
		if r.Func != nil {
			res, err = r.Func(ctx, event)
		} else if r.External != nil {
			res, err = r.External.Invoke(ctx, event)
		} else {
			err = errConfig("hook registration has neither Func nor External set")
		}
		ch <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return r.failurePolicy()
	case out := <-ch:
		if out.err != nil {
			if isConfigError(out.err) {
				// Import/registration errors are always a deny, regardless
				// of fail_closed, because they indicate a configuration bug.
				return coordination.HookResult{Allowed: false, Decision: coordination.DecisionDeny, Reason: out.err.Error()}
			}
			return r.failurePolicy()
		}
		return out.result
	}
}

// failurePolicy implements the timeout/runtime-error policy: fail_closed
// denies, the default allows (with the caller expected to log).
func (r *Registration) failurePolicy() coordination.HookResult {
	if r.FailClosed {
		return coordination.HookResult{Allowed: false, Decision: coordination.DecisionDeny, Reason: "hook timeout or error (fail_closed)"}
	}
	return coordination.HookResult{Allowed: true, Decision: coordination.DecisionAllow, Reason: "hook timeout or error (fail_open)"}
}

// Manager is the Hook Manager component.
type Manager struct {
	byEvent map[coordination.HookEventType][]*Registration
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{byEvent: make(map[coordination.HookEventType][]*Registration)}
}

// Register adds a hook registration. Registrations for the same event
// type are executed in the order they were registered.
func (m *Manager) Register(reg *Registration) {
	m.byEvent[reg.EventType] = append(m.byEvent[reg.EventType], reg)
}

// applicable builds the effective list for one event: global hooks plus
// per-agent hooks, with globals dropped entirely if any per-agent
// registration for this (event, agent) has override set.
func (m *Manager) applicable(eventType coordination.HookEventType, agentID, toolName string) []*Registration {
	all := m.byEvent[eventType]

	var perAgent []*Registration
	override := false
	for _, r := range all {
		if r.Scope.Global || r.Scope.AgentID != agentID || !r.matches(toolName) {
			continue
		}
		perAgent = append(perAgent, r)
	}
	for _, r := range perAgent {
		// override is a property carried on the Matcher's registration;
		// modeled here as a dedicated field would duplicate Registration,
		// so override hooks are those registered with Scope.AgentID set
		// and an explicit marker via WithOverride.
		if r.override {
			override = true
			break
		}
	}

	if override {
		return perAgent
	}

	var globals []*Registration
	for _, r := range all {
		if r.Scope.Global && r.matches(toolName) {
			globals = append(globals, r)
		}
	}
	return append(globals, perAgent...)
}

// override is attached to a Registration via WithOverride; kept as an
// unexported field so the zero value (false) is the documented default
// ("per-agent hooks extend global by default").
func (r *Registration) WithOverride() *Registration {
	r.override = true
	return r
}

// PreTool runs all applicable pre-tool hooks in order. A deny from any
// hook short-circuits: subsequent pre-tool hooks do not run, and the
// tool call must not be dispatched. updated_input from the last hook
// that set it is returned for the caller to use.
func (m *Manager) PreTool(ctx context.Context, event coordination.HookEvent) PreToolOutcome {
	regs := m.applicable(coordination.HookPreTool, event.AgentID, event.ToolName)

	out := PreToolOutcome{Allowed: true}
	for _, r := range regs {
		res := r.invoke(ctx, event)
		if res.UpdatedInput != nil {
			out.UpdatedInput = res.UpdatedInput
			event.ToolInput = res.UpdatedInput
		}
		if !res.Allowed || res.Decision == coordination.DecisionDeny {
			out.Allowed = false
			out.Reason = res.Reason
			return out
		}
		if res.Decision == coordination.DecisionAsk {
			out.NeedsAsk = true
			out.Reason = res.Reason
		}
	}
	return out
}

// PreToolOutcome is the aggregated result of running every applicable
// pre-tool hook for one tool call.
type PreToolOutcome struct {
	Allowed      bool
	NeedsAsk     bool
	Reason       string
	UpdatedInput map[string]any
}

// PostTool runs all applicable post-tool hooks in order and collects
// every inject entry they return, preserving registration order.
func (m *Manager) PostTool(ctx context.Context, event coordination.HookEvent) []coordination.Injection {
	regs := m.applicable(coordination.HookPostTool, event.AgentID, event.ToolName)

	var injections []coordination.Injection
	for _, r := range regs {
		res := r.invoke(ctx, event)
		if res.Inject != nil {
			injections = append(injections, *res.Inject)
		}
	}
	return injections
}
