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

package hook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

func TestPreToolRunsInRegistrationOrderAndDenyShortCircuits(t *testing.T) {
	m := New()
	var order []string

	m.Register(&Registration{
		EventType: coordination.HookPreTool,
		Scope:     coordination.HookScope{Global: true},
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			order = append(order, "first")
			return coordination.HookResult{Allowed: true, Decision: coordination.DecisionAllow}, nil
		},
	})
	m.Register(&Registration{
		EventType: coordination.HookPreTool,
		Scope:     coordination.HookScope{Global: true},
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			order = append(order, "second-denies")
			return coordination.HookResult{Allowed: false, Decision: coordination.DecisionDeny, Reason: "nope"}, nil
		},
	})
	m.Register(&Registration{
		EventType: coordination.HookPreTool,
		Scope:     coordination.HookScope{Global: true},
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			order = append(order, "third-should-not-run")
			return coordination.HookResult{Allowed: true, Decision: coordination.DecisionAllow}, nil
		},
	})

	out := m.PreTool(context.Background(), coordination.HookEvent{ToolName: "write_file"})

	require.False(t, out.Allowed)
	require.Equal(t, "nope", out.Reason)
	require.Equal(t, []string{"first", "second-denies"}, order)
}

func TestPerAgentOverrideDropsGlobalHooks(t *testing.T) {
	m := New()
	globalRan := false
	m.Register(&Registration{
		EventType: coordination.HookPreTool,
		Scope:     coordination.HookScope{Global: true},
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			globalRan = true
			return coordination.HookResult{Allowed: true, Decision: coordination.DecisionAllow}, nil
		},
	})
	m.Register((&Registration{
		EventType: coordination.HookPreTool,
		Scope:     coordination.HookScope{AgentID: "agentA"},
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			return coordination.HookResult{Allowed: true, Decision: coordination.DecisionAllow}, nil
		},
	}).WithOverride())

	out := m.PreTool(context.Background(), coordination.HookEvent{AgentID: "agentA", ToolName: "x"})
	require.True(t, out.Allowed)
	require.False(t, globalRan, "override per-agent hook must drop global hooks for this agent")
}

func TestFailClosedDeniesOnTimeout(t *testing.T) {
	m := New()
	m.Register(&Registration{
		EventType:  coordination.HookPreTool,
		Scope:      coordination.HookScope{Global: true},
		FailClosed: true,
		Timeout:    10 * time.Millisecond,
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			<-ctx.Done()
			return coordination.HookResult{}, ctx.Err()
		},
	})

	out := m.PreTool(context.Background(), coordination.HookEvent{ToolName: "x"})
	require.False(t, out.Allowed)
}

func TestFailOpenAllowsOnTimeoutByDefault(t *testing.T) {
	m := New()
	m.Register(&Registration{
		EventType: coordination.HookPreTool,
		Scope:     coordination.HookScope{Global: true},
		Timeout:   10 * time.Millisecond,
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			time.Sleep(50 * time.Millisecond)
			return coordination.HookResult{Allowed: false, Decision: coordination.DecisionDeny}, nil
		},
	})

	out := m.PreTool(context.Background(), coordination.HookEvent{ToolName: "x"})
	require.True(t, out.Allowed, "default fail_closed=false must allow on timeout")
}

func TestPostToolCollectsInjectionsInOrder(t *testing.T) {
	m := New()
	m.Register(&Registration{
		EventType: coordination.HookPostTool,
		Scope:     coordination.HookScope{Global: true},
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			return coordination.HookResult{Allowed: true, Inject: &coordination.Injection{Content: "first"}}, nil
		},
	})
	m.Register(&Registration{
		EventType: coordination.HookPostTool,
		Scope:     coordination.HookScope{Global: true},
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			return coordination.HookResult{Allowed: true, Inject: &coordination.Injection{Content: "second"}}, nil
		},
	})

	injections := m.PostTool(context.Background(), coordination.HookEvent{ToolName: "x"})
	require.Len(t, injections, 2)
	require.Equal(t, "first", injections[0].Content)
	require.Equal(t, "second", injections[1].Content)
}
