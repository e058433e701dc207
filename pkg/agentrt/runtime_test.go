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

package agentrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/pkg/backend"
	"github.com/massgen-ai/massgen/pkg/backend/fake"
	"github.com/massgen-ai/massgen/pkg/coordination"
	"github.com/massgen-ai/massgen/pkg/hook"
)

type echoDispatcher struct{ calls int }

func (d *echoDispatcher) Dispatch(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	d.calls++
	return map[string]any{"echo": name}, nil
}

func TestRunDispatchesOrdinaryToolsAndAppliesHooks(t *testing.T) {
	sess := fake.New(fake.Script{
		{ToolName: "search", ToolArgs: map[string]any{"q": "x"}},
		{Finish: true, Tokens: 7},
	})
	h := hook.New()
	var preSeen, postSeen string
	h.Register(&hook.Registration{
		EventType: coordination.HookPreTool,
		Scope:     coordination.HookScope{Global: true},
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			preSeen = e.ToolName
			return coordination.HookResult{Allowed: true}, nil
		},
	})
	h.Register(&hook.Registration{
		EventType: coordination.HookPostTool,
		Scope:     coordination.HookScope{Global: true},
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			postSeen = e.ToolName
			return coordination.HookResult{Allowed: true}, nil
		},
	})

	dispatcher := &echoDispatcher{}
	rt := &Runtime{AgentID: "a1", Session: sess, Hooks: h, Tools: dispatcher, SessionID: "turn-1"}

	var kinds []EventKind
	for ev, err := range rt.Run(context.Background(), "sys", nil, nil) {
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
	}

	require.Equal(t, []EventKind{KindFinished}, kinds)
	require.Equal(t, "search", preSeen)
	require.Equal(t, "search", postSeen)
	require.Equal(t, 1, dispatcher.calls)
}

func TestRunSurfacesCoordinationCallsWithoutDispatching(t *testing.T) {
	sess := fake.New(fake.Script{
		{ToolName: "new_answer", ToolArgs: map[string]any{"text": "42"}},
	})
	dispatcher := &echoDispatcher{}
	rt := &Runtime{AgentID: "a1", Session: sess, Hooks: hook.New(), Tools: dispatcher, SessionID: "turn-1"}

	var got Event
	for ev, err := range rt.Run(context.Background(), "sys", nil, nil) {
		require.NoError(t, err)
		got = ev
		break
	}

	require.Equal(t, KindCoordination, got.Kind)
	require.Equal(t, CoordinationNewAnswer, got.Coordination)
	require.Equal(t, 0, dispatcher.calls, "coordination tools must not be dispatched as ordinary tools")
}

func TestRunDeniedToolNeverDispatches(t *testing.T) {
	sess := fake.New(fake.Script{
		{ToolName: "write_file", ToolArgs: map[string]any{"path": "/etc/passwd"}},
		{Finish: true},
	})
	h := hook.New()
	h.Register(&hook.Registration{
		EventType: coordination.HookPreTool,
		Scope:     coordination.HookScope{Global: true},
		FailClosed: true,
		Func: func(ctx context.Context, e coordination.HookEvent) (coordination.HookResult, error) {
			return coordination.HookResult{Allowed: false, Decision: coordination.DecisionDeny, Reason: "no writes"}, nil
		},
	})
	dispatcher := &echoDispatcher{}
	rt := &Runtime{AgentID: "a1", Session: sess, Hooks: h, Tools: dispatcher, SessionID: "turn-1"}

	var kinds []EventKind
	for ev, err := range rt.Run(context.Background(), "sys", nil, nil) {
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
	}

	require.Contains(t, kinds, KindToolDenied)
	require.Equal(t, 0, dispatcher.calls)
}

var _ backend.Session = (*fake.Session)(nil)
