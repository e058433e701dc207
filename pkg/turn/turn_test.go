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

package turn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/pkg/backend/fake"
	"github.com/massgen-ai/massgen/pkg/config"
	"github.com/massgen-ai/massgen/pkg/coordination"
)

func TestRunConvergesOnVoteWithTwoAgents(t *testing.T) {
	cfg := config.Defaults()
	cfg.LogRoot = t.TempDir()
	cfg.Agents = []config.AgentSpec{{ID: "a1"}, {ID: "a2"}}

	tn := New(Options{Config: cfg, Question: "what is the capital of France?", TurnID: "t1"})
	doc, err := tn.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, doc.Winner)
	require.Equal(t, "a1", doc.Winner.AgentID)
	require.Equal(t, coordination.PhasePresentation, doc.Phase)
}

func TestRunRejectsNearDuplicateAnswerUnderBalancedPolicy(t *testing.T) {
	cfg := config.Defaults()
	cfg.LogRoot = t.TempDir()
	cfg.Agents = []config.AgentSpec{{ID: "a1"}, {ID: "a2"}}

	duplicateText := "the quick brown fox jumps over the lazy dog near the river"
	scripts := map[string]fake.Script{
		"a1": {
			{ToolName: "new_answer", ToolArgs: map[string]any{"text": duplicateText}},
			{Finish: true, Tokens: 10},
		},
		"a2": {
			{ToolName: "new_answer", ToolArgs: map[string]any{"text": duplicateText}},
			{ToolName: "vote", ToolArgs: map[string]any{"agent_id": "a1", "version": float64(1)}},
			{Finish: true, Tokens: 10},
		},
	}

	tn := New(Options{Config: cfg, Question: "describe a scene", TurnID: "t2", Scripts: scripts})
	doc, err := tn.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, doc.Answers, 1, "a2's near-duplicate answer should have been rejected for novelty")
}
