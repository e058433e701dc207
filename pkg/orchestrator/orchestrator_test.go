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

package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

func newTestOrchestrator(agents ...string) *Orchestrator {
	return New(Config{
		AgentIDs:              agents,
		Policy:                coordination.NoveltyBalanced,
		MaxNewAnswersPerAgent: 3,
	}, nil, nil)
}

func TestAcceptAnswerAssignsMonotonicVersions(t *testing.T) {
	o := newTestOrchestrator("a1", "a2")
	v1, err := o.AcceptAnswer(context.Background(), "a1", "the quick brown fox jumps over the lazy dog")
	require.NoError(t, err)
	require.Equal(t, 1, v1)

	v2, err := o.AcceptAnswer(context.Background(), "a1", "a completely different statement about oceans")
	require.NoError(t, err)
	require.Equal(t, 2, v2)
}

func TestAcceptAnswerRejectsNearDuplicateUnderBalancedPolicy(t *testing.T) {
	o := newTestOrchestrator("a1", "a2")
	_, err := o.AcceptAnswer(context.Background(), "a1", "the quick brown fox jumps over the lazy dog")
	require.NoError(t, err)

	_, err = o.AcceptAnswer(context.Background(), "a2", "the quick brown fox jumps over the lazy dog today")
	require.ErrorIs(t, err, ErrNoveltyReject)
}

func TestAcceptAnswerAcceptsSubstantiallyDifferentAnswer(t *testing.T) {
	o := newTestOrchestrator("a1", "a2")
	_, err := o.AcceptAnswer(context.Background(), "a1", "the quick brown fox jumps over the lazy dog")
	require.NoError(t, err)

	_, err = o.AcceptAnswer(context.Background(), "a2", "paris is the capital city of france in europe")
	require.NoError(t, err)
}

func TestAcceptAnswerEnforcesCap(t *testing.T) {
	o := newTestOrchestrator("a1")
	o.cfg.MaxNewAnswersPerAgent = 1
	_, err := o.AcceptAnswer(context.Background(), "a1", "first distinct answer about space travel")
	require.NoError(t, err)

	_, err = o.AcceptAnswer(context.Background(), "a1", "second entirely unrelated answer about cooking")
	require.ErrorIs(t, err, ErrAnswerCapExceeded)
}

func TestAcceptVoteRejectsSelfVote(t *testing.T) {
	o := newTestOrchestrator("a1", "a2")
	v, err := o.AcceptAnswer(context.Background(), "a1", "an answer")
	require.NoError(t, err)

	err = o.AcceptVote("a1", coordination.Target{AgentID: "a1", Version: v})
	require.ErrorIs(t, err, ErrSelfVote)
}

func TestAcceptVoteRejectsInvalidTarget(t *testing.T) {
	o := newTestOrchestrator("a1", "a2")
	err := o.AcceptVote("a1", coordination.Target{AgentID: "a2", Version: 99})
	require.ErrorIs(t, err, ErrInvalidVoteTarget)
}

func TestAcceptVoteSupersedesPriorVote(t *testing.T) {
	o := newTestOrchestrator("a1", "a2", "a3")
	v2, err := o.AcceptAnswer(context.Background(), "a2", "answer from agent two")
	require.NoError(t, err)
	v3, err := o.AcceptAnswer(context.Background(), "a3", "an entirely different answer from agent three")
	require.NoError(t, err)

	require.NoError(t, o.AcceptVote("a1", coordination.Target{AgentID: "a2", Version: v2}))
	require.NoError(t, o.AcceptVote("a1", coordination.Target{AgentID: "a3", Version: v3}))

	require.Equal(t, coordination.Target{AgentID: "a3", Version: v3}, o.votes["a1"].Target)
	require.Len(t, o.votes, 1)
}

func TestConsensusByStrictPlurality(t *testing.T) {
	o := newTestOrchestrator("a1", "a2", "a3")
	v1, _ := o.AcceptAnswer(context.Background(), "a1", "answer one about mountains")
	_, _ = o.AcceptAnswer(context.Background(), "a2", "answer two about rivers and valleys")

	o.agents["a1"].NewAnswers = o.cfg.MaxNewAnswersPerAgent
	o.agents["a2"].NewAnswers = o.cfg.MaxNewAnswersPerAgent
	o.agents["a3"].NewAnswers = o.cfg.MaxNewAnswersPerAgent

	require.NoError(t, o.AcceptVote("a2", coordination.Target{AgentID: "a1", Version: v1}))
	require.NoError(t, o.AcceptVote("a3", coordination.Target{AgentID: "a1", Version: v1}))

	winner, ok := o.CheckConsensus()
	require.True(t, ok)
	require.Equal(t, "a1", winner.AgentID)
	require.Equal(t, coordination.PhasePresentation, o.Phase())
}

func TestConsensusTieBrokenByEarliestThenLowestAnonymizedID(t *testing.T) {
	o := newTestOrchestrator("a1", "a2", "a3")
	v1, _ := o.AcceptAnswer(context.Background(), "a1", "first submitted answer about trains")
	v2, _ := o.AcceptAnswer(context.Background(), "a2", "second submitted answer about airplanes and flight")

	require.NoError(t, o.AcceptVote("a3", coordination.Target{AgentID: "a1", Version: v1}))
	// Force a tie by directly injecting a competing vote for a2 from a
	// synthetic voter id outside the roster's vote-casting path.
	o.mu.Lock()
	o.votes["synthetic"] = coordination.Vote{VoterID: "synthetic", Target: coordination.Target{AgentID: "a2", Version: v2}}
	o.mu.Unlock()

	w := o.RoundTimeout()
	require.Equal(t, "a1", w.AgentID, "earlier-timestamped answer should win the tie")
}

func TestRestartBudgetExceeded(t *testing.T) {
	o := newTestOrchestrator("a1")
	o.cfg.MaxRestartsPerAgent = 1
	require.NoError(t, o.RecordRestart("a1"))
	err := o.RecordRestart("a1")
	require.True(t, errors.Is(err, ErrMaxRestartsExceeded))
}

func TestPendingAnswersForExcludesSelfAndSeen(t *testing.T) {
	o := newTestOrchestrator("a1", "a2")
	v1, _ := o.AcceptAnswer(context.Background(), "a1", "answer from agent one about weather patterns")

	pending := o.PendingAnswersFor("a2")
	require.Len(t, pending, 1)
	require.Equal(t, "a1", pending[0].AgentID)

	o.MarkSeen("a2", "a1", v1)
	require.Empty(t, o.PendingAnswersFor("a2"))

	require.Empty(t, o.PendingAnswersFor("a1"), "an agent never sees its own answers via injection")
}
