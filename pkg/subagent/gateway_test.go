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

package subagent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

func TestSpawnRejectsNestedSpawn(t *testing.T) {
	g := New(Config{}, t.TempDir(), true)
	_, err := g.Spawn(context.Background(), []Task{{SubagentID: "s1"}}, time.Second)
	require.ErrorIs(t, err, ErrNestedSpawn)
}

func TestSpawnRejectsTooManyTasks(t *testing.T) {
	g := New(Config{MaxConcurrent: 1}, t.TempDir(), false)
	_, err := g.Spawn(context.Background(), []Task{{SubagentID: "s1"}, {SubagentID: "s2"}}, time.Second)
	require.ErrorIs(t, err, ErrTooManyTasks)
}

func TestClampTimeoutEnforcesMinAndMax(t *testing.T) {
	g := New(Config{MinTimeout: 10 * time.Second, MaxTimeout: time.Minute}, t.TempDir(), false)
	require.Equal(t, 10*time.Second, g.clampTimeout(time.Second))
	require.Equal(t, time.Minute, g.clampTimeout(time.Hour))
	require.Equal(t, 30*time.Second, g.clampTimeout(30*time.Second))
}

func TestMirrorContextFilesCopiesReadOnly(t *testing.T) {
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	dest := t.TempDir()
	require.NoError(t, mirrorContextFiles([]string{src}, dest))

	data, err := os.ReadFile(filepath.Join(dest, "context", "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestTaskMessageRoundTripsThroughAnswerText(t *testing.T) {
	msg := taskMessage(Task{Prompt: "summarize the README", ContextFiles: []string{"/a/b.txt"}})
	require.Equal(t, "summarize the README", msg.Parts[0].Text)
	require.Contains(t, answerText(msg), "summarize the README")
}

func TestRecoverFromStatusSynthesizesCompletedButTimeout(t *testing.T) {
	g := New(Config{}, t.TempDir(), false)
	doc := coordination.TurnStatus{
		Winner:  &coordination.Target{AgentID: "a1", Version: 1},
		Answers: []coordination.AnswerStatus{{AgentID: "a1", Version: 1, Text: "final answer"}},
	}
	path := writeStatusFixture(t, doc)

	result := g.recoverFromStatus("s1", path, true, context.DeadlineExceeded)
	require.Equal(t, OutcomeCompletedTimeout, result.Outcome)
	require.Equal(t, "final answer", result.Answer)
}

func TestRecoverFromStatusSynthesizesPartialWhenNoWinner(t *testing.T) {
	g := New(Config{}, t.TempDir(), false)
	doc := coordination.TurnStatus{
		Answers: []coordination.AnswerStatus{{AgentID: "a1", Version: 1, Text: "draft"}},
	}
	path := writeStatusFixture(t, doc)

	result := g.recoverFromStatus("s1", path, true, context.DeadlineExceeded)
	require.Equal(t, OutcomePartial, result.Outcome)
}

func TestRecoverFromStatusSynthesizesTimeoutWhenNoStatusFile(t *testing.T) {
	g := New(Config{}, t.TempDir(), false)
	result := g.recoverFromStatus("s1", filepath.Join(t.TempDir(), "missing.json"), true, context.DeadlineExceeded)
	require.Equal(t, OutcomeTimeout, result.Outcome)
}

func writeStatusFixture(t *testing.T, doc coordination.TurnStatus) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "status.json")
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
