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

package status

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

func TestUpdateWritesAtomicallyAndIsReadable(t *testing.T) {
	dir := t.TempDir()
	agg := New(dir, "turn-1", 1, 2)

	err := agg.Update(func(doc *coordination.TurnStatus) {
		doc.Answers = append(doc.Answers, coordination.AnswerStatus{AgentID: "a1", Version: 1})
	})
	require.NoError(t, err)

	doc, err := Read(agg.Path())
	require.NoError(t, err)
	require.Len(t, doc.Answers, 1)
	require.InDelta(t, 25.0, doc.CompletionPercentage, 0.001)
}

func TestCompletionPercentageClampsAt100(t *testing.T) {
	dir := t.TempDir()
	agg := New(dir, "turn-2", 1, 1)

	err := agg.Update(func(doc *coordination.TurnStatus) {
		doc.Answers = []coordination.AnswerStatus{{}, {}, {}}
		doc.Votes = []coordination.VoteStatus{{}, {}, {}}
	})
	require.NoError(t, err)
	require.Equal(t, 100.0, agg.Snapshot().CompletionPercentage)
}

func TestCompletionPercentageZeroAgentsNeverDivides(t *testing.T) {
	require.Equal(t, 0.0, completionPercentage(0, 5, 5))
}
