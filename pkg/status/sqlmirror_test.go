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
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

func TestSQLMirrorRecordsAndReturnsHistoryInOrder(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "mirror.db")

	mirror, err := NewSQLMirror(ctx, dbPath)
	require.NoError(t, err)

	require.NoError(t, mirror.RecordSnapshot(ctx, coordination.TurnStatus{
		TurnID: "turn-a", AttemptNumber: 1, Phase: coordination.PhaseExploration, CompletionPercentage: 10,
	}))
	require.NoError(t, mirror.RecordSnapshot(ctx, coordination.TurnStatus{
		TurnID: "turn-a", AttemptNumber: 1, Phase: coordination.PhasePresentation, CompletionPercentage: 100,
	}))
	require.NoError(t, mirror.RecordSnapshot(ctx, coordination.TurnStatus{
		TurnID: "turn-b", AttemptNumber: 1, Phase: coordination.PhaseExploration, CompletionPercentage: 5,
	}))

	history, err := mirror.History(ctx, "turn-a")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, coordination.PhaseExploration, history[0].Phase)
	require.Equal(t, coordination.PhasePresentation, history[1].Phase)
}

func TestAggregatorUpdateFeedsAttachedMirror(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mirror, err := NewSQLMirror(ctx, filepath.Join(dir, "mirror.db"))
	require.NoError(t, err)

	agg := New(dir, "turn-mirrored", 1, 1).WithMirror(mirror)
	require.NoError(t, agg.Update(func(doc *coordination.TurnStatus) {
		doc.Phase = coordination.PhaseConvergence
	}))

	history, err := mirror.History(ctx, "turn-mirrored")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, coordination.PhaseConvergence, history[0].Phase)
}
