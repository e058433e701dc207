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

package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureWorkspaceIdempotent(t *testing.T) {
	m := New(t.TempDir())

	root1, err := m.EnsureWorkspace("agentA")
	require.NoError(t, err)
	root2, err := m.EnsureWorkspace("agentA")
	require.NoError(t, err)
	require.Equal(t, root1, root2)

	info, err := os.Stat(root1)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestSnapshotAndExposeRoundTrip(t *testing.T) {
	m := New(t.TempDir())

	root, err := m.EnsureWorkspace("agentA")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "answer.txt"), []byte("hello"), 0o644))

	snap, err := m.Snapshot("agentA", 1)
	require.NoError(t, err)
	require.True(t, m.Exists(snap))
	require.Contains(t, snap.FileInventory, "answer.txt")

	tempPath, err := m.Expose(snap, "agentB", "agent1")
	require.NoError(t, err)
	require.NotEqual(t, root, tempPath)

	data, err := os.ReadFile(filepath.Join(tempPath, "answer.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	// Re-exposing the same snapshot to the same recipient reuses the mirror.
	tempPath2, err := m.Expose(snap, "agentB", "agent1")
	require.NoError(t, err)
	require.Equal(t, tempPath, tempPath2)
}

func TestSnapshotIsImmutableAfterCreation(t *testing.T) {
	m := New(t.TempDir())
	root, err := m.EnsureWorkspace("agentA")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1"), 0o644))

	snap1, err := m.Snapshot("agentA", 1)
	require.NoError(t, err)

	// Mutate the live workspace after the snapshot was taken.
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("v2"), 0o644))

	data, err := os.ReadFile(filepath.Join(snap1.StoragePath, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(data), "snapshot content must not change after later workspace writes")
}

func TestRewritePathsSubstitutesPathsAndIdentities(t *testing.T) {
	mappings := []PathMapping{
		{
			RealWorkspaceRoot: "/turns/t1/workspaces/agentA",
			TempPath:          "/turns/t1/temp_workspaces/agentB/agent1",
			RealAgentID:       "agentA",
			AnonymizedID:      "agent1",
		},
	}

	text := "See /turns/t1/workspaces/agentA/report.md written by agentA."
	got := RewritePaths(text, mappings)

	require.Contains(t, got, "/turns/t1/temp_workspaces/agentB/agent1/report.md")
	require.Contains(t, got, "written by agent1")
	require.NotContains(t, got, "agentA")
}

func TestRewritePathsDoesNotTouchUnrelatedSubstrings(t *testing.T) {
	mappings := []PathMapping{
		{RealAgentID: "a1", AnonymizedID: "agent1"},
	}
	text := "the variable a10 should be untouched"
	got := RewritePaths(text, mappings)
	require.Equal(t, text, got)
}

func TestNoTwoWorkspaceRootsAreSubstrings(t *testing.T) {
	m := New(t.TempDir())
	rootA, err := m.EnsureWorkspace("agent1")
	require.NoError(t, err)
	rootB, err := m.EnsureWorkspace("agent10")
	require.NoError(t, err)

	require.False(t, filepath.Clean(rootB) == filepath.Clean(rootA)+"0")
	require.NotEqual(t, rootA, rootB)
}
