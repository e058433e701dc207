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

package permission

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

func TestCheckDeniesWithoutEntry(t *testing.T) {
	m := New()
	require.False(t, m.Check("a1", "/ws/a1/file.txt", coordination.PermissionRead))
}

func TestAddTurnContextPathGrantsAccess(t *testing.T) {
	m := New()
	m.AddTurnContextPath("a1", "/ws/a1", coordination.PermissionWrite)

	require.True(t, m.Check("a1", "/ws/a1/file.txt", coordination.PermissionRead))
	require.True(t, m.Check("a1", "/ws/a1/file.txt", coordination.PermissionWrite))
	require.False(t, m.Check("a1", "/ws/a1x/file.txt", coordination.PermissionWrite), "sibling path must not match by accidental substring")
}

func TestWriteSupersedesReadNeverDowngrades(t *testing.T) {
	m := New()
	m.AddTurnContextPath("a1", "/ws/shared", coordination.PermissionWrite)
	m.AddTurnContextPath("a1", "/ws/shared", coordination.PermissionRead)

	require.True(t, m.Check("a1", "/ws/shared/x", coordination.PermissionWrite), "a later read grant must not downgrade an existing write grant")
}

func TestReadOnlyNeverGrantsWrite(t *testing.T) {
	m := New()
	m.AddTurnContextPath("a1", "/ws/peer", coordination.PermissionRead)

	require.True(t, m.Check("a1", "/ws/peer/x", coordination.PermissionRead))
	require.False(t, m.Check("a1", "/ws/peer/x", coordination.PermissionWrite))
}
