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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoordinationToolDefsProduceObjectSchemas(t *testing.T) {
	defs := CoordinationToolDefs()
	require.Len(t, defs, 3)
	for _, def := range defs {
		require.Equal(t, "object", def.Parameters["type"])
		require.NotEmpty(t, def.Parameters["properties"])
	}
}

func TestNewAnswerSchemaMarksTextRequired(t *testing.T) {
	m := schemaFor[NewAnswerArgs]()
	required, ok := m["required"].([]any)
	require.True(t, ok)
	require.Contains(t, required, "text")
}
