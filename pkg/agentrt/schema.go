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
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/massgen-ai/massgen/pkg/backend"
)

// NewAnswerArgs is the schema for the new_answer coordination tool.
type NewAnswerArgs struct {
	Text string `json:"text" jsonschema:"required,description=The full candidate answer text"`
}

// VoteArgs is the schema for the vote coordination tool.
type VoteArgs struct {
	AgentID string `json:"agent_id" jsonschema:"required,description=The peer agent id whose answer this vote endorses"`
	Version int    `json:"version" jsonschema:"required,description=The answer version being endorsed"`
}

// SpawnSubagentsArgs is the schema for the spawn_subagents coordination
// tool.
type SpawnSubagentsArgs struct {
	Tasks []SubagentTaskArgs `json:"tasks" jsonschema:"required,description=Independent subtasks to run in parallel"`
	Async bool               `json:"async,omitempty" jsonschema:"description=Has no effect: spawn_subagents always blocks until all subagents finish"`
}

// SubagentTaskArgs describes one task within a spawn_subagents call.
type SubagentTaskArgs struct {
	SubagentID   string   `json:"subagent_id" jsonschema:"required,description=Caller-chosen identifier for this subtask"`
	Task         string   `json:"task" jsonschema:"required,description=The subtask prompt"`
	ContextFiles []string `json:"context_files,omitempty" jsonschema:"description=Paths mirrored read-only into the subagent's workspace"`
}

// CoordinationToolDefs returns the three coordination tools' definitions
// with JSON-Schema-derived parameter shapes, for handing to
// backend.Session.Start.
func CoordinationToolDefs() []backend.ToolDefinition {
	return []backend.ToolDefinition{
		{Name: "new_answer", Description: "Submit a candidate answer for this turn; rejected if too similar to an existing answer.", Parameters: schemaFor[NewAnswerArgs]()},
		{Name: "vote", Description: "Cast or replace a vote for a peer's answer. Self-votes are rejected.", Parameters: schemaFor[VoteArgs]()},
		{Name: "spawn_subagents", Description: "Spawn independent child turns for parallel subtasks.", Parameters: schemaFor[SpawnSubagentsArgs]()},
	}
}

// schemaFor reflects a Go struct into a JSON-Schema-shaped
// map[string]any usable as a backend.ToolDefinition's Parameters,
// mirroring the teacher's functiontool.generateSchema.
func schemaFor[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}
