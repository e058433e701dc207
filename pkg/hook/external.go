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

package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

// ExternalCommand is a hook handler backed by a subprocess: the
// HookEvent is serialized to JSON on the command's stdin, and a
// HookResult is expected as JSON on its stdout. Event metadata is also
// exposed as environment variables for log correlation, per spec.md §4.3.
type ExternalCommand struct {
	Path string
	Args []string
}

// Invoke runs the external command once for the given event.
func (e *ExternalCommand) Invoke(ctx context.Context, event coordination.HookEvent) (coordination.HookResult, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return coordination.HookResult{}, errConfig("marshal hook event: %v", err)
	}

	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	cmd.Env = append(cmd.Env,
		"MASSGEN_TOOL_NAME="+event.ToolName,
		"MASSGEN_EVENT_TYPE="+string(event.EventType),
		"MASSGEN_SESSION_ID="+event.SessionID,
		"MASSGEN_AGENT_ID="+event.AgentID,
	)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	runErr := cmd.Run()
	if runErr != nil && stdout.Len() == 0 {
		// Non-zero exit with empty output is a runtime error, not a deny.
		return coordination.HookResult{}, fmt.Errorf("external hook %s: %w", e.Path, runErr)
	}

	var result coordination.HookResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return coordination.HookResult{}, fmt.Errorf("external hook %s: invalid HookResult: %w", e.Path, err)
	}
	return result, nil
}
