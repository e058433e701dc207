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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"github.com/massgen-ai/massgen/pkg/config"
	"github.com/massgen-ai/massgen/pkg/coordination"
	"github.com/massgen-ai/massgen/pkg/turn"
)

// runChild implements the subprocess side of the Subagent Gateway's
// IPC: read the parent's task off stdin as an a2a.Message, run it as a
// single-agent turn rooted at workdir (so the parent's status.Read can
// recover it on timeout), and write the winning answer back to stdout
// as an a2a.Message.
func runChild(ctx context.Context, cfg config.Config, workdir string, log *slog.Logger) error {
	var task a2a.Message
	if err := json.NewDecoder(os.Stdin).Decode(&task); err != nil {
		return fmt.Errorf("child: decode task: %w", err)
	}

	prompt := firstText(task)
	childCfg := cfg
	childCfg.LogRoot = workdir
	childCfg.Agents = []config.AgentSpec{{ID: "child"}}

	t := turn.New(turn.Options{Config: childCfg, Question: prompt, TurnID: coordination.NewTurnID(), IsChild: true})
	log.Info("child turn starting", "workdir", workdir)

	doc, err := t.Run(ctx)
	if err != nil {
		return fmt.Errorf("child: %w", err)
	}

	reply := a2a.Message{
		MessageID: uuid.NewString(),
		Role:      a2a.RoleAgent,
		Parts:     []a2a.Part{{Kind: "text", Text: winningText(doc)}},
	}
	return json.NewEncoder(os.Stdout).Encode(reply)
}

func firstText(msg a2a.Message) string {
	for _, p := range msg.Parts {
		if p.Kind == "text" {
			return p.Text
		}
	}
	return ""
}

func winningText(doc coordination.TurnStatus) string {
	if doc.Winner == nil {
		return ""
	}
	for _, a := range doc.Answers {
		if a.AgentID == doc.Winner.AgentID && a.Version == doc.Winner.Version {
			return a.Text
		}
	}
	return ""
}
